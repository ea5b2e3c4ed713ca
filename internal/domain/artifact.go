package domain

import "time"

// DefaultFileRetention is how long stored bytes are kept before the
// retention sweep removes them.
const DefaultFileRetention = 24 * time.Hour

// Artifact is a stored binary (uploaded file or generated output) owned by
// exactly one session. Checksum is the SHA-256 hex digest of the stored
// bytes; a mismatch on read is an integrity failure, never silently
// repaired.
type Artifact struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	OriginalName string    `json:"originalName"`
	StoredName   string    `json:"storedName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	RemoteID     string    `json:"remoteId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ManifestFile is one output referenced by an analysis manifest.
type ManifestFile struct {
	Path    string `json:"path"`
	Type    string `json:"type"`
	Purpose string `json:"purpose"`
	FileID  string `json:"file_id,omitempty"`
}

// Manifest is the structured result extracted from one completed analysis
// run. It is immutable once produced; a session accumulates one manifest
// per run.
type Manifest struct {
	Insight  string         `json:"insight"`
	Files    []ManifestFile `json:"files"`
	Metadata map[string]any `json:"metadata"`
}
