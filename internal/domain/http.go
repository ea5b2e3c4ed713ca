package domain

import "time"

// ConfirmDeletePhrase must be sent verbatim to confirm session deletion.
const ConfirmDeletePhrase = "DELETE MY DATA"

// ProfileHints summarises the sniffer's findings for the upload response.
type ProfileHints struct {
	ColumnCount int                `json:"columnCount"`
	HasHeaders  bool               `json:"hasHeaders"`
	SampleData  [][]string         `json:"sampleData"`
	PIIFlags    map[string]PIIFlag `json:"piiFlags"`
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	FileID       string       `json:"fileId"`
	SessionID    string       `json:"sessionId"`
	Filename     string       `json:"filename"`
	Size         int64        `json:"size"`
	RowCount     int          `json:"rowCount"`
	ProfileHints ProfileHints `json:"profileHints"`
}

// AnalyzeRequest asks for one analysis run against an uploaded file.
type AnalyzeRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	FileID    string `json:"fileId" binding:"required"`
	Prompt    string `json:"prompt" binding:"required"`
}

// AnalyzeResponse carries the extracted manifest and any stored outputs.
type AnalyzeResponse struct {
	SessionID string      `json:"sessionId"`
	Manifest  *Manifest   `json:"manifest"`
	Artifacts []*Artifact `json:"artifacts"`
}

// DeleteSessionRequest asks for a session and its artifacts to be removed.
type DeleteSessionRequest struct {
	SessionID   string `json:"sessionId" binding:"required"`
	ConfirmText string `json:"confirmText" binding:"required"`
}

// DeleteSessionResponse confirms a deletion.
type DeleteSessionResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	DeletedAt time.Time `json:"deletedAt"`
}

// RunRecord is one entry in the run-history audit log.
type RunRecord struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	FileID        string    `json:"fileId"`
	RunID         string    `json:"runId"`
	Status        string    `json:"status"`
	Insight       string    `json:"insight"`
	ArtifactCount int       `json:"artifactCount"`
	CreatedAt     time.Time `json:"createdAt"`
}
