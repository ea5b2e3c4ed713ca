package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/csvpilot/csvpilot/internal/domain"
)

type storedFile struct {
	meta domain.Artifact
	data []byte
}

// FileStore is an in-memory, content-addressed artifact store. Every
// artifact carries the SHA-256 digest of its bytes; a mismatch on read is
// an integrity failure. Artifacts belong to exactly one session and are
// removed by the retention sweep after their TTL, independently of whether
// the owning session still exists.
type FileStore struct {
	mu        sync.RWMutex
	files     map[string]*storedFile
	bySession map[string][]string // artifact ids in insertion order

	retention time.Duration
	logger    *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewFileStore creates a file store. A positive sweepInterval starts the
// retention sweep; Close stops it.
func NewFileStore(retention, sweepInterval time.Duration, logger *zap.Logger) *FileStore {
	if retention <= 0 {
		retention = domain.DefaultFileRetention
	}
	s := &FileStore{
		files:     make(map[string]*storedFile),
		bySession: make(map[string][]string),
		retention: retention,
		logger:    logger,
		stop:      make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

// StoreFile persists raw uploaded bytes under a fresh id. It never
// overwrites an existing artifact.
func (s *FileStore) StoreFile(sessionID, filename string, data []byte, mimeType string) *domain.Artifact {
	return s.store(sessionID, filename, filename, data, mimeType)
}

// StoreArtifact persists a generated output. The stored name embeds the
// artifact kind and a nanosecond timestamp so repeated runs of the same
// analysis never collide.
func (s *FileStore) StoreArtifact(sessionID, kind string, data []byte, extension string) *domain.Artifact {
	name := fmt.Sprintf("%s_%d.%s", kind, time.Now().UnixNano(), extension)
	return s.store(sessionID, name, name, data, mimeTypeForExtension(extension))
}

func (s *FileStore) store(sessionID, originalName, storedName string, data []byte, mimeType string) *domain.Artifact {
	sum := sha256.Sum256(data)
	owned := make([]byte, len(data))
	copy(owned, data)

	file := &storedFile{
		meta: domain.Artifact{
			ID:           uuid.New().String(),
			SessionID:    sessionID,
			OriginalName: originalName,
			StoredName:   storedName,
			MimeType:     mimeType,
			Size:         int64(len(data)),
			Checksum:     hex.EncodeToString(sum[:]),
			CreatedAt:    time.Now(),
		},
		data: owned,
	}

	s.mu.Lock()
	s.files[file.meta.ID] = file
	s.bySession[sessionID] = append(s.bySession[sessionID], file.meta.ID)
	s.mu.Unlock()

	meta := file.meta
	return &meta
}

// GetFile returns a copy of the stored bytes.
func (s *FileStore) GetFile(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[id]
	if !ok {
		return nil, false
	}
	data := make([]byte, len(file.data))
	copy(data, file.data)
	return data, true
}

// GetFileMetadata returns a copy of the artifact record.
func (s *FileStore) GetFileMetadata(id string) (*domain.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[id]
	if !ok {
		return nil, false
	}
	meta := file.meta
	return &meta, true
}

// SetRemoteID records the artifact's remote counterpart under the store
// lock, so concurrent registrations never lose the update.
func (s *FileStore) SetRemoteID(id, remoteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.files[id]
	if !ok {
		return false
	}
	file.meta.RemoteID = remoteID
	return true
}

// VerifyFileIntegrity recomputes the checksum over the stored bytes and
// compares it with the recorded one. Unknown ids report false.
func (s *FileStore) VerifyFileIntegrity(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[id]
	if !ok {
		return false
	}
	sum := sha256.Sum256(file.data)
	return hex.EncodeToString(sum[:]) == file.meta.Checksum
}

// GetSessionFiles returns the session's artifacts in insertion order.
func (s *FileStore) GetSessionFiles(sessionID string) []*domain.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySession[sessionID]
	artifacts := make([]*domain.Artifact, 0, len(ids))
	for _, id := range ids {
		if file, ok := s.files[id]; ok {
			meta := file.meta
			artifacts = append(artifacts, &meta)
		}
	}
	return artifacts
}

// DeleteSessionFiles removes every artifact owned by the session and
// returns how many were deleted. Used by cascade deletion.
func (s *FileStore) DeleteSessionFiles(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.bySession[sessionID]
	for _, id := range ids {
		delete(s.files, id)
	}
	delete(s.bySession, sessionID)
	return len(ids)
}

// Close stops the retention sweep.
func (s *FileStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *FileStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.sweepExpired(); n > 0 && s.logger != nil {
				s.logger.Info("swept expired artifacts", zap.Int("count", n))
			}
		}
	}
}

// sweepExpired deletes artifacts past the retention window. Victims are
// gathered under a read lock so the sweep never blocks unrelated access
// for its full duration.
func (s *FileStore) sweepExpired() int {
	cutoff := time.Now().Add(-s.retention)

	s.mu.RLock()
	var victims []string
	for id, file := range s.files {
		if file.meta.CreatedAt.Before(cutoff) {
			victims = append(victims, id)
		}
	}
	s.mu.RUnlock()

	if len(victims) == 0 {
		return 0
	}

	s.mu.Lock()
	removed := 0
	for _, id := range victims {
		file, ok := s.files[id]
		if !ok || !file.meta.CreatedAt.Before(cutoff) {
			continue
		}
		delete(s.files, id)
		s.removeFromSession(file.meta.SessionID, id)
		removed++
	}
	s.mu.Unlock()
	return removed
}

// removeFromSession is called with the write lock held.
func (s *FileStore) removeFromSession(sessionID, id string) {
	ids := s.bySession[sessionID]
	for i, candidate := range ids {
		if candidate == id {
			s.bySession[sessionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.bySession[sessionID]) == 0 {
		delete(s.bySession, sessionID)
	}
}

func mimeTypeForExtension(extension string) string {
	switch extension {
	case "csv":
		return "text/csv"
	case "json":
		return "application/json"
	case "png":
		return "image/png"
	case "txt", "md":
		return "text/plain"
	case "html":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
