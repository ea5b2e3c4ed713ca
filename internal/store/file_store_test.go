package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"
)

func newTestFileStore() *FileStore {
	return NewFileStore(24*time.Hour, 0, nil)
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newTestFileStore()
	defer s.Close()

	content := []byte("name,qty\nwidget,5\n")
	artifact := s.StoreFile("sess1", "data.csv", content, "text/csv")

	if artifact.ID == "" || artifact.SessionID != "sess1" {
		t.Fatalf("unexpected artifact: %+v", artifact)
	}
	if artifact.Size != int64(len(content)) {
		t.Fatalf("size = %d, want %d", artifact.Size, len(content))
	}

	sum := sha256.Sum256(content)
	if artifact.Checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum mismatch: %s", artifact.Checksum)
	}

	got, ok := s.GetFile(artifact.ID)
	if !ok {
		t.Fatalf("GetFile failed")
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("stored bytes differ")
	}

	meta, ok := s.GetFileMetadata(artifact.ID)
	if !ok || meta.OriginalName != "data.csv" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestFileStoreIntegrity(t *testing.T) {
	s := newTestFileStore()
	defer s.Close()

	artifact := s.StoreFile("sess1", "data.csv", []byte("a,b\n1,2\n"), "text/csv")

	if !s.VerifyFileIntegrity(artifact.ID) {
		t.Fatalf("integrity check failed right after storage")
	}

	// Corrupt the stored bytes behind the checksum's back.
	s.mu.Lock()
	s.files[artifact.ID].data[0] = 'X'
	s.mu.Unlock()

	if s.VerifyFileIntegrity(artifact.ID) {
		t.Fatalf("integrity check passed on corrupted bytes")
	}

	if s.VerifyFileIntegrity("missing") {
		t.Fatalf("integrity check passed for unknown id")
	}
}

func TestFileStoreGetFileReturnsCopy(t *testing.T) {
	s := newTestFileStore()
	defer s.Close()

	artifact := s.StoreFile("sess1", "data.csv", []byte("abc"), "text/csv")

	got, _ := s.GetFile(artifact.ID)
	got[0] = 'Z'

	if !s.VerifyFileIntegrity(artifact.ID) {
		t.Fatalf("mutating a returned copy corrupted the store")
	}
}

func TestFileStoreVersionedArtifacts(t *testing.T) {
	s := newTestFileStore()
	defer s.Close()

	first := s.StoreArtifact("sess1", "summary", []byte("v1"), "csv")
	second := s.StoreArtifact("sess1", "summary", []byte("v2"), "csv")

	if first.ID == second.ID {
		t.Fatalf("artifact ids collided")
	}
	if first.StoredName == second.StoredName {
		t.Fatalf("stored names collided: %s", first.StoredName)
	}
	if first.MimeType != "text/csv" {
		t.Fatalf("mime type = %q", first.MimeType)
	}

	one, _ := s.GetFile(first.ID)
	if string(one) != "v1" {
		t.Fatalf("earlier version overwritten: %q", one)
	}
}

func TestFileStoreSessionFilesOrder(t *testing.T) {
	s := newTestFileStore()
	defer s.Close()

	a := s.StoreFile("sess1", "a.csv", []byte("a"), "text/csv")
	b := s.StoreFile("sess1", "b.csv", []byte("b"), "text/csv")
	s.StoreFile("other", "c.csv", []byte("c"), "text/csv")

	files := s.GetSessionFiles("sess1")
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].ID != a.ID || files[1].ID != b.ID {
		t.Fatalf("insertion order not preserved")
	}
}

func TestFileStoreCascadeDelete(t *testing.T) {
	s := newTestFileStore()
	defer s.Close()

	a := s.StoreFile("sess1", "a.csv", []byte("a"), "text/csv")
	s.StoreFile("sess1", "b.csv", []byte("b"), "text/csv")
	keep := s.StoreFile("other", "c.csv", []byte("c"), "text/csv")

	if n := s.DeleteSessionFiles("sess1"); n != 2 {
		t.Fatalf("deleted %d files, want 2", n)
	}
	if _, ok := s.GetFile(a.ID); ok {
		t.Fatalf("artifact survived cascade delete")
	}
	if _, ok := s.GetFile(keep.ID); !ok {
		t.Fatalf("unrelated artifact deleted")
	}
}

func TestFileStoreSetRemoteID(t *testing.T) {
	s := newTestFileStore()
	defer s.Close()

	artifact := s.StoreFile("sess1", "a.csv", []byte("a"), "text/csv")

	if !s.SetRemoteID(artifact.ID, "file_remote_1") {
		t.Fatalf("SetRemoteID failed")
	}
	meta, _ := s.GetFileMetadata(artifact.ID)
	if meta.RemoteID != "file_remote_1" {
		t.Fatalf("remote id = %q", meta.RemoteID)
	}
	if s.SetRemoteID("missing", "x") {
		t.Fatalf("SetRemoteID succeeded for unknown id")
	}
}

func TestFileStoreRetentionSweep(t *testing.T) {
	s := newTestFileStore()
	defer s.Close()

	old := s.StoreFile("sess1", "old.csv", []byte("old"), "text/csv")
	fresh := s.StoreFile("sess1", "fresh.csv", []byte("new"), "text/csv")

	s.mu.Lock()
	s.files[old.ID].meta.CreatedAt = time.Now().Add(-25 * time.Hour)
	s.mu.Unlock()

	if n := s.sweepExpired(); n != 1 {
		t.Fatalf("sweep removed %d, want 1", n)
	}
	if _, ok := s.GetFile(old.ID); ok {
		t.Fatalf("expired artifact survived sweep")
	}
	if _, ok := s.GetFile(fresh.ID); !ok {
		t.Fatalf("fresh artifact removed by sweep")
	}

	files := s.GetSessionFiles("sess1")
	if len(files) != 1 || files[0].ID != fresh.ID {
		t.Fatalf("session index not updated by sweep: %+v", files)
	}
}
