package store

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"time"
)

// ExportFilename derives the download name for an export archive:
// analysis_export_<timestamp>.zip, with ':' and '.' replaced so the name is
// safe across filesystems.
func ExportFilename(t time.Time) string {
	ts := t.UTC().Truncate(time.Second).Format(time.RFC3339)
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return "analysis_export_" + ts + ".zip"
}

// BuildExportArchive bundles every artifact of the session plus a
// manifest.txt listing into a single zip. Entries use each artifact's
// original filename in a flat namespace; versioned stored names keep
// generated outputs from colliding.
func (s *FileStore) BuildExportArchive(sessionID string) ([]byte, error) {
	artifacts := s.GetSessionFiles(sessionID)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var manifest strings.Builder
	fmt.Fprintf(&manifest, "Analysis Export\n")
	fmt.Fprintf(&manifest, "Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&manifest, "Total files: %d\n\n", len(artifacts))

	for _, artifact := range artifacts {
		data, ok := s.GetFile(artifact.ID)
		if !ok {
			continue
		}

		fmt.Fprintf(&manifest, "%s\n", artifact.OriginalName)
		fmt.Fprintf(&manifest, "  size: %.1f KB\n", float64(artifact.Size)/1024)
		fmt.Fprintf(&manifest, "  type: %s\n", artifact.MimeType)
		fmt.Fprintf(&manifest, "  created: %s\n", artifact.CreatedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&manifest, "  sha256: %s\n\n", artifact.Checksum)

		w, err := zw.Create(artifact.OriginalName)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", artifact.OriginalName, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", artifact.OriginalName, err)
		}
	}

	w, err := zw.Create("manifest.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to add manifest to archive: %w", err)
	}
	if _, err := w.Write([]byte(manifest.String())); err != nil {
		return nil, fmt.Errorf("failed to write manifest to archive: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
