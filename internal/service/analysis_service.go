package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/csvpilot/csvpilot/internal/assistant"
	"github.com/csvpilot/csvpilot/internal/domain"
	"github.com/csvpilot/csvpilot/internal/repository"
	"github.com/csvpilot/csvpilot/internal/sniff"
	"github.com/csvpilot/csvpilot/internal/store"
)

// AnalysisService ties the sniffer, the stores and the orchestrator into
// the upload → analyze → export data flow.
type AnalysisService struct {
	sessions     *store.SessionStore
	files        *store.FileStore
	orchestrator *Orchestrator
	history      *repository.HistoryRepository
	logger       *zap.Logger
}

// NewAnalysisService creates a new analysis service.
func NewAnalysisService(
	sessions *store.SessionStore,
	files *store.FileStore,
	orchestrator *Orchestrator,
	history *repository.HistoryRepository,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		sessions:     sessions,
		files:        files,
		orchestrator: orchestrator,
		history:      history,
		logger:       logger,
	}
}

// Upload profiles the CSV, opens a remote thread, creates a session for it
// and persists the raw bytes as the session's first artifact.
func (s *AnalysisService) Upload(ctx context.Context, filename string, data []byte, mimeType string) (*domain.UploadResponse, error) {
	profile, err := sniff.Sniff(data, filename)
	if err != nil {
		return nil, err
	}

	threadID, err := s.orchestrator.CreateThread(ctx)
	if err != nil {
		return nil, err
	}

	session := s.sessions.Create(threadID)
	artifact := s.files.StoreFile(session.ID, filename, data, mimeType)

	if s.logger != nil {
		s.logger.Info("stored upload",
			zap.String("session_id", session.ID),
			zap.String("file_id", artifact.ID),
			zap.Int("row_count", profile.RowCount),
		)
	}

	return &domain.UploadResponse{
		FileID:    artifact.ID,
		SessionID: session.ID,
		Filename:  filename,
		Size:      artifact.Size,
		RowCount:  profile.RowCount,
		ProfileHints: domain.ProfileHints{
			ColumnCount: len(profile.Columns),
			HasHeaders:  len(profile.Columns) > 0,
			SampleData:  profile.Sample,
			PIIFlags:    profile.PIIFlags,
		},
	}, nil
}

// Analyze runs one analysis: it attaches the stored file's remote
// counterpart to a message on the session's thread, drives the run to
// completion, extracts the manifest and persists each referenced output as
// a versioned artifact.
func (s *AnalysisService) Analyze(ctx context.Context, req *domain.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
	session, ok := s.sessions.Get(req.SessionID)
	if !ok {
		return nil, &domain.NotFoundError{Resource: "session", ID: req.SessionID}
	}

	meta, ok := s.files.GetFileMetadata(req.FileID)
	if !ok || meta.SessionID != session.ID {
		return nil, &domain.NotFoundError{Resource: "file", ID: req.FileID}
	}

	if _, err := s.orchestrator.EnsureAssistant(ctx); err != nil {
		return nil, err
	}

	remoteID, err := s.ensureRemoteFile(ctx, meta)
	if err != nil {
		return nil, err
	}

	if _, err := s.orchestrator.CreateMessage(ctx, session.ThreadID, req.Prompt, remoteID); err != nil {
		return nil, err
	}

	run, err := s.orchestrator.StartRun(ctx, session.ThreadID, false)
	if err != nil {
		return nil, err
	}

	run, err = s.orchestrator.PollRun(ctx, session.ThreadID, run.ID)
	if err != nil {
		s.recordRun(session.ID, req.FileID, "", "failed", "", 0)
		return nil, err
	}
	if run.Status != assistant.RunStatusCompleted {
		s.recordRun(session.ID, req.FileID, run.ID, run.Status, "", 0)
		return nil, &domain.RemoteServiceError{
			Op:  "run",
			Err: fmt.Errorf("run ended with status %s", run.Status),
		}
	}

	// The run itself finished; failures from here on still belong in the
	// audit log.
	messages, err := s.orchestrator.GetMessages(ctx, session.ThreadID, 10)
	if err != nil {
		s.recordRun(session.ID, req.FileID, run.ID, run.Status, "", 0)
		return nil, err
	}

	manifest, err := ExtractManifest(messages)
	if err != nil {
		s.recordRun(session.ID, req.FileID, run.ID, run.Status, "", 0)
		return nil, err
	}

	artifacts := s.collectOutputs(ctx, session.ID, manifest, LatestAssistantMessage(messages))

	s.sessions.Update(session.ID, func(sess *domain.Session) {
		sess.Metrics.AnalysesCount++
	})
	s.recordRun(session.ID, req.FileID, run.ID, run.Status, manifest.Insight, len(artifacts))

	return &domain.AnalyzeResponse{
		SessionID: session.ID,
		Manifest:  manifest,
		Artifacts: artifacts,
	}, nil
}

// ensureRemoteFile uploads the artifact's bytes to the remote file store
// once and memoizes the remote id on the artifact record.
func (s *AnalysisService) ensureRemoteFile(ctx context.Context, meta *domain.Artifact) (string, error) {
	if meta.RemoteID != "" {
		return meta.RemoteID, nil
	}

	data, ok := s.files.GetFile(meta.ID)
	if !ok {
		return "", &domain.NotFoundError{Resource: "file content", ID: meta.ID}
	}

	remoteID, err := s.orchestrator.UploadFile(ctx, meta.OriginalName, data)
	if err != nil {
		return "", err
	}
	s.files.SetRemoteID(meta.ID, remoteID)
	return remoteID, nil
}

// collectOutputs downloads each manifest-referenced remote output and
// stores it as a versioned artifact. Download failures are logged and
// skipped; a partially collected result is still a result.
func (s *AnalysisService) collectOutputs(ctx context.Context, sessionID string, manifest *domain.Manifest, msg *assistant.Message) []*domain.Artifact {
	var attachments []string
	if msg != nil {
		for _, a := range msg.Attachments {
			attachments = append(attachments, a.FileID)
		}
	}

	var artifacts []*domain.Artifact
	for i, file := range manifest.Files {
		fileID := file.FileID
		if fileID == "" && i < len(attachments) {
			fileID = attachments[i]
		}
		if fileID == "" {
			continue
		}

		data, err := s.orchestrator.DownloadFile(ctx, fileID)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("failed to download run output",
					zap.String("session_id", sessionID),
					zap.String("remote_file_id", fileID),
					zap.Error(err),
				)
			}
			continue
		}

		kind := file.Type
		if kind == "" {
			kind = "output"
		}
		artifact := s.files.StoreArtifact(sessionID, kind, data, outputExtension(file.Path))
		artifacts = append(artifacts, artifact)
	}
	return artifacts
}

// Export bundles the session's artifacts into a zip archive and returns
// the bytes plus the download filename.
func (s *AnalysisService) Export(ctx context.Context, sessionID string) ([]byte, string, error) {
	if _, ok := s.sessions.Get(sessionID); !ok {
		return nil, "", &domain.NotFoundError{Resource: "session", ID: sessionID}
	}

	archive, err := s.files.BuildExportArchive(sessionID)
	if err != nil {
		return nil, "", err
	}
	return archive, store.ExportFilename(time.Now()), nil
}

// DeleteSession removes the session and cascade-deletes every artifact it
// owns. The confirmation phrase must match exactly.
func (s *AnalysisService) DeleteSession(ctx context.Context, req *domain.DeleteSessionRequest) (*domain.DeleteSessionResponse, error) {
	if req.ConfirmText != domain.ConfirmDeletePhrase {
		return nil, &domain.ValidationError{
			Code:    domain.ValidationBadConfirmText,
			Message: fmt.Sprintf("confirmation text must be %q", domain.ConfirmDeletePhrase),
		}
	}

	if _, ok := s.sessions.Get(req.SessionID); !ok {
		return nil, &domain.NotFoundError{Resource: "session", ID: req.SessionID}
	}

	deleted := s.files.DeleteSessionFiles(req.SessionID)
	s.sessions.Delete(req.SessionID)

	if s.logger != nil {
		s.logger.Info("deleted session",
			zap.String("session_id", req.SessionID),
			zap.Int("artifacts_deleted", deleted),
		)
	}

	return &domain.DeleteSessionResponse{
		Success:   true,
		Message:   fmt.Sprintf("session and %d artifact(s) deleted", deleted),
		DeletedAt: time.Now().UTC(),
	}, nil
}

// History returns the session's run-history records.
func (s *AnalysisService) History(ctx context.Context, sessionID string) ([]*domain.RunRecord, error) {
	if _, ok := s.sessions.Get(sessionID); !ok {
		return nil, &domain.NotFoundError{Resource: "session", ID: sessionID}
	}
	if s.history == nil {
		return []*domain.RunRecord{}, nil
	}
	return s.history.ListBySession(sessionID)
}

func (s *AnalysisService) recordRun(sessionID, fileID, runID, status, insight string, artifactCount int) {
	if s.history == nil {
		return
	}
	record := &domain.RunRecord{
		SessionID:     sessionID,
		FileID:        fileID,
		RunID:         runID,
		Status:        status,
		Insight:       insight,
		ArtifactCount: artifactCount,
	}
	if err := s.history.Record(record); err != nil && s.logger != nil {
		s.logger.Error("failed to record run history",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func outputExtension(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "bin"
	}
	return ext
}
