package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/csvpilot/csvpilot/internal/assistant"
	"github.com/csvpilot/csvpilot/internal/domain"
)

const (
	assistantName         = "CSV Analyst"
	assistantInstructions = "You are a data analyst. Analyze the attached CSV file as asked. " +
		"Reply with a JSON object {\"insight\": string, \"files\": [{\"path\", \"type\", \"purpose\"}], \"metadata\": object} " +
		"describing your findings and any files you generated."

	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 5 * time.Minute
)

// AssistantAPI is the remote surface the orchestrator drives. Satisfied by
// *assistant.Client.
type AssistantAPI interface {
	CreateAssistant(ctx context.Context, name, instructions string) (string, error)
	CreateThread(ctx context.Context) (string, error)
	CreateMessage(ctx context.Context, threadID, text, fileID string) (string, error)
	CreateRun(ctx context.Context, threadID, assistantID string, stream bool) (*assistant.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	ListMessages(ctx context.Context, threadID string, limit int) ([]assistant.Message, error)
	UploadFile(ctx context.Context, filename string, data []byte) (string, error)
	DownloadFileContent(ctx context.Context, fileID string) ([]byte, error)
}

// Orchestrator drives runs against the remote assistant API. It owns the
// memoized assistant id and a per-thread active-run guard: a second run
// against a thread that already has one in flight fails fast instead of
// interleaving state.
type Orchestrator struct {
	client AssistantAPI
	logger *zap.Logger

	pollInterval time.Duration
	pollTimeout  time.Duration

	mu          sync.Mutex
	assistantID string
	activeRuns  map[string]string // threadID -> runID
}

// NewOrchestrator creates an orchestrator around the given client.
func NewOrchestrator(client AssistantAPI, pollInterval, pollTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &Orchestrator{
		client:       client,
		logger:       logger,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		activeRuns:   make(map[string]string),
	}
}

// EnsureAssistant creates the remote assistant exactly once per
// orchestrator lifetime; later calls return the cached id without a
// remote call.
func (o *Orchestrator) EnsureAssistant(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.assistantID != "" {
		return o.assistantID, nil
	}

	id, err := o.client.CreateAssistant(ctx, assistantName, assistantInstructions)
	if err != nil {
		return "", err
	}
	o.assistantID = id
	if o.logger != nil {
		o.logger.Info("created remote assistant", zap.String("assistant_id", id))
	}
	return id, nil
}

// CreateThread creates a fresh remote thread; each session gets its own,
// so there is no memoization here.
func (o *Orchestrator) CreateThread(ctx context.Context) (string, error) {
	return o.client.CreateThread(ctx)
}

// CreateMessage appends a user message, attaching fileID with code
// execution when present.
func (o *Orchestrator) CreateMessage(ctx context.Context, threadID, text, fileID string) (string, error) {
	return o.client.CreateMessage(ctx, threadID, text, fileID)
}

// runIDPending reserves a thread slot while the remote run is being created.
const runIDPending = "pending"

// StartRun creates a run on the thread. It fails with a ConfigurationError
// before any remote call when no assistant exists yet, or when the thread
// already has an active run. The thread is reserved under the lock before
// the remote call, so concurrent starts on the same thread fail fast
// instead of both reaching the remote API.
func (o *Orchestrator) StartRun(ctx context.Context, threadID string, stream bool) (*assistant.Run, error) {
	o.mu.Lock()
	if o.assistantID == "" {
		o.mu.Unlock()
		return nil, &domain.ConfigurationError{Message: "no assistant configured; call EnsureAssistant first"}
	}
	if runID, busy := o.activeRuns[threadID]; busy {
		o.mu.Unlock()
		return nil, &domain.ConfigurationError{
			Message: "thread " + threadID + " already has active run " + runID,
		}
	}
	assistantID := o.assistantID
	o.activeRuns[threadID] = runIDPending
	o.mu.Unlock()

	run, err := o.client.CreateRun(ctx, threadID, assistantID, stream)
	if err != nil {
		o.release(threadID)
		return nil, err
	}

	o.mu.Lock()
	o.activeRuns[threadID] = run.ID
	o.mu.Unlock()
	return run, nil
}

// PollRun polls the run at a fixed interval until it reaches a terminal
// state, the poll budget runs out, or the context is cancelled. The
// active-run guard is released on every exit; poll results after CancelRun
// are undefined and the caller must ignore them.
func (o *Orchestrator) PollRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	defer o.release(threadID)

	deadline := time.Now().Add(o.pollTimeout)
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		run, err := o.client.GetRun(ctx, threadID, runID)
		if err != nil {
			return nil, err
		}
		if assistant.Terminal(run.Status) {
			return run, nil
		}
		if time.Now().After(deadline) {
			return nil, &domain.TimeoutError{Op: "run polling", Elapsed: o.pollTimeout}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CancelRun cancels the run and releases the thread's active-run guard.
func (o *Orchestrator) CancelRun(ctx context.Context, threadID, runID string) error {
	defer o.release(threadID)
	return o.client.CancelRun(ctx, threadID, runID)
}

// GetMessages fetches up to limit messages, newest first (default 10).
func (o *Orchestrator) GetMessages(ctx context.Context, threadID string, limit int) ([]assistant.Message, error) {
	return o.client.ListMessages(ctx, threadID, limit)
}

// UploadFile pushes bytes to the remote file store.
func (o *Orchestrator) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	return o.client.UploadFile(ctx, filename, data)
}

// DownloadFile pulls a remote file's bytes.
func (o *Orchestrator) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	return o.client.DownloadFileContent(ctx, fileID)
}

func (o *Orchestrator) release(threadID string) {
	o.mu.Lock()
	delete(o.activeRuns, threadID)
	o.mu.Unlock()
}
