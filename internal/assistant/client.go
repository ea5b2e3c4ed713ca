package assistant

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/csvpilot/csvpilot/internal/domain"
)

// Fixed run parameters: low temperature for near-deterministic replies and
// bounded token budgets.
const (
	runTemperature         = 0.1
	runMaxPromptTokens     = 4096
	runMaxCompletionTokens = 4096
)

// codeInterpreterTool enables code execution on assistants and file
// attachments.
var codeInterpreterTool = []Tool{{Type: "code_interpreter"}}

// Config configures the remote assistant API client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client talks to an assistants-style HTTP API (assistants, threads,
// messages, runs, files). Transient failures — transport errors and
// 5xx responses — are retried up to 3 times with exponential backoff
// before surfacing; 4xx responses fail immediately.
type Client struct {
	http  *resty.Client
	model string
}

// NewClient creates a client for the remote assistant API.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("OpenAI-Beta", "assistants=v2").
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(4 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Client{http: httpClient, model: cfg.Model}
}

// CreateAssistant creates the remote assistant with code execution enabled
// and returns its id.
func (c *Client) CreateAssistant(ctx context.Context, name, instructions string) (string, error) {
	var out Assistant
	body := map[string]any{
		"name":         name,
		"instructions": instructions,
		"model":        c.model,
		"tools":        codeInterpreterTool,
	}
	if err := c.post(ctx, "create_assistant", "/assistants", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateThread creates a fresh remote thread.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out Thread
	if err := c.post(ctx, "create_thread", "/threads", map[string]any{}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateMessage appends a user message to the thread. A non-empty fileID
// is attached with code execution enabled.
func (c *Client) CreateMessage(ctx context.Context, threadID, text, fileID string) (string, error) {
	body := map[string]any{
		"role":    "user",
		"content": text,
	}
	if fileID != "" {
		body["attachments"] = []Attachment{{FileID: fileID, Tools: codeInterpreterTool}}
	}

	var out Message
	path := fmt.Sprintf("/threads/%s/messages", threadID)
	if err := c.post(ctx, "create_message", path, body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateRun starts a run of the assistant against the thread with the
// fixed run parameters.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string, stream bool) (*Run, error) {
	body := map[string]any{
		"assistant_id":          assistantID,
		"temperature":           runTemperature,
		"max_prompt_tokens":     runMaxPromptTokens,
		"max_completion_tokens": runMaxCompletionTokens,
	}
	if stream {
		body["stream"] = true
	}

	var out Run
	path := fmt.Sprintf("/threads/%s/runs", threadID)
	if err := c.post(ctx, "create_run", path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun fetches the run's current state.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var out Run
	path := fmt.Sprintf("/threads/%s/runs/%s", threadID, runID)
	if err := c.get(ctx, "get_run", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelRun asks the remote API to cancel the run.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	var out Run
	path := fmt.Sprintf("/threads/%s/runs/%s/cancel", threadID, runID)
	return c.post(ctx, "cancel_run", path, map[string]any{}, &out)
}

// ListMessages fetches up to limit messages from the thread, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	var out messageList
	path := fmt.Sprintf("/threads/%s/messages", threadID)
	query := map[string]string{
		"limit": fmt.Sprintf("%d", limit),
		"order": "desc",
	}
	if err := c.get(ctx, "list_messages", path, query, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// UploadFile uploads bytes as an assistant-purpose file and returns the
// remote file id.
func (c *Client) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	var out File
	var remoteErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytes.NewReader(data)).
		SetFormData(map[string]string{"purpose": "assistants"}).
		SetResult(&out).
		SetError(&remoteErr).
		Post("/files")
	if err := wrap("upload_file", resp, &remoteErr, err); err != nil {
		return "", err
	}
	return out.ID, nil
}

// DownloadFileContent fetches the raw bytes of a remote file.
func (c *Client) DownloadFileContent(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/files/%s/content", fileID))
	if err != nil {
		return nil, &domain.RemoteServiceError{Op: "download_file", Err: err}
	}
	if resp.IsError() {
		return nil, &domain.RemoteServiceError{
			Op:  "download_file",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode()),
		}
	}
	return resp.Body(), nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	var remoteErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&remoteErr).
		Post(path)
	return wrap(op, resp, &remoteErr, err)
}

func (c *Client) get(ctx context.Context, op, path string, query map[string]string, out any) error {
	var remoteErr apiError
	req := c.http.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&remoteErr)
	if query != nil {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	return wrap(op, resp, &remoteErr, err)
}

// wrap turns transport and HTTP-level failures into RemoteServiceError so
// callers always see the failed operation and root cause.
func wrap(op string, resp *resty.Response, remoteErr *apiError, err error) error {
	if err != nil {
		return &domain.RemoteServiceError{Op: op, Err: err}
	}
	if resp.IsError() {
		msg := remoteErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return &domain.RemoteServiceError{
			Op:  op,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode(), msg),
		}
	}
	return nil
}
