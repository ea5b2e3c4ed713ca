package analysis

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/csvpilot/csvpilot/internal/assistant"
	"github.com/csvpilot/csvpilot/internal/service"
	"github.com/csvpilot/csvpilot/internal/store"
)

// fakeAPI satisfies service.AssistantAPI with a canned completed run.
type fakeAPI struct {
	replyText string
}

func (f *fakeAPI) CreateAssistant(ctx context.Context, name, instructions string) (string, error) {
	return "asst_1", nil
}

func (f *fakeAPI) CreateThread(ctx context.Context) (string, error) {
	return "thread_1", nil
}

func (f *fakeAPI) CreateMessage(ctx context.Context, threadID, text, fileID string) (string, error) {
	return "msg_1", nil
}

func (f *fakeAPI) CreateRun(ctx context.Context, threadID, assistantID string, stream bool) (*assistant.Run, error) {
	return &assistant.Run{ID: "run_1", ThreadID: threadID, Status: assistant.RunStatusQueued}, nil
}

func (f *fakeAPI) GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	return &assistant.Run{ID: runID, ThreadID: threadID, Status: assistant.RunStatusCompleted}, nil
}

func (f *fakeAPI) CancelRun(ctx context.Context, threadID, runID string) error { return nil }

func (f *fakeAPI) ListMessages(ctx context.Context, threadID string, limit int) ([]assistant.Message, error) {
	return []assistant.Message{{
		Role: "assistant",
		Content: []assistant.MessageContent{
			{Type: "text", Text: &assistant.MessageText{Value: f.replyText}},
		},
	}}, nil
}

func (f *fakeAPI) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	return "file_remote", nil
}

func (f *fakeAPI) DownloadFileContent(ctx context.Context, fileID string) ([]byte, error) {
	return []byte("output"), nil
}

type testEnv struct {
	router   *gin.Engine
	sessions *store.SessionStore
	files    *store.FileStore
}

func newTestEnv(t *testing.T, fake *fakeAPI) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := store.NewSessionStore(2*time.Hour, 0, nil)
	t.Cleanup(sessions.Close)
	files := store.NewFileStore(24*time.Hour, 0, nil)
	t.Cleanup(files.Close)

	orchestrator := service.NewOrchestrator(fake, time.Millisecond, time.Second, nil)
	analysisService := service.NewAnalysisService(sessions, files, orchestrator, nil, nil)

	router := gin.New()
	handler := NewHandler(analysisService, files, 50*1024*1024, nil)
	handler.RegisterRoutes(router.Group("/api"))

	return &testEnv{router: router, sessions: sessions, files: files}
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	body, contentType := multipartUpload(t, "orders.csv", "customer_email,qty\na@b.com,5\nc@d.org,7\n")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		FileID       string `json:"fileId"`
		SessionID    string `json:"sessionId"`
		RowCount     int    `json:"rowCount"`
		ProfileHints struct {
			ColumnCount int                       `json:"columnCount"`
			PIIFlags    map[string]map[string]any `json:"piiFlags"`
		} `json:"profileHints"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.FileID == "" || resp.SessionID == "" {
		t.Fatalf("ids missing: %s", w.Body.String())
	}
	if resp.RowCount != 2 {
		t.Fatalf("rowCount = %d, want 2", resp.RowCount)
	}
	if resp.ProfileHints.ColumnCount != 2 {
		t.Fatalf("columnCount = %d, want 2", resp.ProfileHints.ColumnCount)
	}
	if isPII, _ := resp.ProfileHints.PIIFlags["customer_email"]["isPII"].(bool); !isPII {
		t.Fatalf("customer_email not flagged: %s", w.Body.String())
	}
}

func TestUploadRejectsBadFormat(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	body, contentType := multipartUpload(t, "orders.xlsx", "a,b\n1,2\n")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["type"] != "validation_error" {
		t.Fatalf("error type = %v", resp["type"])
	}
}

func TestUploadRequiresFileField(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{replyText: `{"insight":"qty trends upward","files":[],"metadata":{}}`})

	// Upload first to create the session and file.
	body, contentType := multipartUpload(t, "orders.csv", "a,b\n1,2\n")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var uploaded struct {
		FileID    string `json:"fileId"`
		SessionID string `json:"sessionId"`
	}
	json.Unmarshal(w.Body.Bytes(), &uploaded)

	payload, _ := json.Marshal(map[string]string{
		"sessionId": uploaded.SessionID,
		"fileId":    uploaded.FileID,
		"prompt":    "what is the trend?",
	})
	req = httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Manifest struct {
			Insight string `json:"insight"`
		} `json:"manifest"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Manifest.Insight != "qty trends upward" {
		t.Fatalf("insight = %q", resp.Manifest.Insight)
	}

	session, ok := env.sessions.Get(uploaded.SessionID)
	if !ok || session.Metrics.AnalysesCount != 1 {
		t.Fatalf("analyses count not incremented: %+v", session)
	}
}

func TestAnalyzeUnknownSession(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	payload, _ := json.Marshal(map[string]string{
		"sessionId": "missing",
		"fileId":    "missing",
		"prompt":    "?",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDownloadFileHeaders(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	artifact := env.files.StoreFile("sess1", "report.csv", []byte("a,b\n1,2\n"), "text/csv")

	req := httptest.NewRequest(http.MethodGet, "/api/files/"+artifact.ID, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("ETag"); got != `"`+artifact.Checksum+`"` {
		t.Fatalf("ETag = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "private, max-age=3600" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="report.csv"` {
		t.Fatalf("Content-Disposition = %q", got)
	}

	// Conditional request with the matching ETag short-circuits.
	req = httptest.NewRequest(http.MethodGet, "/api/files/"+artifact.ID, nil)
	req.Header.Set("If-None-Match", `"`+artifact.Checksum+`"`)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d, want 304", w.Code)
	}
}

func TestDownloadFileNotFound(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	req := httptest.NewRequest(http.MethodGet, "/api/files/nope", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	session := env.sessions.Create("thread_1")
	env.files.StoreFile(session.ID, "data.csv", []byte("a,b\n1,2\n"), "text/csv")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+session.ID+"/export", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("response is not a zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("archive entries = %d, want 2", len(zr.File))
	}
}

func TestDeleteSessionCascade(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	session := env.sessions.Create("thread_1")
	artifact := env.files.StoreFile(session.ID, "data.csv", []byte("a,b\n1,2\n"), "text/csv")

	payload, _ := json.Marshal(map[string]string{
		"sessionId":   session.ID,
		"confirmText": "DELETE MY DATA",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/delete", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, ok := env.sessions.Get(session.ID); ok {
		t.Fatalf("session survived deletion")
	}
	if _, ok := env.files.GetFile(artifact.ID); ok {
		t.Fatalf("artifact survived cascade deletion")
	}
}

func TestDeleteSessionWrongConfirmText(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	session := env.sessions.Create("thread_1")

	payload, _ := json.Marshal(map[string]string{
		"sessionId":   session.ID,
		"confirmText": "delete my data",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/delete", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if _, ok := env.sessions.Get(session.ID); !ok {
		t.Fatalf("session deleted despite bad confirmation")
	}
}

func TestDeleteSessionNotFound(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	payload, _ := json.Marshal(map[string]string{
		"sessionId":   "missing",
		"confirmText": "DELETE MY DATA",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/delete", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
