package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/internal/embedding"
	"github.com/hyperjump/kansa/internal/indexer"
	"github.com/hyperjump/kansa/internal/ingest"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/testutil"
	"github.com/hyperjump/kansa/internal/vectorstore"
)

type fakeAuditor struct {
	result      models.AuditResult
	err         error
	query       string
	instruction string
}

func (f *fakeAuditor) Audit(_ context.Context, query, instruction string) (models.AuditResult, error) {
	f.query, f.instruction = query, instruction
	return f.result, f.err
}

type fakeWatch []string

func (f fakeWatch) Directories() []string { return f }

type testEnv struct {
	cfg     *config.Config
	manager *vectorstore.Manager
	handler http.Handler
}

func newTestEnv(t *testing.T, opts ...ServerOption) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.VectorStorePath = filepath.Join(dir, "vector_store")
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	config.ApplyDefaults(cfg)

	m := vectorstore.NewManager(cfg.Storage.VectorStorePath, embedding.NewHashEmbedder(64))
	t.Cleanup(func() { _ = m.Close() })
	idx := indexer.NewIndexer(ingest.NewIngestor(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap), m, cfg.Index.Mode)
	srv := NewServer(cfg, m, idx, opts...)
	return &testEnv{cfg: cfg, manager: m, handler: srv.Handler()}
}

func (e *testEnv) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func uploadRequest(t *testing.T, field, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/upload", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHandleUpload(t *testing.T) {
	env := newTestEnv(t)
	pdf := testutil.PDF("Methodology: field interviews", "Budget: 1.2 million euros")

	w := env.do(uploadRequest(t, "file", "proposal.pdf", pdf))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	out := decode(t, w)
	if out["message"] != "Successfully processed proposal.pdf" {
		t.Errorf("message = %v", out["message"])
	}
	if out["chunks"] != float64(2) {
		t.Errorf("chunks = %v", out["chunks"])
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Storage.DataDir, "proposal.pdf")); err != nil {
		t.Errorf("upload not saved: %v", err)
	}
	if !env.manager.Exists() || env.manager.Size() != 2 {
		t.Errorf("index not built and persisted: exists=%v size=%d", env.manager.Exists(), env.manager.Size())
	}
}

func TestHandleUpload_rejected(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		file    string
		content []byte
	}{
		{"no text", "file", "blank.pdf", testutil.PDF("")},
		{"corrupt pdf", "file", "broken.pdf", []byte("not a pdf")},
		{"unsupported type", "file", "image.png", []byte{0x89, 'P', 'N', 'G'}},
		{"wrong field", "document", "proposal.pdf", testutil.PDF("text")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(uploadRequest(t, tt.field, tt.file, tt.content))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400: %s", w.Code, w.Body.String())
			}
			if _, ok := decode(t, w)["error"]; !ok {
				t.Error("missing error message")
			}
			if env.manager.Exists() {
				t.Error("index persisted for rejected upload")
			}
		})
	}
}

func TestHandleUpload_notMultipart(t *testing.T) {
	env := newTestEnv(t)
	r := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("plain"))
	if w := env.do(r); w.Code != http.StatusBadRequest {
		t.Errorf("status %d", w.Code)
	}
}

func auditRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/audit", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestHandleAudit_unavailable(t *testing.T) {
	// No language model.
	env := newTestEnv(t)
	env.do(uploadRequest(t, "file", "a.pdf", testutil.PDF("Budget: 10")))
	if w := env.do(auditRequest(`{"query":"q"}`)); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without llm: status %d", w.Code)
	}

	// No index.
	env = newTestEnv(t, WithAuditor(&fakeAuditor{result: models.AuditResult{}}, "fake"))
	w := env.do(auditRequest(`{"query":"q"}`))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("without index: status %d", w.Code)
	}
	if decode(t, w)["error"] != auditorUnavailable {
		t.Error("unexpected error message")
	}
}

func TestHandleAudit(t *testing.T) {
	fake := &fakeAuditor{result: models.AuditResult{"budget": "1.2 million euros"}}
	env := newTestEnv(t, WithAuditor(fake, "fake"))
	if w := env.do(uploadRequest(t, "file", "a.pdf", testutil.PDF("Budget: 1.2 million euros"))); w.Code != http.StatusOK {
		t.Fatalf("upload status %d", w.Code)
	}

	w := env.do(auditRequest(`{"query":"What is the budget?","system_prompt":"Extract budget"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if got := decode(t, w); got["budget"] != "1.2 million euros" {
		t.Errorf("result = %v", got)
	}
	if fake.query != "What is the budget?" || fake.instruction != "Extract budget" {
		t.Errorf("auditor got %q / %q", fake.query, fake.instruction)
	}

	// An empty body takes the defaults.
	if w := env.do(auditRequest(``)); w.Code != http.StatusOK {
		t.Errorf("empty body: status %d", w.Code)
	}
	if fake.query != models.DefaultQuery || fake.instruction != models.DefaultInstruction {
		t.Errorf("defaults not applied: %q / %q", fake.query, fake.instruction)
	}
}

func TestHandleAudit_errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"invalid json", `{"query":`, nil, http.StatusBadRequest},
		{"too large", `{"query":"` + strings.Repeat("x", 70*1024) + `"}`, nil, http.StatusBadRequest},
		{"llm failure", `{"query":"q"}`, models.ErrInvocation, http.StatusBadGateway},
		{"index vanished", `{"query":"q"}`, models.ErrNotFound, http.StatusServiceUnavailable},
		{"other failure", `{"query":"q"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, WithAuditor(&fakeAuditor{err: tt.err}, "fake"))
			env.do(uploadRequest(t, "file", "a.pdf", testutil.PDF("Budget: 10")))
			w := env.do(auditRequest(tt.body))
			if w.Code != tt.want {
				t.Errorf("status %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, WithAuditor(&fakeAuditor{}, "fake"))
	got := decode(t, env.do(httptest.NewRequest(http.MethodGet, "/health", nil)))
	if got["status"] != "ok" || got["llm"] != true || got["vector_store"] != false {
		t.Errorf("health before upload = %v", got)
	}

	env.do(uploadRequest(t, "file", "a.pdf", testutil.PDF("Budget: 10")))
	got = decode(t, env.do(httptest.NewRequest(http.MethodGet, "/health", nil)))
	if got["vector_store"] != true {
		t.Errorf("health after upload = %v", got)
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, WithAuditor(&fakeAuditor{}, "openai:gpt-3.5-turbo"), WithWatch(fakeWatch{"/inbox"}))
	env.do(uploadRequest(t, "file", "a.pdf", testutil.PDF("Budget: 10", "Methodology")))

	w := env.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	got := decode(t, w)
	index, ok := got["index"].(map[string]any)
	if !ok || index["chunks"] != float64(2) || index["sources"] != float64(1) {
		t.Errorf("index = %v", got["index"])
	}
	if got["llm"] != "openai:gpt-3.5-turbo" {
		t.Errorf("llm = %v", got["llm"])
	}
	if retrieval, _ := got["retrieval"].(map[string]any); retrieval["k"] != float64(10) {
		t.Errorf("retrieval = %v", got["retrieval"])
	}
	if size, _ := got["disk_usage_bytes"].(float64); size <= 0 {
		t.Errorf("disk_usage_bytes = %v", got["disk_usage_bytes"])
	}
	if inbox, _ := got["inbox"].([]any); len(inbox) != 1 {
		t.Errorf("inbox = %v", got["inbox"])
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	r := httptest.NewRequest(http.MethodOptions, "/audit", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := env.do(r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
