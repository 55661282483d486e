package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/ansuz/internal/capture"
	"github.com/starford/ansuz/internal/catalog"
	"github.com/starford/ansuz/internal/curator"
	"github.com/starford/ansuz/internal/filing"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/learner"
	"github.com/starford/ansuz/internal/ledger"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/statestore"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/testutil"
)

type testEnv struct {
	svc    *curator.Service
	store  storage.Provider
	db     *catalog.DB
	router http.Handler
}

// newTestEnv builds a full curator stack over a temp vault. authToken=""
// means auth disabled.
func newTestEnv(t *testing.T, authToken string) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)

	lrn, err := learner.New(statestore.NewMemory())
	if err != nil {
		t.Fatalf("learner.New: %v", err)
	}
	led, err := ledger.New(statestore.NewMemory(), store)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	engine := filing.NewEngine(store, curator.LearnerHints(lrn), led, "inbox", logger)
	cap := capture.NewService(store, "inbox", logger)

	svc := curator.NewService(cap, engine, led, lrn, nil, db, nil, store, "inbox", logger)
	router := NewRouter(svc, authToken != "", authToken, nil)
	return &testEnv{svc: svc, store: store, db: db, router: router}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// seedAnalyzedNote writes an inbox note carrying suggestions.
func seedAnalyzedNote(t *testing.T, store storage.Provider, path, folder, confidence string) {
	t.Helper()
	fm := frontmatter.NewMapping()
	sug := frontmatter.NewMapping()
	sug.Set("folder", folder)
	sug.Set("confidence", confidence)
	fm.Set(models.KeySuggestions, sug)
	if err := store.Write(path, frontmatter.Build(fm, "note body\n")); err != nil {
		t.Fatalf("Write %s: %v", path, err)
	}
}

func TestCaptureEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/capture", map[string]string{"text": "# Hello\n\nWorld"})
	if w.Code != http.StatusCreated {
		t.Fatalf("capture = %d, body = %s", w.Code, w.Body.String())
	}
	var resp CaptureResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Path == "" {
		t.Fatal("empty path in response")
	}
	if _, err := env.store.Read(resp.Path); err != nil {
		t.Errorf("captured note not readable: %v", err)
	}
}

func TestCaptureRequiresText(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/capture", map[string]string{"source": "api"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("capture without text = %d, want 400", w.Code)
	}
}

func TestFileSessionsUndoFlow(t *testing.T) {
	env := newTestEnv(t, "")
	seedAnalyzedNote(t, env.store, "inbox/idea.md", "projects", "high")

	// File the batch.
	w := env.do(t, http.MethodPost, "/file", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("file = %d, body = %s", w.Code, w.Body.String())
	}
	var res filing.BatchResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Filed != 1 {
		t.Fatalf("filed = %d, want 1; body = %s", res.Filed, w.Body.String())
	}

	// Session listing shows it.
	w = env.do(t, http.MethodGet, "/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sessions = %d", w.Code)
	}
	var sessResp struct {
		Sessions []ledger.Summary `json:"sessions"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &sessResp)
	if len(sessResp.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessResp.Sessions))
	}

	// Session detail resolves.
	w = env.do(t, http.MethodGet, "/sessions/"+sessResp.Sessions[0].ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("session detail = %d", w.Code)
	}

	// Undo without an explicit ID targets the latest session.
	w = env.do(t, http.MethodPost, "/undo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("undo = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := env.store.Read("inbox/idea.md"); err != nil {
		t.Errorf("note not restored after undo: %v", err)
	}

	// Nothing left to undo.
	w = env.do(t, http.MethodPost, "/undo", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second undo = %d, want 404", w.Code)
	}
}

func TestUndoUnknownSession(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/undo", map[string]string{"session_id": "fil-0-nope"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown session = %d, want 404", w.Code)
	}
}

func TestUndoAlreadyUndone(t *testing.T) {
	env := newTestEnv(t, "")
	seedAnalyzedNote(t, env.store, "inbox/idea.md", "projects", "high")

	w := env.do(t, http.MethodPost, "/file", nil)
	var res filing.BatchResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)

	if w := env.do(t, http.MethodPost, "/undo", map[string]string{"session_id": res.SessionID}); w.Code != http.StatusOK {
		t.Fatalf("undo = %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/undo", map[string]string{"session_id": res.SessionID}); w.Code != http.StatusConflict {
		t.Errorf("repeat undo = %d, want 409", w.Code)
	}
}

func TestAnalyzeWithoutModel(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/analyze", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("analyze = %d, want 503", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	seedAnalyzedNote(t, env.store, "inbox/a.md", "projects", "high")

	w := env.do(t, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	var stats curator.Stats
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.InboxPending != 1 {
		t.Errorf("inbox_pending = %d, want 1", stats.InboxPending)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	err := env.db.UpsertNote(catalog.NoteRow{
		Path:     "projects/find.md",
		Folder:   "projects",
		Title:    "Find me",
		Checksum: "x",
	}, "uniquetoken here")
	if err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	w := env.do(t, http.MethodGet, "/search?q=uniquetoken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []catalog.SearchResult `json:"results"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 {
		t.Errorf("results = %d, want 1", len(resp.Results))
	}
}

func TestSearchMissingQuery(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestCorrectEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	if err := env.store.Write("projects/misfiled.md", []byte("# Misfiled\n\ngym schedule\n")); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/correct", map[string]string{
		"path":   "projects/misfiled.md",
		"folder": "areas/health",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("correct = %d, body = %s", w.Code, w.Body.String())
	}
	var resp CorrectResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Path != "areas/health/misfiled.md" {
		t.Errorf("path = %q", resp.Path)
	}
	if _, err := env.store.Read("projects/misfiled.md"); err == nil {
		t.Error("original still readable after correction")
	}
}

func TestCorrectMissingNote(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/correct", map[string]string{
		"path":   "projects/nope.md",
		"folder": "areas",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("correct missing = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := newTestEnv(t, "secret123")

	raw, _ := json.Marshal(map[string]string{"text": "note"})
	req := httptest.NewRequest(http.MethodPost, "/capture", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed capture = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := newTestEnv(t, "secret123")

	w := env.do(t, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := newTestEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}
