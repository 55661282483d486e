package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
)

type fakeChat struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	reply := f.replies[i%len(f.replies)]
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

type fakeCatalog struct {
	folders []string
	tags    []string
}

func (f *fakeCatalog) Folders(string) ([]string, error) { return f.folders, nil }
func (f *fakeCatalog) Tags() ([]string, error)          { return f.tags, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, chat ChatClient) (*Analyzer, storage.Provider) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	cat := &fakeCatalog{folders: []string{"projects", "areas/health"}, tags: []string{"go"}}
	a := New(chat, store, cat, Config{Inbox: "inbox"}, testLogger())
	return a, store
}

func TestAnalyzeInboxWritesSuggestions(t *testing.T) {
	chat := &fakeChat{replies: []string{
		`{"folder": "projects", "tags": ["go"], "summary": "A note about Go.", "confidence": "high"}`,
	}}
	a, store := newFixture(t, chat)

	if err := store.Write("inbox/note.md", []byte("# Go tips\n\nUse errgroup.\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	results, err := a.AnalyzeInbox(context.Background(), 0)
	if err != nil {
		t.Fatalf("AnalyzeInbox: %v", err)
	}
	if len(results) != 1 || results[0].Error != "" {
		t.Fatalf("results = %+v, want one success", results)
	}

	data, err := store.Read("inbox/note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	fm, _ := frontmatter.Parse(data)
	sug, ok := models.SuggestionFromMapping(fm)
	if !ok {
		t.Fatalf("note has no suggestions after analysis:\n%s", data)
	}
	if sug.Folder != "projects" {
		t.Errorf("folder = %q, want %q", sug.Folder, "projects")
	}
	if conf, _ := sug.Confidence.(string); conf != "high" {
		t.Errorf("confidence = %v, want %q", sug.Confidence, "high")
	}
}

func TestAnalyzeInboxSkipsAnalyzedAndQueued(t *testing.T) {
	chat := &fakeChat{replies: []string{
		`{"folder": "projects", "confidence": "medium"}`,
	}}
	a, store := newFixture(t, chat)

	analyzed := frontmatter.NewMapping()
	inner := frontmatter.NewMapping()
	inner.Set("folder", "areas/health")
	analyzed.Set(models.KeySuggestions, inner)
	if err := store.Write("inbox/done.md", frontmatter.Build(analyzed, "already analyzed\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write("inbox/review-queue/parked.md", []byte("parked\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write("inbox/fresh.md", []byte("fresh capture\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	results, err := a.AnalyzeInbox(context.Background(), 0)
	if err != nil {
		t.Fatalf("AnalyzeInbox: %v", err)
	}
	if len(results) != 1 || results[0].Path != "inbox/fresh.md" {
		t.Fatalf("results = %+v, want only inbox/fresh.md", results)
	}
	if chat.calls != 1 {
		t.Errorf("chat calls = %d, want 1", chat.calls)
	}
}

func TestAnalyzeInboxContinuesAfterFailure(t *testing.T) {
	chat := &fakeChat{
		replies: []string{`{"folder": "projects", "confidence": "high"}`},
		errs:    []error{errors.New("rate limited"), nil},
	}
	a, store := newFixture(t, chat)

	if err := store.Write("inbox/a.md", []byte("first\n")); err != nil {
		t.Fatal(err)
	}
	if err := store.Write("inbox/b.md", []byte("second\n")); err != nil {
		t.Fatal(err)
	}

	results, err := a.AnalyzeInbox(context.Background(), 0)
	if err != nil {
		t.Fatalf("AnalyzeInbox: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Error == "" {
		t.Errorf("first result should carry the chat error")
	}
	if results[1].Error != "" || results[1].Suggestion == nil {
		t.Errorf("second result should succeed, got %+v", results[1])
	}
}

func TestParseSuggestionStripsFence(t *testing.T) {
	raw := "```json\n{\"folder\": \"projects/go\", \"tags\": [\" infra \", \"\"], \"confidence\": 0.8}\n```"
	sug, err := parseSuggestion(raw)
	if err != nil {
		t.Fatalf("parseSuggestion: %v", err)
	}
	if sug.Folder != "projects/go" {
		t.Errorf("folder = %q, want %q", sug.Folder, "projects/go")
	}
	if len(sug.Tags) != 1 || sug.Tags[0] != "infra" {
		t.Errorf("tags = %v, want [infra]", sug.Tags)
	}
	if conf, _ := sug.Confidence.(float64); conf != 0.8 {
		t.Errorf("confidence = %v, want 0.8", sug.Confidence)
	}
}

func TestParseSuggestionRejectsGarbage(t *testing.T) {
	if _, err := parseSuggestion("I think it belongs in projects."); err == nil {
		t.Fatal("expected error for non-JSON reply")
	}
}
