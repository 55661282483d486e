package bot

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/starford/ansuz/internal/capture"
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

type fakeTelegram struct {
	sent []string
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}
func (f *fakeTelegram) StopReceivingUpdates() {}
func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m.Text)
	}
	return tgbotapi.Message{}, nil
}
func (f *fakeTelegram) GetSelf() tgbotapi.User { return tgbotapi.User{UserName: "ansuz_test_bot"} }

func newTestBot(t *testing.T, allowed []int64) (*Bot, *fakeTelegram, storage.Provider) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)

	lrn, err := learner.New(statestore.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	led, err := ledger.New(statestore.NewMemory(), store)
	if err != nil {
		t.Fatal(err)
	}
	engine := filing.NewEngine(store, curator.LearnerHints(lrn), led, "inbox", logger)
	capSvc := capture.NewService(store, "inbox", logger)
	svc := curator.NewService(capSvc, engine, led, lrn, nil, db, nil, store, "inbox", logger)

	fake := &fakeTelegram{}
	b, err := NewWithFactory(Config{Token: "test-token", AllowedChats: allowed}, svc, logger,
		func(string, *http.Client) (TelegramBot, error) { return fake, nil })
	if err != nil {
		t.Fatalf("NewWithFactory: %v", err)
	}
	b.bot = fake
	return b, fake, store
}

func message(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: chatID, UserName: "tester"},
	}
}

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

func lastReply(t *testing.T, fake *fakeTelegram) string {
	t.Helper()
	if len(fake.sent) == 0 {
		t.Fatal("no reply sent")
	}
	return fake.sent[len(fake.sent)-1]
}

func TestParseFileArgs(t *testing.T) {
	tests := []struct {
		args    string
		want    filing.Options
		wantErr bool
	}{
		{"", filing.Options{}, false},
		{"limit=5", filing.Options{Limit: 5}, false},
		{"confidence=0.8", filing.Options{MinConfidence: 0.8}, false},
		{"dryrun", filing.Options{DryRun: true}, false},
		{"dry-run", filing.Options{DryRun: true}, false},
		{"limit=3 confidence=0.5 dryrun", filing.Options{Limit: 3, MinConfidence: 0.5, DryRun: true}, false},
		{"limit=abc", filing.Options{}, true},
		{"limit=-1", filing.Options{}, true},
		{"confidence=1.5", filing.Options{}, true},
		{"bogus", filing.Options{}, true},
	}
	for _, tt := range tests {
		got, err := parseFileArgs(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseFileArgs(%q): expected error", tt.args)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseFileArgs(%q): %v", tt.args, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseFileArgs(%q) = %+v, want %+v", tt.args, got, tt.want)
		}
	}
}

func TestPlainTextCaptures(t *testing.T) {
	b, fake, store := newTestBot(t, nil)

	b.handleMessage(context.Background(), message(1, "# Meeting\n\nAction items"))

	reply := lastReply(t, fake)
	if !strings.HasPrefix(reply, "Captured to inbox/") {
		t.Fatalf("reply = %q", reply)
	}
	path := strings.TrimPrefix(reply, "Captured to ")
	if _, err := store.Read(path); err != nil {
		t.Errorf("captured note missing: %v", err)
	}
}

func TestFileAndUndoCommands(t *testing.T) {
	b, fake, store := newTestBot(t, nil)
	seedAnalyzedNote(t, store, "inbox/idea.md", "projects", "high")

	b.handleMessage(context.Background(), message(1, "/file"))
	reply := lastReply(t, fake)
	if !strings.Contains(reply, "filed 1") {
		t.Fatalf("file reply = %q", reply)
	}
	if !strings.Contains(reply, "Session fil-") {
		t.Errorf("file reply missing session id: %q", reply)
	}

	b.handleMessage(context.Background(), message(1, "/undo"))
	reply = lastReply(t, fake)
	if !strings.Contains(reply, "Undid 1 operations") {
		t.Fatalf("undo reply = %q", reply)
	}
	if _, err := store.Read("inbox/idea.md"); err != nil {
		t.Errorf("note not restored: %v", err)
	}

	// Nothing left to undo.
	b.handleMessage(context.Background(), message(1, "/undo"))
	if reply = lastReply(t, fake); reply != "No session to undo." {
		t.Errorf("second undo reply = %q", reply)
	}
}

func TestFileCommandDryRun(t *testing.T) {
	b, fake, store := newTestBot(t, nil)
	seedAnalyzedNote(t, store, "inbox/idea.md", "projects", "high")

	b.handleMessage(context.Background(), message(1, "/file dryrun"))
	reply := lastReply(t, fake)
	if !strings.HasPrefix(reply, "Dry run.") {
		t.Fatalf("reply = %q", reply)
	}
	if _, err := store.Read("inbox/idea.md"); err != nil {
		t.Errorf("dry run moved the note: %v", err)
	}
}

func TestFileCommandBadArgs(t *testing.T) {
	b, fake, _ := newTestBot(t, nil)

	b.handleMessage(context.Background(), message(1, "/file limit=abc"))
	if reply := lastReply(t, fake); !strings.Contains(reply, "Usage: /file") {
		t.Errorf("reply = %q", reply)
	}
}

func TestSessionsAndStatsCommands(t *testing.T) {
	b, fake, store := newTestBot(t, nil)
	seedAnalyzedNote(t, store, "inbox/idea.md", "projects", "high")
	b.handleMessage(context.Background(), message(1, "/file"))

	b.handleMessage(context.Background(), message(1, "/sessions"))
	if reply := lastReply(t, fake); !strings.Contains(reply, "fil-") {
		t.Errorf("sessions reply = %q", reply)
	}

	b.handleMessage(context.Background(), message(1, "/stats"))
	if reply := lastReply(t, fake); !strings.Contains(reply, "Inbox pending:") {
		t.Errorf("stats reply = %q", reply)
	}
}

func TestCorrectCommand(t *testing.T) {
	b, fake, store := newTestBot(t, nil)
	if err := store.Write("projects/misfiled.md", []byte("gym schedule\n")); err != nil {
		t.Fatal(err)
	}

	b.handleMessage(context.Background(), message(1, "/correct projects/misfiled.md areas/health"))
	reply := lastReply(t, fake)
	if !strings.Contains(reply, "areas/health/misfiled.md") {
		t.Fatalf("reply = %q", reply)
	}

	b.handleMessage(context.Background(), message(1, "/correct"))
	if reply := lastReply(t, fake); !strings.Contains(reply, "Usage: /correct") {
		t.Errorf("usage reply = %q", reply)
	}
}

func TestAnalyzeCommandWithoutModel(t *testing.T) {
	b, fake, _ := newTestBot(t, nil)

	b.handleMessage(context.Background(), message(1, "/analyze"))
	if reply := lastReply(t, fake); !strings.Contains(reply, "not configured") {
		t.Errorf("reply = %q", reply)
	}
}

func TestAllowlistRejectsUnknownChat(t *testing.T) {
	b, fake, _ := newTestBot(t, []int64{42})

	b.handleMessage(context.Background(), message(7, "hello"))
	if len(fake.sent) != 0 {
		t.Errorf("rejected chat got a reply: %v", fake.sent)
	}

	b.handleMessage(context.Background(), message(42, "/help"))
	if len(fake.sent) != 1 {
		t.Errorf("allowed chat got %d replies, want 1", len(fake.sent))
	}
}

func TestUnknownCommand(t *testing.T) {
	b, fake, _ := newTestBot(t, nil)

	b.handleMessage(context.Background(), message(1, "/frobnicate"))
	if reply := lastReply(t, fake); !strings.Contains(reply, "/help") {
		t.Errorf("reply = %q", reply)
	}
}

func TestCommandWithBotSuffix(t *testing.T) {
	b, fake, _ := newTestBot(t, nil)

	b.handleMessage(context.Background(), message(1, "/help@ansuz_test_bot"))
	if reply := lastReply(t, fake); !strings.Contains(reply, "Commands:") {
		t.Errorf("reply = %q", reply)
	}
}
