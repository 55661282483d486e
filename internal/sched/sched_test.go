package sched

import (
	"context"
	"io"
	"log/slog"
	"testing"

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

func newTestScheduler(t *testing.T) (*Scheduler, storage.Provider) {
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

	return New(Config{Spec: "*/5 * * * *"}, svc, logger), store
}

func TestRunOnceFilesAnalyzedNotes(t *testing.T) {
	s, store := newTestScheduler(t)

	fm := frontmatter.NewMapping()
	sug := frontmatter.NewMapping()
	sug.Set("folder", "projects")
	sug.Set("confidence", "high")
	fm.Set(models.KeySuggestions, sug)
	if err := store.Write("inbox/idea.md", frontmatter.Build(fm, "body\n")); err != nil {
		t.Fatal(err)
	}

	// Analyzer is not configured; the pass should still file.
	s.runOnce(context.Background())

	if _, err := store.Read("inbox/idea.md"); err == nil {
		t.Error("note still in inbox after pass")
	}
	if _, err := store.Read("projects/idea.md"); err != nil {
		t.Errorf("note not filed: %v", err)
	}
}

func TestTickSkipsWhenRunning(t *testing.T) {
	s, _ := newTestScheduler(t)

	s.running.Store(true)
	// Must return immediately without touching the empty vault.
	s.tick(context.Background())
	if !s.running.Load() {
		t.Error("tick cleared the running flag it did not own")
	}
}
