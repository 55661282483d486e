// Package curator coordinates the capture, analysis, filing, undo, and
// learning subsystems behind one service facade shared by the API, the
// Telegram bot, the MCP server, and the scheduler.
package curator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/starford/ansuz/internal/analyzer"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/capture"
	"github.com/starford/ansuz/internal/catalog"
	"github.com/starford/ansuz/internal/filing"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/learner"
	"github.com/starford/ansuz/internal/ledger"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/sanitize"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
)

// Stats is the aggregate state snapshot surfaced by /stats and the API.
type Stats struct {
	TotalNotes   int           `json:"total_notes"`
	InboxPending int           `json:"inbox_pending"`
	Sessions     int           `json:"sessions"`
	Learner      learner.Stats `json:"learner"`
}

// Service coordinates the curator subsystems.
type Service struct {
	capture  *capture.Service
	engine   *filing.Engine
	ledger   *ledger.Ledger
	learner  *learner.Learner
	analyzer *analyzer.Analyzer // nil when no model is configured
	db       *catalog.DB
	broker   *sse.Broker // nil when events are disabled
	store    storage.Provider
	inbox    string
	logger   *slog.Logger
}

// NewService wires the curator facade. analyzer and broker may be nil.
func NewService(
	cap *capture.Service,
	engine *filing.Engine,
	led *ledger.Ledger,
	lrn *learner.Learner,
	an *analyzer.Analyzer,
	db *catalog.DB,
	broker *sse.Broker,
	store storage.Provider,
	inbox string,
	logger *slog.Logger,
) *Service {
	return &Service{
		capture:  cap,
		engine:   engine,
		ledger:   led,
		learner:  lrn,
		analyzer: an,
		db:       db,
		broker:   broker,
		store:    store,
		inbox:    strings.Trim(inbox, "/"),
		logger:   logger,
	}
}

// Capture writes chat text into the inbox and returns the note path.
func (s *Service) Capture(_ context.Context, text, source string) (string, error) {
	notePath, err := s.capture.Capture(text, source)
	if err != nil {
		return "", err
	}
	s.publishNote("captured", notePath)
	return notePath, nil
}

// AnalyzeInbox classifies unanalyzed inbox notes. Returns
// apperr.ErrAnalyzerDisabled when no model is configured.
func (s *Service) AnalyzeInbox(ctx context.Context, limit int) ([]analyzer.Result, error) {
	if s.analyzer == nil {
		return nil, apperr.ErrAnalyzerDisabled
	}
	return s.analyzer.AnalyzeInbox(ctx, limit)
}

// FileInbox runs one filing batch and broadcasts the per-note outcomes.
func (s *Service) FileInbox(ctx context.Context, opts filing.Options) (*filing.BatchResult, error) {
	res, err := s.engine.FileBatch(ctx, opts)
	if err != nil {
		return nil, err
	}
	if !opts.DryRun {
		for _, d := range res.Details {
			switch d.Action {
			case filing.ActionFiled:
				s.publishNote("filed", d.Target)
			case filing.ActionQueued:
				s.publishNote("queued", d.Target)
			}
		}
	}
	return res, nil
}

// Undo reverses a filing session. An empty sessionID targets the most
// recent session that has not been undone yet.
func (s *Service) Undo(ctx context.Context, sessionID string) (*ledger.UndoResult, error) {
	if sessionID == "" {
		sessionID = s.ledger.LatestActiveSession()
		if sessionID == "" {
			return nil, apperr.ErrSessionNotFound
		}
	}
	res, err := s.ledger.UndoSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.broker != nil {
		s.broker.Publish(sse.Event{Type: "session.undone", Data: map[string]any{
			"session_id": res.SessionID,
			"undone":     res.Undone,
			"failed":     res.Failed,
		}})
	}
	return res, nil
}

// Sessions lists recent filing sessions, newest first.
func (s *Service) Sessions(limit int) []ledger.Summary {
	return s.ledger.RecentSessions(limit)
}

// SessionDetail returns one session with its operations.
func (s *Service) SessionDetail(sessionID string) (*ledger.Session, error) {
	return s.ledger.Session(sessionID)
}

// Search delegates full-text search to the catalog.
func (s *Service) Search(_ context.Context, query string, limit int) ([]catalog.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Stats aggregates a snapshot across the catalog, inbox, ledger, and
// learner.
func (s *Service) Stats(_ context.Context) (*Stats, error) {
	total, err := s.db.Count()
	if err != nil {
		return nil, err
	}
	pending, err := s.store.List(s.inbox)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalNotes:   total,
		InboxPending: len(pending),
		Sessions:     s.ledger.ActiveCount(),
		Learner:      s.learner.GetStats(),
	}, nil
}

// Correct moves a filed note into folder and records the move as a
// learning signal, so future suggestions for similar content prefer it.
func (s *Service) Correct(_ context.Context, notePath, folder string) (string, error) {
	folder = strings.Trim(sanitize.String(folder), "/")
	if folder == "" {
		return "", fmt.Errorf("curator: folder is required")
	}

	data, err := s.store.Read(notePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperr.ErrNotFound
		}
		return "", err
	}

	target := path.Join(folder, path.Base(notePath))
	if target == notePath {
		return notePath, nil
	}
	if _, err := s.store.Read(target); err == nil {
		return "", apperr.ErrAlreadyExists
	}

	fm, body := frontmatter.Parse(data)
	if err := s.learner.RecordCorrection(notePath, target, body); err != nil {
		return "", err
	}
	if err := s.store.Write(target, frontmatter.Build(fm, body)); err != nil {
		return "", err
	}
	if err := s.store.Delete(notePath); err != nil {
		return "", err
	}
	s.publishNote("filed", target)
	s.logger.Info("correction applied",
		slog.String("from", notePath),
		slog.String("to", target))
	return target, nil
}

// Folders lists the filing destinations known to the catalog.
func (s *Service) Folders() ([]string, error) {
	return s.db.Folders(s.inbox)
}

func (s *Service) publishNote(kind, notePath string) {
	if s.broker != nil {
		s.broker.PublishNoteEvent(kind, notePath)
	}
}

// Suggestion re-exports the note suggestion lookup for surfaces that show
// pending analysis (the review queue listing).
func (s *Service) Suggestion(notePath string) (*models.Suggestion, error) {
	data, err := s.store.Read(notePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	fm, _ := frontmatter.Parse(data)
	sug, ok := models.SuggestionFromMapping(fm)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return sug, nil
}
