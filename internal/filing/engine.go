// Package filing implements the batch filing engine: it consumes analyzed
// inbox notes, decides auto-file vs. review queue, resolves target paths
// and name collisions, rewrites note metadata, and records every move in
// the ledger so a whole batch can be undone.
package filing

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/ledger"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/sanitize"
	"github.com/starford/ansuz/internal/storage"
)

const (
	// FiledBy is the agent marker written into filed notes.
	FiledBy = "ansuz"
	// ReviewQueueDir is the inbox subdirectory for low-confidence notes.
	ReviewQueueDir = "review-queue"

	defaultLimit         = 10
	defaultMinConfidence = 0.7
	// maxCollisionAttempts guards against pathological loops, not a
	// realistic number of same-named notes.
	maxCollisionAttempts = 100

	reasonLowConfidence = "Low confidence"
)

// Note detail actions.
const (
	ActionFiled   = "filed"
	ActionQueued  = "queued"
	ActionSkipped = "skipped"
	ActionFailed  = "failed"
)

// HintProvider is the slice of the learner the engine consults.
type HintProvider interface {
	FolderHints(content string) Hints
}

// Hints mirrors learner.Hints without importing it, keeping the learner
// swappable in tests.
type Hints struct {
	SuggestedFolder string
	Confidence      float64
}

// Recorder is the slice of the ledger the engine appends to.
type Recorder interface {
	Append(sessionID string, op ledger.Operation) error
}

// Options controls one filing batch.
type Options struct {
	Limit         int     // max notes examined; default 10
	MinConfidence float64 // queue threshold; default 0.7
	DryRun        bool    // report without mutating store or ledger
	SessionID     string  // auto-generated when empty
}

// Detail is the per-note outcome within a batch.
type Detail struct {
	Path       string  `json:"path"`
	Action     string  `json:"action"`
	Target     string  `json:"target,omitempty"`
	Folder     string  `json:"folder,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// BatchResult aggregates one filing batch.
type BatchResult struct {
	SessionID string   `json:"session_id"`
	Processed int      `json:"processed"`
	Filed     int      `json:"filed"`
	Queued    int      `json:"queued"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Details   []Detail `json:"details"`
}

// Engine orchestrates batch filing over the vault store.
type Engine struct {
	// mu serializes batches: collision checks depend on earlier writes
	// in the same batch being visible, and concurrent batches would race
	// the ledger state document.
	mu      sync.Mutex
	store   storage.Provider
	hints   HintProvider
	ledger  Recorder
	inbox   string
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewEngine creates a filing engine over the given collaborators.
// inbox is the vault-relative intake directory.
func NewEngine(store storage.Provider, hints HintProvider, rec Recorder, inbox string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  store,
		hints:  hints,
		ledger: rec,
		inbox:  strings.Trim(inbox, "/"),
		logger: logger,
		now:    time.Now,
	}
	e.newID = func() string {
		return fmt.Sprintf("fil-%d-%s", e.now().Unix(), uuid.NewString()[:8])
	}
	return e
}

// FileBatch processes up to Limit analyzed inbox notes. Notes whose
// effective confidence clears MinConfidence are filed into their resolved
// folder; the rest are queued for manual review. Per-note failures are
// recorded in the result and never abort the batch; only enumeration
// failure raises.
func (e *Engine) FileBatch(ctx context.Context, opts Options) (*BatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = defaultMinConfidence
	}
	if opts.SessionID == "" {
		opts.SessionID = e.newID()
	}

	metas, err := e.store.List(e.inbox)
	if err != nil {
		return nil, fmt.Errorf("filing: enumerate inbox: %w", err)
	}

	result := &BatchResult{SessionID: opts.SessionID}
	for _, meta := range metas {
		if result.Processed >= opts.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Queued notes live under the inbox; they are waiting on a
		// human, not on another batch.
		if e.inReviewQueue(meta.Path) {
			continue
		}

		detail, eligible := e.processNote(meta.Path, opts)
		if !eligible {
			continue
		}
		result.Processed++
		result.Details = append(result.Details, detail)
		switch detail.Action {
		case ActionFiled:
			result.Filed++
		case ActionQueued:
			result.Queued++
		case ActionSkipped:
			result.Skipped++
		case ActionFailed:
			result.Failed++
		}
	}

	e.logger.Info("filing batch complete",
		slog.String("session_id", result.SessionID),
		slog.Bool("dry_run", opts.DryRun),
		slog.Int("processed", result.Processed),
		slog.Int("filed", result.Filed),
		slog.Int("queued", result.Queued),
		slog.Int("failed", result.Failed))
	return result, nil
}

// processNote handles a single note. The second return value is false for
// notes that carry no suggestion: they are excluded from the batch, not
// counted as processed.
func (e *Engine) processNote(notePath string, opts Options) (Detail, bool) {
	detail := Detail{Path: notePath}

	data, err := e.store.Read(notePath)
	if err != nil {
		// The note vanished between List and Read, or the read failed;
		// either way it is a per-note failure, not a batch abort.
		detail.Action = ActionFailed
		detail.Error = err.Error()
		return detail, true
	}

	fm, body := frontmatter.Parse(data)
	sugg, ok := models.SuggestionFromMapping(fm)
	if !ok {
		return detail, false
	}

	detail.Confidence = ParseConfidence(sugg.Confidence)
	if detail.Confidence < opts.MinConfidence {
		e.queueNote(&detail, notePath, string(data), fm, body, opts)
		return detail, true
	}
	e.fileNote(&detail, notePath, string(data), fm, body, sugg, opts)
	return detail, true
}

// fileNote relocates a note into its resolved folder. A learned hint
// overrides the model's one-shot folder suggestion: corrections encode
// ground truth the user already confirmed.
func (e *Engine) fileNote(detail *Detail, notePath, original string, fm *frontmatter.Mapping, body string, sugg *models.Suggestion, opts Options) {
	folder := strings.Trim(sugg.Folder, "/")
	if hint := e.hints.FolderHints(body); hint.SuggestedFolder != "" {
		folder = hint.SuggestedFolder
		detail.Reason = "Learned folder override"
	}
	if folder == "" {
		detail.Action = ActionSkipped
		detail.Reason = "No folder suggestion"
		return
	}
	detail.Folder = folder

	target, err := e.resolveCollision(folder, path.Base(notePath))
	if err != nil {
		detail.Action = ActionFailed
		detail.Error = err.Error()
		return
	}
	detail.Target = target

	newFM := fm.Clone()
	newFM.Delete(models.KeySuggestions)
	if len(sugg.Tags) > 0 {
		newFM.Set(models.KeyTags, sugg.Tags)
	}
	newFM.Set(models.KeyFiledAt, e.now().UTC().Format(time.RFC3339))
	newFM.Set(models.KeyFiledBy, FiledBy)

	newBody := appendRelated(body, sugg.Related)
	newContent := sanitize.Bytes(frontmatter.Build(newFM, newBody))

	if opts.DryRun {
		detail.Action = ActionFiled
		return
	}
	if err := e.commit(ledger.ActionFile, notePath, target, original, newContent, opts.SessionID); err != nil {
		detail.Action = ActionFailed
		detail.Error = err.Error()
		return
	}
	detail.Action = ActionFiled
}

// queueNote routes a low-confidence note to the review queue.
func (e *Engine) queueNote(detail *Detail, notePath, original string, fm *frontmatter.Mapping, body string, opts Options) {
	detail.Reason = reasonLowConfidence

	queueFolder := path.Join(e.inbox, ReviewQueueDir)
	target, err := e.resolveCollision(queueFolder, path.Base(notePath))
	if err != nil {
		detail.Action = ActionFailed
		detail.Error = err.Error()
		return
	}
	detail.Target = target

	newFM := fm.Clone()
	newFM.Delete(models.KeySuggestions)
	newFM.Set(models.KeyReviewNeeded, true)
	newFM.Set(models.KeyQueuedAt, e.now().UTC().Format(time.RFC3339))
	newContent := sanitize.Bytes(frontmatter.Build(newFM, body))

	if opts.DryRun {
		detail.Action = ActionQueued
		return
	}
	if err := e.commit(ledger.ActionQueue, notePath, target, original, newContent, opts.SessionID); err != nil {
		detail.Action = ActionFailed
		detail.Error = err.Error()
		return
	}
	detail.Action = ActionQueued
}

// commit performs the move and records it: write target, tombstone the
// original, append the operation to the session.
func (e *Engine) commit(action, origPath, target, original string, newContent []byte, sessionID string) error {
	if err := e.store.Write(target, newContent); err != nil {
		return fmt.Errorf("write target: %w", err)
	}
	if err := e.store.Delete(origPath); err != nil {
		return fmt.Errorf("delete original: %w", err)
	}
	if err := e.ledger.Append(sessionID, ledger.Operation{
		Action:          action,
		OriginalPath:    origPath,
		TargetPath:      target,
		OriginalContent: original,
		NewContent:      string(newContent),
		Timestamp:       e.now(),
	}); err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

// resolveCollision returns `<folder>/<base>`, appending -1, -2, … before
// the extension while the target exists. Monotonic and deterministic:
// the first free suffix wins.
func (e *Engine) resolveCollision(folder, base string) (string, error) {
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := path.Join(folder, base)
	for i := 1; ; i++ {
		if !e.exists(candidate) {
			return candidate, nil
		}
		if i > maxCollisionAttempts {
			return "", fmt.Errorf("filing: %s: %w", path.Join(folder, base), apperr.ErrCollisionExhausted)
		}
		candidate = path.Join(folder, fmt.Sprintf("%s-%d%s", stem, i, ext))
	}
}

func (e *Engine) exists(p string) bool {
	_, err := e.store.Read(p)
	return err == nil
}

func (e *Engine) inReviewQueue(p string) bool {
	prefix := path.Join(e.inbox, ReviewQueueDir) + "/"
	return strings.HasPrefix(p, prefix)
}

// appendRelated adds a Related Notes section linking each related path,
// with the .md extension stripped from the displayed target.
func appendRelated(body string, related []string) string {
	if len(related) == 0 {
		return body
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(body, "\n"))
	sb.WriteString("\n\n## Related Notes\n\n")
	for _, rel := range related {
		sb.WriteString("- [[")
		sb.WriteString(strings.TrimSuffix(rel, ".md"))
		sb.WriteString("]]\n")
	}
	return sb.String()
}
