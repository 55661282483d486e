// Package ledger persists filing sessions and replays them in reverse to
// undo a batch.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/statestore"
)

// maxSessions bounds the retained history; oldest sessions are discarded
// after any save, which makes them permanently non-undoable.
const maxSessions = 100

// Operation actions.
const (
	ActionFile  = "file"
	ActionQueue = "queue"
)

// Operation is one atomic relocation within a session. The full pre- and
// post-images are stored so undo needs nothing but the ledger.
type Operation struct {
	Action          string    `json:"action"`
	OriginalPath    string    `json:"original_path"`
	TargetPath      string    `json:"target_path"`
	OriginalContent string    `json:"original_content"`
	NewContent      string    `json:"new_content"`
	Timestamp       time.Time `json:"timestamp"`
}

// Session owns the ordered operations of one filing batch.
type Session struct {
	ID         string      `json:"id"`
	StartTime  time.Time   `json:"start_time"`
	Operations []Operation `json:"operations"`
	Undone     bool        `json:"undone,omitempty"`
	UndoneAt   *time.Time  `json:"undone_at,omitempty"`
}

// Summary is a lightweight session view for listings.
type Summary struct {
	ID         string    `json:"id"`
	StartTime  time.Time `json:"start_time"`
	Operations int       `json:"operations"`
}

// UndoDetail is the per-operation outcome of an undo.
type UndoDetail struct {
	OriginalPath string `json:"original_path"`
	TargetPath   string `json:"target_path"`
	Status       string `json:"status"` // "undone" | "failed"
	Error        string `json:"error,omitempty"`
}

// UndoResult aggregates an undo attempt.
type UndoResult struct {
	SessionID string       `json:"session_id"`
	Undone    int          `json:"undone"`
	Failed    int          `json:"failed"`
	Details   []UndoDetail `json:"details"`
}

// NoteStore is the slice of the vault store the ledger needs for undo.
type NoteStore interface {
	Write(path string, content []byte) error
	Delete(path string) error
}

type state struct {
	Sessions map[string]*Session `json:"sessions"`
}

// Ledger records filing operations per session and can reverse them.
type Ledger struct {
	mu    sync.Mutex
	store statestore.Store
	notes NoteStore
	state state
	now   func() time.Time
}

// New creates a Ledger, loading prior sessions from store. A missing
// state document yields an empty ledger.
func New(store statestore.Store, notes NoteStore) (*Ledger, error) {
	l := &Ledger{store: store, notes: notes, now: time.Now}
	if err := store.Load(&l.state); err != nil {
		return nil, fmt.Errorf("ledger: load state: %w", err)
	}
	if l.state.Sessions == nil {
		l.state.Sessions = make(map[string]*Session)
	}
	return l, nil
}

// Append records an operation under sessionID, creating the session
// lazily on first use, and persists the ledger.
func (l *Ledger) Append(sessionID string, op Operation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sess, ok := l.state.Sessions[sessionID]
	if !ok {
		sess = &Session{ID: sessionID, StartTime: l.now()}
		l.state.Sessions[sessionID] = sess
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = l.now()
	}
	sess.Operations = append(sess.Operations, op)

	return l.save()
}

// UndoSession replays a session's operations in reverse order, restoring
// each original note and deleting its target. Later operations may depend
// on earlier ones' writes (two notes filed into the same folder), so the
// last operation is always unwound first.
//
// A per-operation failure is recorded and does not stop the rest of the
// reversal. A not-found on target delete is tolerated: manual cleanup may
// have removed it already. Undoing an already-undone session is rejected.
func (l *Ledger) UndoSession(ctx context.Context, sessionID string) (*UndoResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sess, ok := l.state.Sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("ledger: %q: %w", sessionID, apperr.ErrSessionNotFound)
	}
	if sess.Undone {
		return nil, fmt.Errorf("ledger: %q: %w", sessionID, apperr.ErrSessionUndone)
	}

	result := &UndoResult{SessionID: sessionID}
	for i := len(sess.Operations) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		op := sess.Operations[i]
		detail := UndoDetail{OriginalPath: op.OriginalPath, TargetPath: op.TargetPath}

		if err := l.undoOperation(op); err != nil {
			detail.Status = "failed"
			detail.Error = err.Error()
			result.Failed++
		} else {
			detail.Status = "undone"
			result.Undone++
		}
		result.Details = append(result.Details, detail)
	}

	sess.Undone = true
	at := l.now()
	sess.UndoneAt = &at
	if err := l.save(); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Ledger) undoOperation(op Operation) error {
	if err := l.notes.Write(op.OriginalPath, []byte(op.OriginalContent)); err != nil {
		return fmt.Errorf("restore %s: %w", op.OriginalPath, err)
	}
	if err := l.notes.Delete(op.TargetPath); err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("remove %s: %w", op.TargetPath, err)
	}
	return nil
}

// RecentSessions returns up to limit non-undone sessions, most recent
// first by start time.
func (l *Ledger) RecentSessions(limit int) []Summary {
	if limit <= 0 {
		limit = 10
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Summary
	for _, sess := range l.state.Sessions {
		if sess.Undone {
			continue
		}
		out = append(out, Summary{ID: sess.ID, StartTime: sess.StartTime, Operations: len(sess.Operations)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ActiveCount returns the number of sessions that can still be undone.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, sess := range l.state.Sessions {
		if !sess.Undone {
			n++
		}
	}
	return n
}

// LatestActiveSession returns the ID of the most recent non-undone
// session, or empty when none exists. Used as the undo command default.
func (l *Ledger) LatestActiveSession() string {
	recent := l.RecentSessions(1)
	if len(recent) == 0 {
		return ""
	}
	return recent[0].ID
}

// Session returns a copy of the named session.
func (l *Ledger) Session(sessionID string) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, ok := l.state.Sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("ledger: %q: %w", sessionID, apperr.ErrSessionNotFound)
	}
	cp := *sess
	cp.Operations = append([]Operation(nil), sess.Operations...)
	return &cp, nil
}

// save persists state after pruning history to the most recent
// maxSessions sessions by start time. Callers must hold l.mu.
func (l *Ledger) save() error {
	if len(l.state.Sessions) > maxSessions {
		ids := make([]string, 0, len(l.state.Sessions))
		for id := range l.state.Sessions {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return l.state.Sessions[ids[i]].StartTime.After(l.state.Sessions[ids[j]].StartTime)
		})
		for _, id := range ids[maxSessions:] {
			delete(l.state.Sessions, id)
		}
	}
	if err := l.store.Save(&l.state); err != nil {
		return fmt.Errorf("ledger: save state: %w", err)
	}
	return nil
}
