package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/statestore"
)

// fakeStore is an in-memory NoteStore recording mutations.
type fakeStore struct {
	files      map[string]string
	writeErrs  map[string]error
	deleteErrs map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string]string)}
}

func (f *fakeStore) Write(path string, content []byte) error {
	if err := f.writeErrs[path]; err != nil {
		return err
	}
	f.files[path] = string(content)
	return nil
}

func (f *fakeStore) Delete(path string) error {
	if err := f.deleteErrs[path]; err != nil {
		return err
	}
	if _, ok := f.files[path]; !ok {
		return fmt.Errorf("delete %s: %w", path, os.ErrNotExist)
	}
	delete(f.files, path)
	return nil
}

func testLedger(t *testing.T) (*Ledger, *fakeStore) {
	t.Helper()
	notes := newFakeStore()
	l, err := New(statestore.NewMemory(), notes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, notes
}

func op(orig, target, origContent, newContent string) Operation {
	return Operation{
		Action:          ActionFile,
		OriginalPath:    orig,
		TargetPath:      target,
		OriginalContent: origContent,
		NewContent:      newContent,
	}
}

func TestAppend_CreatesSessionLazily(t *testing.T) {
	l, _ := testLedger(t)
	if err := l.Append("s1", op("inbox/a.md", "x/a.md", "A", "A'")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	sess, err := l.Session("s1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.StartTime.IsZero() {
		t.Error("StartTime not set")
	}
	if len(sess.Operations) != 1 {
		t.Errorf("operations = %d", len(sess.Operations))
	}
}

func TestUndoSession_NotFound(t *testing.T) {
	l, _ := testLedger(t)
	_, err := l.UndoSession(context.Background(), "ghost")
	if !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestUndoSession_RestoresInReverseOrder(t *testing.T) {
	l, notes := testLedger(t)
	// Simulate two filed notes; the second's target exists, the first's too.
	notes.files["projects/a.md"] = "A filed"
	notes.files["projects/b.md"] = "B filed"
	_ = l.Append("s1", op("inbox/a.md", "projects/a.md", "A original", "A filed"))
	_ = l.Append("s1", op("inbox/b.md", "projects/b.md", "B original", "B filed"))

	res, err := l.UndoSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("UndoSession: %v", err)
	}
	if res.Undone != 2 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	// Reverse order: b is unwound before a.
	if res.Details[0].OriginalPath != "inbox/b.md" || res.Details[1].OriginalPath != "inbox/a.md" {
		t.Errorf("details order = %+v", res.Details)
	}
	if notes.files["inbox/a.md"] != "A original" || notes.files["inbox/b.md"] != "B original" {
		t.Errorf("originals not restored: %v", notes.files)
	}
	if _, ok := notes.files["projects/a.md"]; ok {
		t.Error("target a not deleted")
	}
	if _, ok := notes.files["projects/b.md"]; ok {
		t.Error("target b not deleted")
	}
}

func TestUndoSession_MissingTargetTolerated(t *testing.T) {
	l, notes := testLedger(t)
	// Target already gone (manual cleanup).
	_ = l.Append("s1", op("inbox/a.md", "projects/a.md", "A original", "A filed"))

	res, err := l.UndoSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("UndoSession: %v", err)
	}
	if res.Undone != 1 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if notes.files["inbox/a.md"] != "A original" {
		t.Error("original not restored")
	}
}

func TestUndoSession_PartialFailureContinues(t *testing.T) {
	l, notes := testLedger(t)
	notes.files["x/a.md"] = "A filed"
	notes.files["x/b.md"] = "B filed"
	notes.writeErrs = map[string]error{"inbox/b.md": errors.New("disk full")}
	_ = l.Append("s1", op("inbox/a.md", "x/a.md", "A", "A filed"))
	_ = l.Append("s1", op("inbox/b.md", "x/b.md", "B", "B filed"))

	res, err := l.UndoSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("UndoSession: %v", err)
	}
	if res.Undone != 1 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	// The failing op comes first (reverse order) and does not stop a's undo.
	if res.Details[0].Status != "failed" || res.Details[1].Status != "undone" {
		t.Errorf("details = %+v", res.Details)
	}
	if notes.files["inbox/a.md"] != "A" {
		t.Error("a not restored despite b failing")
	}
}

func TestUndoSession_TwiceRejected(t *testing.T) {
	l, notes := testLedger(t)
	notes.files["x/a.md"] = "A filed"
	_ = l.Append("s1", op("inbox/a.md", "x/a.md", "A", "A filed"))

	if _, err := l.UndoSession(context.Background(), "s1"); err != nil {
		t.Fatalf("first undo: %v", err)
	}
	restored := notes.files["inbox/a.md"]
	_, err := l.UndoSession(context.Background(), "s1")
	if !errors.Is(err, apperr.ErrSessionUndone) {
		t.Errorf("err = %v, want ErrSessionUndone", err)
	}
	// No double-restore, no double-delete.
	if notes.files["inbox/a.md"] != restored {
		t.Error("second undo mutated the store")
	}
}

func TestRecentSessions_ExcludesUndoneAndOrders(t *testing.T) {
	l, notes := testLedger(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	i := 0
	l.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Minute)
	}
	notes.files["x/a.md"] = "A"
	_ = l.Append("s1", op("inbox/a.md", "x/a.md", "A", "A"))
	_ = l.Append("s2", op("inbox/b.md", "x/b.md", "B", "B"))
	_ = l.Append("s3", op("inbox/c.md", "x/c.md", "C", "C"))
	if _, err := l.UndoSession(context.Background(), "s2"); err != nil {
		t.Fatalf("undo s2: %v", err)
	}

	recent := l.RecentSessions(10)
	if len(recent) != 2 {
		t.Fatalf("len = %d: %+v", len(recent), recent)
	}
	if recent[0].ID != "s3" || recent[1].ID != "s1" {
		t.Errorf("order = %s, %s", recent[0].ID, recent[1].ID)
	}
	if got := l.LatestActiveSession(); got != "s3" {
		t.Errorf("latest = %q", got)
	}
}

func TestPruning_KeepsMostRecentHundred(t *testing.T) {
	l, _ := testLedger(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	l.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Second)
	}
	for n := 0; n < maxSessions+10; n++ {
		id := fmt.Sprintf("s%03d", n)
		if err := l.Append(id, op("inbox/a.md", "x/a.md", "A", "A")); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(l.state.Sessions); got != maxSessions {
		t.Errorf("sessions = %d, want %d", got, maxSessions)
	}
	// The oldest sessions are gone for good.
	if _, err := l.Session("s000"); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("pruned session still present: %v", err)
	}
	if _, err := l.Session(fmt.Sprintf("s%03d", maxSessions+9)); err != nil {
		t.Errorf("most recent session missing: %v", err)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	mem := statestore.NewMemory()
	notes := newFakeStore()
	l, _ := New(mem, notes)
	notes.files["x/a.md"] = "A filed"
	_ = l.Append("s1", op("inbox/a.md", "x/a.md", "A original", "A filed"))

	reloaded, err := New(mem, notes)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	res, err := reloaded.UndoSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("undo after reload: %v", err)
	}
	if res.Undone != 1 {
		t.Errorf("result = %+v", res)
	}
	if notes.files["inbox/a.md"] != "A original" {
		t.Error("original not restored after reload")
	}
}
