// Package learner tracks manual filing corrections and biases future
// folder suggestions with per-folder keyword frequencies.
//
// Every observed correction (the user moving a note out of the folder the
// model picked) contributes its note's keywords to the corrected folder's
// pattern. When the filing engine later asks for a hint, folders are
// scored by how many of the note's keywords they have absorbed, normalized
// by how often the folder was corrected into, so frequently used folders
// are not favored on volume alone.
package learner

import (
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/sanitize"
	"github.com/starford/ansuz/internal/statestore"
)

const (
	// maxCorrections caps the correction log; oldest entries drop first.
	maxCorrections = 1000
	// storedKeywords caps how many keywords a Correction record keeps.
	// The folder pattern still absorbs the full extracted set.
	storedKeywords = 10
)

// Correction is one observed user override of an automatic folder choice.
type Correction struct {
	Timestamp       time.Time `json:"timestamp"`
	OriginalFolder  string    `json:"original_folder"`
	CorrectedFolder string    `json:"corrected_folder"`
	Keywords        []string  `json:"keywords"`
	Note            string    `json:"note"`
}

// FolderPattern aggregates keyword frequencies for one folder.
type FolderPattern struct {
	Count    int            `json:"count"`
	Keywords map[string]int `json:"keywords"`
}

// State is the learner's persisted document.
type State struct {
	Corrections []Correction             `json:"corrections"`
	Patterns    map[string]FolderPattern `json:"patterns"`
}

// Hints is the scoring result for a note's content.
type Hints struct {
	SuggestedFolder string             `json:"suggested_folder,omitempty"`
	Confidence      float64            `json:"confidence"`
	Scores          map[string]float64 `json:"scores,omitempty"`
}

// Stats is a read-only summary of learner state.
type Stats struct {
	TotalCorrections   int        `json:"total_corrections"`
	FoldersLearned     int        `json:"folders_learned"`
	LastCorrectionDate *time.Time `json:"last_correction_date,omitempty"`
}

// Learner owns the correction log and folder patterns.
type Learner struct {
	mu    sync.Mutex
	store statestore.Store
	state State
	now   func() time.Time
}

// New creates a Learner, loading prior state from store. A missing state
// document yields an empty learner, never an error.
func New(store statestore.Store) (*Learner, error) {
	l := &Learner{store: store, now: time.Now}
	if err := store.Load(&l.state); err != nil {
		return nil, fmt.Errorf("learner: load state: %w", err)
	}
	if l.state.Patterns == nil {
		l.state.Patterns = make(map[string]FolderPattern)
	}
	return l, nil
}

// RecordCorrection records that a note was moved from originalPath to
// correctedPath. A within-folder rename carries no classification signal
// and is a no-op.
func (l *Learner) RecordCorrection(originalPath, correctedPath, content string) error {
	origFolder := path.Dir(originalPath)
	corrFolder := path.Dir(correctedPath)
	if origFolder == corrFolder {
		return nil
	}

	keywords := ExtractKeywords(sanitize.String(content))

	l.mu.Lock()
	defer l.mu.Unlock()

	stored := keywords
	if len(stored) > storedKeywords {
		stored = stored[:storedKeywords]
	}
	l.state.Corrections = append(l.state.Corrections, Correction{
		Timestamp:       l.now(),
		OriginalFolder:  sanitize.String(origFolder),
		CorrectedFolder: sanitize.String(corrFolder),
		Keywords:        stored,
		Note:            sanitize.String(path.Base(originalPath)),
	})
	if overflow := len(l.state.Corrections) - maxCorrections; overflow > 0 {
		l.state.Corrections = l.state.Corrections[overflow:]
	}

	pattern := l.state.Patterns[corrFolder]
	if pattern.Keywords == nil {
		pattern.Keywords = make(map[string]int)
	}
	pattern.Count++
	for _, word := range keywords {
		pattern.Keywords[word]++
	}
	l.state.Patterns[corrFolder] = pattern

	if err := l.store.Save(&l.state); err != nil {
		return fmt.Errorf("learner: save state: %w", err)
	}
	return nil
}

// FolderHints scores every learned folder against the content's keywords
// and returns the best match. With no learned patterns the suggestion is
// empty and confidence zero.
//
// score(folder) = sum of the folder's frequencies for matching keywords,
// divided by the folder's correction count. Confidence is score/10 clamped
// to 1.0, a linear scale rather than a probability. Ties break by
// lexicographic folder order for determinism.
func (l *Learner) FolderHints(content string) Hints {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.state.Patterns) == 0 {
		return Hints{}
	}

	keywords := ExtractKeywords(content)
	scores := make(map[string]float64, len(l.state.Patterns))

	folders := make([]string, 0, len(l.state.Patterns))
	for folder := range l.state.Patterns {
		folders = append(folders, folder)
	}
	sort.Strings(folders)

	best := ""
	bestScore := 0.0
	for _, folder := range folders {
		pattern := l.state.Patterns[folder]
		if pattern.Count == 0 {
			continue
		}
		sum := 0
		for _, word := range keywords {
			sum += pattern.Keywords[word]
		}
		score := float64(sum) / float64(pattern.Count)
		scores[folder] = score
		if score > bestScore {
			best = folder
			bestScore = score
		}
	}

	if best == "" {
		return Hints{Scores: scores}
	}
	confidence := bestScore / 10
	if confidence > 1.0 {
		confidence = 1.0
	}
	return Hints{SuggestedFolder: best, Confidence: confidence, Scores: scores}
}

// GetStats returns a read-only summary.
func (l *Learner) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		TotalCorrections: len(l.state.Corrections),
		FoldersLearned:   len(l.state.Patterns),
	}
	if n := len(l.state.Corrections); n > 0 {
		last := l.state.Corrections[n-1].Timestamp
		s.LastCorrectionDate = &last
	}
	return s
}
