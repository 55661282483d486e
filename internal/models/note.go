// Package models defines the domain types for ansuz.
package models

import (
	"time"

	"github.com/starford/ansuz/internal/frontmatter"
)

// Front-matter keys written and consumed by the curator.
const (
	KeySuggestions  = "ai_suggestions"
	KeyTags         = "tags"
	KeyFiledAt      = "filed_at"
	KeyFiledBy      = "filed_by"
	KeyReviewNeeded = "review_needed"
	KeyQueuedAt     = "queued_at"
	KeyCapturedAt   = "captured_at"
	KeySource       = "source"
	KeyStatus       = "status"
	KeyTitle        = "title"
)

// Note represents a Markdown file in the vault.
type Note struct {
	Path        string                 `json:"path"`
	Content     []byte                 `json:"-"`
	Body        string                 `json:"body"`
	Frontmatter *frontmatter.Mapping   `json:"-"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Suggestion is the analysis result attached to a note under the
// ai_suggestions front-matter key. Confidence stays untyped: the model may
// answer with a label ("high"), a number, or garbage, and the filing
// engine owns the interpretation.
type Suggestion struct {
	Folder     string
	Tags       []string
	Related    []string
	Summary    string
	Confidence any
}

// SuggestionFromMapping extracts a Suggestion from a note's ai_suggestions
// mapping. Returns false when the mapping is absent.
func SuggestionFromMapping(fm *frontmatter.Mapping) (*Suggestion, bool) {
	raw, ok := fm.GetMapping(KeySuggestions)
	if !ok {
		return nil, false
	}
	s := &Suggestion{}
	s.Folder, _ = raw.GetString("folder")
	s.Tags, _ = raw.GetStringSlice("tags")
	s.Related, _ = raw.GetStringSlice("related")
	s.Summary, _ = raw.GetString("summary")
	s.Confidence, _ = raw.Get("confidence")
	return s, true
}

// ToMapping converts a Suggestion to the front-matter shape written by the
// analyzer.
func (s *Suggestion) ToMapping() *frontmatter.Mapping {
	m := frontmatter.NewMapping()
	m.Set("folder", s.Folder)
	if len(s.Tags) > 0 {
		m.Set("tags", s.Tags)
	}
	if len(s.Related) > 0 {
		m.Set("related", s.Related)
	}
	if s.Summary != "" {
		m.Set("summary", s.Summary)
	}
	if s.Confidence != nil {
		m.Set("confidence", s.Confidence)
	}
	return m
}
