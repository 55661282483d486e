// Package analyzer asks an OpenAI-compatible chat model to classify inbox
// notes and writes the resulting suggestions into their front matter.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/sanitize"
	"github.com/starford/ansuz/internal/storage"
)

const defaultModel = openai.GPT4oMini

// ChatClient is the subset of the OpenAI client the analyzer needs.
// *openai.Client satisfies it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CatalogSource supplies the vault inventory for prompt grounding.
// *catalog.DB satisfies it.
type CatalogSource interface {
	Folders(excludePrefix string) ([]string, error)
	Tags() ([]string, error)
}

// Config holds analyzer settings.
type Config struct {
	// Inbox is the vault-relative inbox directory.
	Inbox string
	// Model is the chat model name. Empty means defaultModel.
	Model string
	// MaxBodyChars truncates note bodies in prompts. Zero means 4000.
	MaxBodyChars int
}

// Result describes the outcome for one note.
type Result struct {
	Path       string             `json:"path"`
	Suggestion *models.Suggestion `json:"suggestion,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Analyzer classifies inbox notes.
type Analyzer struct {
	client  ChatClient
	store   storage.Provider
	catalog CatalogSource
	cfg     Config
	logger  *slog.Logger
}

// New creates an Analyzer.
func New(client ChatClient, store storage.Provider, catalog CatalogSource, cfg Config, logger *slog.Logger) *Analyzer {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxBodyChars <= 0 {
		cfg.MaxBodyChars = 4000
	}
	return &Analyzer{client: client, store: store, catalog: catalog, cfg: cfg, logger: logger}
}

// AnalyzeInbox classifies up to limit inbox notes that do not yet carry
// suggestions. Notes parked in the review queue are left alone. Per-note
// failures are recorded in the result and do not stop the batch.
func (a *Analyzer) AnalyzeInbox(ctx context.Context, limit int) ([]Result, error) {
	folders, err := a.catalog.Folders(a.cfg.Inbox)
	if err != nil {
		return nil, fmt.Errorf("analyzer: load folders: %w", err)
	}
	tags, err := a.catalog.Tags()
	if err != nil {
		return nil, fmt.Errorf("analyzer: load tags: %w", err)
	}

	metas, err := a.store.List(a.cfg.Inbox)
	if err != nil {
		return nil, fmt.Errorf("analyzer: list inbox: %w", err)
	}

	var results []Result
	for _, m := range metas {
		if limit > 0 && len(results) >= limit {
			break
		}
		if strings.HasPrefix(m.Path, a.cfg.Inbox+"/review-queue/") {
			continue
		}

		data, err := a.store.Read(m.Path)
		if err != nil {
			a.logger.Warn("analyzer: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			results = append(results, Result{Path: m.Path, Error: err.Error()})
			continue
		}

		fm, body := frontmatter.Parse(data)
		if fm.Has(models.KeySuggestions) {
			continue
		}

		title, _ := fm.GetString(models.KeyTitle)
		sug, err := a.Analyze(ctx, title, body, folders, tags)
		if err != nil {
			a.logger.Warn("analyzer: analyze failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			results = append(results, Result{Path: m.Path, Error: err.Error()})
			continue
		}

		fm.Set(models.KeySuggestions, sug.ToMapping())
		if err := a.store.Write(m.Path, sanitize.Bytes(frontmatter.Build(fm, body))); err != nil {
			a.logger.Warn("analyzer: write failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			results = append(results, Result{Path: m.Path, Error: err.Error()})
			continue
		}

		a.logger.Info("analyzer: suggested",
			slog.String("path", m.Path),
			slog.String("folder", sug.Folder),
			slog.Any("confidence", sug.Confidence))
		results = append(results, Result{Path: m.Path, Suggestion: sug})
	}
	return results, nil
}

// Analyze classifies a single note against the vault inventory.
func (a *Analyzer) Analyze(ctx context.Context, title, body string, folders, tags []string) (*models.Suggestion, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: a.userPrompt(title, body, folders, tags)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analyzer: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("analyzer: empty response")
	}
	return parseSuggestion(resp.Choices[0].Message.Content)
}

// parseSuggestion decodes the model's JSON answer, tolerating a Markdown
// code fence around it.
func parseSuggestion(raw string) (*models.Suggestion, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var payload struct {
		Folder     string   `json:"folder"`
		Tags       []string `json:"tags"`
		Related    []string `json:"related"`
		Summary    string   `json:"summary"`
		Confidence any      `json:"confidence"`
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("analyzer: decode suggestion: %w", err)
	}

	return &models.Suggestion{
		Folder:     sanitize.String(strings.Trim(payload.Folder, "/")),
		Tags:       sanitizeAll(payload.Tags),
		Related:    sanitizeAll(payload.Related),
		Summary:    sanitize.String(payload.Summary),
		Confidence: payload.Confidence,
	}, nil
}

func sanitizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = sanitize.String(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
