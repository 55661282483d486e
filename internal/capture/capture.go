// Package capture turns short text snippets from a chat interface into
// inbox notes awaiting analysis.
package capture

import (
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/sanitize"
	"github.com/starford/ansuz/internal/storage"
)

const maxSlugLen = 48

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Service writes captures into the vault inbox.
type Service struct {
	store  storage.Provider
	inbox  string
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a capture service writing under inbox.
func NewService(store storage.Provider, inbox string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, inbox: strings.Trim(inbox, "/"), logger: logger, now: time.Now}
}

// Capture writes text as a new inbox note and returns its path. The file
// name combines a slug of the first line with a short content digest, so
// identical captures dedupe onto the same path instead of piling up.
func (s *Service) Capture(text, source string) (string, error) {
	text = strings.TrimSpace(sanitize.String(text))
	if text == "" {
		return "", fmt.Errorf("capture: empty text")
	}

	notePath := path.Join(s.inbox, fmt.Sprintf("%s-%s.md", slug(text), checksum.Short([]byte(text))))
	if _, err := s.store.Read(notePath); err == nil {
		s.logger.Debug("capture deduped", slog.String("path", notePath))
		return notePath, nil
	}

	fm := frontmatter.NewMapping()
	fm.Set(models.KeyTitle, firstLine(text))
	fm.Set(models.KeyCapturedAt, s.now().UTC().Format(time.RFC3339))
	if source != "" {
		fm.Set(models.KeySource, source)
	}
	fm.Set(models.KeyStatus, "inbox")

	content := sanitize.Bytes(frontmatter.Build(fm, text+"\n"))
	if err := s.store.Write(notePath, content); err != nil {
		return "", fmt.Errorf("capture: write note: %w", err)
	}
	s.logger.Info("captured", slog.String("path", notePath), slog.String("source", source))
	return notePath, nil
}

func firstLine(text string) string {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	return strings.TrimSpace(strings.TrimLeft(line, "# "))
}

func slug(text string) string {
	s := strings.ToLower(firstLine(text))
	s = slugRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "capture"
	}
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-")
	}
	return s
}
