package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/filing"
)

const helpText = `Send any text to capture it into the inbox.

Commands:
/file [limit=N] [confidence=X] [dryrun] - file analyzed inbox notes
/analyze [N] - run AI analysis on unanalyzed inbox notes
/undo [session-id] - undo a filing session (latest when omitted)
/sessions - list recent filing sessions
/stats - curator statistics
/search <query> - full-text search
/correct <path> <folder> - move a misfiled note and learn from it`

func (b *Bot) handleCommand(ctx context.Context, text string) string {
	cmd, args, _ := strings.Cut(text, " ")
	args = strings.TrimSpace(args)

	// Commands in groups arrive as /cmd@botname.
	cmd, _, _ = strings.Cut(cmd, "@")

	switch cmd {
	case "/start", "/help":
		return helpText
	case "/file":
		return b.cmdFile(ctx, args)
	case "/analyze":
		return b.cmdAnalyze(ctx, args)
	case "/undo":
		return b.cmdUndo(ctx, args)
	case "/sessions":
		return b.cmdSessions()
	case "/stats":
		return b.cmdStats(ctx)
	case "/search":
		return b.cmdSearch(ctx, args)
	case "/correct":
		return b.cmdCorrect(ctx, args)
	default:
		return "Unknown command. Try /help."
	}
}

// parseFileArgs parses "/file" arguments of the form
// "limit=N confidence=X dryrun".
func parseFileArgs(args string) (filing.Options, error) {
	var opts filing.Options
	for _, field := range strings.Fields(args) {
		switch {
		case field == "dryrun" || field == "dry-run":
			opts.DryRun = true
		case strings.HasPrefix(field, "limit="):
			n, err := strconv.Atoi(strings.TrimPrefix(field, "limit="))
			if err != nil || n < 0 {
				return opts, fmt.Errorf("invalid limit %q", field)
			}
			opts.Limit = n
		case strings.HasPrefix(field, "confidence="):
			f, err := strconv.ParseFloat(strings.TrimPrefix(field, "confidence="), 64)
			if err != nil || f < 0 || f > 1 {
				return opts, fmt.Errorf("invalid confidence %q", field)
			}
			opts.MinConfidence = f
		default:
			return opts, fmt.Errorf("unknown argument %q", field)
		}
	}
	return opts, nil
}

func (b *Bot) cmdFile(ctx context.Context, args string) string {
	opts, err := parseFileArgs(args)
	if err != nil {
		return err.Error() + "\nUsage: /file [limit=N] [confidence=X] [dryrun]"
	}
	res, err := b.svc.FileInbox(ctx, opts)
	if err != nil {
		b.logger.Error("telegram: file failed", slog.String("error", err.Error()))
		return "Filing failed: " + err.Error()
	}

	var sb strings.Builder
	if opts.DryRun {
		sb.WriteString("Dry run. ")
	}
	fmt.Fprintf(&sb, "Processed %d: filed %d, queued %d, skipped %d, failed %d\n",
		res.Processed, res.Filed, res.Queued, res.Skipped, res.Failed)
	for _, d := range res.Details {
		switch d.Action {
		case filing.ActionFiled:
			fmt.Fprintf(&sb, "• %s → %s (%.2f)\n", d.Path, d.Folder, d.Confidence)
		case filing.ActionQueued:
			fmt.Fprintf(&sb, "• %s → review queue (%.2f)\n", d.Path, d.Confidence)
		case filing.ActionFailed:
			fmt.Fprintf(&sb, "• %s failed: %s\n", d.Path, d.Error)
		}
	}
	if res.Processed > 0 && !opts.DryRun {
		fmt.Fprintf(&sb, "Session %s (undo with /undo)", res.SessionID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) cmdAnalyze(ctx context.Context, args string) string {
	limit := 0
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n < 0 {
			return "Usage: /analyze [N]"
		}
		limit = n
	}
	results, err := b.svc.AnalyzeInbox(ctx, limit)
	if err != nil {
		if errors.Is(err, apperr.ErrAnalyzerDisabled) {
			return "Analysis is not configured (no API key)."
		}
		b.logger.Error("telegram: analyze failed", slog.String("error", err.Error()))
		return "Analysis failed: " + err.Error()
	}
	if len(results) == 0 {
		return "Nothing to analyze."
	}

	var sb strings.Builder
	ok := 0
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(&sb, "• %s failed: %s\n", r.Path, r.Error)
			continue
		}
		ok++
		fmt.Fprintf(&sb, "• %s → %s\n", r.Path, r.Suggestion.Folder)
	}
	return fmt.Sprintf("Analyzed %d of %d:\n%s", ok, len(results), strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) cmdUndo(ctx context.Context, args string) string {
	res, err := b.svc.Undo(ctx, args)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrSessionNotFound):
			return "No session to undo."
		case errors.Is(err, apperr.ErrSessionUndone):
			return "That session was already undone."
		default:
			b.logger.Error("telegram: undo failed", slog.String("error", err.Error()))
			return "Undo failed: " + err.Error()
		}
	}
	if res.Failed > 0 {
		return fmt.Sprintf("Undid %d of %d operations in %s (%d failed).",
			res.Undone, res.Undone+res.Failed, res.SessionID, res.Failed)
	}
	return fmt.Sprintf("Undid %d operations in %s.", res.Undone, res.SessionID)
}

func (b *Bot) cmdSessions() string {
	sessions := b.svc.Sessions(10)
	if len(sessions) == 0 {
		return "No filing sessions yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent sessions:\n")
	for _, s := range sessions {
		fmt.Fprintf(&sb, "• %s: %d ops, %s\n", s.ID, s.Operations, s.StartTime.Format("2006-01-02 15:04"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) cmdStats(ctx context.Context) string {
	stats, err := b.svc.Stats(ctx)
	if err != nil {
		b.logger.Error("telegram: stats failed", slog.String("error", err.Error()))
		return "Stats failed: " + err.Error()
	}
	msg := fmt.Sprintf("Notes: %d\nInbox pending: %d\nSessions: %d\nCorrections learned: %d (%d folders)",
		stats.TotalNotes, stats.InboxPending, stats.Sessions,
		stats.Learner.TotalCorrections, stats.Learner.FoldersLearned)
	if stats.Learner.LastCorrectionDate != nil {
		msg += "\nLast correction: " + stats.Learner.LastCorrectionDate.Format("2006-01-02")
	}
	return msg
}

func (b *Bot) cmdSearch(ctx context.Context, query string) string {
	if query == "" {
		return "Usage: /search <query>"
	}
	results, err := b.svc.Search(ctx, query, 10)
	if err != nil {
		b.logger.Error("telegram: search failed", slog.String("error", err.Error()))
		return "Search failed: " + err.Error()
	}
	if len(results) == 0 {
		return "No matches."
	}
	var sb strings.Builder
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = r.Path
		}
		fmt.Fprintf(&sb, "• %s (%s)\n", title, r.Path)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) cmdCorrect(ctx context.Context, args string) string {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "Usage: /correct <path> <folder>"
	}
	target, err := b.svc.Correct(ctx, fields[0], fields[1])
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			return "Note not found: " + fields[0]
		case errors.Is(err, apperr.ErrAlreadyExists):
			return "A note with that name already exists in " + fields[1]
		default:
			b.logger.Error("telegram: correct failed", slog.String("error", err.Error()))
			return "Correction failed: " + err.Error()
		}
	}
	return "Moved to " + target + " and recorded the correction."
}
