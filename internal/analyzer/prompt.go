package analyzer

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a filing assistant for a personal Markdown knowledge base.
Given a note and the vault's existing folders and tags, decide where the note belongs.

Respond with a single JSON object and nothing else:
{
  "folder": "<existing folder path, or a sensible new one>",
  "tags": ["<up to 5 tags, prefer existing ones>"],
  "related": ["<paths of related notes, only if clearly relevant>"],
  "summary": "<one sentence>",
  "confidence": "high" | "medium" | "low"
}

Prefer existing folders over inventing new ones. Use "low" confidence when
the note is ambiguous or could belong in several places.`

// userPrompt renders the vault inventory and the note into the user turn.
func (a *Analyzer) userPrompt(title, body string, folders, tags []string) string {
	var b strings.Builder

	b.WriteString("Existing folders:\n")
	if len(folders) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, f := range folders {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	b.WriteString("\nExisting tags: ")
	if len(tags) == 0 {
		b.WriteString("(none yet)")
	} else {
		b.WriteString(strings.Join(tags, ", "))
	}
	b.WriteString("\n\n")

	if title != "" {
		fmt.Fprintf(&b, "Note title: %s\n", title)
	}
	b.WriteString("Note content:\n")
	b.WriteString(truncate(body, a.cfg.MaxBodyChars))
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	cut := n
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "\n[truncated]"
}
