package learner

import (
	"sort"
	"strings"
)

// maxKeywords caps how many ranked keywords extraction returns.
const maxKeywords = 20

// stopwords is a closed list of common English prose tokens that carry no
// folder-classification signal.
var stopwords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {},
	"will": {}, "been": {}, "were": {}, "their": {}, "what": {},
	"which": {}, "when": {}, "where": {}, "there": {}, "about": {},
	"would": {}, "could": {}, "should": {}, "these": {}, "those": {},
}

// markdownStripper removes the literal markdown symbols that would
// otherwise glue themselves onto tokens.
var markdownStripper = strings.NewReplacer(
	"#", " ", "*", " ", "`", " ", "[", " ", "]", " ", "(", " ", ")", " ",
)

// ExtractKeywords tokenizes note content and returns up to maxKeywords
// tokens ranked by descending frequency. Ties rank lexicographically so
// the result is deterministic. Tokens of length three or less and the
// stop-word list are dropped.
func ExtractKeywords(content string) []string {
	text := strings.ReplaceAll(content, "---", " ")
	text = markdownStripper.Replace(text)
	text = strings.ToLower(text)

	freq := make(map[string]int)
	for _, tok := range strings.Fields(text) {
		if len(tok) <= 3 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		freq[tok]++
	}

	ranked := make([]string, 0, len(freq))
	for tok := range freq {
		ranked = append(ranked, tok)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if freq[ranked[i]] != freq[ranked[j]] {
			return freq[ranked[i]] > freq[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	if len(ranked) > maxKeywords {
		ranked = ranked[:maxKeywords]
	}
	return ranked
}
