package curator

import (
	"github.com/starford/ansuz/internal/filing"
	"github.com/starford/ansuz/internal/learner"
)

type learnerHints struct {
	l *learner.Learner
}

func (h learnerHints) FolderHints(content string) filing.Hints {
	lh := h.l.FolderHints(content)
	return filing.Hints{SuggestedFolder: lh.SuggestedFolder, Confidence: lh.Confidence}
}

// LearnerHints adapts the learner to the filing engine's hint interface.
func LearnerHints(l *learner.Learner) filing.HintProvider {
	return learnerHints{l: l}
}
