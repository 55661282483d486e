package filing

import (
	"strconv"
	"strings"
)

// Confidence labels accepted from analysis suggestions.
const (
	confidenceHigh   = 0.9
	confidenceMedium = 0.6
	confidenceLow    = 0.3
	// confidenceDefault is used for any value that is neither a known
	// label nor numeric. Permissive on purpose: a malformed confidence
	// is never an error.
	confidenceDefault = 0.5
)

// ParseConfidence maps a suggestion's confidence value to [0, 1].
//
// The mapping is a fixed design decision, not a measurement:
// "high" → 0.9, "medium" → 0.6, "low" → 0.3; numeric values and numeric
// strings pass through (clamped to [0, 1]); anything else → 0.5.
func ParseConfidence(v any) float64 {
	switch val := v.(type) {
	case float64:
		return clamp01(val)
	case int:
		return clamp01(float64(val))
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "high":
			return confidenceHigh
		case "medium":
			return confidenceMedium
		case "low":
			return confidenceLow
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return clamp01(f)
		}
		return confidenceDefault
	default:
		return confidenceDefault
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
