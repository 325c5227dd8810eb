package resolver

import (
	"strings"

	"github.com/pbaille/qabot/internal/config"
	"github.com/pbaille/qabot/internal/domain"
	"github.com/pmezard/go-difflib/difflib"
)

// directMatch returns the index of the first entry matching question under
// mode, or -1. Entries with a blank question never match.
func directMatch(question string, manual []domain.ManualEntry, mode string) int {
	folded := strings.ToLower(question)
	trimmed := strings.TrimSpace(question)

	for i, e := range manual {
		q := strings.TrimSpace(e.Question)
		if q == "" {
			continue
		}
		switch mode {
		case config.ModeEquality:
			if strings.EqualFold(q, trimmed) {
				return i
			}
		default:
			if strings.Contains(folded, strings.ToLower(q)) {
				return i
			}
		}
	}
	return -1
}

// fuzzyMatch returns the entry whose question is most similar to question,
// provided it scores at least cutoff. Ties keep the earliest entry.
func fuzzyMatch(question string, manual []domain.ManualEntry, cutoff float64) (int, float64) {
	target := chars(strings.ToLower(question))

	best, bestScore := -1, 0.0
	for i, e := range manual {
		if strings.TrimSpace(e.Question) == "" {
			continue
		}
		m := difflib.NewMatcher(chars(strings.ToLower(e.Question)), target)
		// same cheap upper bounds as get_close_matches before the full ratio
		if m.RealQuickRatio() < cutoff || m.QuickRatio() < cutoff {
			continue
		}
		score := m.Ratio()
		if score >= cutoff && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

// Similarity is the character-level sequence ratio of a and b, case-folded
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(chars(strings.ToLower(a)), chars(strings.ToLower(b))).Ratio()
}

func chars(s string) []string {
	return strings.Split(s, "")
}

// BuildContext renders the FAQ and then the manual as "Q: ..\nA: .." blocks
// joined by newlines
func BuildContext(faq, manual []domain.ManualEntry) string {
	var sb strings.Builder
	write := func(entries []domain.ManualEntry) {
		for _, e := range entries {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("Q: ")
			sb.WriteString(e.Question)
			sb.WriteString("\nA: ")
			sb.WriteString(e.Answer)
		}
	}
	write(faq)
	write(manual)
	return sb.String()
}
