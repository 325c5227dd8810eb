package domain

import (
	"fmt"
	"strings"
	"time"
)

// ManualEntry is one curated question/answer pair
type ManualEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Priority *int   `json:"priority,omitempty"`
}

// Source tells where an answer came from
type Source string

const (
	SourceExactManual Source = "exact_manual"
	SourceFuzzyManual Source = "fuzzy_manual"
	SourceExternal    Source = "external"
)

// ParseSource accepts the canonical names; anything else is an error
func ParseSource(s string) (Source, error) {
	switch Source(strings.TrimSpace(s)) {
	case SourceExactManual:
		return SourceExactManual, nil
	case SourceFuzzyManual:
		return SourceFuzzyManual, nil
	case SourceExternal:
		return SourceExternal, nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Feedback is the helpfulness rating a user gave an answer
type Feedback string

const (
	FeedbackNotRated Feedback = "not_rated"
	FeedbackYes      Feedback = "yes"
	FeedbackNo       Feedback = "no"
)

// ParseFeedback maps user input (yes/no, any case) to a rating
func ParseFeedback(s string) (Feedback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true":
		return FeedbackYes, nil
	case "no", "n", "false":
		return FeedbackNo, nil
	}
	return "", fmt.Errorf("invalid feedback %q: want yes or no", s)
}

// HistoryEntry is one answered question in a session
type HistoryEntry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Source    Source    `json:"source"`
	Feedback  Feedback  `json:"feedback"`
	Persisted bool      `json:"persisted"`
	CreatedAt time.Time `json:"created_at"`

	// feedback value at the time of the last write
	savedFeedback Feedback
}

// Rated reports whether feedback was already attached
func (e *HistoryEntry) Rated() bool {
	return e.Feedback != FeedbackNotRated
}

// Dirty reports whether the entry has changes the ledger table has not seen
func (e *HistoryEntry) Dirty() bool {
	return !e.Persisted || e.savedFeedback != e.Feedback
}

// MarkPersisted records that the current state was written
func (e *HistoryEntry) MarkPersisted() {
	e.Persisted = true
	e.savedFeedback = e.Feedback
}

// Row converts the entry to its ledger table form
func (e *HistoryEntry) Row() LedgerRow {
	return LedgerRow{
		ID:        e.ID,
		Question:  e.Question,
		Answer:    e.Answer,
		Source:    e.Source,
		Feedback:  e.Feedback,
		CreatedAt: e.CreatedAt,
	}
}

// LedgerRow is a persisted history entry
type LedgerRow struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Source    Source    `json:"source,omitempty"`
	Feedback  Feedback  `json:"feedback"`
	CreatedAt time.Time `json:"created_at"`
}
