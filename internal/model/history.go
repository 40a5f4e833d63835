package model

import (
	"sort"
	"time"
)

// HistoryEntry is an interaction joined with its latest feedback.
type HistoryEntry struct {
	ID            string    `json:"id"`
	Function      string    `json:"function"`
	Prompt        string    `json:"prompt"`
	AIResponse    string    `json:"aiResponse"`
	FeedbackValue *bool     `json:"feedbackValue,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SortNewestFirst orders records by timestamp descending, ties broken by id.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].ID > records[j].ID
	})
}

// LatestFeedback maps interaction ids to the value of their newest feedback record.
// records must be ordered newest first.
func LatestFeedback(records []Record) map[string]bool {
	latest := make(map[string]bool)
	for _, r := range records {
		if !r.IsFeedback() || r.FeedbackValue == nil {
			continue
		}
		if _, seen := latest[r.ForInteractionID]; seen {
			continue
		}
		latest[r.ForInteractionID] = *r.FeedbackValue
	}
	return latest
}

// BuildHistory drops feedback records and attaches feedback to the interactions
// they reference, keeping the newest-first order.
func BuildHistory(records []Record) []HistoryEntry {
	feedback := LatestFeedback(records)
	entries := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		if r.IsFeedback() {
			continue
		}
		entry := HistoryEntry{
			ID:         r.ID,
			Function:   r.Function,
			Prompt:     r.Prompt,
			AIResponse: r.AIResponse,
			Timestamp:  r.Timestamp,
		}
		if v, ok := feedback[r.ID]; ok {
			value := v
			entry.FeedbackValue = &value
		}
		entries = append(entries, entry)
	}
	return entries
}

// LatestInteraction returns the newest non-feedback record, if any.
func LatestInteraction(records []Record) (*Record, bool) {
	for i := range records {
		if !records[i].IsFeedback() {
			return &records[i], true
		}
	}
	return nil, false
}
