package ops

import (
	"context"
	"time"

	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/notify"
	"github.com/hpungsan/seatwatch/internal/status"
	"github.com/hpungsan/seatwatch/internal/store"
)

// History limits
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = status.HistoryLimit
)

// CurrentOutput summarizes the latest document.
type CurrentOutput struct {
	Current      status.Snapshot     `json:"current"`
	Previous     *status.Snapshot    `json:"previous,omitempty"`
	LastUpdate   time.Time           `json:"lastUpdate"`
	HistoryCount int                 `json:"historyCount"`
	Change       *status.ChangeEvent `json:"change,omitempty"`
}

// Current reads the document and reports its current snapshot and the
// change it implies.
func Current(ctx context.Context, src store.Source) (*CurrentOutput, error) {
	doc, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return &CurrentOutput{
		Current:      doc.Current,
		Previous:     doc.Previous,
		LastUpdate:   doc.LastUpdate,
		HistoryCount: len(doc.History),
		Change:       status.DetectChange(doc.Previous, doc.Current),
	}, nil
}

// HistoryInput contains parameters for History.
type HistoryInput struct {
	Limit int
}

// HistoryOutput lists history newest first.
type HistoryOutput struct {
	Items []status.Snapshot `json:"items"`
	Total int               `json:"total"`
}

// History returns up to Limit history entries, newest first.
func History(ctx context.Context, src store.Source, input HistoryInput) (*HistoryOutput, error) {
	limit := input.Limit
	if limit < 0 {
		return nil, errors.NewInvalidRequest("limit must not be negative")
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	doc, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return &HistoryOutput{
		Items: Recent(doc.History, limit),
		Total: len(doc.History),
	}, nil
}

// Recent returns up to n valid entries of history, newest first. history is
// not modified.
func Recent(history []status.Snapshot, n int) []status.Snapshot {
	out := make([]status.Snapshot, 0, min(n, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if history[i].Failed() {
			continue
		}
		out = append(out, history[i])
	}
	return out
}

// ChangeOutput is the change implied by the document, with its ticket.
type ChangeOutput struct {
	Changed bool                `json:"changed"`
	Change  *status.ChangeEvent `json:"change,omitempty"`
	Title   string              `json:"title,omitempty"`
	Body    string              `json:"body,omitempty"`
}

// Change reports whether the document's previous and current readings
// constitute a notifiable change, and renders the ticket it would produce.
func Change(ctx context.Context, src store.Source, eventName string) (*ChangeOutput, error) {
	doc, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	change := status.DetectChange(doc.Previous, doc.Current)
	if change == nil {
		return &ChangeOutput{Changed: false}, nil
	}
	ticket := notify.Issue(*change, doc.Current, eventName)
	return &ChangeOutput{
		Changed: true,
		Change:  change,
		Title:   ticket.Title,
		Body:    ticket.Body,
	}, nil
}
