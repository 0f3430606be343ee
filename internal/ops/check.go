package ops

import (
	"context"
	"time"

	"github.com/hpungsan/seatwatch/internal/logging"
	"github.com/hpungsan/seatwatch/internal/notify"
	"github.com/hpungsan/seatwatch/internal/probe"
	"github.com/hpungsan/seatwatch/internal/status"
	"github.com/hpungsan/seatwatch/internal/store"
)

// Collector wires one check run.
type Collector struct {
	Observer probe.Observer
	Store    store.Store
	Notifier notify.Notifier
	Logger   *logging.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// CheckOutput reports what a run did.
type CheckOutput struct {
	Snapshot    status.Snapshot     `json:"snapshot"`
	Change      *status.ChangeEvent `json:"change,omitempty"`
	FirstRun    bool                `json:"firstRun"`
	Notified    bool                `json:"notified"`
	NotifyError string              `json:"notifyError,omitempty"`
	History     int                 `json:"history"`
}

// Check observes once, advances the document, persists it, and then
// delivers any change. A persistence failure aborts the run before
// notifying; a notification failure is logged and reported but the run
// still succeeds.
func Check(ctx context.Context, c Collector) (*CheckOutput, error) {
	log := c.Logger
	if log == nil {
		log = logging.Nop()
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	old, err := c.Store.Load(ctx)
	if err != nil {
		log.Error("load status document failed", "error", err)
		return nil, err
	}

	snap := c.Observer.Observe(ctx)
	if snap.Failed() {
		log.Warn("observation failed", "event_url", snap.EventURL, "error", snap.Error)
	} else {
		log.Info("observed",
			"event_url", snap.EventURL,
			"participants", snap.Participants(),
			"capacity", snap.Capacity(),
			"available", snap.Available(),
		)
	}

	doc, change := status.Advance(old, snap, now())

	if err := c.Store.Save(ctx, doc); err != nil {
		log.Error("save status document failed", "error", err)
		return nil, err
	}

	out := &CheckOutput{
		Snapshot: snap,
		Change:   change,
		FirstRun: old == nil,
		History:  len(doc.History),
	}
	if change == nil {
		return out, nil
	}

	log.Info("change detected", "kind", string(change.Kind), "from", change.From, "to", change.To)
	if c.Notifier == nil {
		return out, nil
	}
	if m, ok := c.Notifier.(*notify.Multi); ok && m.Len() == 0 {
		log.Info("no notifiers configured; change not delivered")
		return out, nil
	}
	if err := c.Notifier.Notify(ctx, *change, snap); err != nil {
		log.Warn("notification failed", "error", err)
		out.NotifyError = err.Error()
		return out, nil
	}
	out.Notified = true
	return out, nil
}
