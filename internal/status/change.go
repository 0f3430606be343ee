package status

import (
	"fmt"
	"time"
)

// ChangeKind identifies which availability transition was observed.
type ChangeKind string

const (
	BecameAvailable       ChangeKind = "BecameAvailable"
	AvailabilityIncreased ChangeKind = "AvailabilityIncreased"
)

// ChangeEvent describes a notifiable transition between two readings.
// It is never persisted.
type ChangeEvent struct {
	Kind    ChangeKind `json:"kind"`
	Message string     `json:"message"`
	From    int        `json:"from"`
	To      int        `json:"to"`
}

// Title returns a short headline for the event.
func (e ChangeEvent) Title() string {
	switch e.Kind {
	case BecameAvailable:
		return "🎉 定員に空きが出ました！"
	case AvailabilityIncreased:
		return "📈 空きが増えました"
	default:
		return string(e.Kind)
	}
}

// DetectChange compares two observations and returns the event they imply,
// or nil. Rules, first match wins:
//  1. prev absent, or either side an error snapshot: nil
//  2. prev full and curr not full: BecameAvailable
//  3. curr has more available slots than prev: AvailabilityIncreased
//  4. otherwise nil
//
// Rule 2 must precede rule 3; a full prev has zero slots, so rule 3 would
// also match.
func DetectChange(prev *Snapshot, curr Snapshot) *ChangeEvent {
	if prev == nil || prev.Failed() || curr.Failed() {
		return nil
	}

	from, to := prev.Available(), curr.Available()

	if prev.Full() && !curr.Full() {
		return &ChangeEvent{
			Kind:    BecameAvailable,
			Message: fmt.Sprintf("🎉 定員に空きが出ました！現在 %d 人分の空きがあります。", to),
			From:    from,
			To:      to,
		}
	}

	if to > from {
		return &ChangeEvent{
			Kind:    AvailabilityIncreased,
			Message: fmt.Sprintf("📈 空きが増えました！%d → %d 人分", from, to),
			From:    from,
			To:      to,
		}
	}

	return nil
}

// AppendHistory returns a new history with superseded appended, keeping the
// most recent HistoryLimit entries oldest-first. Absent or error snapshots
// are not appended. old is never modified.
func AppendHistory(old []Snapshot, superseded *Snapshot) []Snapshot {
	next := make([]Snapshot, 0, min(len(old)+1, HistoryLimit))
	next = append(next, old...)
	if superseded != nil && !superseded.Failed() {
		next = append(next, *superseded)
	}
	if len(next) > HistoryLimit {
		next = append([]Snapshot(nil), next[len(next)-HistoryLimit:]...)
	}
	return next
}

// Advance derives the next document from old and a fresh observation.
// old may be nil on the first ever run; it is never mutated.
func Advance(old *Document, snap Snapshot, now time.Time) (Document, *ChangeEvent) {
	var (
		prevCurrent *Snapshot
		oldHistory  []Snapshot
	)
	if old != nil {
		c := old.Current
		prevCurrent = &c
		oldHistory = old.History
	}

	change := DetectChange(prevCurrent, snap)

	doc := Document{
		Current:    snap,
		Previous:   prevCurrent,
		History:    AppendHistory(oldHistory, prevCurrent),
		LastUpdate: now.UTC(),
	}
	return doc, change
}
