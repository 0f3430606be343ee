package status

import (
	"fmt"

	"github.com/hpungsan/seatwatch/internal/errors"
)

// Validate checks the snapshot invariants. It returns an INVALID_DOCUMENT
// error describing the first violation found.
func (s Snapshot) Validate() error {
	if s.Timestamp.IsZero() {
		return errors.NewInvalidDocument("snapshot timestamp is required")
	}

	set := 0
	for _, present := range []bool{
		s.CurrentParticipants != nil,
		s.MaxCapacity != nil,
		s.AvailableSlots != nil,
		s.IsFull != nil,
	} {
		if present {
			set++
		}
	}

	if s.Failed() {
		if set != 0 {
			return errors.NewInvalidDocument("error snapshot must not carry capacity fields")
		}
		return nil
	}
	if set != 4 {
		return errors.NewInvalidDocument("reading must carry participants, capacity, available slots and isFull")
	}

	participants, capacity, available := *s.CurrentParticipants, *s.MaxCapacity, *s.AvailableSlots
	if participants < 0 || capacity < 0 || available < 0 {
		return errors.NewInvalidDocument("capacity counts must be non-negative")
	}
	if participants+available != capacity {
		return errors.NewInvalidDocument(fmt.Sprintf(
			"participants (%d) + available (%d) != capacity (%d)", participants, available, capacity))
	}
	if *s.IsFull != (available == 0) {
		return errors.NewInvalidDocument("isFull must be true exactly when no slots are available")
	}
	return nil
}

// Validate checks every snapshot in the document and the history bound.
func (d Document) Validate() error {
	if err := d.Current.Validate(); err != nil {
		return wrapField("current", err)
	}
	if d.Previous != nil {
		if err := d.Previous.Validate(); err != nil {
			return wrapField("previous", err)
		}
	}
	if len(d.History) > HistoryLimit {
		return errors.NewInvalidDocument(fmt.Sprintf("history has %d entries (max %d)", len(d.History), HistoryLimit))
	}
	for i, h := range d.History {
		if h.Failed() {
			return errors.NewInvalidDocument(fmt.Sprintf("history[%d] is an error snapshot", i))
		}
		if err := h.Validate(); err != nil {
			return wrapField(fmt.Sprintf("history[%d]", i), err)
		}
	}
	return nil
}

func wrapField(field string, err error) error {
	if wErr, ok := err.(*errors.WatchError); ok {
		return errors.NewInvalidDocument(field + ": " + wErr.Message)
	}
	return err
}
