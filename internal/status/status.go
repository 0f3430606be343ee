package status

import (
	"time"
)

// HistoryLimit is the maximum number of snapshots retained in Document.History.
const HistoryLimit = 50

// DisplayLayout formats Snapshot.LastChecked.
const DisplayLayout = "2006/1/2 15:04:05"

// Snapshot is one capacity observation. It is either a valid reading or an
// error record, never both: when Error is set every capacity field is nil.
type Snapshot struct {
	Timestamp           time.Time `json:"timestamp"`
	EventURL            string    `json:"eventUrl,omitempty"`
	CurrentParticipants *int      `json:"currentParticipants,omitempty"`
	MaxCapacity         *int      `json:"maxCapacity,omitempty"`
	AvailableSlots      *int      `json:"availableSlots,omitempty"`
	IsFull              *bool     `json:"isFull,omitempty"`
	Error               string    `json:"error,omitempty"`
	LastChecked         string    `json:"lastChecked"`
}

// Document is the persisted unit of state, superseded wholesale on every check.
type Document struct {
	Current    Snapshot   `json:"current"`
	Previous   *Snapshot  `json:"previous,omitempty"`
	History    []Snapshot `json:"history"`
	LastUpdate time.Time  `json:"lastUpdate"`
}

// NewReading builds a valid snapshot from raw counts. Counts that cannot
// describe a real event (negative, or more participants than seats) yield an
// error snapshot instead.
func NewReading(at time.Time, participants, capacity int, eventURL string, loc *time.Location) Snapshot {
	if participants < 0 || capacity < 0 {
		return NewFailure(at, "negative participant or capacity count", eventURL, loc)
	}
	if participants > capacity {
		return NewFailure(at, "participants exceed capacity", eventURL, loc)
	}

	available := capacity - participants
	full := available == 0
	return Snapshot{
		Timestamp:           at.UTC(),
		EventURL:            eventURL,
		CurrentParticipants: &participants,
		MaxCapacity:         &capacity,
		AvailableSlots:      &available,
		IsFull:              &full,
		LastChecked:         FormatLastChecked(at, loc),
	}
}

// NewFailure builds an error snapshot.
func NewFailure(at time.Time, message, eventURL string, loc *time.Location) Snapshot {
	if message == "" {
		message = "unknown error"
	}
	return Snapshot{
		Timestamp:   at.UTC(),
		EventURL:    eventURL,
		Error:       message,
		LastChecked: FormatLastChecked(at, loc),
	}
}

// FormatLastChecked renders at in loc for display. A nil loc means UTC.
func FormatLastChecked(at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return at.In(loc).Format(DisplayLayout)
}

// Failed reports whether s is an error record.
func (s Snapshot) Failed() bool {
	return s.Error != ""
}

// Available returns the available slot count, or 0 for error snapshots.
func (s Snapshot) Available() int {
	if s.AvailableSlots == nil {
		return 0
	}
	return *s.AvailableSlots
}

// Participants returns the participant count, or 0 for error snapshots.
func (s Snapshot) Participants() int {
	if s.CurrentParticipants == nil {
		return 0
	}
	return *s.CurrentParticipants
}

// Capacity returns the capacity, or 0 for error snapshots.
func (s Snapshot) Capacity() int {
	if s.MaxCapacity == nil {
		return 0
	}
	return *s.MaxCapacity
}

// Full reports whether s is a valid reading with no seats left.
func (s Snapshot) Full() bool {
	return s.IsFull != nil && *s.IsFull
}
