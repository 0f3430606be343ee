package notify

import (
	"context"
	"crypto/rand"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/status"
)

// Notifier delivers a detected change. Implementations must not modify the
// snapshot and must return promptly when ctx is done.
type Notifier interface {
	Notify(ctx context.Context, event status.ChangeEvent, snap status.Snapshot) error
}

// Ticket is the human-readable form of a change, used for issues and previews.
type Ticket struct {
	Title string
	Body  string
}

// Issue builds the ticket title and markdown body for a change.
func Issue(event status.ChangeEvent, snap status.Snapshot, eventName string) Ticket {
	var b strings.Builder
	b.WriteString(event.Message)
	b.WriteString("\n\n## 現在の状況\n")
	fmt.Fprintf(&b, "- 参加者: %d/%d人\n", snap.Participants(), snap.Capacity())
	fmt.Fprintf(&b, "- 空き: %d人\n", snap.Available())
	fmt.Fprintf(&b, "- 最終確認: %s\n", snap.LastChecked)

	if snap.EventURL != "" || eventName != "" {
		b.WriteString("\n## イベント詳細\n")
		if snap.EventURL != "" {
			fmt.Fprintf(&b, "- URL: %s\n", snap.EventURL)
		}
		if eventName != "" {
			fmt.Fprintf(&b, "- イベント名: %s\n", eventName)
		}
	}
	if snap.EventURL != "" {
		fmt.Fprintf(&b, "\n[参加申し込みはこちら](%s)\n", snap.EventURL)
	}

	return Ticket{
		Title: "🚨 イベント定員状況変化通知 - " + snap.LastChecked,
		Body:  b.String(),
	}
}

// Message is the JSON payload published to brokers.
type Message struct {
	ID        string            `json:"id"`
	Kind      status.ChangeKind `json:"kind"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	From      int               `json:"from"`
	To        int               `json:"to"`
	EventName string            `json:"eventName,omitempty"`
	Snapshot  status.Snapshot   `json:"snapshot"`
	SentAt    time.Time         `json:"sentAt"`
}

// NewMessage creates a payload with a fresh ULID.
func NewMessage(event status.ChangeEvent, snap status.Snapshot, eventName string, now time.Time) Message {
	return Message{
		ID:        NewID(now),
		Kind:      event.Kind,
		Title:     event.Title(),
		Message:   event.Message,
		From:      event.From,
		To:        event.To,
		EventName: eventName,
		Snapshot:  snap,
		SentAt:    now.UTC(),
	}
}

// Encode renders the payload as compact JSON.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID for time t. IDs from one process sort in creation
// order even within the same millisecond.
func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

type entry struct {
	name string
	n    Notifier
}

// Multi fans a change out to several notifiers. Every notifier is attempted;
// failures are joined, each wrapped as NOTIFICATION_FAILED.
type Multi struct {
	entries []entry
}

// NewMulti creates an empty fan-out.
func NewMulti() *Multi {
	return &Multi{}
}

// Add registers n under name.
func (m *Multi) Add(name string, n Notifier) {
	m.entries = append(m.entries, entry{name: name, n: n})
}

// Names lists the registered notifiers in order.
func (m *Multi) Names() []string {
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered notifiers.
func (m *Multi) Len() int {
	return len(m.entries)
}

// Notify delivers to every notifier.
func (m *Multi) Notify(ctx context.Context, event status.ChangeEvent, snap status.Snapshot) error {
	var errs []error
	for _, e := range m.entries {
		if err := e.n.Notify(ctx, event, snap); err != nil {
			if errors.Is(err, errors.ErrNotificationFailed) {
				errs = append(errs, err)
				continue
			}
			errs = append(errs, errors.NewNotificationFailed(e.name, err))
		}
	}
	return stderrors.Join(errs...)
}

// Close closes every notifier that holds a connection.
func (m *Multi) Close() error {
	var errs []error
	for _, e := range m.entries {
		if c, ok := e.n.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s notifier: %w", e.name, err))
			}
		}
	}
	return stderrors.Join(errs...)
}

// Nop discards every change.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, status.ChangeEvent, status.Snapshot) error { return nil }

// Func adapts a function to Notifier.
type Func func(ctx context.Context, event status.ChangeEvent, snap status.Snapshot) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, event status.ChangeEvent, snap status.Snapshot) error {
	return f(ctx, event, snap)
}
