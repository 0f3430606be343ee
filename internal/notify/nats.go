package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hpungsan/seatwatch/internal/status"
)

// NATS publishes change messages on a core NATS subject.
type NATS struct {
	conn      *nats.Conn
	subject   string
	eventName string
	now       func() time.Time
}

// NewNATS connects to url.
func NewNATS(url, subject, eventName string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("seatwatch"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSWithConn(conn, subject, eventName), nil
}

func newNATSWithConn(conn *nats.Conn, subject, eventName string) *NATS {
	return &NATS{conn: conn, subject: subject, eventName: eventName, now: time.Now}
}

// Notify publishes and flushes so delivery failures surface here.
func (n *NATS) Notify(ctx context.Context, event status.ChangeEvent, snap status.Snapshot) error {
	data, err := NewMessage(event, snap, n.eventName, n.now()).Encode()
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", n.subject, err)
	}
	// FlushWithContext requires a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush subject %s: %w", n.subject, err)
	}
	return nil
}

// Close closes the connection.
func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
