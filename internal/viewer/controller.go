package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/seatwatch/internal/db"
	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/logging"
	"github.com/hpungsan/seatwatch/internal/notify"
	"github.com/hpungsan/seatwatch/internal/status"
	"github.com/hpungsan/seatwatch/internal/store"
)

// Notification is a local alert raised by the viewer.
type Notification struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Available  int       `json:"available"`
	SnapshotAt time.Time `json:"snapshotAt"`
	Test       bool      `json:"test"`
	CreatedAt  time.Time `json:"createdAt"`
}

func fromRow(r db.Notification) Notification {
	return Notification{
		ID:         r.ID,
		Kind:       r.Kind,
		Title:      r.Title,
		Message:    r.Message,
		Available:  r.Available,
		SnapshotAt: time.Unix(r.SnapshotAt, 0).UTC(),
		Test:       r.Test,
		CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
	}
}

// Feed records notifications for the page to pick up.
type Feed interface {
	Record(ctx context.Context, n Notification) error
	After(ctx context.Context, afterID string, limit int) ([]Notification, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// DefaultFeedRetention is how long feed entries are kept.
const DefaultFeedRetention = 7 * 24 * time.Hour

// View is what the page renders. Exactly one of Doc and Err is set.
type View struct {
	Doc       *status.Document
	Err       error
	FetchedAt time.Time
	NextCheck time.Time
}

// Ready reports whether a document was fetched.
func (v View) Ready() bool {
	return v.Doc != nil
}

// Options configures a Controller.
type Options struct {
	Source        store.Source
	Settings      SettingsStore
	Feed          Feed
	Logger        *logging.Logger
	CheckInterval time.Duration

	// FeedRetention defaults to DefaultFeedRetention.
	FeedRetention time.Duration
}

// Controller owns the latest view and performs refreshes. Refresh is safe
// to call concurrently; each call replaces the view wholesale.
type Controller struct {
	src       store.Source
	settings  SettingsStore
	feed      Feed
	log       *logging.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	// refreshMu serializes the detect and de-duplicate step.
	refreshMu sync.Mutex

	mu   sync.RWMutex
	view View
}

// NewController creates a controller. The view is empty until the first Refresh.
func NewController(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	interval := opts.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	retention := opts.FeedRetention
	if retention <= 0 {
		retention = DefaultFeedRetention
	}
	return &Controller{
		src:       opts.Source,
		settings:  opts.Settings,
		feed:      opts.Feed,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		view:      View{Err: errors.NewNotFound(opts.Source.Location())},
	}
}

// View returns the current view.
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Settings returns the stored settings.
func (c *Controller) Settings(ctx context.Context) (Settings, error) {
	return LoadSettings(ctx, c.settings)
}

// SaveSettings stores new settings.
func (c *Controller) SaveSettings(ctx context.Context, s Settings) error {
	return SaveSettings(ctx, c.settings, s)
}

// Refresh fetches the document, replaces the view, and re-detects the
// change between previous and current. A change already notified for the
// same current snapshot is not notified again. The returned notification
// is nil when nothing new was raised.
func (c *Controller) Refresh(ctx context.Context) (View, *Notification) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	now := c.now()
	doc, err := c.src.Fetch(ctx)

	v := View{FetchedAt: now, NextCheck: now.Add(c.interval)}
	if err != nil {
		v.Err = err
		c.log.Warn("refresh failed", "source", c.src.Location(), "error", err)
	} else {
		v.Doc = doc
		v.NextCheck = doc.LastUpdate.Add(c.interval)
	}

	c.mu.Lock()
	c.view = v
	c.mu.Unlock()

	if n, err := c.feed.Prune(ctx, now.Add(-c.retention)); err != nil {
		c.log.Warn("prune notification feed failed", "error", err)
	} else if n > 0 {
		c.log.Debug("pruned notification feed", "removed", n)
	}

	if doc == nil {
		return v, nil
	}

	change := status.DetectChange(doc.Previous, doc.Current)
	if change == nil {
		return v, nil
	}

	stamp := doc.Current.Timestamp.UTC().Format(time.RFC3339Nano)
	if last, err := c.settings.Get(ctx, lastNotifiedKey); err == nil && last == stamp {
		return v, nil
	}

	n, err := c.raise(ctx, *change, doc.Current, false)
	if err != nil {
		c.log.Error("record notification failed", "error", err)
		return v, nil
	}
	if err := c.settings.Set(ctx, lastNotifiedKey, stamp); err != nil {
		c.log.Warn("store last notified failed", "error", err)
	}
	c.log.Info("change detected", "kind", string(change.Kind), "available", doc.Current.Available())
	return v, n
}

// TestNotification raises a sample alert through the same feed. It does
// not touch de-duplication state.
func (c *Controller) TestNotification(ctx context.Context) (*Notification, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	event := status.ChangeEvent{
		Kind:    status.BecameAvailable,
		Message: "🔔 テスト通知です。通知設定は正常に動作しています。",
		From:    0,
		To:      1,
	}
	snap := status.NewReading(c.now(), 1, 2, "", time.UTC)
	if v := c.View(); v.Doc != nil && !v.Doc.Current.Failed() {
		snap = v.Doc.Current
	}
	return c.raise(ctx, event, snap, true)
}

// Notifications returns feed entries after afterID.
func (c *Controller) Notifications(ctx context.Context, afterID string, limit int) ([]Notification, error) {
	return c.feed.After(ctx, afterID, limit)
}

func (c *Controller) raise(ctx context.Context, event status.ChangeEvent, snap status.Snapshot, test bool) (*Notification, error) {
	now := c.now()
	n := Notification{
		ID:         notify.NewID(now),
		Kind:       string(event.Kind),
		Title:      event.Title(),
		Message:    event.Message,
		Available:  snap.Available(),
		SnapshotAt: snap.Timestamp,
		Test:       test,
		CreatedAt:  now.UTC(),
	}
	if test {
		n.Title = "🔔 テスト通知"
	}
	if err := c.feed.Record(ctx, n); err != nil {
		return nil, err
	}
	return &n, nil
}
