package viewer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/seatwatch/internal/db"
	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/status"
	"github.com/hpungsan/seatwatch/internal/store"
)

var t0 = time.Date(2025, 7, 10, 3, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu  sync.Mutex
	doc *status.Document
	err error
}

func (f *fakeSource) Fetch(context.Context) (*status.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	d := *f.doc
	return &d, nil
}

func (f *fakeSource) Location() string { return "fake" }

func (f *fakeSource) set(doc *status.Document, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc, f.err = doc, err
}

func docWith(prevParticipants, currParticipants int, at time.Time) *status.Document {
	prev := status.NewReading(at.Add(-30*time.Minute), prevParticipants, 42, "", time.UTC)
	old := &status.Document{Current: prev, History: []status.Snapshot{}, LastUpdate: prev.Timestamp}
	doc, _ := status.Advance(old, status.NewReading(at, currParticipants, 42, "", time.UTC), at)
	return &doc
}

func newTestController(t *testing.T, src store.Source) *Controller {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	sqlStore := &SQLStore{DB: database}
	c := NewController(Options{Source: src, Settings: sqlStore, Feed: sqlStore, CheckInterval: 30 * time.Minute})
	c.now = func() time.Time { return t0.Add(time.Hour) }
	return c
}

func TestSettings_DefaultsAndRoundTrip(t *testing.T) {
	c := newTestController(t, &fakeSource{err: errors.NewNotFound("x")})
	ctx := context.Background()

	s, err := c.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
	assert.True(t, s.BrowserNotifications)
	assert.True(t, s.SoundAlerts)

	require.NoError(t, c.SaveSettings(ctx, Settings{BrowserNotifications: false, SoundAlerts: true}))
	s, err = c.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, s.BrowserNotifications)
	assert.True(t, s.SoundAlerts)
}

func TestRefresh_RaisesOnceForSameSnapshot(t *testing.T) {
	src := &fakeSource{doc: docWith(42, 40, t0)}
	c := newTestController(t, src)
	ctx := context.Background()

	view, n := c.Refresh(ctx)
	require.True(t, view.Ready())
	require.NotNil(t, n)
	assert.Equal(t, string(status.BecameAvailable), n.Kind)
	assert.Equal(t, 2, n.Available)
	assert.Equal(t, t0.Add(30*time.Minute), view.NextCheck)

	_, again := c.Refresh(ctx)
	assert.Nil(t, again, "same current snapshot must not notify twice")

	src.set(docWith(40, 39, t0.Add(30*time.Minute)), nil)
	_, next := c.Refresh(ctx)
	require.NotNil(t, next)
	assert.Equal(t, string(status.AvailabilityIncreased), next.Kind)

	feed, err := c.Notifications(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, n.ID, feed[0].ID)

	after, err := c.Notifications(ctx, n.ID, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, next.ID, after[0].ID)
}

func TestRefresh_NoChange(t *testing.T) {
	c := newTestController(t, &fakeSource{doc: docWith(40, 41, t0)})

	view, n := c.Refresh(context.Background())
	assert.True(t, view.Ready())
	assert.Nil(t, n)
}

func TestRefresh_FetchErrorReplacesView(t *testing.T) {
	src := &fakeSource{doc: docWith(40, 41, t0)}
	c := newTestController(t, src)

	view, _ := c.Refresh(context.Background())
	require.True(t, view.Ready())

	src.set(nil, errors.NewNotFound("fake"))
	view, n := c.Refresh(context.Background())
	assert.Nil(t, n)
	assert.False(t, view.Ready())
	assert.True(t, errors.Is(view.Err, errors.ErrNotFound))
	assert.Equal(t, view, c.View())
}

func TestRefresh_CurrentErrorRaisesNothing(t *testing.T) {
	prev := status.NewReading(t0.Add(-30*time.Minute), 42, 42, "", time.UTC)
	old := &status.Document{Current: prev, History: []status.Snapshot{}, LastUpdate: prev.Timestamp}
	doc, _ := status.Advance(old, status.NewFailure(t0, "timeout", "", time.UTC), t0)
	c := newTestController(t, &fakeSource{doc: &doc})
	ctx := context.Background()

	view, n := c.Refresh(ctx)
	require.True(t, view.Ready(), "an error snapshot is still a readable document")
	assert.True(t, view.Doc.Current.Failed())
	assert.Nil(t, n)

	feed, err := c.Notifications(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestRefresh_FirstRunDocumentRaisesNothing(t *testing.T) {
	doc, _ := status.Advance(nil, status.NewReading(t0, 30, 42, "", time.UTC), t0)
	require.Nil(t, doc.Previous)
	c := newTestController(t, &fakeSource{doc: &doc})
	ctx := context.Background()

	view, n := c.Refresh(ctx)
	require.True(t, view.Ready())
	assert.Nil(t, n)

	feed, err := c.Notifications(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestRefresh_PrunesOldFeedEntries(t *testing.T) {
	c := newTestController(t, &fakeSource{doc: docWith(40, 41, t0)})
	ctx := context.Background()

	old, err := c.TestNotification(ctx)
	require.NoError(t, err)

	c.now = func() time.Time { return t0.Add(time.Hour + DefaultFeedRetention - time.Minute) }
	c.Refresh(ctx)
	feed, err := c.Notifications(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, feed, 1, "entries inside the retention window are kept")
	assert.Equal(t, old.ID, feed[0].ID)

	c.now = func() time.Time { return t0.Add(time.Hour + DefaultFeedRetention + time.Minute) }
	c.Refresh(ctx)
	feed, err = c.Notifications(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestNewController_InitialViewIsError(t *testing.T) {
	c := newTestController(t, &fakeSource{})
	assert.False(t, c.View().Ready())
	assert.Error(t, c.View().Err)
}

func TestTestNotification(t *testing.T) {
	c := newTestController(t, &fakeSource{doc: docWith(40, 41, t0)})
	ctx := context.Background()

	n, err := c.TestNotification(ctx)
	require.NoError(t, err)
	assert.True(t, n.Test)

	feed, err := c.Notifications(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.True(t, feed[0].Test)
}

type countingRefresher struct {
	n atomic.Int32
}

func (c *countingRefresher) Refresh(context.Context) (View, *Notification) {
	c.n.Add(1)
	return View{}, nil
}

func TestScheduler_TickerAndStop(t *testing.T) {
	r := &countingRefresher{}
	s := NewScheduler(r, 10*time.Millisecond, "", nil)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return r.n.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	stopped := r.n.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, r.n.Load(), "no refreshes after Stop")
}

func TestScheduler_FileWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")

	r := &countingRefresher{}
	s := NewScheduler(r, time.Hour, path, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Equal(t, int32(1), r.n.Load(), "Start performs an initial refresh")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	require.Eventually(t, func() bool { return r.n.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_FileWatchRenameOver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	fs := store.NewFileStore(path)
	require.NoError(t, fs.Save(context.Background(), *docWith(42, 42, t0)))

	r := &countingRefresher{}
	s := NewScheduler(r, time.Hour, path, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// Save writes a temp file and renames it over the target.
	require.NoError(t, fs.Save(context.Background(), *docWith(42, 40, t0.Add(30*time.Minute))))

	require.Eventually(t, func() bool { return r.n.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopIdempotent(t *testing.T) {
	s := NewScheduler(&countingRefresher{}, time.Hour, "", nil)
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}
