package viewer

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/seatwatch/internal/db"
	"github.com/hpungsan/seatwatch/internal/errors"
)

const (
	settingsKey     = "viewer.settings"
	lastNotifiedKey = "viewer.last_notified"
)

// Settings are the viewer's local alert preferences.
type Settings struct {
	BrowserNotifications bool `json:"browserNotifications"`
	SoundAlerts          bool `json:"soundAlerts"`
}

// DefaultSettings enables both alert channels.
func DefaultSettings() Settings {
	return Settings{BrowserNotifications: true, SoundAlerts: true}
}

// SettingsStore is a string key/value store.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// LoadSettings reads settings from s, falling back to defaults when nothing
// has been saved or the stored value cannot be decoded.
func LoadSettings(ctx context.Context, s SettingsStore) (Settings, error) {
	raw, err := s.Get(ctx, settingsKey)
	if errors.Is(err, errors.ErrNotFound) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return DefaultSettings(), err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return DefaultSettings(), nil
	}
	return settings, nil
}

// SaveSettings writes settings to s.
func SaveSettings(ctx context.Context, s SettingsStore, settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return errors.NewInternal(err)
	}
	return s.Set(ctx, settingsKey, string(data))
}

// SQLStore backs settings and the notification feed with the viewer database.
type SQLStore struct {
	DB *sql.DB
}

// Get implements SettingsStore.
func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	return db.GetSetting(ctx, s.DB, key)
}

// Set implements SettingsStore.
func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	return db.SetSetting(ctx, s.DB, key, value)
}

// Record implements Feed.
func (s *SQLStore) Record(ctx context.Context, n Notification) error {
	return db.InsertNotification(ctx, s.DB, &db.Notification{
		ID:         n.ID,
		Kind:       n.Kind,
		Title:      n.Title,
		Message:    n.Message,
		Available:  n.Available,
		SnapshotAt: n.SnapshotAt.Unix(),
		Test:       n.Test,
		CreatedAt:  n.CreatedAt.Unix(),
	})
}

// Prune implements Feed.
func (s *SQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	return db.PurgeNotifications(ctx, s.DB, before.Unix())
}

// After implements Feed.
func (s *SQLStore) After(ctx context.Context, afterID string, limit int) ([]Notification, error) {
	rows, err := db.ListNotificationsAfter(ctx, s.DB, afterID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Notification, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}
