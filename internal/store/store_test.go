package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/status"
)

var t0 = time.Date(2025, 7, 10, 3, 0, 0, 0, time.UTC)

func sampleDoc() status.Document {
	prev := status.NewReading(t0, 42, 42, "https://example.test/e", time.UTC)
	doc, _ := status.Advance(&status.Document{Current: prev, History: []status.Snapshot{}, LastUpdate: t0},
		status.NewReading(t0.Add(30*time.Minute), 40, 42, "https://example.test/e", time.UTC),
		t0.Add(30*time.Minute))
	return doc
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "status.json"))

	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs", "data", "status.json")
	s := NewFileStore(path)
	want := sampleDoc()

	require.NoError(t, s.Save(context.Background(), want))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"current\": {"), "expected 2-space indented JSON, got %q", string(data[:20]))
}

func TestFileStore_SaveOverwritesWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(context.Background(), sampleDoc()))

	first, _ := status.Advance(nil, status.NewFailure(t0, "timeout", "", time.UTC), t0)
	require.NoError(t, s.Save(context.Background(), first))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "timeout", got.Current.Error)
	assert.Nil(t, got.Previous)
	assert.Empty(t, got.History)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_SaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), sampleDoc()))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	bad := sampleDoc()
	bad.History = append(bad.History, status.NewFailure(t0, "boom", "", time.UTC))

	err = s.Save(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPersistenceFailed))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "prior document must remain authoritative")
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"current": `), 0644))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPersistenceFailed))
}

const legacyDocument = `{
  "current": {"timestamp": "2025-07-10T03:30:00.000Z", "eventUrl": "https://example.test/e",
    "currentParticipants": 40, "maxCapacity": 42, "availableSlots": 2, "isFull": false,
    "lastChecked": "2025/7/10 12:30:00"},
  "previous": {
    "current": {"timestamp": "2025-07-10T03:00:00.000Z", "currentParticipants": 42, "maxCapacity": 42,
      "availableSlots": 0, "isFull": true, "lastChecked": "2025/7/10 12:00:00"},
    "history": [],
    "lastUpdate": "2025-07-10T03:00:00.000Z"
  },
  "history": [
    {"timestamp": "2025-07-10T02:00:00.000Z", "currentParticipants": 42, "maxCapacity": 42,
      "availableSlots": 0, "isFull": true, "lastChecked": "2025/7/10 11:00:00"},
    {"timestamp": "2025-07-10T02:30:00.000Z", "error": "fetch failed", "lastChecked": "2025/7/10 11:30:00"}
  ],
  "lastUpdate": "2025-07-10T03:30:00.000Z"
}`

func TestDecode_RepairsLegacyDocument(t *testing.T) {
	doc, err := Decode([]byte(legacyDocument))
	require.NoError(t, err)

	assert.Nil(t, doc.Previous, "a whole prior document is not a snapshot")
	require.Len(t, doc.History, 1, "error entries are dropped from history")
	assert.Equal(t, 42, doc.History[0].Participants())
	assert.Equal(t, 2, doc.Current.Available())
}

func TestFileStore_LoadLegacyThenSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte(legacyDocument), 0644))
	s := NewFileStore(path)

	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), *doc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "previous")
	assert.NotContains(t, string(data), "fetch failed")
}

func TestDecode_TrimsOversizedHistory(t *testing.T) {
	doc := sampleDoc()
	base := doc.History[0]
	doc.History = nil
	for i := range status.HistoryLimit + 5 {
		h := base
		h.Timestamp = t0.Add(time.Duration(i) * time.Minute)
		doc.History = append(doc.History, h)
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, got.History, status.HistoryLimit)
	assert.True(t, got.History[0].Timestamp.Equal(t0.Add(5*time.Minute)), "oldest entries are trimmed")
}

func TestDecode_InvalidCurrentStillFails(t *testing.T) {
	_, err := Decode([]byte(`{"current": {"timestamp": "2025-07-10T03:30:00Z", "currentParticipants": 5}, "history": []}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidDocument))
}

func TestFileStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewFileStore(filepath.Join(t.TempDir(), "status.json"))
	assert.Error(t, s.Save(ctx, sampleDoc()))
	_, err := s.Load(ctx)
	assert.Error(t, err)
}

func TestEncode_NilHistoryBecomesArray(t *testing.T) {
	doc := sampleDoc()
	doc.History = nil

	data, err := Encode(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"history": []`)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	src := NewSource(path, nil)
	require.IsType(t, &FileSource{}, src)
	assert.Equal(t, path, src.Location())

	_, err := src.Fetch(context.Background())
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, NewFileStore(path).Save(context.Background(), sampleDoc()))
	doc, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Current.Available())
}

func TestHTTPSource(t *testing.T) {
	data, err := Encode(sampleDoc())
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/status.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(data)
		case "/broken.json":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewSource(srv.URL+"/data/status.json", srv.Client())
	require.IsType(t, &HTTPSource{}, src)

	doc, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleDoc(), *doc)

	_, err = NewSource(srv.URL+"/missing.json", srv.Client()).Fetch(context.Background())
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = NewSource(srv.URL+"/broken.json", srv.Client()).Fetch(context.Background())
	assert.Error(t, err)
}
