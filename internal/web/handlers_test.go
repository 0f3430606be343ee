package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/seatwatch/internal/config"
	"github.com/hpungsan/seatwatch/internal/db"
	"github.com/hpungsan/seatwatch/internal/status"
	"github.com/hpungsan/seatwatch/internal/store"
	"github.com/hpungsan/seatwatch/internal/viewer"
)

var t0 = time.Date(2025, 7, 10, 3, 0, 0, 0, time.UTC)

type testEnv struct {
	h       *Handlers
	handler http.Handler
	docPath string
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(filepath.Join(tmpDir, "state"))
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.DocumentPath = filepath.Join(tmpDir, "status.json")
	cfg.EventName = "MEGAMIX Release Party"

	sqlStore := &viewer.SQLStore{DB: database}
	ctrl := viewer.NewController(viewer.Options{
		Source:   store.NewSource(cfg.ViewerSource(), nil),
		Settings: sqlStore,
		Feed:     sqlStore,
	})

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		t.Fatalf("static sub-FS: %v", err)
	}

	h := &Handlers{
		ctrl:     ctrl,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, "test", time.UTC, nil),
	}
	return &testEnv{h: h, handler: routes(h, staticSub), docPath: cfg.DocumentPath}
}

// seedDocument writes a document advanced through the given participant
// counts (capacity 42) and refreshes the controller. -1 records an error.
func (e *testEnv) seedDocument(t *testing.T, readings ...int) {
	t.Helper()
	var doc *status.Document
	at := t0
	for _, p := range readings {
		snap := status.NewReading(at, p, 42, "https://twipla.jp/events/682940", time.UTC)
		if p < 0 {
			snap = status.NewFailure(at, "参加者情報を取得できませんでした", "", time.UTC)
		}
		next, _ := status.Advance(doc, snap, at)
		doc = &next
		at = at.Add(30 * time.Minute)
	}
	if err := store.NewFileStore(e.docPath).Save(context.Background(), *doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	e.h.ctrl.Refresh(context.Background())
}

func (e *testEnv) do(method, target string, body url.Values, accept string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// --- HandleStatus ---

func TestHandleStatus_NoDocument(t *testing.T) {
	env := setupTest(t)

	w := env.do("GET", "/", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "banner-error") {
		t.Error("expected error banner when no document exists")
	}
	if !strings.Contains(body, "ステータスデータがまだありません") {
		t.Error("expected missing-document message")
	}
}

func TestHandleStatus_Available(t *testing.T) {
	env := setupTest(t)
	env.seedDocument(t, 42, 40)

	w := env.do("GET", "/", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"banner-available",
		"2025/7/10 03:30:00",
		"定員に空きが出ました",
		"<li>参加者: 40/42人</li>",
		"MEGAMIX Release Party",
		"2025/7/10 04:00", // next check
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestHandleStatus_FullAndHistoryOrder(t *testing.T) {
	env := setupTest(t)
	env.seedDocument(t, 30, 35, -1, 41, 42)

	body := env.do("GET", "/", nil, "").Body.String()
	if !strings.Contains(body, "banner-full") {
		t.Error("expected full banner")
	}
	if strings.Contains(body, "class=\"ticket\"") {
		t.Error("no change preview expected when seats decrease")
	}

	// Newest history entry (41 participants at 04:30) precedes the oldest (30 at 03:00).
	newest := strings.Index(body, "2025/7/10 04:30:00")
	oldest := strings.Index(body, "2025/7/10 03:00:00")
	if newest < 0 || oldest < 0 || newest > oldest {
		t.Errorf("history not newest-first (newest at %d, oldest at %d)", newest, oldest)
	}
}

func TestHandleStatus_CurrentError(t *testing.T) {
	env := setupTest(t)
	env.seedDocument(t, 40, -1)

	body := env.do("GET", "/", nil, "").Body.String()
	if !strings.Contains(body, "banner-error") || !strings.Contains(body, "参加者情報を取得できませんでした") {
		t.Error("expected current error surfaced in banner")
	}
}

// --- HandleRefresh ---

func TestHandleRefresh_RedirectAndJSON(t *testing.T) {
	env := setupTest(t)

	w := env.do("POST", "/refresh", nil, "")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}

	env.seedDocument(t, 42)
	// Write a change after the seed so Refresh sees a new pair.
	doc, err := store.NewFileStore(env.docPath).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	next, _ := status.Advance(doc, status.NewReading(t0.Add(time.Hour), 41, 42, "", time.UTC), t0.Add(time.Hour))
	if err := store.NewFileStore(env.docPath).Save(context.Background(), next); err != nil {
		t.Fatalf("save: %v", err)
	}

	w = env.do("POST", "/refresh", nil, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Ready        bool                  `json:"ready"`
		Notification *viewer.Notification `json:"notification"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready || resp.Notification == nil {
		t.Fatalf("resp = %+v, want ready with notification", resp)
	}
	if resp.Notification.Kind != string(status.BecameAvailable) {
		t.Errorf("kind = %s, want BecameAvailable", resp.Notification.Kind)
	}

	// Same document again: de-duplicated.
	w = env.do("POST", "/refresh", nil, "application/json")
	resp.Notification = nil
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Notification != nil {
		t.Error("repeat refresh must not notify again")
	}
}

// --- Settings ---

func TestHandleSettings_DefaultsAndSave(t *testing.T) {
	env := setupTest(t)

	body := env.do("GET", "/settings", nil, "").Body.String()
	if strings.Count(body, "checked") != 2 {
		t.Errorf("expected both settings checked by default")
	}

	w := env.do("POST", "/settings", url.Values{"sound_alerts": {"on"}}, "")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/settings?saved=1" {
		t.Errorf("Location = %q", loc)
	}

	s, err := env.h.ctrl.Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if s.BrowserNotifications || !s.SoundAlerts {
		t.Errorf("settings = %+v, want browser off, sound on", s)
	}

	body = env.do("GET", "/settings?saved=1", nil, "").Body.String()
	if !strings.Contains(body, "保存しました") {
		t.Error("expected saved notice")
	}
	if !strings.Contains(body, `data-browser-notifications="false"`) {
		t.Error("layout should expose settings to the page script")
	}
}

// --- Notifications ---

func TestHandleTestNotification_AppearsInFeed(t *testing.T) {
	env := setupTest(t)

	w := env.do("POST", "/notifications/test", nil, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var n viewer.Notification
	if err := json.NewDecoder(w.Body).Decode(&n); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !n.Test || n.ID == "" {
		t.Errorf("notification = %+v", n)
	}

	w = env.do("GET", "/api/notifications", nil, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var feed struct {
		Items    []viewer.Notification `json:"items"`
		Settings viewer.Settings       `json:"settings"`
	}
	if err := json.NewDecoder(w.Body).Decode(&feed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].ID != n.ID {
		t.Errorf("feed = %+v", feed.Items)
	}
	if !feed.Settings.BrowserNotifications {
		t.Error("default settings expected in feed response")
	}

	w = env.do("GET", "/api/notifications?after="+n.ID, nil, "application/json")
	feed.Items = nil
	_ = json.NewDecoder(w.Body).Decode(&feed)
	if len(feed.Items) != 0 {
		t.Errorf("cursor after last id should be empty, got %d", len(feed.Items))
	}
}

func TestHandleNotifications_BadLimit(t *testing.T) {
	env := setupTest(t)

	w := env.do("GET", "/api/notifications?limit=1000", nil, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp map[string]map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"]["code"] != "INVALID_REQUEST" {
		t.Errorf("code = %v", resp["error"]["code"])
	}
}

// --- API status ---

func TestHandleAPIStatus(t *testing.T) {
	env := setupTest(t)

	w := env.do("GET", "/api/status", nil, "application/json")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before any document", w.Code)
	}

	env.seedDocument(t, 40)
	w = env.do("GET", "/api/status", nil, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Document status.Document `json:"document"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Document.Current.Available() != 2 {
		t.Errorf("available = %d, want 2", resp.Document.Current.Available())
	}
}

func TestErrorPage_HTML(t *testing.T) {
	env := setupTest(t)

	w := env.do("GET", "/api/status", nil, "text/html")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "error-page") {
		t.Error("expected HTML error page")
	}
}

// --- Static and headers ---

func TestStaticAndSecurityHeaders(t *testing.T) {
	env := setupTest(t)

	w := env.do("GET", "/static/app.js", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
	if !strings.Contains(w.Header().Get("Content-Security-Policy"), "default-src 'self'") {
		t.Error("missing CSP")
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := string(renderMarkdown("## 現在の状況\n- 空き: 2人\n"))
	if !strings.Contains(got, "<h2>現在の状況</h2>") || !strings.Contains(got, "<li>空き: 2人</li>") {
		t.Errorf("renderMarkdown = %q", got)
	}
}

func TestFormatTime(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	if got := formatTime(t0, tokyo); got != "2025/7/10 12:00" {
		t.Errorf("formatTime = %q", got)
	}
	if got := formatTime(time.Time{}, tokyo); got != "-" {
		t.Errorf("formatTime(zero) = %q", got)
	}
}
