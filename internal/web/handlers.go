package web

import (
	"net/http"
	"strconv"

	"github.com/hpungsan/seatwatch/internal/config"
	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/notify"
	"github.com/hpungsan/seatwatch/internal/ops"
	"github.com/hpungsan/seatwatch/internal/status"
	"github.com/hpungsan/seatwatch/internal/viewer"
)

// Handlers contains HTTP route handlers for the viewer.
type Handlers struct {
	ctrl     *viewer.Controller
	cfg      *config.Config
	renderer *Renderer
}

// HandleStatus handles GET /.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	settings, err := h.ctrl.Settings(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	v := h.ctrl.View()
	data := StatusPageData{
		PageData: PageData{
			Title:    "Status",
			Version:  h.renderer.version,
			Nav:      "status",
			Settings: settings,
		},
		Ready:     v.Ready(),
		FetchedAt: v.FetchedAt,
		NextCheck: v.NextCheck,
		EventURL:  h.cfg.EventURL,
		EventName: h.cfg.EventName,
		Source:    h.cfg.ViewerSource(),
	}

	switch {
	case !v.Ready():
		data.Banner = BannerError
		data.ErrorMessage = errorMessage(v.Err)
	default:
		doc := v.Doc
		data.Current = doc.Current
		data.LastUpdate = doc.LastUpdate
		data.History = ops.Recent(doc.History, h.cfg.Viewer.HistoryRows)
		if doc.Current.EventURL != "" {
			data.EventURL = doc.Current.EventURL
		}
		switch {
		case doc.Current.Failed():
			data.Banner = BannerError
			data.ErrorMessage = doc.Current.Error
		case doc.Current.Full():
			data.Banner = BannerFull
		default:
			data.Banner = BannerAvailable
		}
		if change := status.DetectChange(doc.Previous, doc.Current); change != nil {
			ticket := notify.Issue(*change, doc.Current, h.cfg.EventName)
			data.Change = change
			data.TicketTitle = ticket.Title
			data.TicketHTML = renderMarkdown(ticket.Body)
		}
	}

	h.renderer.renderPage(w, "status", data)
}

// HandleRefresh handles POST /refresh by fetching now.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	v, n := h.ctrl.Refresh(r.Context())
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"ready":        v.Ready(),
			"error":        errorMessage(v.Err),
			"notification": n,
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleSettings handles GET /settings.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.ctrl.Settings(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderer.renderPage(w, "settings", SettingsPageData{
		PageData: PageData{
			Title:    "Settings",
			Version:  h.renderer.version,
			Nav:      "settings",
			Settings: settings,
		},
		Saved: r.URL.Query().Get("saved") == "1",
	})
}

// HandleSaveSettings handles POST /settings. Unchecked boxes are absent
// from the form, so absence means false.
func (h *Handlers) HandleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form"))
		return
	}
	settings := viewer.Settings{
		BrowserNotifications: parseBoolForm(r, "browser_notifications"),
		SoundAlerts:          parseBoolForm(r, "sound_alerts"),
	}
	if err := h.ctrl.SaveSettings(r.Context(), settings); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, settings)
		return
	}
	http.Redirect(w, r, "/settings?saved=1", http.StatusSeeOther)
}

// HandleTestNotification handles POST /notifications/test.
func (h *Handlers) HandleTestNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.ctrl.TestNotification(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, n)
		return
	}
	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

// HandleNotifications handles GET /api/notifications?after=<id>&limit=<n>.
// The page polls this and raises browser alerts per the settings returned.
func (h *Handlers) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20)
	if limit < 1 || limit > 100 {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("limit must be between 1 and 100"))
		return
	}

	items, err := h.ctrl.Notifications(r.Context(), r.URL.Query().Get("after"), limit)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	settings, err := h.ctrl.Settings(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"items":    items,
		"settings": settings,
	})
}

// HandleAPIStatus handles GET /api/status, the current view as JSON.
func (h *Handlers) HandleAPIStatus(w http.ResponseWriter, r *http.Request) {
	v := h.ctrl.View()
	if !v.Ready() {
		h.renderer.renderError(w, r, v.Err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"document":  v.Doc,
		"fetchedAt": v.FetchedAt,
		"nextCheck": v.NextCheck,
	})
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, errors.ErrNotFound) {
		return "ステータスデータがまだありません"
	}
	return err.Error()
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolForm reports whether a checkbox field was submitted as set.
func parseBoolForm(r *http.Request, name string) bool {
	switch r.PostFormValue(name) {
	case "on", "true", "1":
		return true
	}
	return false
}
