package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/seatwatch/internal/errors"
	"github.com/hpungsan/seatwatch/internal/logging"
	"github.com/hpungsan/seatwatch/internal/status"
	"github.com/hpungsan/seatwatch/internal/viewer"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title    string
	Version  string
	Nav      string // active nav item: "status", "settings"
	Settings viewer.Settings
}

// Banner is the headline state of the status page.
type Banner string

const (
	BannerError     Banner = "error"
	BannerFull      Banner = "full"
	BannerAvailable Banner = "available"
)

// StatusPageData is the template data for the status page.
type StatusPageData struct {
	PageData
	Ready        bool
	Banner       Banner
	ErrorMessage string
	Current      status.Snapshot
	History      []status.Snapshot
	LastUpdate   time.Time
	NextCheck    time.Time
	FetchedAt    time.Time
	EventURL     string
	EventName    string
	Source       string

	// Change preview, set when previous → current is a notifiable change.
	Change      *status.ChangeEvent
	TicketTitle string
	TicketHTML  template.HTML
}

// SettingsPageData is the template data for the settings page.
type SettingsPageData struct {
	PageData
	Saved bool
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	log       *logging.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
// Times are displayed in loc.
func NewRenderer(templateFS fs.FS, version string, loc *time.Location, log *logging.Logger) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logging.Nop()
	}
	funcMap := template.FuncMap{
		"formatTime": func(t time.Time) string { return formatTime(t, loc) },
		"deref":      derefInt,
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"status":   "status.html",
		"settings": "settings.html",
		"error":    "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		log:       log,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, name string, data any) {
	r.renderPageStatus(w, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, code int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.log.Error("template not found", "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.log.Error("template execution error", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var wErr *errors.WatchError
	if !stderrors.As(err, &wErr) {
		wErr = errors.NewInternal(err)
	}

	code := wErr.Status
	message := wErr.Message

	if wantsJSON(req) {
		renderJSON(w, code, map[string]any{
			"error": map[string]any{
				"code":    string(wErr.Code),
				"message": message,
				"status":  code,
			},
		})
		return
	}

	r.renderPageStatus(w, code, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", code),
			Version: r.version,
		},
		StatusCode: code,
		Message:    message,
	})
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats t as "2006/1/2 15:04" in loc. Zero times render as "-".
func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format("2006/1/2 15:04")
}

// derefInt dereferences an optional count, returning 0 if nil.
func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
