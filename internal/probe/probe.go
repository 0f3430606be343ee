package probe

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hpungsan/seatwatch/internal/errors"

	"github.com/hpungsan/seatwatch/internal/status"
)

// maxPageBytes bounds how much of the event page is read.
const maxPageBytes = 4 << 20

// Observer reports current capacity. Observe never fails: every problem is
// recorded in the returned snapshot's Error field.
type Observer interface {
	Observe(ctx context.Context) status.Snapshot
}

// Config is the minimal runtime config the probe needs.
type Config struct {
	EventURL  string
	Pattern   *regexp.Regexp
	UserAgent string
	Location  *time.Location
	Timeout   time.Duration
}

// HTTPObserver scrapes participant counts from the event page.
type HTTPObserver struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

// New creates an observer with immutable config. client may be nil.
func New(cfg Config, client *http.Client) (*HTTPObserver, error) {
	if cfg.EventURL == "" {
		return nil, stderrors.New("probe: event url required")
	}
	if cfg.Pattern == nil {
		return nil, stderrors.New("probe: pattern required")
	}
	if cfg.Pattern.NumSubexp() < 2 {
		return nil, stderrors.New("probe: pattern needs participants and capacity groups")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPObserver{cfg: cfg, client: client, now: time.Now}, nil
}

// Observe performs exactly one fetch-and-extract cycle.
func (o *HTTPObserver) Observe(ctx context.Context) status.Snapshot {
	at := o.now()

	participants, capacity, err := o.Counts(ctx)
	if err != nil {
		var wErr *errors.WatchError
		if stderrors.As(err, &wErr) {
			return status.NewFailure(at, wErr.Message, o.cfg.EventURL, o.cfg.Location)
		}
		return status.NewFailure(at, err.Error(), o.cfg.EventURL, o.cfg.Location)
	}
	return status.NewReading(at, participants, capacity, o.cfg.EventURL, o.cfg.Location)
}

// Counts fetches the page and extracts participants and capacity. Every
// failure is an ACQUISITION_FAILED error.
func (o *HTTPObserver) Counts(ctx context.Context) (int, int, error) {
	participants, capacity, err := o.fetchCounts(ctx)
	if err != nil {
		return 0, 0, errors.NewAcquisitionFailed(err)
	}
	return participants, capacity, nil
}

func (o *HTTPObserver) fetchCounts(ctx context.Context) (int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.EventURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build request: %w", err)
	}
	if o.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", o.cfg.UserAgent)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, 0, fmt.Errorf("event page returned %s", resp.Status)
	}

	text, err := BodyText(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("parse event page: %w", err)
	}
	return Extract(o.cfg.Pattern, text)
}

// Extract finds participants and capacity in text using the first two
// capture groups of pattern.
func Extract(pattern *regexp.Regexp, text string) (int, int, error) {
	m := pattern.FindStringSubmatch(text)
	if m == nil || len(m) < 3 {
		return 0, 0, stderrors.New("参加者情報を取得できませんでした")
	}
	participants, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("participants %q: %w", m[1], err)
	}
	capacity, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, fmt.Errorf("capacity %q: %w", m[2], err)
	}
	return participants, capacity, nil
}

// BodyText returns the concatenated text nodes of the document body,
// skipping script and style content.
func BodyText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	root := findElement(doc, "body")
	if root == nil {
		root = doc
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return sb.String(), nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
