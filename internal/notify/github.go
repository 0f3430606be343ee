package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/hpungsan/seatwatch/internal/status"
)

// GitHubConfig configures issue creation.
type GitHubConfig struct {
	APIURL    string
	Owner     string
	Repo      string
	Token     string
	Labels    []string
	EventName string
}

// GitHub opens one issue per change through the REST API.
type GitHub struct {
	cfg    GitHubConfig
	client *github.Client
}

// NewGitHub returns an issue notifier, or nil when no token is configured.
// A non-default APIURL (GitHub Enterprise, tests) replaces the client's BaseURL.
func NewGitHub(cfg GitHubConfig, httpClient *http.Client) (*GitHub, error) {
	if cfg.Token == "" {
		return nil, nil
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github notifier: owner and repo required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	client := github.NewClient(httpClient).WithAuthToken(cfg.Token)
	if cfg.APIURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github notifier: api_url: %w", err)
		}
		client.BaseURL = base
	}
	return &GitHub{cfg: cfg, client: client}, nil
}

// Notify creates the issue.
func (g *GitHub) Notify(ctx context.Context, event status.ChangeEvent, snap status.Snapshot) error {
	ticket := Issue(event, snap, g.cfg.EventName)
	req := &github.IssueRequest{
		Title: github.Ptr(ticket.Title),
		Body:  github.Ptr(ticket.Body),
	}
	if len(g.cfg.Labels) > 0 {
		req.Labels = &g.cfg.Labels
	}

	_, _, err := g.client.Issues.Create(ctx, g.cfg.Owner, g.cfg.Repo, req)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}
