package notify

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/hpungsan/seatwatch/internal/config"
)

// FromConfig builds the fan-out for every configured channel. A channel that
// cannot be set up is left out and reported in the returned error; the Multi
// is always usable so the collector can still persist.
func FromConfig(cfg *config.Config, client *http.Client) (*Multi, error) {
	m := NewMulti()
	var errs []error

	gh, err := NewGitHub(GitHubConfig{
		APIURL:    cfg.GitHub.APIURL,
		Owner:     cfg.GitHub.Owner,
		Repo:      cfg.GitHub.Repo,
		Token:     cfg.GitHub.Token(),
		Labels:    cfg.GitHub.Labels,
		EventName: cfg.EventName,
	}, client)
	switch {
	case err != nil:
		errs = append(errs, err)
	case gh != nil:
		m.Add("github", gh)
	}

	if cfg.NATS.URL != "" {
		n, err := NewNATS(cfg.NATS.URL, cfg.NATS.Subject, cfg.EventName)
		if err != nil {
			errs = append(errs, fmt.Errorf("nats notifier: %w", err))
		} else {
			m.Add("nats", n)
		}
	}

	if cfg.Redis.URL != "" {
		r, err := NewRedis(cfg.Redis.URL, cfg.Redis.Stream, cfg.EventName)
		if err != nil {
			errs = append(errs, fmt.Errorf("redis notifier: %w", err))
		} else {
			m.Add("redis", r)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k, err := NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.EventName)
		if err != nil {
			errs = append(errs, fmt.Errorf("kafka notifier: %w", err))
		} else {
			m.Add("kafka", k)
		}
	}

	return m, stderrors.Join(errs...)
}
