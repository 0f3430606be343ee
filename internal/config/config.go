package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultPattern matches the participant line on the event page,
// e.g. "参加者 (42人／定員42人)". Group 1 is participants, group 2 capacity.
const DefaultPattern = `参加者\s*\((\d+)人／定員(\d+)人\)`

// DefaultUserAgent is sent by the probe; some event pages reject bare clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Config holds application configuration.
type Config struct {
	// EventURL is the page polled for participant counts.
	EventURL string `json:"event_url"`

	// EventName is shown in notification bodies.
	EventName string `json:"event_name,omitempty"`

	// DocumentPath is the status document written by check, relative to the working directory.
	DocumentPath string `json:"document_path,omitempty"`

	// Pattern is a regexp with two capture groups: participants, capacity.
	Pattern string `json:"pattern,omitempty"`

	UserAgent string `json:"user_agent,omitempty"`

	// Timezone is the IANA zone used for lastChecked display strings.
	Timezone string `json:"timezone,omitempty"`

	HTTPTimeoutSeconds int `json:"http_timeout_seconds,omitempty"`

	GitHub GitHubConfig `json:"github"`
	NATS   NATSConfig   `json:"nats"`
	Redis  RedisConfig  `json:"redis"`
	Kafka  KafkaConfig  `json:"kafka"`
	Viewer ViewerConfig `json:"viewer"`
	Log    LogConfig    `json:"log"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// GitHubConfig configures the issue notifier. The token is read from the
// environment variable TokenEnv; an empty token disables the notifier.
type GitHubConfig struct {
	Owner    string   `json:"owner,omitempty"`
	Repo     string   `json:"repo,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	TokenEnv string   `json:"token_env,omitempty"`
	APIURL   string   `json:"api_url,omitempty"`
}

// Token returns the GitHub token from the environment.
func (g GitHubConfig) Token() string {
	if g.TokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(g.TokenEnv))
}

// NATSConfig configures the NATS notifier. Empty URL disables it.
type NATSConfig struct {
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// RedisConfig configures the Redis Streams notifier. Empty URL disables it.
type RedisConfig struct {
	URL    string `json:"url,omitempty"`
	Stream string `json:"stream,omitempty"`
}

// KafkaConfig configures the Kafka notifier. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `json:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty"`
}

// ViewerConfig configures the serve command.
type ViewerConfig struct {
	// Source is a file path or http(s) URL of the status document.
	// Empty means DocumentPath.
	Source string `json:"source,omitempty"`

	RefreshMinutes int `json:"refresh_minutes,omitempty"`

	// CheckIntervalMinutes is the external check schedule, used for the
	// "next check" hint only.
	CheckIntervalMinutes int `json:"check_interval_minutes,omitempty"`

	Bind        string `json:"bind,omitempty"`
	Port        int    `json:"port,omitempty"`
	HistoryRows int    `json:"history_rows,omitempty"`

	// FeedRetentionDays bounds how long local notifications are kept.
	FeedRetentionDays int `json:"feed_retention_days,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"` // json | console
	Output string `json:"output,omitempty"` // stderr | stdout | file path
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		EventURL:           "https://twipla.jp/events/682940",
		DocumentPath:       filepath.Join("docs", "data", "status.json"),
		Pattern:            DefaultPattern,
		UserAgent:          DefaultUserAgent,
		Timezone:           "Asia/Tokyo",
		HTTPTimeoutSeconds: 30,
		GitHub: GitHubConfig{
			Labels:   []string{"notification", "capacity-change"},
			TokenEnv: "GITHUB_TOKEN",
			APIURL:   "https://api.github.com",
		},
		NATS:  NATSConfig{Subject: "seatwatch.changes"},
		Redis: RedisConfig{Stream: "seatwatch:changes"},
		Kafka: KafkaConfig{Topic: "seatwatch-changes"},
		Viewer: ViewerConfig{
			RefreshMinutes:       5,
			CheckIntervalMinutes: 30,
			Bind:                 "127.0.0.1",
			Port:                 8080,
			HistoryRows:          10,
			FeedRetentionDays:    7,
		},
		Log: LogConfig{Level: "info", Format: "console", Output: "stderr"},
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.seatwatch) and repo (.seatwatch) directories.
// Repo config is found by walking upward from startDir to find the nearest .seatwatch/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .seatwatch/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".seatwatch", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		EventURL:           pick(overlay.EventURL, base.EventURL),
		EventName:          pick(overlay.EventName, base.EventName),
		DocumentPath:       pick(overlay.DocumentPath, base.DocumentPath),
		Pattern:            pick(overlay.Pattern, base.Pattern),
		UserAgent:          pick(overlay.UserAgent, base.UserAgent),
		Timezone:           pick(overlay.Timezone, base.Timezone),
		HTTPTimeoutSeconds: pick(overlay.HTTPTimeoutSeconds, base.HTTPTimeoutSeconds),
	}

	result.GitHub = GitHubConfig{
		Owner:    pick(overlay.GitHub.Owner, base.GitHub.Owner),
		Repo:     pick(overlay.GitHub.Repo, base.GitHub.Repo),
		Labels:   mergeStringSlice(base.GitHub.Labels, overlay.GitHub.Labels),
		TokenEnv: pick(overlay.GitHub.TokenEnv, base.GitHub.TokenEnv),
		APIURL:   pick(overlay.GitHub.APIURL, base.GitHub.APIURL),
	}
	result.NATS = NATSConfig{
		URL:     pick(overlay.NATS.URL, base.NATS.URL),
		Subject: pick(overlay.NATS.Subject, base.NATS.Subject),
	}
	result.Redis = RedisConfig{
		URL:    pick(overlay.Redis.URL, base.Redis.URL),
		Stream: pick(overlay.Redis.Stream, base.Redis.Stream),
	}
	result.Kafka = KafkaConfig{
		Brokers: mergeStringSlice(base.Kafka.Brokers, overlay.Kafka.Brokers),
		Topic:   pick(overlay.Kafka.Topic, base.Kafka.Topic),
	}
	result.Viewer = ViewerConfig{
		Source:               pick(overlay.Viewer.Source, base.Viewer.Source),
		RefreshMinutes:       pick(overlay.Viewer.RefreshMinutes, base.Viewer.RefreshMinutes),
		CheckIntervalMinutes: pick(overlay.Viewer.CheckIntervalMinutes, base.Viewer.CheckIntervalMinutes),
		Bind:                 pick(overlay.Viewer.Bind, base.Viewer.Bind),
		Port:                 pick(overlay.Viewer.Port, base.Viewer.Port),
		HistoryRows:          pick(overlay.Viewer.HistoryRows, base.Viewer.HistoryRows),
		FeedRetentionDays:    pick(overlay.Viewer.FeedRetentionDays, base.Viewer.FeedRetentionDays),
	}
	result.Log = LogConfig{
		Level:  pick(overlay.Log.Level, base.Log.Level),
		Format: pick(overlay.Log.Format, base.Log.Format),
		Output: pick(overlay.Log.Output, base.Log.Output),
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// Validate reports the first configuration problem that would make a run
// meaningless.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.EventURL) == "" {
		return errors.New("event_url is required")
	}
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	if re.NumSubexp() < 2 {
		return fmt.Errorf("pattern must have two capture groups (participants, capacity), has %d", re.NumSubexp())
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return errors.New("http_timeout_seconds must be > 0")
	}
	if c.Viewer.RefreshMinutes <= 0 {
		return errors.New("viewer.refresh_minutes must be > 0")
	}
	if c.Viewer.CheckIntervalMinutes <= 0 {
		return errors.New("viewer.check_interval_minutes must be > 0")
	}
	if c.Viewer.HistoryRows <= 0 {
		return errors.New("viewer.history_rows must be > 0")
	}
	if c.Viewer.FeedRetentionDays <= 0 {
		return errors.New("viewer.feed_retention_days must be > 0")
	}
	if c.Viewer.Port <= 0 || c.Viewer.Port > 65535 {
		return fmt.Errorf("viewer.port %d out of range", c.Viewer.Port)
	}
	return nil
}

// Location returns the display timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HTTPTimeout returns the probe timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// ViewerSource returns the document location the viewer reads.
func (c *Config) ViewerSource() string {
	if c.Viewer.Source != "" {
		return c.Viewer.Source
	}
	return c.DocumentPath
}

// pick returns overlay if non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
