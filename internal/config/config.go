// Package config loads YAML configuration with environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"

	"PaperTracker/internal/domain"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "PAPERTRACKER_CONFIG"
	databasePathEnv   = "DATABASE_PATH"
	artifactRootEnv   = "ARTIFACT_ROOT"
	mlAPIKeyEnv       = "ML_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Feed          FeedConfig         `yaml:"feed"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Artifacts     ArtifactConfig     `yaml:"artifacts"`
	Digest        DigestConfig       `yaml:"digest"`
	Tracks        []TrackConfig      `yaml:"tracks"`
	ML            MLConfig           `yaml:"ml"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the embedded store location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// FeedConfig describes the upstream feed endpoint and the scan window.
type FeedConfig struct {
	BaseURL    string   `yaml:"baseUrl"`
	Categories []string `yaml:"categories"`
	WindowDays int      `yaml:"windowDays"`
	MaxResults int      `yaml:"maxResults"`
}

// FetchConfig tunes outbound HTTP behavior. Durations are plain integers so
// the YAML stays readable.
type FetchConfig struct {
	TimeoutSeconds    int     `yaml:"timeoutSeconds"`
	MaxAttempts       int     `yaml:"maxAttempts"`
	BackoffInitialMs  int     `yaml:"backoffInitialMs"`
	BackoffMaxMs      int     `yaml:"backoffMaxMs"`
	PolitenessMinMs   int     `yaml:"politenessMinMs"`
	PolitenessMaxMs   int     `yaml:"politenessMaxMs"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	BreakerEnabled    bool    `yaml:"breakerEnabled"`
	MaxBodyMB         int     `yaml:"maxBodyMb"`
}

// Timeout returns the request timeout as a duration.
func (f FetchConfig) Timeout() time.Duration { return time.Duration(f.TimeoutSeconds) * time.Second }

// BackoffInitial returns the first retry delay.
func (f FetchConfig) BackoffInitial() time.Duration {
	return time.Duration(f.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (f FetchConfig) BackoffMax() time.Duration {
	return time.Duration(f.BackoffMaxMs) * time.Millisecond
}

// PolitenessMin returns the lower bound of the inter-request pause.
func (f FetchConfig) PolitenessMin() time.Duration {
	return time.Duration(f.PolitenessMinMs) * time.Millisecond
}

// PolitenessMax returns the upper bound of the inter-request pause.
func (f FetchConfig) PolitenessMax() time.Duration {
	return time.Duration(f.PolitenessMaxMs) * time.Millisecond
}

// MaxBodyBytes returns the response body cap in bytes.
func (f FetchConfig) MaxBodyBytes() int64 {
	return int64(f.MaxBodyMB) << 20
}

// ArtifactConfig describes where documents land and how they are processed.
type ArtifactConfig struct {
	Root        string `yaml:"root"`
	MaxPerRun   int    `yaml:"maxPerRun"`
	ExtractText bool   `yaml:"extractText"`
}

// DigestConfig bounds digest selection.
type DigestConfig struct {
	MaxTotal     int      `yaml:"maxTotal"`
	MaxPerTrack  int      `yaml:"maxPerTrack"`
	DedupDays    int      `yaml:"dedupDays"`
	MinRelevance *float64 `yaml:"minRelevance"`
}

// TrackConfig is one topic profile as written by the operator.
type TrackConfig struct {
	Name         string   `yaml:"name"`
	Keywords     []string `yaml:"keywords"`
	Phrases      []string `yaml:"phrases"`
	Exclusions   []string `yaml:"exclusions"`
	Categories   []string `yaml:"categories"`
	Threshold    float64  `yaml:"threshold"`
	MaxPerDigest int      `yaml:"maxPerDigest"`
	Disabled     bool     `yaml:"disabled"`
}

// MLConfig describes the optional relevance-scoring service.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// MetricsConfig controls the optional metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Load reads YAML configuration and applies environment overrides. An empty
// path falls back to the PAPERTRACKER_CONFIG variable; with neither set the
// defaults are used as-is. ${VAR} references inside the file are expanded
// before parsing.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the fields the pipeline cannot run without.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Path, validation.Required),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Feed,
		validation.Field(&c.Feed.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Feed.Categories, validation.Required),
		validation.Field(&c.Feed.WindowDays, validation.Min(1)),
		validation.Field(&c.Feed.MaxResults, validation.Min(1)),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Artifacts,
		validation.Field(&c.Artifacts.Root, validation.Required),
	); err != nil {
		return err
	}

	for i := range c.Tracks {
		track := &c.Tracks[i]
		if err := validation.ValidateStruct(track,
			validation.Field(&track.Name, validation.Required),
			validation.Field(&track.Threshold, validation.Min(0.0)),
		); err != nil {
			return fmt.Errorf("track %d: %w", i, err)
		}
	}

	return nil
}

// TrackProfiles converts the configured tracks into domain profiles,
// preserving their declaration order.
func (c Config) TrackProfiles() []domain.Track {
	tracks := make([]domain.Track, 0, len(c.Tracks))
	for _, t := range c.Tracks {
		tracks = append(tracks, domain.Track{
			Name:         t.Name,
			Keywords:     t.Keywords,
			Phrases:      t.Phrases,
			Exclusions:   t.Exclusions,
			Categories:   t.Categories,
			Threshold:    t.Threshold,
			MaxPerDigest: t.MaxPerDigest,
			Disabled:     t.Disabled,
		})
	}
	return tracks
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(artifactRootEnv); v != "" {
		c.Artifacts.Root = v
	}

	if v := os.Getenv(mlAPIKeyEnv); v != "" {
		c.ML.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("unknown timezone %s: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Path: "papertracker.db"},
		Feed: FeedConfig{
			BaseURL:    "http://export.arxiv.org/api/query",
			Categories: []string{"cs.AI"},
			WindowDays: 7,
			MaxResults: 100,
		},
		Fetch: FetchConfig{
			TimeoutSeconds:    30,
			MaxAttempts:       3,
			BackoffInitialMs:  500,
			BackoffMaxMs:      8000,
			PolitenessMinMs:   1000,
			PolitenessMaxMs:   3000,
			RequestsPerSecond: 1,
			MaxBodyMB:         64,
		},
		Artifacts: ArtifactConfig{Root: "artifacts", MaxPerRun: 25, ExtractText: true},
		Digest: DigestConfig{
			MaxTotal:    30,
			MaxPerTrack: 10,
			DedupDays:   14,
		},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Metrics:   MetricsConfig{Address: ":9090"},
	}
}
