// Package config loads Soundify's configuration from an optional TOML file,
// .env files and the environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

var (
	// ErrMissingClientID is returned when no Spotify client ID is configured.
	ErrMissingClientID = errors.New("spotify client ID is required (set SPOTIFY_ID)")

	// ErrMissingAPIKey is returned when the recommender has no model API key.
	ErrMissingAPIKey = errors.New("model API key is required (set OPENAI_API_KEY)")
)

// Config represents the application configuration.
type Config struct {
	Spotify     SpotifyConfig     `toml:"spotify"`
	Server      ServerConfig      `toml:"server"`
	Backend     BackendConfig     `toml:"backend"`
	Recommender RecommenderConfig `toml:"recommender"`
	LastFM      LastFMConfig      `toml:"lastfm"`
	Database    DatabaseConfig    `toml:"database"`
	Storage     StorageConfig     `toml:"storage"`
	Log         LogConfig         `toml:"log"`
}

// SpotifyConfig contains Spotify app settings.
type SpotifyConfig struct {
	ClientID    string `toml:"client_id"`
	RedirectURI string `toml:"redirect_uri"`
}

// ServerConfig contains web front end settings.
type ServerConfig struct {
	Addr               string        `toml:"addr"`
	SessionTTL         time.Duration `toml:"session_ttl"`
	Supersession       string        `toml:"supersession"`
	PlayerPollInterval time.Duration `toml:"player_poll_interval"`
}

// BackendConfig contains recommendation backend client settings.
type BackendConfig struct {
	URL             string        `toml:"url"`
	Timeout         time.Duration `toml:"timeout"`
	Concurrency     int           `toml:"concurrency"`
	SearchRateLimit float64       `toml:"search_rate_limit"`
}

// RecommenderConfig contains recommendation backend service settings.
type RecommenderConfig struct {
	Addr    string        `toml:"addr"`
	BaseURL string        `toml:"base_url"`
	APIKey  string        `toml:"api_key"`
	Model   string        `toml:"model"`
	Timeout time.Duration `toml:"timeout"`
}

// LastFMConfig contains genre tagging settings. An empty APIKey disables it.
type LastFMConfig struct {
	APIKey    string  `toml:"api_key"`
	RateLimit float64 `toml:"rate_limit"`
}

// DatabaseConfig contains PostgreSQL settings. An empty URL disables it.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// StorageConfig contains local storage settings.
type StorageConfig struct {
	Path string `toml:"path"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Caller bool   `toml:"caller"`
}

// Default returns a Config with defaults loaded from the embedded example.
func Default() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Example returns the annotated example config file.
func Example() []byte {
	return exampleConf
}

// Load returns defaults overlaid with the TOML file at path (if non-empty)
// and then the environment.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv loads each existing .env file into the process environment.
// Variables already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) ([]string, error) {
	var loaded []string
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("failed to load %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"SPOTIFY_ID", &c.Spotify.ClientID},
		{"SPOTIFY_REDIRECT_URI", &c.Spotify.RedirectURI},
		{"SOUNDIFY_ADDR", &c.Server.Addr},
		{"SOUNDIFY_BACKEND_URL", &c.Backend.URL},
		{"SOUNDIFY_RECOMMENDER_ADDR", &c.Recommender.Addr},
		{"DATABASE_URL", &c.Database.URL},
		{"OPENAI_API_KEY", &c.Recommender.APIKey},
		{"OPENAI_BASE_URL", &c.Recommender.BaseURL},
		{"OPENAI_MODEL", &c.Recommender.Model},
		{"LASTFM_API_KEY", &c.LastFM.APIKey},
		{"SOUNDIFY_LOG_LEVEL", &c.Log.Level},
		{"SOUNDIFY_LOG_FORMAT", &c.Log.Format},
	}
	for _, s := range strs {
		if v := getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	if v := getenv("SOUNDIFY_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid SOUNDIFY_CONCURRENCY %q", v)
		}
		c.Backend.Concurrency = n
	}
	return nil
}

// ValidateServe checks the settings the web front end needs.
func (c *Config) ValidateServe() error {
	if c.Spotify.ClientID == "" {
		return ErrMissingClientID
	}
	return nil
}

// ValidateRecommender checks the settings the backend service needs.
func (c *Config) ValidateRecommender() error {
	if c.Recommender.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}
