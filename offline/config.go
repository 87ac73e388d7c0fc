package offline

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds client settings.
//
// Fields:
//   - APIURL: base URL of the pubsync server.
//   - StatePath: SQLite file holding the cache and the operation queue.
//   - CheckInterval: how often the Monitor probes the server.
//   - Timeout: per-request timeout of the HTTP client.
//   - Password: admin password; empty when the server runs without auth.
type Config struct {
	APIURL        string
	StatePath     string
	CheckInterval time.Duration
	Timeout       time.Duration
	Password      string
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.APIURL = "http://localhost:5001"
	c.StatePath = defaultStatePath()
	c.CheckInterval = 3 * time.Second
	c.Timeout = 10 * time.Second
}

// LoadEnv overlays PUBSYNC_API_URL, PUBSYNC_STATE, PUBSYNC_CHECK_INTERVAL,
// PUBSYNC_TIMEOUT and PUBSYNC_PASSWORD on c. Durations use time.ParseDuration syntax; unparsable
// values are ignored.
func (c *Config) LoadEnv() {
	if v := os.Getenv("PUBSYNC_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("PUBSYNC_STATE"); v != "" {
		c.StatePath = v
	}
	if d, err := time.ParseDuration(os.Getenv("PUBSYNC_CHECK_INTERVAL")); err == nil && d > 0 {
		c.CheckInterval = d
	}
	if d, err := time.ParseDuration(os.Getenv("PUBSYNC_TIMEOUT")); err == nil && d > 0 {
		c.Timeout = d
	}
	if v := os.Getenv("PUBSYNC_PASSWORD"); v != "" {
		c.Password = v
	}
}

// LoadConfig returns defaults overlaid with the environment.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.LoadEnv()
	return cfg
}

func defaultStatePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "pubsync-client.db"
	}
	return filepath.Join(dir, "pubsync", "client.db")
}
