package pubsync

import (
	"time"

	"github.com/rs/zerolog"
)

// SiteConfig holds all configuration for a pubsync server.
type SiteConfig struct {
	Name        string // Site name (default "Blog")
	URL         string // Canonical URL (default "http://localhost:5001")
	Description string // Site description for RSS and meta tags
	Author      string // Author name for JSON-LD

	Addr         string // Listen address (default ":5001")
	DatabasePath string // SQLite path (default "data/blog.db")
	UploadDir    string // Local image directory (default "public/uploads")

	// S3 image storage, used instead of UploadDir when S3Bucket is set.
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string // e.g. a MinIO URL; empty means AWS
	S3AccessKey    string
	S3SecretKey    string
	S3PublicURL    string // Public base URL of the bucket

	AllowOrigins []string // CORS origins (default "*")

	AdminPassword string // Optional: when set, mutating API routes need a session
	SessionSecret string // Required with AdminPassword
	CookieSecure  bool   // Set true for HTTPS

	PostCacheTTL time.Duration // Post cache TTL (default 5min)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Blog"
	}
	if c.URL == "" {
		c.URL = "http://localhost:5001"
	}
	if c.Addr == "" {
		c.Addr = ":5001"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/blog.db"
	}
	if c.UploadDir == "" {
		c.UploadDir = "public/uploads"
	}
	if c.S3Region == "" {
		c.S3Region = "us-east-1"
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = []string{"*"}
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithLogger sets the application logger (default: disabled).
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) {
		a.Log = l
	}
}

// WithImageStore replaces the image store derived from the config.
func WithImageStore(s ImageStore) Option {
	return func(a *App) {
		a.Images = s
	}
}
