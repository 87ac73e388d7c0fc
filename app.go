// Package pubsync is the blog server behind the offline-capable client in
// package offline. It stores posts in SQLite and exposes them through a
// JSON API, and it publishes the non-draft posts as HTML pages, an RSS feed
// and a sitemap.
package pubsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// App is the central pubsync application. It wires together the store,
// cache, image storage, handlers and middleware.
type App struct {
	Config SiteConfig
	Echo   *echo.Echo
	Store  *Store
	Cache  *PostCache
	Images ImageStore
	Log    zerolog.Logger

	loginLimiter *LoginLimiter
	customRoutes []func(*App)
}

// New opens the store and builds a ready-to-serve App. The returned App
// must be closed.
func New(cfg SiteConfig, opts ...Option) (*App, error) {
	cfg.setDefaults()
	if cfg.AdminPassword != "" && cfg.SessionSecret == "" {
		return nil, fmt.Errorf("pubsync: SessionSecret is required when AdminPassword is set")
	}

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		Log:    zerolog.Nop(),
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}

	store, err := NewStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("pubsync: init store: %w", err)
	}
	a.Store = store
	a.Cache = NewPostCache(store, cfg.PostCacheTTL)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	if a.Images == nil {
		if err := a.initImageStore(); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return a, nil
}

func (a *App) initImageStore() error {
	if a.Config.S3Bucket == "" {
		a.Images = DiskImageStore{Dir: a.Config.UploadDir, URLPrefix: "/uploads"}
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s3Store, err := NewS3ImageStore(ctx, a.Config)
	if err != nil {
		return fmt.Errorf("pubsync: init s3: %w", err)
	}
	a.Images = s3Store
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	if disk, ok := a.Images.(DiskImageStore); ok {
		e.Static("/uploads", disk.Dir)
	}

	api := e.Group("/api")
	api.GET("/health", a.handleHealth)
	api.GET("/blogs", a.handleListBlogs)
	api.GET("/blogs/:id", a.handleGetBlog)
	api.POST("/blogs", a.handleCreateBlog, a.requireAdmin)
	api.PUT("/blogs/:id", a.handleUpdateBlog, a.requireAdmin)
	api.DELETE("/blogs/:id", a.handleDeleteBlog, a.requireAdmin)
	api.PATCH("/blogs/:id/publish", a.handlePublishBlog, a.requireAdmin)
	api.POST("/blogs/batch-update-order", a.handleBatchUpdateOrder, a.requireAdmin)
	api.POST("/blogs/upload", a.handleImageUpload, a.requireAdmin)
	if a.Config.AdminPassword != "" {
		api.POST("/login", a.handleLogin)
		api.POST("/logout", a.handleLogout)
	}

	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/", a.handleHome)
	e.GET("/blog/", handleBlogRedirect)
	e.GET("/blog/:id/", a.handlePost)
}

// Start listens on Config.Addr until Shutdown is called.
func (a *App) Start() error {
	a.Log.Info().Str("addr", a.Config.Addr).Msg("listening")
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
