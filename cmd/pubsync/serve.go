package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/pubsync"
)

func serverConfig() pubsync.SiteConfig {
	cfg := pubsync.SiteConfig{
		Name:           pubsync.EnvOr("SITE_NAME", "Blog"),
		URL:            strings.TrimSuffix(pubsync.EnvOr("SITE_URL", "http://localhost:5001"), "/"),
		Description:    pubsync.EnvOr("SITE_DESCRIPTION", ""),
		Author:         pubsync.EnvOr("SITE_AUTHOR", ""),
		Addr:           pubsync.EnvOr("ADDR", ":5001"),
		DatabasePath:   pubsync.EnvOr("DATABASE_PATH", "data/blog.db"),
		UploadDir:      pubsync.EnvOr("UPLOAD_DIR", "public/uploads"),
		S3Bucket:       pubsync.EnvOr("S3_BUCKET", ""),
		S3Region:       pubsync.EnvOr("S3_REGION", "us-east-1"),
		S3BaseEndpoint: pubsync.EnvOr("S3_ENDPOINT", ""),
		S3AccessKey:    pubsync.EnvOr("S3_ACCESS_KEY", ""),
		S3SecretKey:    pubsync.EnvOr("S3_SECRET_KEY", ""),
		S3PublicURL:    pubsync.EnvOr("S3_PUBLIC_URL", ""),
		AdminPassword:  pubsync.EnvOr("ADMIN_PASSWORD", ""),
		CookieSecure:   strings.EqualFold(pubsync.EnvOr("COOKIE_SECURE", ""), "true"),
	}
	if origins := pubsync.EnvOr("ALLOW_ORIGINS", ""); origins != "" {
		cfg.AllowOrigins = strings.Split(origins, ",")
	}
	if cfg.AdminPassword != "" {
		cfg.SessionSecret = pubsync.MustEnv("ADMIN_SESSION_SECRET")
	}
	return cfg
}

func runServe(log zerolog.Logger) error {
	app, err := pubsync.New(serverConfig(), pubsync.WithLogger(log))
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(app.Start)
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
