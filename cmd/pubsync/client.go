package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/pubsync/offline"
)

// client bundles the offline engine with the pieces it is built from.
type client struct {
	cfg     *offline.Config
	kv      *offline.SQLiteKV
	remote  *offline.HTTPRemote
	monitor *offline.Monitor
	engine  *offline.Engine
	log     zerolog.Logger
}

func openClient(ctx context.Context, log zerolog.Logger) (*client, error) {
	cfg := offline.LoadConfig()

	kv, err := offline.OpenSQLiteKV(ctx, cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open client state %s: %w", cfg.StatePath, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		kv.Close()
		return nil, err
	}
	remote := offline.NewHTTPRemote(cfg.APIURL, &http.Client{Timeout: cfg.Timeout, Jar: jar})
	monitor := offline.NewMonitor(remote.Ping, cfg.CheckInterval, log)
	engine := offline.NewEngine(remote, kv, monitor, offline.WithLogger(log))

	return &client{cfg: cfg, kv: kv, remote: remote, monitor: monitor, engine: engine, log: log}, nil
}

func (c *client) Close() {
	c.engine.Close()
	_ = c.kv.Close()
}

// connect probes the server once and opens an admin session when a
// password is configured.
func (c *client) connect(ctx context.Context) bool {
	if !c.monitor.Check(ctx) {
		return false
	}
	c.login(ctx)
	return true
}

func (c *client) login(ctx context.Context) {
	if c.cfg.Password == "" {
		return
	}
	if err := c.remote.Login(ctx, c.cfg.Password); err != nil {
		c.log.Warn().Err(err).Msg("login failed")
	}
}

// loginOnReconnect opens a session on every offline to online transition.
// It must be subscribed before the engine is started so the session exists
// when the queue drains.
func (c *client) loginOnReconnect() (unsubscribe func()) {
	return c.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
		defer cancel()
		c.login(ctx)
	})
}

func runList(log zerolog.Logger, args []string) error {
	ctx := context.Background()
	filter := offline.FilterAll
	if len(args) > 0 {
		filter = offline.ParseFilter(args[0])
	}

	c, err := openClient(ctx, log)
	if err != nil {
		return err
	}
	defer c.Close()
	c.connect(ctx)

	feed := offline.NewFeed(c.engine, filter)
	src := feed.Refresh(ctx)
	printPosts(feed.Items())
	if src == offline.SourceCache {
		fmt.Println("(offline: showing cached posts)")
	}
	return nil
}

func runSync(log zerolog.Logger) error {
	ctx := context.Background()
	c, err := openClient(ctx, log)
	if err != nil {
		return err
	}
	defer c.Close()

	if !c.connect(ctx) {
		return fmt.Errorf("server %s is unreachable; %d operations still queued", c.cfg.APIURL, c.engine.Pending(ctx))
	}
	res := c.engine.Drain(ctx)
	fmt.Printf("replayed %d, retained %d\n", res.Replayed, res.Retained)
	if res.Storage.Degraded() {
		return fmt.Errorf("client state storage is %s", string(res.Storage))
	}
	return nil
}

func runStatus(log zerolog.Logger) error {
	ctx := context.Background()
	c, err := openClient(ctx, log)
	if err != nil {
		return err
	}
	defer c.Close()

	state := "offline"
	if c.connect(ctx) {
		state = "online"
	}
	printStatus(os.Stdout, c.cfg.APIURL, state, c.cfg.StatePath, c.engine.Pending(ctx))
	return nil
}

func printStatus(w io.Writer, server, state, statePath string, pending int) {
	fmt.Fprintf(w, "server:     %s (%s)\nstate file: %s\npending:    %d\n", server, state, statePath, pending)
}

func runReorder(log zerolog.Logger, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: pubsync reorder <from> <to>")
	}
	from, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid position %q", args[0])
	}
	to, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid position %q", args[1])
	}

	ctx := context.Background()
	c, err := openClient(ctx, log)
	if err != nil {
		return err
	}
	defer c.Close()
	c.connect(ctx)

	feed := offline.NewFeed(c.engine, offline.FilterAll)
	feed.Refresh(ctx)
	res, err := feed.Reorder(ctx, from, &to)
	if err != nil {
		return err
	}
	if !res.Changed {
		fmt.Println("nothing to do")
		return nil
	}
	printPosts(feed.Items())
	if res.Path == offline.PathQueued {
		fmt.Println("(offline: new order queued)")
	}
	return nil
}

func runWatch(log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := openClient(ctx, log)
	if err != nil {
		return err
	}
	defer c.Close()

	defer c.loginOnReconnect()()
	c.engine.Start()
	log.Info().Str("server", c.cfg.APIURL).Int("pending", c.engine.Pending(ctx)).Msg("watching")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.monitor.Run(ctx)
		return nil
	})
	return g.Wait()
}

func printPosts(posts []offline.BlogSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tORDER\tID\tSTATUS\tTITLE")
	for i, b := range posts {
		status := "published"
		if b.IsDraft {
			status = "draft"
		}
		if offline.IsTempID(b.ID) {
			status += " (unsynced)"
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", i, b.Order, b.ID, status, b.Title)
	}
	w.Flush()
}
