package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"

	"github.com/eringen/pubsync/offline"
)

func runNew(log zerolog.Logger, args []string) error {
	args, draft := takeFlag(args, "--draft")
	if len(args) != 2 {
		return fmt.Errorf("usage: pubsync new [--draft] <title> <content|->")
	}
	content, err := readContent(args[1])
	if err != nil {
		return err
	}

	ctx := context.Background()
	c, err := openClient(ctx, log)
	if err != nil {
		return err
	}
	defer c.Close()
	c.connect(ctx)

	res, err := c.engine.Save(ctx, "", offline.BlogInput{Title: args[0], Content: content, IsDraft: draft})
	if err != nil {
		return err
	}
	printPosts([]offline.BlogSummary{res.Blog})
	reportWrite(res.WriteResult, "post queued")
	return nil
}

func runEdit(log zerolog.Logger, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: pubsync edit <id> <title> <content|->")
	}
	content, err := readContent(args[2])
	if err != nil {
		return err
	}

	ctx := context.Background()
	c, err := openClient(ctx, log)
	if err != nil {
		return err
	}
	defer c.Close()
	c.connect(ctx)

	current, _, err := c.engine.Get(ctx, args[0])
	if err != nil {
		return err
	}
	res, err := c.engine.Save(ctx, current.ID, offline.BlogInput{
		Title:   args[1],
		Content: content,
		Images:  current.Images,
		IsDraft: current.IsDraft,
	})
	if err != nil {
		return err
	}
	printPosts([]offline.BlogSummary{res.Blog})
	reportWrite(res.WriteResult, "edit queued")
	return nil
}

func runDelete(log zerolog.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pubsync delete <id>")
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
	res, err := feed.Remove(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	reportWrite(res, "delete queued")
	return nil
}

func runPublish(log zerolog.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pubsync publish <id>")
	}

	ctx := context.Background()
	c, err := openClient(ctx, log)
	if err != nil {
		return err
	}
	defer c.Close()
	c.connect(ctx)

	b, err := c.engine.Publish(ctx, args[0])
	if err != nil {
		return err
	}
	printPosts([]offline.BlogSummary{b})
	return nil
}

func runUpload(log zerolog.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pubsync upload <file>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ctx := context.Background()
	c, err := openClient(ctx, log)
	if err != nil {
		return err
	}
	defer c.Close()
	c.connect(ctx)

	up, err := c.engine.UploadImage(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	fmt.Printf("url:  %s\npath: %s\n", up.ImageURL, up.ImagePath)
	return nil
}

// reportWrite tells the user when a write only reached local state.
func reportWrite(res offline.WriteResult, queued string) {
	if res.Path == offline.PathQueued {
		fmt.Printf("(offline: %s)\n", queued)
	}
	if res.Storage.Degraded() {
		fmt.Fprintf(os.Stderr, "warning: client state storage is %s\n", string(res.Storage))
	}
}

// takeFlag removes every occurrence of name from args.
func takeFlag(args []string, name string) ([]string, bool) {
	found := slices.Contains(args, name)
	return slices.DeleteFunc(slices.Clone(args), func(a string) bool { return a == name }), found
}

// readContent returns arg, or standard input when arg is "-".
func readContent(arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return string(data), nil
}
