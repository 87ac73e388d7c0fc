package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "serve":
		err = runServe(log)
	case "list":
		err = runList(log, args)
	case "sync":
		err = runSync(log)
	case "status":
		err = runStatus(log)
	case "reorder":
		err = runReorder(log, args)
	case "new":
		err = runNew(log, args)
	case "edit":
		err = runEdit(log, args)
	case "delete":
		err = runDelete(log, args)
	case "publish":
		err = runPublish(log, args)
	case "upload":
		err = runUpload(log, args)
	case "watch":
		err = runWatch(log)
	case "version":
		fmt.Printf("pubsync %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pubsync - A blog server and its offline-first sync client

Usage:
  pubsync <command> [arguments]

Server:
  serve                       Run the blog server

Client:
  list [all|drafts|published] List posts (from the cache when offline)
  sync                        Replay queued operations against the server
  status                      Show connectivity and queue length
  reorder <from> <to>         Move a post within the list and save the order
  new [--draft] <title> <content|->
                              Create a post (queued when offline)
  edit <id> <title> <content|->
                              Rewrite a post's title and content
  delete <id>                 Delete a post (queued when offline)
  publish <id>                Publish a draft (needs the server)
  upload <file>               Upload an image (needs the server)
  watch                       Keep probing the server and sync on reconnect

Other:
  version                     Print the pubsync version
  help                        Show this help message

Server environment:
  SITE_NAME, SITE_URL, SITE_DESCRIPTION, SITE_AUTHOR, ADDR, DATABASE_PATH,
  UPLOAD_DIR, ALLOW_ORIGINS, ADMIN_PASSWORD, ADMIN_SESSION_SECRET,
  COOKIE_SECURE, S3_BUCKET, S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY,
  S3_SECRET_KEY, S3_PUBLIC_URL

Client environment:
  PUBSYNC_API_URL, PUBSYNC_STATE, PUBSYNC_CHECK_INTERVAL, PUBSYNC_TIMEOUT,
  PUBSYNC_PASSWORD`)
}
