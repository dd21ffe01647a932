package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leohooho/blog/internal/config"
	"github.com/leohooho/blog/internal/search"
	"github.com/leohooho/blog/internal/session"
	"github.com/leohooho/blog/internal/storage"
	"github.com/leohooho/blog/internal/sync"
	"github.com/leohooho/blog/internal/web"
)

var cfg *config.Config

func main() {
	globalFlags := flag.NewFlagSet("global", flag.ExitOnError)
	configFlag := globalFlags.String("config", "config.toml", "Configuration file")
	dataDirFlag := globalFlags.String("data-dir", "", "Directory for database and index files (overrides config)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Find where the command starts (skip global flags)
	commandIdx := 1
	for i := 1; i < len(os.Args); i++ {
		if !strings.HasPrefix(os.Args[i], "-") {
			commandIdx = i
			break
		}
	}
	if commandIdx > 1 {
		globalFlags.Parse(os.Args[1:commandIdx])
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	var err error
	cfg, err = config.Load(*configFlag)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configFlag).Msg("failed to load configuration")
	}
	if *dataDirFlag != "" {
		cfg.Data.Dir = *dataDirFlag
	}
	cfg.SetupLogger()

	command := os.Args[commandIdx]
	args := os.Args[commandIdx+1:]

	switch command {
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		port := serveFlags.String("port", cfg.Server.Port, "Port to listen on")
		host := serveFlags.String("host", cfg.Server.Host, "Host to bind to")
		serveFlags.Parse(args)

		cfg.Server.Host, cfg.Server.Port = *host, *port
		runServe()
	case "import":
		importFlags := flag.NewFlagSet("import", flag.ExitOnError)
		watch := importFlags.Bool("watch", false, "Keep running and re-import on file changes")
		importFlags.Parse(args)

		dir := "posts"
		if importFlags.NArg() > 0 {
			dir = importFlags.Arg(0)
		}
		runImport(dir, *watch)
	case "reindex":
		runReindex()
	case "stats":
		runStats()
	case "get-post":
		if len(args) < 1 {
			fmt.Println("Error: post slug required")
			fmt.Println("Usage: blog [global-flags] get-post <slug>")
			os.Exit(1)
		}
		runGetPost(args[0])
	case "create-post":
		createFlags := flag.NewFlagSet("create-post", flag.ExitOnError)
		slug := createFlags.String("slug", "", "Slug of the new post (required)")
		title := createFlags.String("title", "", "Title of the new post")
		file := createFlags.String("file", "-", "Markdown file with the content (- for stdin)")
		createFlags.Parse(args)

		if *slug == "" {
			fmt.Println("Error: -slug is required")
			os.Exit(1)
		}
		runCreatePost(*slug, *title, *file)
	case "token":
		if len(args) < 1 {
			fmt.Println("Error: username required")
			fmt.Println("Usage: blog [global-flags] token <username>")
			os.Exit(1)
		}
		runToken(args[0])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Blog - a small Markdown blog with an edit screen")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  blog [global-flags] <command> [flags]")
	fmt.Println()
	fmt.Println("Global Flags:")
	fmt.Println("  --config=<file>   TOML configuration file (default: config.toml)")
	fmt.Println("  --data-dir=<dir>  Directory for database and index files (default: ./data)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve [flags]                     Start web server")
	fmt.Println("  create-post -slug=<s> [flags]     Create a post from Markdown")
	fmt.Println("  get-post <slug>                   Print a post's Markdown")
	fmt.Println("  import [-watch] [dir]             Import <dir>/*.md posts with +++ TOML front matter (default: posts)")
	fmt.Println("  reindex                           Rebuild the search index from the database")
	fmt.Println("  stats                             Show database and index counts")
	fmt.Println("  token <username>                  Print a session token for <username>")
	fmt.Println()
	fmt.Println("Serve Flags:")
	fmt.Println("  -host=<host>      Host to bind to (default: localhost)")
	fmt.Println("  -port=<port>      Port to listen on (default: 6893)")
	fmt.Println()
	fmt.Println("Create Flags:")
	fmt.Println("  -slug=<slug>      Slug, also the post's id")
	fmt.Println("  -title=<title>    Title")
	fmt.Println("  -file=<path>      Markdown content, - for stdin (default)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  blog serve")
	fmt.Println("  blog --data-dir=$HOME/.blog serve -port=3000")
	fmt.Println("  blog create-post -slug=hello -title=Hello -file=hello.md")
	fmt.Println("  blog import -watch ./posts")
	fmt.Println("  curl -b session=$(blog token admin) localhost:6893/posts/hello/edit")
}

func openStores() (*storage.DB, *search.Index) {
	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Data.Dir).Msg("failed to create data directory")
	}

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath()).Msg("failed to open database")
	}

	idx, err := search.Open(cfg.IndexPath())
	if err != nil {
		db.Close()
		log.Fatal().Err(err).Str("path", cfg.IndexPath()).Msg("failed to open search index")
	}

	return db, idx
}

func newSessions() *session.Manager {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return session.NewManager(cfg.Session.Secret, cfg.SessionTTL(), cfg.Session.AdminUser, cfg.Session.AdminPassword)
}

func runServe() {
	sessions := newSessions()
	if cfg.Session.AdminPassword == "" {
		log.Warn().Msg("no admin password configured, sign-in is disabled")
	}

	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	server, err := web.NewServer(db, idx, sessions, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create web server")
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", "http://"+cfg.Addr()).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func runImport(dir string, watch bool) {
	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := sync.NewWorker(dir, db, idx)

	stats, err := worker.Sync(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("import failed")
	}
	printImportStats(stats)

	if !watch {
		return
	}

	log.Info().Str("dir", dir).Msg("watching for changes, press Ctrl+C to stop")
	err = worker.Watch(ctx, 200*time.Millisecond, func(stats *sync.Stats, err error) {
		if err != nil {
			log.Error().Err(err).Msg("import failed")
			return
		}
		printImportStats(stats)
	})
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("watch failed")
	}
}

func printImportStats(stats *sync.Stats) {
	fmt.Println()
	fmt.Println("=== Import Complete ===")
	fmt.Printf("Total files:   %d\n", stats.TotalPosts)
	fmt.Printf("New:           %d\n", stats.NewPosts)
	fmt.Printf("Updated:       %d\n", stats.UpdatedPosts)
	fmt.Printf("Skipped:       %d\n", stats.SkippedPosts)
	fmt.Printf("Errors:        %d\n", stats.Errors)
	fmt.Printf("Duration:      %v\n", stats.Duration.Round(time.Millisecond))
}

func runReindex() {
	fmt.Println("Rebuilding search index...")

	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	startTime := time.Now()
	progressFn := func(current, total int) {
		percent := float64(current) / float64(total) * 100
		fmt.Printf("\rIndexing: %d/%d (%.1f%%)  ", current, total, percent)
	}

	if err := idx.Rebuild(context.Background(), db, progressFn); err != nil {
		log.Fatal().Err(err).Msg("failed to rebuild index")
	}

	indexCount, err := idx.Count()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to count index")
	}

	fmt.Println()
	fmt.Println("=== Reindex Complete ===")
	fmt.Printf("Posts indexed: %d\n", indexCount)
	fmt.Printf("Duration:      %v\n", time.Since(startTime).Round(time.Millisecond))
}

func runStats() {
	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	dbCount, err := db.Count(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to count posts")
	}

	indexCount, err := idx.Count()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to count index")
	}

	fmt.Println("=== Blog Statistics ===")
	fmt.Printf("Posts in database: %d\n", dbCount)
	fmt.Printf("Posts in index:    %d\n", indexCount)
}

func runGetPost(slug string) {
	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	post, err := db.Get(context.Background(), slug)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Printf("Post not found: %s\n", slug)
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Str("slug", slug).Msg("failed to get post")
	}

	fmt.Println(post.Content)
}

func runCreatePost(slug, title, file string) {
	var content []byte
	var err error
	if file == "-" {
		content, err = io.ReadAll(os.Stdin)
	} else {
		content, err = os.ReadFile(file)
	}
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("failed to read content")
	}

	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	post := &storage.Post{ID: slug, Title: title, Content: string(content)}
	if err := db.Create(context.Background(), post); err != nil {
		log.Fatal().Err(err).Str("slug", slug).Msg("failed to create post")
	}
	if err := idx.IndexPost(post); err != nil {
		log.Error().Err(err).Str("slug", slug).Msg("failed to index post, run reindex")
	}

	fmt.Printf("Created /posts/%s\n", slug)
}

func runToken(username string) {
	token, err := newSessions().Issue(username)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to issue token")
	}
	fmt.Println(token)
}
