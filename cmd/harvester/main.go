package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kwatanabe/amazon-order-scraper/internal/assets"
	"github.com/kwatanabe/amazon-order-scraper/internal/category"
	"github.com/kwatanabe/amazon-order-scraper/internal/checkpoint"
	"github.com/kwatanabe/amazon-order-scraper/internal/config"
	"github.com/kwatanabe/amazon-order-scraper/internal/crawler"
	"github.com/kwatanabe/amazon-order-scraper/internal/database"
	"github.com/kwatanabe/amazon-order-scraper/internal/metrics"
	"github.com/kwatanabe/amazon-order-scraper/internal/ratelimit"
	"github.com/kwatanabe/amazon-order-scraper/internal/session"
	"github.com/kwatanabe/amazon-order-scraper/internal/status"
	"github.com/kwatanabe/amazon-order-scraper/internal/storage"
)

func main() {
	var (
		output         = flag.String("output", "", "Path of the output JSON file (default amazhist.json)")
		imageDir       = flag.String("images", "", "Directory for thumbnail images (default img)")
		checkpointPath = flag.String("checkpoint", "", "Path of the crawl checkpoint file")
		cookiePath     = flag.String("cookies", "", "Path of the persisted session cookies")
		startYear      = flag.Int("start-year", 0, "First year of order history to harvest")
		statusAddr     = flag.String("status-addr", "", "Optional listen address for the status/metrics server")
		logFormat      = flag.String("log-format", "", "Log format: text or json")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *output != "" {
		cfg.Output.JSONPath = *output
	}
	if *imageDir != "" {
		cfg.Output.ImageDir = *imageDir
	}
	if *checkpointPath != "" {
		cfg.Output.CheckpointPath = *checkpointPath
	}
	if *cookiePath != "" {
		cfg.Session.CookiePath = *cookiePath
	}
	if *startYear != 0 {
		cfg.Crawl.StartYear = *startYear
	}
	if *statusAddr != "" {
		cfg.Status.Addr = *statusAddr
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	setupLogger(cfg.Logging)

	if err := os.MkdirAll(cfg.Output.ImageDir, 0o755); err != nil {
		log.Fatalf("Failed to create image directory: %v", err)
	}

	if cfg.Session.Email == "" || cfg.Session.Password == "" {
		email, password, err := promptCredentials()
		if err != nil {
			log.Fatalf("Failed to read credentials: %v", err)
		}
		cfg.Session.Email = email
		cfg.Session.Password = password
	}
	cfg.Session.CaptchaImagePath = cfg.Output.ImageDir + "/captcha.jpg"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("shutdown signal received, finishing current page")
		cancel()
	}()

	sess, err := session.New(cfg.Site, cfg.Session, terminalCaptchaPrompt)
	if err != nil {
		slog.Error("failed to initialize session", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	limiter := ratelimit.NewCourtesyLimiter(cfg.Crawl.PageDelay, cfg.Crawl.CaptchaBackoff, cfg.Crawl.MaxPageDelay)
	sess.SetChallengeHook(func() {
		m.IncCaptcha()
		limiter.RecordChallenge()
	})

	resolver, err := category.NewResolver(sess, cfg.Site.BaseURL, cfg.Category)
	if err != nil {
		slog.Error("failed to initialize category resolver", "error", err)
		os.Exit(1)
	}

	fetcher := assets.NewFetcher(sess, cfg.Output.ImageDir, cfg.Assets)
	store := checkpoint.NewStore(cfg.Output.CheckpointPath)

	c := crawler.New(sess, resolver, fetcher, store, limiter, m, cfg.Crawl, cfg.Site.BaseURL)
	slog.Info("starting harvest", "run_id", c.RunID(), "start_year", cfg.Crawl.StartYear)

	var statusServer *status.Server
	if cfg.Status.Addr != "" {
		statusServer = status.NewServer(cfg.Status.Addr, m.Registry, c.Snapshot)
		statusServer.Start()
	}

	sink, cleanup, err := buildSink(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize output", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	items, err := c.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("harvest aborted", "error", err)
		os.Exit(1)
	}

	if err := sink.Write(items); err != nil {
		slog.Error("failed to write output", "error", err)
		os.Exit(1)
	}

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		statusServer.Shutdown(shutdownCtx)
	}

	slog.Info("done", "items", len(items), "output", cfg.Output.JSONPath)
}

func setupLogger(cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildSink assembles the output sinks: always the JSON artifact, plus
// Postgres when a database URL is configured.
func buildSink(ctx context.Context, cfg *config.Config) (storage.Sink, func(), error) {
	jsonSink := storage.NewJSONFileSink(cfg.Output.JSONPath)
	if cfg.Database.URL == "" {
		return jsonSink, func() {}, nil
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	return storage.NewMultiSink(jsonSink, database.NewSink(ctx, db)), db.Close, nil
}

// promptCredentials reads the account identifier and secret from the
// terminal when they are not supplied via the environment.
func promptCredentials() (string, string, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Fprint(os.Stderr, "Amazon email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return "", "", err
	}

	fmt.Fprint(os.Stderr, "Amazon password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return "", "", err
	}

	return strings.TrimSpace(email), strings.TrimSpace(password), nil
}

// terminalCaptchaPrompt shows the saved challenge image path and blocks
// for the operator's answer.
func terminalCaptchaPrompt(imagePath string) (string, error) {
	fmt.Fprintf(os.Stderr, "CAPTCHA challenge saved to %s\nEnter the text shown in the image: ", imagePath)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
