// Command trendradar-server runs the tool server over stdio or HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"trendradar/internal/cache"
	"trendradar/internal/config"
	"trendradar/internal/crawler"
	"trendradar/internal/domain"
	"trendradar/internal/keywords"
	"trendradar/internal/mcp"
	"trendradar/internal/query"
	"trendradar/internal/scheduler"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

func main() {
	var (
		transport   = flag.String("transport", "stdio", "transport: stdio or http")
		host        = flag.String("host", "", "http bind host (overrides config)")
		port        = flag.Int("port", 0, "http bind port (overrides config)")
		projectRoot = flag.String("project-root", ".", "project root holding config/ and the data directory")
	)
	flag.Parse()

	if err := run(*transport, *host, *port, *projectRoot); err != nil {
		fmt.Fprintln(os.Stderr, "trendradar-server:", err)
		os.Exit(1)
	}
}

func run(transport, host string, port int, projectRoot string) error {
	cfg, err := config.Load(filepath.Join(projectRoot, "config", "config.yaml"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if !filepath.IsAbs(cfg.Storage.DataDir) {
		cfg.Storage.DataDir = filepath.Join(projectRoot, cfg.Storage.DataDir)
	}

	log := util.NewLogger(cfg.App.LogLevel)
	util.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := buildBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Cleanup()

	rulesPath := cfg.Keywords.Path
	if !filepath.IsAbs(rulesPath) {
		rulesPath = filepath.Join(projectRoot, rulesPath)
	}
	rules, err := keywords.Load(rulesPath)
	if err != nil {
		return fmt.Errorf("loading keyword rules: %w", err)
	}
	log.Info("keyword rules loaded", "groups", len(rules.Groups), "global_filters", len(rules.GlobalFilters))

	var fetcher crawler.Fetcher
	proxy := ""
	if cfg.Crawler.UseProxy {
		proxy = cfg.Crawler.ProxyURL
	}
	httpFetcher, err := crawler.NewHTTPFetcher(cfg.Crawler.APIBase, proxy, log)
	if err != nil {
		return fmt.Errorf("building fetcher: %w", err)
	}
	fetcher = httpFetcher

	svc := query.NewService(backend, cache.Global(), cfg, rules, log)
	server := mcp.Instance(cfg, svc, fetcher, log)

	if cfg.Scheduler.Enable {
		sched, err := scheduler.New(cfg.Scheduler.CrawlSpec, scheduler.Jobs{
			Crawl: func(ctx context.Context) error {
				return scheduledCrawl(ctx, cfg, fetcher, backend, svc)
			},
			Retention: func(ctx context.Context) error {
				_, err := backend.CleanupOldData(cfg.Storage.RetentionDays)
				return err
			},
		}, log)
		if err != nil {
			return fmt.Errorf("building scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	switch transport {
	case "stdio":
		log.Info("stdio transport ready")
		return server.ServeStdio(ctx, os.Stdin, os.Stdout)
	case "http":
		return server.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
	}
}

func buildBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Backend, error) {
	if cfg.Storage.Backend == "remote" {
		if !cfg.RemoteConfigured() {
			return nil, fmt.Errorf("remote backend selected but S3 settings are incomplete")
		}
		client, err := storage.NewS3Client(ctx, storage.S3Config{
			EndpointURL:     cfg.S3.EndpointURL,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Region:          cfg.S3.Region,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewRemoteBackend(storage.RemoteOptions{
			Client:     client,
			Bucket:     cfg.S3.Bucket,
			Timezone:   cfg.App.Timezone,
			EnableTXT:  false,
			EnableHTML: cfg.Storage.EnableHTML,
			Logger:     log,
		})
	}
	return storage.NewLocalBackend(storage.LocalOptions{
		DataDir:    cfg.Storage.DataDir,
		Timezone:   cfg.App.Timezone,
		EnableTXT:  cfg.Storage.EnableTXT,
		EnableHTML: cfg.Storage.EnableHTML,
		Logger:     log,
	}), nil
}

// scheduledCrawl is the periodic fetch-and-save cycle.
func scheduledCrawl(ctx context.Context, cfg *config.Config, fetcher crawler.Fetcher, backend storage.Backend, svc *query.Service) error {
	results, idToName, failedIDs := fetcher.Crawl(ctx, cfg.Crawler.Platforms, cfg.Crawler.RequestIntervalMS)
	if len(results) == 0 {
		return fmt.Errorf("all %d platforms failed", len(failedIDs))
	}

	now := util.NowIn(cfg.App.Timezone)
	data := domain.FromCrawlResults(results, idToName, failedIDs,
		now.Format("2006-01-02"), now.Format("15-04"))
	if err := backend.SaveNewsData(ctx, data); err != nil {
		return err
	}
	if _, err := backend.SaveTXTSnapshot(data); err != nil {
		return err
	}
	svc.Cache().Clear()
	return nil
}
