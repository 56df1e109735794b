// Command trendradar-crawl performs one fetch-and-save cycle and prunes
// expired days. Intended for cron or CI use.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"trendradar/internal/config"
	"trendradar/internal/crawler"
	"trendradar/internal/domain"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

func main() {
	var (
		projectRoot = flag.String("project-root", ".", "project root holding config/ and the data directory")
		skipCleanup = flag.Bool("skip-cleanup", false, "skip retention pruning after the crawl")
	)
	flag.Parse()

	if err := run(*projectRoot, *skipCleanup); err != nil {
		fmt.Fprintln(os.Stderr, "trendradar-crawl:", err)
		os.Exit(1)
	}
}

func run(projectRoot string, skipCleanup bool) error {
	cfg, err := config.Load(filepath.Join(projectRoot, "config", "config.yaml"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !filepath.IsAbs(cfg.Storage.DataDir) {
		cfg.Storage.DataDir = filepath.Join(projectRoot, cfg.Storage.DataDir)
	}
	log := util.NewLogger(cfg.App.LogLevel)
	util.SetDefault(log)

	if len(cfg.Crawler.Platforms) == 0 {
		return fmt.Errorf("no platforms configured")
	}

	backend := storage.NewLocalBackend(storage.LocalOptions{
		DataDir:    cfg.Storage.DataDir,
		Timezone:   cfg.App.Timezone,
		EnableTXT:  cfg.Storage.EnableTXT,
		EnableHTML: cfg.Storage.EnableHTML,
		Logger:     log,
	})
	defer backend.Cleanup()

	proxy := ""
	if cfg.Crawler.UseProxy {
		proxy = cfg.Crawler.ProxyURL
	}
	fetcher, err := crawler.NewHTTPFetcher(cfg.Crawler.APIBase, proxy, log)
	if err != nil {
		return fmt.Errorf("building fetcher: %w", err)
	}

	ctx := context.Background()
	results, idToName, failedIDs := fetcher.Crawl(ctx, cfg.Crawler.Platforms, cfg.Crawler.RequestIntervalMS)
	if len(results) == 0 {
		return fmt.Errorf("all %d platforms failed", len(failedIDs))
	}

	now := util.NowIn(cfg.App.Timezone)
	data := domain.FromCrawlResults(results, idToName, failedIDs,
		now.Format("2006-01-02"), now.Format("15-04"))

	if err := backend.SaveNewsData(ctx, data); err != nil {
		return fmt.Errorf("saving crawl batch: %w", err)
	}
	if _, err := backend.SaveTXTSnapshot(data); err != nil {
		log.Warn("txt snapshot failed", "error", err)
	}

	if !skipCleanup {
		deleted, err := backend.CleanupOldData(cfg.Storage.RetentionDays)
		if err != nil {
			log.Warn("retention pruning failed", "error", err)
		} else if deleted > 0 {
			log.Info("retention pruning done", "deleted_days", deleted)
		}
	}

	log.Info("crawl finished",
		"platforms", len(results), "failed", len(failedIDs), "items", data.TotalItems())
	return nil
}
