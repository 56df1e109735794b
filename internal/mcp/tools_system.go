package mcp

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"trendradar/internal/config"
	"trendradar/internal/domain"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

// registerSystemTools wires configuration, status, crawl, and sync tools.
func (s *Server) registerSystemTools() {
	s.reg.Register(Tool{
		Name:        "get_current_config",
		Description: "Current configuration, optionally one section",
		Handler:     s.handleGetCurrentConfig,
	})
	s.reg.Register(Tool{
		Name:        "get_system_status",
		Description: "Engine version, backend kind, cache stats, crawl activity",
		Handler:     s.handleGetSystemStatus,
	})
	s.reg.Register(Tool{
		Name:        "trigger_crawl",
		Description: "Fetch all (or selected) platforms, persist, and return the batch",
		Handler:     s.handleTriggerCrawl,
	})
	s.reg.Register(Tool{
		Name:        "sync_from_remote",
		Description: "Pull the last N day databases from remote storage",
		Handler:     s.handleSyncFromRemote,
	})
	s.reg.Register(Tool{
		Name:        "get_storage_status",
		Description: "Backend kind, data root, available dates, retention",
		Handler:     s.handleGetStorageStatus,
	})
	s.reg.Register(Tool{
		Name:        "list_available_dates",
		Description: "Dates with data, locally and (when remote) in the bucket",
		Handler:     s.handleListAvailableDates,
	})
}

func (s *Server) handleGetCurrentConfig(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		Section string `json:"section" validate:"omitempty,oneof=all app storage crawler report keywords analytics notify scheduler server"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	if args.Section == "" {
		args.Section = "all"
	}

	sections := map[string]any{
		"app":       s.cfg.App,
		"storage":   s.cfg.Storage,
		"crawler":   s.cfg.Crawler,
		"report":    s.cfg.Report,
		"keywords":  s.cfg.Keywords,
		"analytics": s.cfg.Analytics,
		"notify":    map[string]any{"max_accounts_per_channel": s.cfg.Notify.MaxAccountsPerChannel},
		"scheduler": s.cfg.Scheduler,
		"server":    s.cfg.Server,
		// Credentials (s3, notify channels) are deliberately not exposed.
	}
	if args.Section == "all" {
		return map[string]any{"section": "all", "config": sections}, nil
	}
	return map[string]any{"section": args.Section, "config": sections[args.Section]}, nil
}

func (s *Server) handleGetSystemStatus(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	crawlTimes, err := s.svc.Backend().GetCrawlTimes(ctx, "")
	if err != nil {
		crawlTimes = nil
	}
	return map[string]any{
		"system": map[string]any{
			"version":  config.Version,
			"backend":  s.svc.Backend().Name(),
			"timezone": s.cfg.App.Timezone,
			"docker":   s.cfg.RunningInDocker,
		},
		"today": map[string]any{
			"crawl_count":      len(crawlTimes),
			"last_crawl_time":  lastOf(crawlTimes),
			"keyword_groups":   len(s.svc.Rules().Groups),
			"configured_feeds": len(s.cfg.Crawler.Platforms),
		},
		"cache": s.svc.Cache().GetStats(),
	}, nil
}

func lastOf(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[len(xs)-1]
}

func (s *Server) handleTriggerCrawl(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		Platforms   []string `json:"platforms"`
		SaveToLocal bool     `json:"save_to_local"`
		IncludeURL  bool     `json:"include_url"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	if s.fetcher == nil {
		return nil, &ToolError{Code: CodeCrawlTaskError, Message: "no fetcher configured"}
	}

	targets := s.cfg.Crawler.Platforms
	if len(args.Platforms) > 0 {
		wanted := make(map[string]bool, len(args.Platforms))
		for _, id := range args.Platforms {
			wanted[id] = true
		}
		var picked []config.Platform
		for _, p := range targets {
			if wanted[p.ID] {
				picked = append(picked, p)
			}
		}
		if len(picked) == 0 {
			return nil, &ToolError{
				Code:    CodeCrawlTaskError,
				Message: fmt.Sprintf("none of the requested platforms are configured: %v", args.Platforms),
			}
		}
		targets = picked
	}
	if len(targets) == 0 {
		return nil, &ToolError{Code: CodeCrawlTaskError, Message: "no platforms configured"}
	}

	results, idToName, failedIDs := s.fetcher.Crawl(ctx, targets, s.cfg.Crawler.RequestIntervalMS)

	now := util.NowIn(s.cfg.App.Timezone)
	data := domain.FromCrawlResults(results, idToName, failedIDs,
		now.Format("2006-01-02"), now.Format("15-04"))

	// Persistence failure must never mask fetch success: the batch is
	// still returned, flagged as unsaved.
	backend := s.svc.Backend()
	saved := true
	saveErr := ""
	savedFiles := map[string]string{}
	if err := backend.SaveNewsData(ctx, data); err != nil {
		saved = false
		saveErr = err.Error()
		s.log.Error("crawl save failed", "error", err)
	} else if args.SaveToLocal {
		if path, err := backend.SaveTXTSnapshot(data); err == nil && path != "" {
			savedFiles["txt"] = path
		}
		if path, err := backend.SaveHTMLReport(renderCrawlHTML(data), data.CrawlTime+".html"); err == nil && path != "" {
			savedFiles["html"] = path
		}
	}

	// Queries must observe the new batch.
	s.svc.Cache().Clear()

	items := make([]map[string]any, 0, data.TotalItems())
	for _, platformID := range data.PlatformIDs() {
		for _, it := range data.Items[platformID] {
			entry := map[string]any{
				"platform_id":   platformID,
				"platform_name": data.IDToName[platformID],
				"title":         it.Title,
				"rank":          it.Rank,
			}
			if args.IncludeURL {
				entry["url"] = it.URL
				entry["mobile_url"] = it.MobileURL
			}
			items = append(items, entry)
		}
	}

	result := map[string]any{
		"crawl_time":       data.CrawlTime,
		"date":             data.Date,
		"platforms":        data.PlatformIDs(),
		"failed_platforms": failedIDs,
		"total_news":       len(items),
		"data":             items,
		"saved_to_local":   saved,
	}
	if saved {
		if len(savedFiles) > 0 {
			result["saved_files"] = savedFiles
		}
	} else {
		result["save_error"] = saveErr
		if strings.Contains(saveErr, "read-only") || strings.Contains(saveErr, "permission denied") {
			result["note"] = "crawl succeeded but the data directory is not writable; results are only valid for this response"
		} else {
			result["note"] = "crawl succeeded but saving failed: " + saveErr
		}
	}
	return result, nil
}

// renderCrawlHTML renders the minimal crawl-result page stored alongside
// TXT snapshots. Full report rendering lives outside the engine.
func renderCrawlHTML(data *domain.NewsData) []byte {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"UTF-8\"><title>crawl ")
	sb.WriteString(html.EscapeString(data.Date + " " + data.CrawlTime))
	sb.WriteString("</title></head><body>\n")
	for _, platformID := range data.PlatformIDs() {
		fmt.Fprintf(&sb, "<h2>%s</h2>\n<ol>\n", html.EscapeString(data.IDToName[platformID]))
		for _, it := range data.Items[platformID] {
			fmt.Fprintf(&sb, "<li>%s</li>\n", html.EscapeString(it.Title))
		}
		sb.WriteString("</ol>\n")
	}
	if len(data.FailedIDs) > 0 {
		fmt.Fprintf(&sb, "<p>failed: %s</p>\n", html.EscapeString(strings.Join(data.FailedIDs, ", ")))
	}
	sb.WriteString("</body></html>\n")
	return []byte(sb.String())
}

func (s *Server) handleSyncFromRemote(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		Days int `json:"days" validate:"omitempty,min=1,max=90"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	if args.Days == 0 {
		args.Days = 7
	}

	remote, ok := s.svc.Backend().(storage.RemoteCapable)
	if !ok {
		return nil, InvalidArgument("backend %q has no remote capabilities", s.svc.Backend().Name())
	}
	results, err := remote.PullRecentDays(ctx, args.Days, s.cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	s.svc.Cache().Clear()
	return map[string]any{"days": args.Days, "results": results, "counts": counts}, nil
}

func (s *Server) handleGetStorageStatus(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	backend := s.svc.Backend()
	status := map[string]any{
		"backend":        backend.Name(),
		"data_dir":       s.cfg.Storage.DataDir,
		"retention_days": s.cfg.Storage.RetentionDays,
		"txt_enabled":    s.cfg.Storage.EnableTXT,
		"html_enabled":   s.cfg.Storage.EnableHTML,
	}
	if local, ok := backend.(*storage.LocalBackend); ok {
		dates, err := local.ListLocalDates()
		if err == nil {
			status["local_dates"] = dates
		}
	}
	if remote, ok := backend.(storage.RemoteCapable); ok {
		dates, err := remote.ListRemoteDates(ctx)
		if err != nil {
			return nil, err
		}
		status["remote_dates"] = dates
	}
	return map[string]any{"storage": status}, nil
}

func (s *Server) handleListAvailableDates(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	dateSet := make(map[string]bool)

	if local, ok := s.svc.Backend().(*storage.LocalBackend); ok {
		dates, err := local.ListLocalDates()
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			dateSet[d] = true
		}
	}
	if remote, ok := s.svc.Backend().(storage.RemoteCapable); ok {
		dates, err := remote.ListRemoteDates(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			dateSet[d] = true
		}
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return map[string]any{"dates": dates, "total": len(dates)}, nil
}
