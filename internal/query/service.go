// Package query is the cache-fronted facade over the storage backend: it
// surfaces latest/by-date reads and the analytic views (trending,
// sentiment, related, search, aggregation, period comparison, summaries)
// the tool layer exposes.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"trendradar/internal/analyzer"
	"trendradar/internal/cache"
	"trendradar/internal/config"
	"trendradar/internal/domain"
	"trendradar/internal/keywords"
	"trendradar/internal/storage"
	"trendradar/internal/util"
)

const (
	todayTTL   = 900 * time.Second
	historyTTL = 3600 * time.Second

	defaultLimit = 100
	maxLimit     = 1000
)

// ErrNotFound marks reads for which no day-store exists.
type ErrNotFound struct{ Date string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("no data for %s", e.Date) }

// Service answers all read/analytic queries.
type Service struct {
	backend storage.Backend
	cache   *cache.Cache
	cfg     *config.Config
	rules   *keywords.Rules
	log     *slog.Logger
	now     func() time.Time
}

// NewService wires the facade. rules may be nil when no rule file exists.
func NewService(backend storage.Backend, c *cache.Cache, cfg *config.Config, rules *keywords.Rules, log *slog.Logger) *Service {
	if c == nil {
		c = cache.Global()
	}
	if rules == nil {
		rules = &keywords.Rules{}
	}
	if log == nil {
		log = slog.Default()
	}
	tz := cfg.App.Timezone
	return &Service{
		backend: backend,
		cache:   c,
		cfg:     cfg,
		rules:   rules,
		log:     log,
		now:     func() time.Time { return util.NowIn(tz) },
	}
}

// Backend exposes the underlying storage engine to the tool layer.
func (s *Service) Backend() storage.Backend { return s.backend }

// Rules exposes the loaded keyword rules.
func (s *Service) Rules() *keywords.Rules { return s.rules }

// Cache exposes the TTL cache (for trigger_crawl invalidation and stats).
func (s *Service) Cache() *cache.Cache { return s.cache }

// ResolveRange resolves a date expression against the configured timezone.
func (s *Service) ResolveRange(expr string) (util.DateRange, error) {
	return util.ResolveDateExpr(expr, s.now())
}

// today returns the current date folder.
func (s *Service) today() string {
	return s.now().Format("2006-01-02")
}

// dayTitles is the cached per-day read: merged titles keyed by platform.
type dayTitles struct {
	Titles   map[string]map[string]*storage.SnapshotTitle
	IDToName map[string]string
}

// readAllTitles reads one day's merged titles, consulting the TTL cache
// under read_all_titles:<date>:<platform-key>. Today gets a shorter TTL
// than history. The database is preferred; TXT snapshots are the fallback.
func (s *Service) readAllTitles(ctx context.Context, date string, platforms []string) (*dayTitles, error) {
	if date == "" {
		date = s.today()
	}
	platformKey := "all"
	if len(platforms) > 0 {
		sorted := append([]string(nil), platforms...)
		sort.Strings(sorted)
		platformKey = strings.Join(sorted, ",")
	}
	key := fmt.Sprintf("read_all_titles:%s:%s", date, platformKey)

	ttl := historyTTL
	if date == s.today() {
		ttl = todayTTL
	}
	if cached, ok := s.cache.Get(key, ttl); ok {
		return cached.(*dayTitles), nil
	}

	day, err := s.backend.GetTodayAllData(ctx, date)
	if err != nil {
		return nil, err
	}

	var result *dayTitles
	if day != nil {
		result = fromNewsData(day, platforms)
	} else if snap := s.readSnapshotFallback(date, platforms); snap != nil {
		result = snap
	} else {
		return nil, &ErrNotFound{Date: date}
	}

	s.cache.Set(key, result)
	return result, nil
}

// readSnapshotFallback reassembles a day from its TXT snapshots when the
// database is gone.
func (s *Service) readSnapshotFallback(date string, platforms []string) *dayTitles {
	dir := filepath.Join(s.cfg.Storage.DataDir, date, "txt")
	titles, idToName, err := storage.ParseSnapshotDir(dir)
	if err != nil || len(titles) == 0 {
		return nil
	}
	if len(platforms) > 0 {
		allowed := make(map[string]bool, len(platforms))
		for _, p := range platforms {
			allowed[p] = true
		}
		for id := range titles {
			if !allowed[id] {
				delete(titles, id)
			}
		}
	}
	if len(titles) == 0 {
		return nil
	}
	return &dayTitles{Titles: titles, IDToName: idToName}
}

func fromNewsData(day *domain.NewsData, platforms []string) *dayTitles {
	allowed := map[string]bool{}
	for _, p := range platforms {
		allowed[p] = true
	}
	titles := make(map[string]map[string]*storage.SnapshotTitle)
	for platformID, list := range day.Items {
		if len(allowed) > 0 && !allowed[platformID] {
			continue
		}
		byTitle := make(map[string]*storage.SnapshotTitle, len(list))
		for _, it := range list {
			ranks := it.RankHistory
			if len(ranks) == 0 {
				ranks = []int{it.Rank}
			}
			byTitle[it.Title] = &storage.SnapshotTitle{
				Ranks:     ranks,
				URL:       it.URL,
				MobileURL: it.MobileURL,
				FirstTime: it.FirstSeen,
				LastTime:  it.LastSeen,
				Count:     it.CrawlCount,
			}
		}
		titles[platformID] = byTitle
	}
	return &dayTitles{Titles: titles, IDToName: day.IDToName}
}

// NewsItemView is the JSON shape of one item on the tool surface.
type NewsItemView struct {
	Title        string  `json:"title"`
	PlatformID   string  `json:"platform_id"`
	PlatformName string  `json:"platform_name"`
	Date         string  `json:"date,omitempty"`
	Rank         int     `json:"rank"`
	Ranks        []int   `json:"ranks,omitempty"`
	CrawlCount   int     `json:"crawl_count"`
	FirstTime    string  `json:"first_time,omitempty"`
	LastTime     string  `json:"last_time,omitempty"`
	Weight       float64 `json:"weight"`
	URL          string  `json:"url,omitempty"`
	MobileURL    string  `json:"mobile_url,omitempty"`
}

func (s *Service) weightOf(ranks []int, count int) float64 {
	w := analyzer.Weights(s.cfg.Report.Weights)
	if w == (analyzer.Weights{}) {
		w = analyzer.DefaultWeights()
	}
	threshold := s.cfg.Report.RankThreshold
	if threshold == 0 {
		threshold = 3
	}
	return analyzer.NewsWeight(ranks, count, threshold, w)
}

// itemsForDates flattens the given dates into item views, skipping days
// without data. Days load concurrently; results keep date order. Returns
// ErrNotFound when no requested day exists at all.
func (s *Service) itemsForDates(ctx context.Context, dates []string, platforms []string, includeURL bool) ([]NewsItemView, error) {
	perDay := make([][]NewsItemView, len(dates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, date := range dates {
		g.Go(func() error {
			day, err := s.readAllTitles(gctx, date, platforms)
			if err != nil {
				var nf *ErrNotFound
				if errors.As(err, &nf) {
					return nil
				}
				return err
			}
			perDay[i] = s.flatten(day, date, includeURL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []NewsItemView
	found := false
	for _, dayItems := range perDay {
		if dayItems != nil {
			found = true
			items = append(items, dayItems...)
		}
	}
	if !found {
		return nil, &ErrNotFound{Date: strings.Join(dates, ",")}
	}
	return items, nil
}

func (s *Service) flatten(day *dayTitles, date string, includeURL bool) []NewsItemView {
	var items []NewsItemView
	for _, platformID := range sortedKeys(day.Titles) {
		byTitle := day.Titles[platformID]
		name := day.IDToName[platformID]
		if name == "" {
			name = platformID
		}
		titles := make([]string, 0, len(byTitle))
		for t := range byTitle {
			titles = append(titles, t)
		}
		sort.Strings(titles)
		for _, title := range titles {
			info := byTitle[title]
			view := NewsItemView{
				Title:        title,
				PlatformID:   platformID,
				PlatformName: name,
				Date:         date,
				Rank:         minInt(info.Ranks),
				Ranks:        info.Ranks,
				CrawlCount:   info.Count,
				FirstTime:    util.DisplayTime(info.FirstTime),
				LastTime:     util.DisplayTime(info.LastTime),
				Weight:       s.weightOf(info.Ranks, info.Count),
			}
			if includeURL {
				view.URL = info.URL
				view.MobileURL = info.MobileURL
			}
			items = append(items, view)
		}
	}
	return items
}

// GetLatestNews returns the most recent crawl batch of today.
func (s *Service) GetLatestNews(ctx context.Context, platforms []string, limit int, includeURL bool) ([]NewsItemView, string, error) {
	day, err := s.backend.GetLatestCrawlData(ctx, s.today())
	if err != nil {
		return nil, "", err
	}
	if day == nil {
		return nil, "", &ErrNotFound{Date: s.today()}
	}

	view := fromNewsData(day, platforms)
	items := s.flatten(view, day.Date, includeURL)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].PlatformID != items[j].PlatformID {
			return items[i].PlatformID < items[j].PlatformID
		}
		return items[i].Rank < items[j].Rank
	})
	return capItems(items, limit), day.CrawlTime, nil
}

// GetNewsByDate returns the union of the range's days.
func (s *Service) GetNewsByDate(ctx context.Context, dateRange util.DateRange, platforms []string, limit int, includeURL bool) ([]NewsItemView, error) {
	dates, err := dateRange.Days(util.LoadLocation(s.cfg.App.Timezone))
	if err != nil {
		return nil, err
	}
	items, err := s.itemsForDates(ctx, dates, platforms, includeURL)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Weight > items[j].Weight })
	return capItems(items, limit), nil
}

func capItems(items []NewsItemView, limit int) []NewsItemView {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func minInt(xs []int) int {
	if len(xs) == 0 {
		return domain.RankMissing
	}
	min := xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
	}
	return min
}
