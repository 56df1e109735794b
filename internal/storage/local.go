package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"trendradar/internal/domain"
	"trendradar/internal/util"
)

// Compile-time interface check.
var _ Backend = (*LocalBackend)(nil)

// LocalBackend stores each day in <dataDir>/<YYYY-MM-DD>/news.db, with
// optional TXT snapshots and HTML reports alongside.
type LocalBackend struct {
	dataDir    string
	timezone   string
	enableTXT  bool
	enableHTML bool
	log        *slog.Logger

	mu    sync.Mutex
	conns map[string]*sql.DB // db path -> connection
}

// LocalOptions configures NewLocalBackend.
type LocalOptions struct {
	DataDir    string
	Timezone   string
	EnableTXT  bool
	EnableHTML bool
	Logger     *slog.Logger
}

// NewLocalBackend creates a local day-store engine rooted at DataDir.
func NewLocalBackend(opts LocalOptions) *LocalBackend {
	if opts.DataDir == "" {
		opts.DataDir = "output"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &LocalBackend{
		dataDir:    opts.DataDir,
		timezone:   opts.Timezone,
		enableTXT:  opts.EnableTXT,
		enableHTML: opts.EnableHTML,
		log:        opts.Logger,
		conns:      make(map[string]*sql.DB),
	}
}

// Name implements Backend.
func (b *LocalBackend) Name() string { return "local" }

// dateFolder resolves the on-disk folder for a date. Writes always use the
// ISO name; reads fall back to an existing legacy folder.
func (b *LocalBackend) dateFolder(date string) string {
	iso := util.DateFolder(date, b.timezone)
	if _, err := os.Stat(filepath.Join(b.dataDir, iso)); err == nil {
		return iso
	}
	loc := util.LoadLocation(b.timezone)
	if t, ok := util.ParseDateFolder(iso, loc); ok {
		legacy := fmt.Sprintf("%04d年%02d月%02d日", t.Year(), int(t.Month()), t.Day())
		if _, err := os.Stat(filepath.Join(b.dataDir, legacy)); err == nil {
			return legacy
		}
	}
	return iso
}

func (b *LocalBackend) dbPath(date string) string {
	return filepath.Join(b.dataDir, b.dateFolder(date), "news.db")
}

// conn returns the cached connection for a date, creating the folder and
// database on first use.
func (b *LocalBackend) conn(date string) (*sql.DB, error) {
	path := b.dbPath(date)

	b.mu.Lock()
	defer b.mu.Unlock()
	if db, ok := b.conns[path]; ok {
		return db, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := openDay(path)
	if err != nil {
		return nil, err
	}
	b.conns[path] = db
	return db, nil
}

// dbExists reports whether the day database file is already on disk.
func (b *LocalBackend) dbExists(date string) bool {
	_, err := os.Stat(b.dbPath(date))
	return err == nil
}

// SaveNewsData implements Backend.
func (b *LocalBackend) SaveNewsData(ctx context.Context, data *domain.NewsData) error {
	db, err := b.conn(data.Date)
	if err != nil {
		return err
	}
	now := util.Timestamp(util.NowIn(b.timezone))
	stats, err := saveBatch(ctx, db, data, now)
	if err != nil {
		return fmt.Errorf("saving news data: %w", err)
	}
	b.log.Info("news data saved",
		"date", data.Date, "crawl_time", data.CrawlTime,
		"new", stats.New, "updated", stats.Updated, "title_changed", stats.TitleChanged)
	return nil
}

// GetTodayAllData implements Backend.
func (b *LocalBackend) GetTodayAllData(ctx context.Context, date string) (*domain.NewsData, error) {
	if !b.dbExists(date) {
		return nil, nil
	}
	db, err := b.conn(date)
	if err != nil {
		return nil, err
	}
	return readDay(ctx, db, util.DateFolder(date, b.timezone))
}

// GetLatestCrawlData implements Backend.
func (b *LocalBackend) GetLatestCrawlData(ctx context.Context, date string) (*domain.NewsData, error) {
	if !b.dbExists(date) {
		return nil, nil
	}
	db, err := b.conn(date)
	if err != nil {
		return nil, err
	}
	return readLatest(ctx, db, util.DateFolder(date, b.timezone))
}

// DetectNewTitles implements Backend.
func (b *LocalBackend) DetectNewTitles(ctx context.Context, current *domain.NewsData) (map[string]map[string]domain.NewsItem, error) {
	return detectNewTitles(ctx, b, current)
}

// GetCrawlTimes implements Backend.
func (b *LocalBackend) GetCrawlTimes(ctx context.Context, date string) ([]string, error) {
	if !b.dbExists(date) {
		return nil, nil
	}
	db, err := b.conn(date)
	if err != nil {
		return nil, err
	}
	return readCrawlTimes(ctx, db)
}

// IsFirstCrawlToday implements Backend.
func (b *LocalBackend) IsFirstCrawlToday(ctx context.Context, date string) (bool, error) {
	if !b.dbExists(date) {
		return true, nil
	}
	db, err := b.conn(date)
	if err != nil {
		return true, err
	}
	return isFirstCrawl(ctx, db)
}

// SaveTXTSnapshot implements Backend.
func (b *LocalBackend) SaveTXTSnapshot(data *domain.NewsData) (string, error) {
	if !b.enableTXT {
		return "", nil
	}
	dir := filepath.Join(b.dataDir, b.dateFolder(data.Date), "txt")
	path, err := WriteSnapshot(dir, data)
	if err != nil {
		return "", err
	}
	b.log.Info("txt snapshot saved", "path", path)
	return path, nil
}

// SaveHTMLReport implements Backend.
func (b *LocalBackend) SaveHTMLReport(content []byte, filename string) (string, error) {
	if !b.enableHTML {
		return "", nil
	}
	dir := filepath.Join(b.dataDir, b.dateFolder(""), "html")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	b.log.Info("html report saved", "path", path)
	return path, nil
}

// HasPushedToday implements Backend.
func (b *LocalBackend) HasPushedToday(ctx context.Context, date string) (bool, error) {
	db, err := b.conn(date)
	if err != nil {
		return false, err
	}
	return hasPushed(ctx, db, util.DateFolder(date, b.timezone))
}

// RecordPush implements Backend.
func (b *LocalBackend) RecordPush(ctx context.Context, reportType, date string) error {
	db, err := b.conn(date)
	if err != nil {
		return err
	}
	now := util.Timestamp(util.NowIn(b.timezone))
	if err := writePushRecord(ctx, db, util.DateFolder(date, b.timezone), reportType, now); err != nil {
		return err
	}
	b.log.Info("push recorded", "report_type", reportType, "at", now)
	return nil
}

// CleanupOldData implements Backend. Both folder name forms are recognized.
func (b *LocalBackend) CleanupOldData(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	loc := util.LoadLocation(b.timezone)
	cutoff := util.NowIn(b.timezone).AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(b.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	deleted := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		folderDate, ok := util.ParseDateFolder(entry.Name(), loc)
		if !ok || !folderDate.Before(cutoff) {
			continue
		}

		// Close this day's connection before removing its files.
		dbPath := filepath.Join(b.dataDir, entry.Name(), "news.db")
		b.mu.Lock()
		if db, held := b.conns[dbPath]; held {
			db.Close()
			delete(b.conns, dbPath)
		}
		b.mu.Unlock()

		if err := os.RemoveAll(filepath.Join(b.dataDir, entry.Name())); err != nil {
			b.log.Error("removing expired day", "folder", entry.Name(), "error", err)
			continue
		}
		deleted++
		b.log.Info("expired day removed", "folder", entry.Name())
	}
	return deleted, nil
}

// ListLocalDates returns the dates present under the data directory, newest
// first, normalized to ISO form.
func (b *LocalBackend) ListLocalDates() ([]string, error) {
	entries, err := os.ReadDir(b.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	loc := util.LoadLocation(b.timezone)
	var dates []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if t, ok := util.ParseDateFolder(entry.Name(), loc); ok {
			dates = append(dates, t.Format("2006-01-02"))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// Cleanup implements Backend.
func (b *LocalBackend) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for path, db := range b.conns {
		if err := db.Close(); err != nil {
			b.log.Warn("closing day database", "path", path, "error", err)
		}
	}
	b.conns = make(map[string]*sql.DB)
}
