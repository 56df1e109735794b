// Package storage persists crawl batches into per-day SQLite databases,
// locally or on an S3-compatible object store, and answers the read paths
// the query facade is built on.
package storage

import (
	"context"

	"trendradar/internal/domain"
)

// Backend is the capability set shared by the local and remote engines.
// Methods taking a date accept "" for today (in the configured timezone).
// Read operations return (nil, nil) when the day simply has no data.
//
// Writes to a single day must be serialized by the caller; the engine does
// not provide multi-writer concurrency.
type Backend interface {
	// Name identifies the backend kind ("local" or "remote").
	Name() string

	// SaveNewsData merges one crawl batch into the day-store:
	// canonicalize URLs, update existing (platform, url) rows, record rank
	// history and title changes, insert the rest.
	SaveNewsData(ctx context.Context, data *domain.NewsData) error

	// GetTodayAllData returns the merged view of a whole day.
	GetTodayAllData(ctx context.Context, date string) (*domain.NewsData, error)

	// GetLatestCrawlData returns only the most recent batch of a day.
	GetLatestCrawlData(ctx context.Context, date string) (*domain.NewsData, error)

	// DetectNewTitles returns, per platform, the items of the current
	// batch whose title was never seen in an earlier batch of the same
	// day. The first crawl of a day yields an empty result.
	DetectNewTitles(ctx context.Context, current *domain.NewsData) (map[string]map[string]domain.NewsItem, error)

	// GetCrawlTimes lists a day's crawl times in ascending order.
	GetCrawlTimes(ctx context.Context, date string) ([]string, error)

	// IsFirstCrawlToday reports whether the day holds at most one crawl
	// record.
	IsFirstCrawlToday(ctx context.Context, date string) (bool, error)

	// SaveTXTSnapshot writes the batch as a plain-text snapshot and
	// returns the file path ("" when snapshots are disabled).
	SaveTXTSnapshot(data *domain.NewsData) (string, error)

	// SaveHTMLReport stores caller-rendered HTML under the day's html/
	// directory and returns the file path ("" when disabled).
	SaveHTMLReport(content []byte, filename string) (string, error)

	// HasPushedToday reads the day's push record.
	HasPushedToday(ctx context.Context, date string) (bool, error)

	// RecordPush upserts the day's push record.
	RecordPush(ctx context.Context, reportType, date string) error

	// CleanupOldData deletes whole days older than the retention window
	// and returns how many were removed. retentionDays <= 0 disables it.
	CleanupOldData(retentionDays int) (int, error)

	// Cleanup releases connections and, for the remote backend, the
	// temporary directory. Safe to call more than once.
	Cleanup()
}

// RemoteCapable is the extra surface only the remote backend offers.
// Dispatchers needing these interrogate the backend variant explicitly.
type RemoteCapable interface {
	// PullRecentDays downloads the last N day databases into a local data
	// directory, skipping days that already exist locally or are absent
	// remotely. Returns per-date outcomes.
	PullRecentDays(ctx context.Context, days int, localDataDir string) ([]PullResult, error)

	// ListRemoteDates lists the remote day databases, newest first.
	ListRemoteDates(ctx context.Context) ([]string, error)
}

// PullResult is the outcome of syncing one date.
type PullResult struct {
	Date   string `json:"date"`
	Status string `json:"status"` // synced | skipped | failed
	Reason string `json:"reason,omitempty"`
}
