package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"trendradar/internal/domain"
	"trendradar/internal/util"
)

// Compile-time interface checks.
var (
	_ Backend       = (*RemoteBackend)(nil)
	_ RemoteCapable = (*RemoteBackend)(nil)
)

const (
	remotePrefix      = "news/"
	sqliteContentType = "application/x-sqlite3"
	downloadChunkSize = 1 << 20
	deleteBatchSize   = 1000
)

var (
	remoteISORe    = regexp.MustCompile(`^news/(\d{4})-(\d{2})-(\d{2})\.db$`)
	remoteLegacyRe = regexp.MustCompile(`^news/(\d{4})年(\d{2})月(\d{2})日\.db$`)
)

// RemoteBackend keeps each day database at object key news/<date>.db in an
// S3-compatible bucket. Every write runs a download→mutate→upload cycle
// against a temp-directory working copy.
type RemoteBackend struct {
	client     S3Client
	bucket     string
	timezone   string
	enableTXT  bool
	enableHTML bool
	log        *slog.Logger

	tempDir string

	mu      sync.Mutex
	conns   map[string]*sql.DB // local temp db path -> connection
	cleaned bool
}

// RemoteOptions configures NewRemoteBackend.
type RemoteOptions struct {
	Client     S3Client
	Bucket     string
	Timezone   string
	EnableTXT  bool // remote mode defaults to no TXT snapshots
	EnableHTML bool
	TempDir    string // defaults to a fresh scoped temp directory
	Logger     *slog.Logger
}

// NewRemoteBackend creates the remote engine. It owns a scoped temporary
// directory released by Cleanup.
func NewRemoteBackend(opts RemoteOptions) (*RemoteBackend, error) {
	if opts.Client == nil {
		return nil, errors.New("remote backend requires an S3 client")
	}
	if opts.Bucket == "" {
		return nil, errors.New("remote backend requires a bucket name")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		var err error
		tempDir, err = os.MkdirTemp("", "trendradar-remote-")
		if err != nil {
			return nil, fmt.Errorf("creating temp dir: %w", err)
		}
	}
	b := &RemoteBackend{
		client:     opts.Client,
		bucket:     opts.Bucket,
		timezone:   opts.Timezone,
		enableTXT:  opts.EnableTXT,
		enableHTML: opts.EnableHTML,
		log:        opts.Logger,
		tempDir:    tempDir,
		conns:      make(map[string]*sql.DB),
	}
	b.log.Info("remote storage initialized", "bucket", opts.Bucket)
	return b, nil
}

// Name implements Backend.
func (b *RemoteBackend) Name() string { return "remote" }

func (b *RemoteBackend) remoteKey(date string) string {
	return remotePrefix + util.DateFolder(date, b.timezone) + ".db"
}

func (b *RemoteBackend) localPath(date string) string {
	return filepath.Join(b.tempDir, util.DateFolder(date, b.timezone), "news.db")
}

// objectExists HEADs a key; any error counts as absent.
func (b *RemoteBackend) objectExists(ctx context.Context, key string) bool {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

// downloadObject streams a remote object to a local file with a fixed-size
// chunk loop rather than a whole-body read: some S3-compatible vendors emit
// chunked transfer encoding that trips naive download helpers.
func (b *RemoteBackend) downloadObject(ctx context.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("getting %s: %w", key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, downloadChunkSize)
	if _, err := io.CopyBuffer(f, out.Body, buf); err != nil {
		return fmt.Errorf("writing %s: %w", localPath, err)
	}
	return nil
}

// uploadDay PUTs the working copy back. The file is read fully into memory
// and sent with an explicit Content-Length: streaming uploads trigger
// chunked encoding that some vendors reject. A HEAD afterwards verifies
// the object landed.
func (b *RemoteBackend) uploadDay(ctx context.Context, date string) error {
	localPath := b.localPath(date)
	key := b.remoteKey(date)

	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", localPath, err)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(sqliteContentType),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}

	if !b.objectExists(ctx, key) {
		return fmt.Errorf("upload verification failed: %s not found after put", key)
	}
	b.log.Info("day database uploaded", "key", key, "bytes", len(content))
	return nil
}

// conn returns the working-copy connection for a date, downloading the
// remote database first when one exists.
func (b *RemoteBackend) conn(ctx context.Context, date string) (*sql.DB, error) {
	localPath := b.localPath(date)

	b.mu.Lock()
	defer b.mu.Unlock()
	if db, ok := b.conns[localPath]; ok {
		return db, nil
	}

	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		key := b.remoteKey(date)
		if b.objectExists(ctx, key) {
			if err := b.downloadObject(ctx, key, localPath); err != nil {
				return nil, err
			}
			b.log.Info("day database downloaded", "key", key)
		} else {
			b.log.Info("no remote database, starting fresh", "key", key)
			if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := openDay(localPath)
	if err != nil {
		return nil, err
	}
	b.conns[localPath] = db
	return db, nil
}

// SaveNewsData implements Backend: download, merge, upload, verify.
func (b *RemoteBackend) SaveNewsData(ctx context.Context, data *domain.NewsData) error {
	db, err := b.conn(ctx, data.Date)
	if err != nil {
		return err
	}
	now := util.Timestamp(util.NowIn(b.timezone))
	stats, err := saveBatch(ctx, db, data, now)
	if err != nil {
		return fmt.Errorf("saving news data: %w", err)
	}
	b.log.Info("news data merged",
		"date", data.Date, "crawl_time", data.CrawlTime,
		"new", stats.New, "updated", stats.Updated, "title_changed", stats.TitleChanged)

	return b.uploadDay(ctx, data.Date)
}

// GetTodayAllData implements Backend.
func (b *RemoteBackend) GetTodayAllData(ctx context.Context, date string) (*domain.NewsData, error) {
	db, err := b.conn(ctx, date)
	if err != nil {
		return nil, err
	}
	return readDay(ctx, db, util.DateFolder(date, b.timezone))
}

// GetLatestCrawlData implements Backend.
func (b *RemoteBackend) GetLatestCrawlData(ctx context.Context, date string) (*domain.NewsData, error) {
	db, err := b.conn(ctx, date)
	if err != nil {
		return nil, err
	}
	return readLatest(ctx, db, util.DateFolder(date, b.timezone))
}

// DetectNewTitles implements Backend.
func (b *RemoteBackend) DetectNewTitles(ctx context.Context, current *domain.NewsData) (map[string]map[string]domain.NewsItem, error) {
	return detectNewTitles(ctx, b, current)
}

// GetCrawlTimes implements Backend.
func (b *RemoteBackend) GetCrawlTimes(ctx context.Context, date string) ([]string, error) {
	db, err := b.conn(ctx, date)
	if err != nil {
		return nil, err
	}
	return readCrawlTimes(ctx, db)
}

// IsFirstCrawlToday implements Backend.
func (b *RemoteBackend) IsFirstCrawlToday(ctx context.Context, date string) (bool, error) {
	db, err := b.conn(ctx, date)
	if err != nil {
		return true, err
	}
	return isFirstCrawl(ctx, db)
}

// SaveTXTSnapshot implements Backend. Remote mode writes snapshots into the
// temp directory only when explicitly enabled.
func (b *RemoteBackend) SaveTXTSnapshot(data *domain.NewsData) (string, error) {
	if !b.enableTXT {
		return "", nil
	}
	dir := filepath.Join(b.tempDir, util.DateFolder(data.Date, b.timezone), "txt")
	return WriteSnapshot(dir, data)
}

// SaveHTMLReport implements Backend.
func (b *RemoteBackend) SaveHTMLReport(content []byte, filename string) (string, error) {
	if !b.enableHTML {
		return "", nil
	}
	dir := filepath.Join(b.tempDir, util.DateFolder("", b.timezone), "html")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// HasPushedToday implements Backend.
func (b *RemoteBackend) HasPushedToday(ctx context.Context, date string) (bool, error) {
	db, err := b.conn(ctx, date)
	if err != nil {
		return false, err
	}
	return hasPushed(ctx, db, util.DateFolder(date, b.timezone))
}

// RecordPush implements Backend. The record is uploaded immediately so the
// gate survives process restarts.
func (b *RemoteBackend) RecordPush(ctx context.Context, reportType, date string) error {
	db, err := b.conn(ctx, date)
	if err != nil {
		return err
	}
	now := util.Timestamp(util.NowIn(b.timezone))
	if err := writePushRecord(ctx, db, util.DateFolder(date, b.timezone), reportType, now); err != nil {
		return err
	}
	return b.uploadDay(ctx, date)
}

// CleanupOldData implements Backend: paginate news/, collect keys older
// than the cutoff (both date forms), delete in batches of up to 1000.
func (b *RemoteBackend) CleanupOldData(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	ctx := context.Background()
	loc := util.LoadLocation(b.timezone)
	cutoff := util.NowIn(b.timezone).AddDate(0, 0, -retentionDays)

	var toDelete []s3types.ObjectIdentifier
	deletedDates := make(map[string]bool)

	var continuation *string
	for {
		page, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(remotePrefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return 0, fmt.Errorf("listing remote objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			date, ok := parseRemoteKey(key, loc)
			if !ok || !date.Before(cutoff) {
				continue
			}
			toDelete = append(toDelete, s3types.ObjectIdentifier{Key: obj.Key})
			deletedDates[date.Format("2006-01-02")] = true
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuation = page.NextContinuationToken
	}

	for i := 0; i < len(toDelete); i += deleteBatchSize {
		end := i + deleteBatchSize
		if end > len(toDelete) {
			end = len(toDelete)
		}
		batch := toDelete[i:end]
		if _, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &s3types.Delete{Objects: batch},
		}); err != nil {
			return len(deletedDates), fmt.Errorf("deleting batch: %w", err)
		}
		b.log.Info("expired objects deleted", "count", len(batch))
	}

	return len(deletedDates), nil
}

// parseRemoteKey extracts the date from news/<date>.db in either form.
func parseRemoteKey(key string, loc *time.Location) (time.Time, bool) {
	m := remoteISORe.FindStringSubmatch(key)
	if m == nil {
		m = remoteLegacyRe.FindStringSubmatch(key)
	}
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// PullRecentDays implements RemoteCapable.
func (b *RemoteBackend) PullRecentDays(ctx context.Context, days int, localDataDir string) ([]PullResult, error) {
	if days <= 0 {
		return nil, nil
	}
	now := util.NowIn(b.timezone)
	results := make([]PullResult, 0, days)

	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		localDB := filepath.Join(localDataDir, date, "news.db")

		if _, err := os.Stat(localDB); err == nil {
			results = append(results, PullResult{Date: date, Status: "skipped", Reason: "local copy exists"})
			continue
		}
		key := remotePrefix + date + ".db"
		if !b.objectExists(ctx, key) {
			results = append(results, PullResult{Date: date, Status: "skipped", Reason: "not on remote"})
			continue
		}
		if err := b.downloadObject(ctx, key, localDB); err != nil {
			b.log.Error("pulling day database", "date", date, "error", err)
			results = append(results, PullResult{Date: date, Status: "failed", Reason: err.Error()})
			continue
		}
		b.log.Info("day database pulled", "key", key, "path", localDB)
		results = append(results, PullResult{Date: date, Status: "synced"})
	}
	return results, nil
}

// ListRemoteDates implements RemoteCapable: ISO-named day databases, newest
// first.
func (b *RemoteBackend) ListRemoteDates(ctx context.Context) ([]string, error) {
	var dates []string
	var continuation *string
	for {
		page, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(remotePrefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("listing remote objects: %w", err)
		}
		for _, obj := range page.Contents {
			if m := remoteISORe.FindStringSubmatch(aws.ToString(obj.Key)); m != nil {
				dates = append(dates, fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
			}
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuation = page.NextContinuationToken
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// Cleanup implements Backend: close connections, drop the temp directory.
// Idempotent, and safe to call during process teardown.
func (b *RemoteBackend) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cleaned {
		return
	}
	b.cleaned = true

	for path, db := range b.conns {
		if err := db.Close(); err != nil && b.log != nil {
			b.log.Warn("closing day database", "path", path, "error", err)
		}
	}
	b.conns = make(map[string]*sql.DB)

	if b.tempDir != "" {
		if err := os.RemoveAll(b.tempDir); err != nil && b.log != nil {
			b.log.Warn("removing temp dir", "path", b.tempDir, "error", err)
		}
	}
}
