package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"trendradar/internal/domain"
	"trendradar/internal/urlnorm"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// openDay opens (or creates) a day database and applies the schema.
func openDay(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The engine assumes a single writer per day; one connection keeps
	// SQLite happy about that.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return db, nil
}

// saveStats counts the outcome of one merge.
type saveStats struct {
	New          int
	Updated      int
	TitleChanged int
}

// saveBatch merges one crawl batch into an open day database. The merge is
// atomic: everything happens inside a single transaction.
func saveBatch(ctx context.Context, db *sql.DB, data *domain.NewsData, now string) (saveStats, error) {
	var stats saveStats

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	for _, platformID := range data.PlatformIDs() {
		name := data.IDToName[platformID]
		if name == "" {
			name = platformID
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO platforms (id, name, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at
		`, platformID, name, now); err != nil {
			return stats, fmt.Errorf("upserting platform %s: %w", platformID, err)
		}
	}

	for _, platformID := range data.PlatformIDs() {
		for _, item := range data.Items[platformID] {
			if err := saveItem(ctx, tx, platformID, item, data.CrawlTime, now, &stats); err != nil {
				return stats, fmt.Errorf("saving item %q: %w", item.Title, err)
			}
		}
	}

	totalItems := stats.New + stats.Updated
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crawl_records (crawl_time, total_items, created_at) VALUES (?, ?, ?)
		ON CONFLICT(crawl_time) DO UPDATE SET total_items = excluded.total_items
	`, data.CrawlTime, totalItems, now); err != nil {
		return stats, fmt.Errorf("upserting crawl record: %w", err)
	}

	var recordID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM crawl_records WHERE crawl_time = ?`, data.CrawlTime,
	).Scan(&recordID); err != nil {
		return stats, fmt.Errorf("reading crawl record id: %w", err)
	}

	for _, platformID := range data.PlatformIDs() {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO crawl_source_status (crawl_record_id, platform_id, status)
			VALUES (?, ?, 'success')
		`, recordID, platformID); err != nil {
			return stats, err
		}
	}
	for _, failedID := range data.FailedIDs {
		// Failed platforms may never have been seen before.
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO platforms (id, name, updated_at) VALUES (?, ?, ?)
		`, failedID, failedID, now); err != nil {
			return stats, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO crawl_source_status (crawl_record_id, platform_id, status)
			VALUES (?, ?, 'failed')
		`, recordID, failedID); err != nil {
			return stats, err
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, err
	}
	return stats, nil
}

// saveItem merges a single NewsItem. Rows are keyed on the canonical URL;
// empty-URL items are always inserted.
func saveItem(ctx context.Context, tx *sql.Tx, platformID string, item domain.NewsItem, crawlTime, now string, stats *saveStats) error {
	normalized := urlnorm.Canonicalize(item.URL, platformID)

	if normalized != "" {
		var existingID int64
		var existingTitle string
		err := tx.QueryRowContext(ctx,
			`SELECT id, title FROM news_items WHERE platform_id = ? AND url = ?`,
			platformID, normalized,
		).Scan(&existingID, &existingTitle)
		switch {
		case err == nil:
			if existingTitle != item.Title {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO title_changes (news_item_id, old_title, new_title, changed_at)
					VALUES (?, ?, ?, ?)
				`, existingID, existingTitle, item.Title, now); err != nil {
					return err
				}
				stats.TitleChanged++
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO rank_history (news_item_id, rank, crawl_time, created_at)
				VALUES (?, ?, ?, ?)
			`, existingID, item.Rank, crawlTime, now); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE news_items SET
					title = ?, rank = ?, mobile_url = ?,
					last_crawl_time = ?, crawl_count = crawl_count + 1, updated_at = ?
				WHERE id = ?
			`, item.Title, item.Rank, item.MobileURL, crawlTime, now, existingID); err != nil {
				return err
			}
			stats.Updated++
			return nil
		case err != sql.ErrNoRows:
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO news_items
			(title, platform_id, rank, url, mobile_url,
			 first_crawl_time, last_crawl_time, crawl_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, item.Title, platformID, item.Rank, normalized, item.MobileURL, crawlTime, crawlTime, now, now)
	if err != nil {
		return err
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rank_history (news_item_id, rank, crawl_time, created_at)
		VALUES (?, ?, ?, ?)
	`, newID, item.Rank, crawlTime, now); err != nil {
		return err
	}
	stats.New++
	return nil
}

const newsSelect = `
	SELECT n.id, n.title, n.platform_id, p.name, n.rank, n.url, n.mobile_url,
	       n.first_crawl_time, n.last_crawl_time, n.crawl_count
	FROM news_items n
	LEFT JOIN platforms p ON n.platform_id = p.id
`

// queryRankHistory batch-fetches rank history for the given item ids, in
// temporal order per item.
func queryRankHistory(ctx context.Context, db *sql.DB, ids []int64) (map[int64][]int, error) {
	history := make(map[int64][]int, len(ids))
	if len(ids) == 0 {
		return history, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT news_item_id, rank FROM rank_history
		WHERE news_item_id IN (%s)
		ORDER BY news_item_id, crawl_time
	`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var rank int
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, err
		}
		history[id] = append(history[id], rank)
	}
	return history, rows.Err()
}

// readDay returns the merged view of a whole day from an open database, or
// (nil, nil) when empty.
func readDay(ctx context.Context, db *sql.DB, date string) (*domain.NewsData, error) {
	rows, err := db.QueryContext(ctx, newsSelect+` ORDER BY n.platform_id, n.last_crawl_time`)
	if err != nil {
		return nil, err
	}
	items, idToName, count, err := scanItemsWithHistory(ctx, db, rows)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	failedIDs, err := queryStrings(ctx, db, `
		SELECT DISTINCT css.platform_id
		FROM crawl_source_status css
		JOIN crawl_records cr ON css.crawl_record_id = cr.id
		WHERE css.status = 'failed'
	`)
	if err != nil {
		return nil, err
	}

	crawlTime, err := latestCrawlTime(ctx, db)
	if err != nil {
		return nil, err
	}

	return &domain.NewsData{
		Date:      date,
		CrawlTime: crawlTime,
		Items:     items,
		IDToName:  idToName,
		FailedIDs: failedIDs,
	}, nil
}

// readLatest returns only the most recent crawl batch, or (nil, nil).
func readLatest(ctx context.Context, db *sql.DB, date string) (*domain.NewsData, error) {
	latest, err := latestCrawlTime(ctx, db)
	if err != nil {
		return nil, err
	}
	if latest == "" {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, newsSelect+` WHERE n.last_crawl_time = ?`, latest)
	if err != nil {
		return nil, err
	}
	items, idToName, count, err := scanItemsWithHistory(ctx, db, rows)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	failedIDs, err := queryStrings(ctx, db, `
		SELECT css.platform_id
		FROM crawl_source_status css
		JOIN crawl_records cr ON css.crawl_record_id = cr.id
		WHERE cr.crawl_time = ? AND css.status = 'failed'
	`, latest)
	if err != nil {
		return nil, err
	}

	return &domain.NewsData{
		Date:      date,
		CrawlTime: latest,
		Items:     items,
		IDToName:  idToName,
		FailedIDs: failedIDs,
	}, nil
}

// scanItemsWithHistory consumes the rows and hydrates each item's rank
// history in one batch query.
func scanItemsWithHistory(ctx context.Context, db *sql.DB, rows *sql.Rows) (map[string][]domain.NewsItem, map[string]string, int, error) {
	defer rows.Close()

	items := make(map[string][]domain.NewsItem)
	idToName := make(map[string]string)
	var ids []int64
	type ref struct {
		platform string
		index    int
	}
	refs := make(map[int64]ref)

	for rows.Next() {
		var (
			id                  int64
			title, platformID   string
			name                sql.NullString
			rank, crawlCount    int
			url, mobileURL      string
			firstTime, lastTime string
		)
		if err := rows.Scan(&id, &title, &platformID, &name, &rank, &url, &mobileURL,
			&firstTime, &lastTime, &crawlCount); err != nil {
			return nil, nil, 0, err
		}
		platformName := platformID
		if name.Valid && name.String != "" {
			platformName = name.String
		}
		idToName[platformID] = platformName

		items[platformID] = append(items[platformID], domain.NewsItem{
			Title:        title,
			PlatformID:   platformID,
			PlatformName: platformName,
			Rank:         rank,
			URL:          url,
			MobileURL:    mobileURL,
			FirstSeen:    firstTime,
			LastSeen:     lastTime,
			CrawlCount:   crawlCount,
			RankHistory:  []int{rank},
		})
		refs[id] = ref{platform: platformID, index: len(items[platformID]) - 1}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, 0, err
	}

	history, err := queryRankHistory(ctx, db, ids)
	if err != nil {
		return nil, nil, 0, err
	}
	for id, ranks := range history {
		if r, ok := refs[id]; ok && len(ranks) > 0 {
			items[r.platform][r.index].RankHistory = ranks
		}
	}

	return items, idToName, len(ids), nil
}

func latestCrawlTime(ctx context.Context, db *sql.DB) (string, error) {
	var t sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT MAX(crawl_time) FROM crawl_records`).Scan(&t)
	if err != nil {
		return "", err
	}
	if !t.Valid {
		return "", nil
	}
	return t.String, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func readCrawlTimes(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryStrings(ctx, db, `SELECT crawl_time FROM crawl_records ORDER BY crawl_time`)
}

func isFirstCrawl(ctx context.Context, db *sql.DB) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crawl_records`).Scan(&count); err != nil {
		return true, err
	}
	return count <= 1, nil
}

func hasPushed(ctx context.Context, db *sql.DB, date string) (bool, error) {
	var pushed int
	err := db.QueryRowContext(ctx,
		`SELECT pushed FROM push_records WHERE date = ?`, date).Scan(&pushed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return pushed != 0, nil
}

func writePushRecord(ctx context.Context, db *sql.DB, date, reportType, now string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO push_records (date, pushed, push_time, report_type, created_at)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			pushed = 1,
			push_time = excluded.push_time,
			report_type = excluded.report_type
	`, date, now, reportType, now)
	return err
}

// detectNewTitles implements the shared new-title logic over any backend.
// Only titles first seen strictly before the current crawl time count as
// historical; otherwise a title whose sole occurrence is the current batch
// would wrongly exclude itself.
func detectNewTitles(ctx context.Context, b Backend, current *domain.NewsData) (map[string]map[string]domain.NewsItem, error) {
	historical, err := b.GetTodayAllData(ctx, current.Date)
	if err != nil {
		return nil, err
	}

	if historical == nil {
		// Nothing stored for the day yet: this is its first crawl.
		return map[string]map[string]domain.NewsItem{}, nil
	}

	historicalTitles := make(map[string]map[string]bool, len(historical.Items))
	hasHistory := false
	for platformID, list := range historical.Items {
		titles := make(map[string]bool)
		for _, item := range list {
			if item.FirstSeen < current.CrawlTime {
				titles[item.Title] = true
				hasHistory = true
			}
		}
		historicalTitles[platformID] = titles
	}
	if !hasHistory {
		// First crawl of the day: there is no "new" concept yet.
		return map[string]map[string]domain.NewsItem{}, nil
	}

	newTitles := make(map[string]map[string]domain.NewsItem)
	for platformID, list := range current.Items {
		hist := historicalTitles[platformID]
		for _, item := range list {
			if hist[item.Title] {
				continue
			}
			if newTitles[platformID] == nil {
				newTitles[platformID] = make(map[string]domain.NewsItem)
			}
			newTitles[platformID][item.Title] = item
		}
	}
	return newTitles, nil
}
