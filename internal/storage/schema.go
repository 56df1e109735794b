package storage

// schema is applied idempotently every time a day database is opened.
const schema = `
CREATE TABLE IF NOT EXISTS platforms (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS news_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    platform_id TEXT NOT NULL REFERENCES platforms(id),
    title TEXT NOT NULL,
    rank INTEGER NOT NULL DEFAULT 99,
    url TEXT NOT NULL DEFAULT '',
    mobile_url TEXT NOT NULL DEFAULT '',
    first_crawl_time TEXT NOT NULL,
    last_crawl_time TEXT NOT NULL,
    crawl_count INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Identity key for deduplication. Empty-URL rows are exempt: they are
-- always inserted, never merged.
CREATE UNIQUE INDEX IF NOT EXISTS idx_news_items_platform_url
    ON news_items(platform_id, url) WHERE url != '';
CREATE INDEX IF NOT EXISTS idx_news_items_last_crawl
    ON news_items(last_crawl_time);

CREATE TABLE IF NOT EXISTS rank_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    news_item_id INTEGER NOT NULL REFERENCES news_items(id),
    rank INTEGER NOT NULL,
    crawl_time TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rank_history_item
    ON rank_history(news_item_id, crawl_time);

CREATE TABLE IF NOT EXISTS title_changes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    news_item_id INTEGER NOT NULL REFERENCES news_items(id),
    old_title TEXT NOT NULL,
    new_title TEXT NOT NULL,
    changed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS crawl_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    crawl_time TEXT NOT NULL UNIQUE,
    total_items INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS crawl_source_status (
    crawl_record_id INTEGER NOT NULL REFERENCES crawl_records(id),
    platform_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('success', 'failed')),
    PRIMARY KEY (crawl_record_id, platform_id)
);

CREATE TABLE IF NOT EXISTS push_records (
    date TEXT PRIMARY KEY,
    pushed INTEGER NOT NULL DEFAULT 0,
    push_time TEXT,
    report_type TEXT,
    created_at TEXT NOT NULL
);
`
