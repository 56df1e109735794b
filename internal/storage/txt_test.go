package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendradar/internal/domain"
)

func TestWriteSnapshotFormat(t *testing.T) {
	dir := t.TempDir()
	data := &domain.NewsData{
		Date:      "2025-11-26",
		CrawlTime: "09-30",
		Items: map[string][]domain.NewsItem{
			"weibo": {
				{Title: "second", Rank: 2, URL: "https://weibo.com/2"},
				{Title: "first", Rank: 1, URL: "https://weibo.com/1", MobileURL: "https://m.weibo.com/1"},
			},
			"bare": {
				{Title: "no links", Rank: 1},
			},
		},
		IDToName:  map[string]string{"weibo": "微博", "bare": "bare"},
		FailedIDs: []string{"baidu"},
	}

	path, err := WriteSnapshot(dir, data)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "09-30.txt"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)

	assert.Contains(t, text, "weibo | 微博\n")
	assert.Contains(t, text, "bare\n")
	assert.Contains(t, text, "1. first [URL:https://weibo.com/1] [MOBILE:https://m.weibo.com/1]\n")
	assert.Contains(t, text, "2. second [URL:https://weibo.com/2]\n")
	assert.Contains(t, text, "1. no links\n")
	assert.Contains(t, text, "==== 以下ID请求失败 ====\nbaidu\n")
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := &domain.NewsData{
		Date:      "2025-11-26",
		CrawlTime: "09-30",
		Items: map[string][]domain.NewsItem{
			"weibo": {
				{Title: "headline", Rank: 3, URL: "https://weibo.com/x", MobileURL: "https://m.weibo.com/x"},
			},
		},
		IDToName:  map[string]string{"weibo": "微博"},
		FailedIDs: []string{"baidu"},
	}

	path, err := WriteSnapshot(dir, data)
	require.NoError(t, err)

	titles, idToName, err := ParseSnapshotFile(path)
	require.NoError(t, err)

	assert.Equal(t, "微博", idToName["weibo"])
	require.Contains(t, titles, "weibo")
	info, ok := titles["weibo"]["headline"]
	require.True(t, ok)
	assert.Equal(t, []int{3}, info.Ranks)
	assert.Equal(t, "https://weibo.com/x", info.URL)
	assert.Equal(t, "https://m.weibo.com/x", info.MobileURL)

	// The failed-section platform must not become a content section.
	assert.NotContains(t, titles, "baidu")
}

func TestParseSnapshotDirMerges(t *testing.T) {
	dir := t.TempDir()

	write := func(crawlTime string, items map[string][]domain.NewsItem) {
		_, err := WriteSnapshot(dir, &domain.NewsData{
			Date:      "2025-11-26",
			CrawlTime: crawlTime,
			Items:     items,
			IDToName:  map[string]string{"p": "P"},
		})
		require.NoError(t, err)
	}
	write("09-00", map[string][]domain.NewsItem{
		"p": {{Title: "A", Rank: 1, URL: "https://p/a"}, {Title: "B", Rank: 2}},
	})
	write("10-00", map[string][]domain.NewsItem{
		"p": {{Title: "A", Rank: 4}, {Title: "C", Rank: 1}},
	})

	all, idToName, err := ParseSnapshotDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "P", idToName["p"])

	a := all["p"]["A"]
	require.NotNil(t, a)
	assert.Equal(t, []int{1, 4}, a.Ranks)
	assert.Equal(t, "09-00", a.FirstTime)
	assert.Equal(t, "10-00", a.LastTime)
	assert.Equal(t, 2, a.Count)
	assert.Equal(t, "https://p/a", a.URL)

	c := all["p"]["C"]
	require.NotNil(t, c)
	assert.Equal(t, 1, c.Count)
	assert.Equal(t, "10-00", c.FirstTime)
}

func TestParseSnapshotLineMalformed(t *testing.T) {
	// Malformed lines are skipped, not fatal.
	_, _, ok := parseSnapshotLine("")
	assert.False(t, ok)

	title, info, ok := parseSnapshotLine("plain line without rank")
	assert.True(t, ok)
	assert.Equal(t, "plain line without rank", title)
	assert.Equal(t, []int{1}, info.Ranks)
}
