package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendradar/internal/domain"
	"trendradar/internal/util"
)

func newTestRemote(t *testing.T, fake *fakeS3) *RemoteBackend {
	t.Helper()
	b, err := NewRemoteBackend(RemoteOptions{
		Client:   fake,
		Bucket:   "trend-bucket",
		Timezone: "Asia/Shanghai",
		TempDir:  t.TempDir(),
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(b.Cleanup)
	return b
}

func TestSignatureVersion(t *testing.T) {
	assert.Equal(t, "s3", SignatureVersion("https://cos.ap-guangzhou.myqcloud.com"))
	assert.Equal(t, "s3v4", SignatureVersion("https://abc.r2.cloudflarestorage.com"))
	assert.Equal(t, "s3v4", SignatureVersion("https://s3.amazonaws.com"))
}

func TestRemoteSaveUploadsAndVerifies(t *testing.T) {
	fake := newFakeS3()
	b := newTestRemote(t, fake)
	ctx := context.Background()

	data := batch("2025-11-26", "09-00", map[string][]domain.NewsItem{
		"weibo": {item("headline", "https://weibo.com/1", 1)},
		"zhihu": {item("question", "https://zhihu.com/q/1", 2)},
	})
	require.NoError(t, b.SaveNewsData(ctx, data))

	assert.Contains(t, fake.objects, "news/2025-11-26.db")
	assert.Equal(t, 1, fake.putCalls)
	assert.NotEmpty(t, fake.objects["news/2025-11-26.db"])
}

func TestRemoteSaveFailsWhenUploadFails(t *testing.T) {
	fake := newFakeS3()
	fake.failPut = true
	b := newTestRemote(t, fake)

	err := b.SaveNewsData(context.Background(), batch("2025-11-26", "09-00", map[string][]domain.NewsItem{
		"weibo": {item("headline", "https://weibo.com/1", 1)},
	}))
	assert.Error(t, err)
}

func TestRemoteDownloadMergeCycle(t *testing.T) {
	fake := newFakeS3()

	// First backend instance writes a batch and uploads it.
	b1 := newTestRemote(t, fake)
	ctx := context.Background()
	require.NoError(t, b1.SaveNewsData(ctx, batch("2025-11-26", "09-00", map[string][]domain.NewsItem{
		"weibo": {item("headline", "https://weibo.com/1", 5)},
	})))
	b1.Cleanup()

	// A fresh instance must download the existing database and merge.
	b2 := newTestRemote(t, fake)
	require.NoError(t, b2.SaveNewsData(ctx, batch("2025-11-26", "10-00", map[string][]domain.NewsItem{
		"weibo": {item("headline", "https://weibo.com/1", 2)},
	})))

	got, err := b2.GetTodayAllData(ctx, "2025-11-26")
	require.NoError(t, err)
	require.Len(t, got.Items["weibo"], 1)
	w := got.Items["weibo"][0]
	assert.Equal(t, 2, w.CrawlCount)
	assert.Equal(t, []int{5, 2}, w.RankHistory)
}

func TestRemoteRoundTripThroughLocal(t *testing.T) {
	fake := newFakeS3()
	remote := newTestRemote(t, fake)
	ctx := context.Background()

	data := batch("", "09-00", map[string][]domain.NewsItem{
		"weibo": {item("headline one", "https://weibo.com/1", 1)},
		"zhihu": {item("question one", "https://zhihu.com/q/1", 1)},
	})
	today := util.DateFolder("", "Asia/Shanghai")
	data.Date = today
	require.NoError(t, remote.SaveNewsData(ctx, data))

	dates, err := remote.ListRemoteDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{today}, dates)

	// Pull into an empty local dir, then read it with the local engine.
	localDir := t.TempDir()
	results, err := remote.PullRecentDays(ctx, 1, localDir)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "synced", results[0].Status)
	assert.FileExists(t, filepath.Join(localDir, today, "news.db"))

	local := NewLocalBackend(LocalOptions{DataDir: localDir, Timezone: "Asia/Shanghai", Logger: testLogger()})
	t.Cleanup(local.Cleanup)
	got, err := local.GetTodayAllData(ctx, today)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Items["weibo"], 1)
	assert.Len(t, got.Items["zhihu"], 1)
	assert.Equal(t, "headline one", got.Items["weibo"][0].Title)
}

func TestPullRecentDaysSkips(t *testing.T) {
	fake := newFakeS3()
	remote := newTestRemote(t, fake)
	ctx := context.Background()

	today := util.DateFolder("", "Asia/Shanghai")
	localDir := t.TempDir()

	// Local copy already present.
	require.NoError(t, os.MkdirAll(filepath.Join(localDir, today), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(localDir, today, "news.db"), []byte("x"), 0o644))

	results, err := remote.PullRecentDays(ctx, 2, localDir)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "skipped", results[0].Status)
	assert.Equal(t, "local copy exists", results[0].Reason)
	assert.Equal(t, "skipped", results[1].Status)
	assert.Equal(t, "not on remote", results[1].Reason)
}

func TestRemoteCleanupOldData(t *testing.T) {
	fake := newFakeS3()
	fake.pageSize = 2 // force pagination
	fake.objects["news/2020-01-01.db"] = []byte("old")
	fake.objects["news/2020年01月02日.db"] = []byte("old legacy")
	fake.objects["news/"+util.DateFolder("", "Asia/Shanghai")+".db"] = []byte("fresh")
	fake.objects["other/2019-01-01.db"] = []byte("outside prefix")

	b := newTestRemote(t, fake)
	deleted, err := b.CleanupOldData(30)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	assert.NotContains(t, fake.objects, "news/2020-01-01.db")
	assert.NotContains(t, fake.objects, "news/2020年01月02日.db")
	assert.Contains(t, fake.objects, "news/"+util.DateFolder("", "Asia/Shanghai")+".db")
	assert.Contains(t, fake.objects, "other/2019-01-01.db")
}

func TestRemotePushRecordsUpload(t *testing.T) {
	fake := newFakeS3()
	b := newTestRemote(t, fake)
	ctx := context.Background()

	require.NoError(t, b.RecordPush(ctx, "daily", "2025-11-26"))
	assert.Contains(t, fake.objects, "news/2025-11-26.db")

	pushed, err := b.HasPushedToday(ctx, "2025-11-26")
	require.NoError(t, err)
	assert.True(t, pushed)
}

func TestRemoteCleanupIdempotent(t *testing.T) {
	fake := newFakeS3()
	b, err := NewRemoteBackend(RemoteOptions{
		Client:   fake,
		Bucket:   "trend-bucket",
		Timezone: "Asia/Shanghai",
		Logger:   testLogger(),
	})
	require.NoError(t, err)

	tempDir := b.tempDir
	b.Cleanup()
	b.Cleanup() // must not panic or error on double call
	assert.NoDirExists(t, tempDir)
}
