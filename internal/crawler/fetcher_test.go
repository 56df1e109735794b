package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendradar/internal/config"
)

func TestCrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "weibo":
			w.Write([]byte(`{"status":"success","items":[
				{"title":"第一条","url":"https://weibo.com/1","mobileUrl":"https://m.weibo.com/1"},
				{"title":"第二条","url":"https://weibo.com/2"}]}`))
		default:
			http.Error(w, "unknown platform", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(srv.URL, "", nil)
	require.NoError(t, err)

	results, idToName, failed := f.Crawl(context.Background(), []config.Platform{
		{ID: "weibo", Name: "微博"},
		{ID: "ghost"},
	}, 0)

	assert.Equal(t, []string{"ghost"}, failed)
	assert.Equal(t, "微博", idToName["weibo"])

	require.Contains(t, results, "weibo")
	first := results["weibo"]["第一条"]
	assert.Equal(t, []int{1}, first.Ranks)
	assert.Equal(t, "https://weibo.com/1", first.URL)
	assert.Equal(t, "https://m.weibo.com/1", first.MobileURL)
	assert.Equal(t, []int{2}, results["weibo"]["第二条"].Ranks)
}

func TestCrawlEmptyBoardIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","items":[]}`))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(srv.URL, "", nil)
	require.NoError(t, err)

	results, _, failed := f.Crawl(context.Background(), []config.Platform{{ID: "weibo"}}, 0)
	assert.Empty(t, results)
	assert.Equal(t, []string{"weibo"}, failed)
}

func TestNewHTTPFetcherBadProxy(t *testing.T) {
	_, err := NewHTTPFetcher("https://api.example.com", "://bad", nil)
	assert.Error(t, err)
}
