package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromCrawlResults(t *testing.T) {
	results := map[string]map[string]TitleInfo{
		"weibo": {
			"第二条": {Ranks: []int{2}, URL: "https://weibo.com/2"},
			"第一条": {Ranks: []int{1}, URL: "https://weibo.com/1", MobileURL: "https://m.weibo.com/1"},
			"无排名": {},
		},
	}
	data := FromCrawlResults(results, map[string]string{"weibo": "微博"}, []string{"zhihu"}, "2025-11-26", "09-30")

	assert.Equal(t, "2025-11-26", data.Date)
	assert.Equal(t, "09-30", data.CrawlTime)
	assert.Equal(t, []string{"zhihu"}, data.FailedIDs)
	assert.Equal(t, 3, data.TotalItems())
	assert.Equal(t, []string{"weibo"}, data.PlatformIDs())

	list := data.Items["weibo"]
	require.Len(t, list, 3)
	assert.Equal(t, "第一条", list[0].Title)
	assert.Equal(t, 1, list[0].Rank)
	assert.Equal(t, []int{1}, list[0].RankHistory)
	assert.Equal(t, "09-30", list[0].FirstSeen)
	assert.Equal(t, 1, list[0].CrawlCount)

	// A title without ranks gets the missing-rank sentinel and sorts last.
	assert.Equal(t, "无排名", list[2].Title)
	assert.Equal(t, RankMissing, list[2].Rank)
}

func TestMinMaxRank(t *testing.T) {
	item := NewsItem{Rank: 7, RankHistory: []int{5, 2, 9}}
	assert.Equal(t, 2, item.MinRank())
	assert.Equal(t, 9, item.MaxRank())

	bare := NewsItem{Rank: 7}
	assert.Equal(t, 7, bare.MinRank())
	assert.Equal(t, 7, bare.MaxRank())
}
