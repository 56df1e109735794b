package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendradar/internal/domain"
	"trendradar/internal/keywords"
)

func TestNewsWeight(t *testing.T) {
	// ranks=[1,1,2], count=3, threshold=3:
	// rank_score = (10+10+9)/3 = 9.67, frequency = 30, hotness = 100
	// weight = 9.67*0.4 + 30*0.3 + 100*0.3 = 42.87
	w := NewsWeight([]int{1, 1, 2}, 3, 3, DefaultWeights())
	assert.InDelta(t, 42.87, w, 0.01)
}

func TestNewsWeightEdges(t *testing.T) {
	assert.Equal(t, 0.0, NewsWeight(nil, 0, 3, DefaultWeights()))

	// Ranks beyond 10 are capped: rank_score floor is 1.
	low := NewsWeight([]int{50}, 1, 3, DefaultWeights())
	assert.InDelta(t, 1*0.4+10*0.3+0*0.3, low, 0.001)
}

func TestNewsWeightMonotonicInCount(t *testing.T) {
	ranks := []int{5, 5}
	prev := -1.0
	for count := 1; count <= 10; count++ {
		w := NewsWeight(ranks, count, 3, DefaultWeights())
		assert.Greater(t, w, prev, "weight must grow with crawl_count up to 10")
		prev = w
	}
	// Beyond 10 the frequency term saturates.
	assert.Equal(t, prev, NewsWeight(ranks, 11, 3, DefaultWeights()))
	assert.Equal(t, prev, NewsWeight(ranks, 100, 3, DefaultWeights()))
}

func dayData(items map[string][]domain.NewsItem) *domain.NewsData {
	return &domain.NewsData{
		Date:      "2025-11-26",
		CrawlTime: "10-00",
		Items:     items,
		IDToName:  map[string]string{"weibo": "微博", "zhihu": "知乎"},
	}
}

func newsItem(title string, ranks []int, first, last string) domain.NewsItem {
	return domain.NewsItem{
		Title:        title,
		PlatformID:   "weibo",
		PlatformName: "微博",
		Rank:         ranks[len(ranks)-1],
		FirstSeen:    first,
		LastSeen:     last,
		CrawlCount:   len(ranks),
		RankHistory:  ranks,
	}
}

func TestAnalyzeDailyGroups(t *testing.T) {
	rules := keywords.Parse("特斯拉\n\nAI\n")
	day := dayData(map[string][]domain.NewsItem{
		"weibo": {
			newsItem("特斯拉降价", []int{1}, "09-00", "09-00"),
			newsItem("特斯拉新车", []int{2}, "09-00", "10-00"),
			newsItem("AI大模型", []int{3}, "09-00", "09-00"),
			newsItem("无关新闻", []int{4}, "09-00", "09-00"),
		},
	})

	stats, total := Analyze(day, nil, rules, Options{Mode: ModeDaily, RankThreshold: 3})
	require.Len(t, stats, 2)
	assert.Equal(t, 4, total)

	// Default cross-group order: by count desc.
	assert.Equal(t, "特斯拉", stats[0].GroupKey)
	assert.Equal(t, 2, stats[0].Count)
	assert.Equal(t, 50.0, stats[0].Percentage)
	assert.Equal(t, "AI", stats[1].GroupKey)
	assert.Equal(t, 1, stats[1].Count)
	assert.Equal(t, 25.0, stats[1].Percentage)
}

func TestAnalyzeFirstMatchClaimsTitle(t *testing.T) {
	rules := keywords.Parse("AI\n\n芯片\n")
	day := dayData(map[string][]domain.NewsItem{
		"weibo": {newsItem("AI芯片突破", []int{1}, "09-00", "09-00")},
	})

	stats, _ := Analyze(day, nil, rules, Options{Mode: ModeDaily, RankThreshold: 3})
	byKey := map[string]int{}
	for _, s := range stats {
		byKey[s.GroupKey] = s.Count
	}
	assert.Equal(t, 1, byKey["AI"])
	assert.Equal(t, 0, byKey["芯片"], "no double counting")
}

func TestAnalyzeSyntheticAllNewsGroup(t *testing.T) {
	day := dayData(map[string][]domain.NewsItem{
		"weibo": {
			newsItem("随便什么", []int{1}, "09-00", "09-00"),
			newsItem("广告内容", []int{2}, "09-00", "09-00"),
		},
	})

	// No rules: everything matches, filters are bypassed.
	stats, total := Analyze(day, nil, &keywords.Rules{GlobalFilters: []string{"广告"}}, Options{Mode: ModeDaily, RankThreshold: 3})
	require.Len(t, stats, 1)
	assert.Equal(t, AllNewsGroupKey, stats[0].GroupKey)
	assert.Equal(t, 2, stats[0].Count)
	assert.Equal(t, 2, total)
}

func TestAnalyzeGroupCap(t *testing.T) {
	rules := keywords.Parse("热点\n@2\n")
	day := dayData(map[string][]domain.NewsItem{
		"weibo": {
			newsItem("热点一", []int{1}, "09-00", "09-00"),
			newsItem("热点二", []int{2}, "09-00", "09-00"),
			newsItem("热点三", []int{3}, "09-00", "09-00"),
		},
	})

	stats, _ := Analyze(day, nil, rules, Options{Mode: ModeDaily, RankThreshold: 3})
	require.Len(t, stats, 1)
	assert.Equal(t, 3, stats[0].Count, "count reflects all matches")
	assert.Len(t, stats[0].Titles, 2, "titles are capped")
}

func TestAnalyzeTitleOrdering(t *testing.T) {
	rules := keywords.Parse("热点\n")
	day := dayData(map[string][]domain.NewsItem{
		"weibo": {
			newsItem("热点弱", []int{9}, "09-00", "09-00"),
			newsItem("热点强", []int{1, 1}, "09-00", "10-00"),
		},
	})

	stats, _ := Analyze(day, nil, rules, Options{Mode: ModeDaily, RankThreshold: 3})
	require.Len(t, stats[0].Titles, 2)
	assert.Equal(t, "热点强", stats[0].Titles[0].Title)
	assert.Greater(t, stats[0].Titles[0].Weight, stats[0].Titles[1].Weight)
}

func TestAnalyzeIncrementalMode(t *testing.T) {
	rules := &keywords.Rules{}
	day := dayData(map[string][]domain.NewsItem{
		"weibo": {
			newsItem("旧闻", []int{1, 2}, "09-00", "10-00"),
			newsItem("新闻", []int{3}, "10-00", "10-00"),
		},
	})
	newTitles := map[string]map[string]domain.NewsItem{
		"weibo": {"新闻": day.Items["weibo"][1]},
	}

	stats, total := Analyze(day, newTitles, rules, Options{Mode: ModeIncremental, RankThreshold: 3})
	assert.Equal(t, 1, total)
	require.Len(t, stats, 1)
	require.Len(t, stats[0].Titles, 1)
	assert.Equal(t, "新闻", stats[0].Titles[0].Title)
	assert.True(t, stats[0].Titles[0].IsNew)
}

func TestAnalyzeIncrementalFirstCrawlTakesAll(t *testing.T) {
	rules := &keywords.Rules{}
	day := dayData(map[string][]domain.NewsItem{
		"weibo": {newsItem("唯一新闻", []int{1}, "09-00", "09-00")},
	})

	stats, total := Analyze(day, nil, rules, Options{
		Mode: ModeIncremental, RankThreshold: 3, IsFirstToday: true,
	})
	assert.Equal(t, 1, total)
	require.Len(t, stats[0].Titles, 1)
	assert.True(t, stats[0].Titles[0].IsNew)
}

func TestAnalyzeCurrentMode(t *testing.T) {
	rules := &keywords.Rules{}
	day := dayData(map[string][]domain.NewsItem{
		"weibo": {
			newsItem("掉榜", []int{1}, "09-00", "09-00"),
			newsItem("在榜", []int{2, 3}, "09-00", "10-00"),
		},
	})

	stats, total := Analyze(day, nil, rules, Options{Mode: ModeCurrent, RankThreshold: 3})
	assert.Equal(t, 1, total)
	require.Len(t, stats[0].Titles, 1)
	assert.Equal(t, "在榜", stats[0].Titles[0].Title)
	// Stats still come from the full history of the item.
	assert.Equal(t, 2, stats[0].Titles[0].Count)
	assert.Equal(t, "[09:00 ~ 10:00]", stats[0].Titles[0].TimeDisplay)
}

func TestAnalyzeSortByPosition(t *testing.T) {
	rules := keywords.Parse("小组\n\n大组\n")
	day := dayData(map[string][]domain.NewsItem{
		"weibo": {
			newsItem("小组一", []int{1}, "09-00", "09-00"),
			newsItem("大组一", []int{2}, "09-00", "09-00"),
			newsItem("大组二", []int{3}, "09-00", "09-00"),
		},
	})

	byCount, _ := Analyze(day, nil, rules, Options{Mode: ModeDaily, RankThreshold: 3})
	assert.Equal(t, "大组", byCount[0].GroupKey)

	byPos, _ := Analyze(day, nil, rules, Options{Mode: ModeDaily, RankThreshold: 3, SortByPosition: true})
	assert.Equal(t, "小组", byPos[0].GroupKey)
}
