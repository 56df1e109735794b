package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"trendradar/internal/analyzer"
	"trendradar/internal/domain"
	"trendradar/internal/util"
)

// TrendingTopic is one entry of get_trending_topics.
type TrendingTopic struct {
	Topic      string  `json:"topic"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage,omitempty"`
}

// GetTrendingTopics ranks today's topics. In "keywords" mode the keyword
// groups are ranked by match count; in "auto_extract" mode titles are
// tokenized and n-grams of length 1-3 counted.
func (s *Service) GetTrendingTopics(ctx context.Context, topN int, mode, extractMode string) ([]TrendingTopic, error) {
	if topN <= 0 {
		topN = 10
	}
	if mode == "" {
		mode = analyzer.ModeDaily
	}

	day, err := s.backend.GetTodayAllData(ctx, s.today())
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, &ErrNotFound{Date: s.today()}
	}

	if extractMode == "auto_extract" {
		return s.autoExtract(day.Items, topN), nil
	}

	stats, _ := analyzer.Analyze(day, nil, s.rules, analyzer.Options{
		Mode:              mode,
		RankThreshold:     s.cfg.Report.RankThreshold,
		Weights:           analyzer.Weights(s.cfg.Report.Weights),
		MaxNewsPerKeyword: s.cfg.Report.MaxNewsPerKeyword,
		SortByPosition:    s.cfg.Report.SortByPosition,
	})

	topics := make([]TrendingTopic, 0, len(stats))
	for _, g := range stats {
		if g.Count == 0 {
			continue
		}
		topics = append(topics, TrendingTopic{Topic: g.GroupKey, Count: g.Count, Percentage: g.Percentage})
	}
	if len(topics) > topN {
		topics = topics[:topN]
	}
	return topics, nil
}

// autoExtract tokenizes every title and ranks n-grams (length 1-3) by
// frequency.
func (s *Service) autoExtract(items map[string][]domain.NewsItem, topN int) []TrendingTopic {
	stop := s.stopWordSet()
	counts := make(map[string]int)
	total := 0
	for _, list := range items {
		for _, it := range list {
			total++
			for gram, c := range ngrams(tokenize(it.Title, stop)) {
				counts[gram] += c
			}
		}
	}

	topics := make([]TrendingTopic, 0, len(counts))
	for gram, c := range counts {
		topics = append(topics, TrendingTopic{Topic: gram, Count: c})
	}
	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].Count != topics[j].Count {
			return topics[i].Count > topics[j].Count
		}
		return topics[i].Topic < topics[j].Topic
	})
	if len(topics) > topN {
		topics = topics[:topN]
	}
	return topics
}

// SentimentResult is the analyze_sentiment output.
type SentimentResult struct {
	Items     []SentimentItem `json:"items"`
	Histogram map[string]int  `json:"histogram"`
}

// SentimentItem pairs an item with its lexicon classification.
type SentimentItem struct {
	NewsItemView
	Sentiment string `json:"sentiment"`
}

// AnalyzeSentiment filters items by topic, dedupes by title keeping the
// highest-weight instance, classifies each against the configured lexicon,
// and aggregates a positive/neutral/negative histogram.
func (s *Service) AnalyzeSentiment(ctx context.Context, topic string, platforms []string, dateRange util.DateRange, limit int, sortByWeight, includeURL bool) (*SentimentResult, error) {
	items, err := s.rangeItems(ctx, dateRange, platforms, includeURL)
	if err != nil {
		return nil, err
	}

	if topic != "" {
		lower := strings.ToLower(topic)
		filtered := items[:0]
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Title), lower) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	// Dedupe across platforms: keep the heaviest instance of a title.
	best := make(map[string]NewsItemView)
	for _, it := range items {
		if prev, ok := best[it.Title]; !ok || it.Weight > prev.Weight {
			best[it.Title] = it
		}
	}
	deduped := make([]NewsItemView, 0, len(best))
	for _, it := range best {
		deduped = append(deduped, it)
	}

	if sortByWeight {
		sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Weight > deduped[j].Weight })
	} else {
		sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Title < deduped[j].Title })
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}

	result := &SentimentResult{Histogram: map[string]int{"positive": 0, "neutral": 0, "negative": 0}}
	for _, it := range deduped {
		sentiment := s.classify(it.Title)
		result.Histogram[sentiment]++
		result.Items = append(result.Items, SentimentItem{NewsItemView: it, Sentiment: sentiment})
	}
	return result, nil
}

// classify counts lexicon matches per class; the larger side wins, ties
// and no-hits are neutral.
func (s *Service) classify(title string) string {
	lower := strings.ToLower(title)
	pos, neg := 0, 0
	for _, w := range s.cfg.Analytics.Sentiment.Positive {
		if strings.Contains(lower, strings.ToLower(w)) {
			pos++
		}
	}
	for _, w := range s.cfg.Analytics.Sentiment.Negative {
		if strings.Contains(lower, strings.ToLower(w)) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return "positive"
	case neg > pos:
		return "negative"
	default:
		return "neutral"
	}
}

// RelatedItem is one find_related_news hit.
type RelatedItem struct {
	NewsItemView
	Similarity float64 `json:"similarity"`
}

// FindRelatedNews returns candidates whose bigram-cosine similarity to the
// reference title is at least the threshold, sorted descending.
func (s *Service) FindRelatedNews(ctx context.Context, referenceTitle string, dateRange util.DateRange, threshold float64, limit int) ([]RelatedItem, error) {
	items, err := s.rangeItems(ctx, dateRange, nil, false)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = 0.3
	}

	var related []RelatedItem
	for _, it := range items {
		if it.Title == referenceTitle {
			continue
		}
		sim := titleSimilarity(referenceTitle, it.Title)
		if sim >= threshold {
			related = append(related, RelatedItem{NewsItemView: it, Similarity: sim})
		}
	}
	sort.SliceStable(related, func(i, j int) bool { return related[i].Similarity > related[j].Similarity })
	if limit <= 0 {
		limit = 20
	}
	if len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

// SearchHit is one search_news result.
type SearchHit struct {
	NewsItemView
	Score float64 `json:"score"`
}

// SearchNews finds items by substring (keyword), bigram cosine (fuzzy), or
// entity-lexicon match (entity).
func (s *Service) SearchNews(ctx context.Context, query, searchMode string, dateRange util.DateRange, platforms []string, limit int, sortBy string, threshold float64, includeURL bool) ([]SearchHit, error) {
	items, err := s.rangeItems(ctx, dateRange, platforms, includeURL)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = 0.5
	}
	lower := strings.ToLower(query)

	var hits []SearchHit
	switch searchMode {
	case "fuzzy":
		for _, it := range items {
			if sim := titleSimilarity(query, it.Title); sim >= threshold {
				hits = append(hits, SearchHit{NewsItemView: it, Score: sim})
			}
		}
	case "entity":
		entities := s.matchingEntities(lower)
		if len(entities) == 0 {
			return nil, nil
		}
		for _, it := range items {
			titleLower := strings.ToLower(it.Title)
			for _, entity := range entities {
				if strings.Contains(titleLower, entity) {
					hits = append(hits, SearchHit{NewsItemView: it, Score: it.Weight})
					break
				}
			}
		}
	default: // keyword
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Title), lower) {
				score := float64(strings.Count(strings.ToLower(it.Title), lower))
				hits = append(hits, SearchHit{NewsItemView: it, Score: score})
			}
		}
	}

	switch sortBy {
	case "weight":
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Weight > hits[j].Weight })
	case "date":
		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].Date != hits[j].Date {
				return hits[i].Date > hits[j].Date
			}
			return hits[i].LastTime > hits[j].LastTime
		})
	default: // relevance
		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
			return hits[i].Weight > hits[j].Weight
		})
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// matchingEntities returns lexicon entries that contain the query or are
// contained in it, lowered.
func (s *Service) matchingEntities(queryLower string) []string {
	var out []string
	add := func(words []string) {
		for _, w := range words {
			wl := strings.ToLower(w)
			if strings.Contains(wl, queryLower) || strings.Contains(queryLower, wl) {
				out = append(out, wl)
			}
		}
	}
	add(s.cfg.Analytics.Entities.Persons)
	add(s.cfg.Analytics.Entities.Places)
	add(s.cfg.Analytics.Entities.Organizations)
	return out
}

// Cluster is one aggregate_news output cluster.
type Cluster struct {
	Representative  NewsItemView `json:"representative"`
	Size            int          `json:"size"`
	Platforms       []string     `json:"platforms"`
	BestRank        int          `json:"best_rank"`
	TotalWeight     float64      `json:"total_weight"`
	IsCrossPlatform bool         `json:"is_cross_platform"`
	Titles          []string     `json:"titles"`
}

// AggregateNews clusters near-duplicate titles across platforms with
// greedy single-link clustering over bigram cosine similarity.
func (s *Service) AggregateNews(ctx context.Context, dateRange util.DateRange, platforms []string, threshold float64, limit int, includeURL bool) ([]Cluster, error) {
	items, err := s.rangeItems(ctx, dateRange, platforms, includeURL)
	if err != nil {
		return nil, err
	}
	if threshold < 0.3 {
		threshold = 0.3
	}
	if threshold > 1.0 {
		threshold = 1.0
	}

	// Heaviest first, so cluster seeds are the strongest stories.
	sort.SliceStable(items, func(i, j int) bool { return items[i].Weight > items[j].Weight })

	var clusters [][]NewsItemView
next:
	for _, it := range items {
		for ci, members := range clusters {
			for _, m := range members {
				if titleSimilarity(it.Title, m.Title) >= threshold {
					clusters[ci] = append(clusters[ci], it)
					continue next
				}
			}
		}
		clusters = append(clusters, []NewsItemView{it})
	}

	out := make([]Cluster, 0, len(clusters))
	for _, members := range clusters {
		c := Cluster{
			Representative: members[0],
			Size:           len(members),
			BestRank:       members[0].Rank,
		}
		platformSet := make(map[string]bool)
		for _, m := range members {
			platformSet[m.PlatformID] = true
			c.TotalWeight += m.Weight
			if m.Rank < c.BestRank {
				c.BestRank = m.Rank
			}
			c.Titles = append(c.Titles, m.Title)
		}
		c.Platforms = sortedKeys(platformSet)
		c.IsCrossPlatform = len(c.Platforms) >= 2
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalWeight > out[j].TotalWeight })
	if limit <= 0 {
		limit = 20
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// rangeItems loads a date range (default today) as flat item views.
func (s *Service) rangeItems(ctx context.Context, dateRange util.DateRange, platforms []string, includeURL bool) ([]NewsItemView, error) {
	if dateRange.Start == "" {
		today := s.today()
		dateRange = util.DateRange{Start: today, End: today}
	}
	dates, err := dateRange.Days(util.LoadLocation(s.cfg.App.Timezone))
	if err != nil {
		return nil, err
	}
	return s.itemsForDates(ctx, dates, platforms, includeURL)
}

// PeriodComparison is compare_periods output.
type PeriodComparison struct {
	CompareType string         `json:"compare_type"`
	Period1     PeriodSummary  `json:"period1"`
	Period2     PeriodSummary  `json:"period2"`
	Shifts      []TopicShift   `json:"shifts,omitempty"`
	Platforms   []PlatformDiff `json:"platforms,omitempty"`
}

// PeriodSummary describes one compared period.
type PeriodSummary struct {
	Range     util.DateRange `json:"range"`
	Total     int            `json:"total"`
	TopTitles []NewsItemView `json:"top_titles,omitempty"`
}

// TopicShift is a keyword group's count movement between periods.
type TopicShift struct {
	Topic     string `json:"topic"`
	Count1    int    `json:"count1"`
	Count2    int    `json:"count2"`
	Delta     int    `json:"delta"`
	Direction string `json:"direction"` // rising | falling | new | stable
}

// PlatformDiff is a platform's item-count movement between periods.
type PlatformDiff struct {
	PlatformID string `json:"platform_id"`
	Count1     int    `json:"count1"`
	Count2     int    `json:"count2"`
	Delta      int    `json:"delta"`
}

// ComparePeriods contrasts two resolved periods.
func (s *Service) ComparePeriods(ctx context.Context, p1, p2 util.DateRange, topic, compareType string, platforms []string, topN int) (*PeriodComparison, error) {
	if topN <= 0 {
		topN = 10
	}
	items1, err := s.rangeItems(ctx, p1, platforms, false)
	if err != nil {
		return nil, err
	}
	items2, err := s.rangeItems(ctx, p2, platforms, false)
	if err != nil {
		return nil, err
	}

	if topic != "" {
		items1 = filterByTopic(items1, topic)
		items2 = filterByTopic(items2, topic)
	}

	cmp := &PeriodComparison{
		CompareType: compareType,
		Period1:     PeriodSummary{Range: p1, Total: len(items1)},
		Period2:     PeriodSummary{Range: p2, Total: len(items2)},
	}

	switch compareType {
	case "topic_shift":
		cmp.Shifts = s.topicShifts(items1, items2)
	case "platform_activity":
		cmp.Platforms = platformDiffs(items1, items2)
	default: // overview
		cmp.Period1.TopTitles = topByWeight(items1, topN)
		cmp.Period2.TopTitles = topByWeight(items2, topN)
		cmp.Shifts = s.topicShifts(items1, items2)
		cmp.Platforms = platformDiffs(items1, items2)
	}
	return cmp, nil
}

func filterByTopic(items []NewsItemView, topic string) []NewsItemView {
	lower := strings.ToLower(topic)
	var out []NewsItemView
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Title), lower) {
			out = append(out, it)
		}
	}
	return out
}

func topByWeight(items []NewsItemView, n int) []NewsItemView {
	sorted := append([]NewsItemView(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// topicShifts compares keyword-group match counts between two item sets.
// Without configured rules the top auto-extracted tokens stand in.
func (s *Service) topicShifts(items1, items2 []NewsItemView) []TopicShift {
	count := func(items []NewsItemView) map[string]int {
		counts := make(map[string]int)
		if len(s.rules.Groups) > 0 {
			for _, it := range items {
				if idx, ok := s.rules.MatchGroup(it.Title); ok && idx >= 0 {
					counts[s.rules.Groups[idx].GroupKey]++
				}
			}
			return counts
		}
		stop := s.stopWordSet()
		for _, it := range items {
			for _, tok := range tokenize(it.Title, stop) {
				counts[tok]++
			}
		}
		return counts
	}

	c1, c2 := count(items1), count(items2)
	keys := make(map[string]bool)
	for k := range c1 {
		keys[k] = true
	}
	for k := range c2 {
		keys[k] = true
	}

	var shifts []TopicShift
	for k := range keys {
		shift := TopicShift{Topic: k, Count1: c1[k], Count2: c2[k], Delta: c2[k] - c1[k]}
		switch {
		case shift.Count1 == 0 && shift.Count2 > 0:
			shift.Direction = "new"
		case shift.Delta > 0:
			shift.Direction = "rising"
		case shift.Delta < 0:
			shift.Direction = "falling"
		default:
			shift.Direction = "stable"
		}
		shifts = append(shifts, shift)
	}
	sort.SliceStable(shifts, func(i, j int) bool {
		di, dj := abs(shifts[i].Delta), abs(shifts[j].Delta)
		if di != dj {
			return di > dj
		}
		return shifts[i].Topic < shifts[j].Topic
	})
	if len(shifts) > 50 {
		shifts = shifts[:50]
	}
	return shifts
}

func platformDiffs(items1, items2 []NewsItemView) []PlatformDiff {
	c1, c2 := make(map[string]int), make(map[string]int)
	for _, it := range items1 {
		c1[it.PlatformID]++
	}
	for _, it := range items2 {
		c2[it.PlatformID]++
	}
	keys := make(map[string]bool)
	for k := range c1 {
		keys[k] = true
	}
	for k := range c2 {
		keys[k] = true
	}
	var diffs []PlatformDiff
	for _, k := range sortedKeys(keys) {
		diffs = append(diffs, PlatformDiff{PlatformID: k, Count1: c1[k], Count2: c2[k], Delta: c2[k] - c1[k]})
	}
	return diffs
}

// TopicTrendPoint is one day of analyze_topic_trend.
type TopicTrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// TopicTrend is the analyze_topic_trend output. Granularity finer than a
// day is not defined by the underlying data; any requested granularity is
// normalized to "day".
type TopicTrend struct {
	Topic       string            `json:"topic"`
	Granularity string            `json:"granularity"`
	Points      []TopicTrendPoint `json:"points"`
	Direction   string            `json:"direction"` // rising | falling | stable
}

// AnalyzeTopicTrend counts topic mentions per day over the range.
func (s *Service) AnalyzeTopicTrend(ctx context.Context, topic string, dateRange util.DateRange, granularity string) (*TopicTrend, error) {
	if dateRange.Start == "" {
		var err error
		dateRange, err = s.ResolveRange("last 7 days")
		if err != nil {
			return nil, err
		}
	}
	dates, err := dateRange.Days(util.LoadLocation(s.cfg.App.Timezone))
	if err != nil {
		return nil, err
	}

	trend := &TopicTrend{Topic: topic, Granularity: "day"}
	lower := strings.ToLower(topic)
	firstHalf, secondHalf := 0, 0
	for i, date := range dates {
		count := 0
		day, err := s.readAllTitles(ctx, date, nil)
		if err == nil {
			for _, byTitle := range day.Titles {
				for title := range byTitle {
					if strings.Contains(strings.ToLower(title), lower) {
						count++
					}
				}
			}
		}
		trend.Points = append(trend.Points, TopicTrendPoint{Date: date, Count: count})
		if i < len(dates)/2 {
			firstHalf += count
		} else {
			secondHalf += count
		}
	}

	switch {
	case secondHalf > firstHalf:
		trend.Direction = "rising"
	case secondHalf < firstHalf:
		trend.Direction = "falling"
	default:
		trend.Direction = "stable"
	}
	return trend, nil
}

// DataInsights is analyze_data_insights output.
type DataInsights struct {
	Range         util.DateRange    `json:"range"`
	TotalItems    int               `json:"total_items"`
	DayCounts     []TopicTrendPoint `json:"day_counts"`
	PlatformStats []PlatformDiff    `json:"platform_stats"`
	TopWeighted   []NewsItemView    `json:"top_weighted"`
}

// AnalyzeDataInsights summarizes volume and weight over a range.
func (s *Service) AnalyzeDataInsights(ctx context.Context, dateRange util.DateRange) (*DataInsights, error) {
	if dateRange.Start == "" {
		today := s.today()
		dateRange = util.DateRange{Start: today, End: today}
	}
	dates, err := dateRange.Days(util.LoadLocation(s.cfg.App.Timezone))
	if err != nil {
		return nil, err
	}

	insights := &DataInsights{Range: dateRange}
	platformCounts := make(map[string]int)
	var all []NewsItemView
	for _, date := range dates {
		items, err := s.itemsForDates(ctx, []string{date}, nil, false)
		if err != nil {
			insights.DayCounts = append(insights.DayCounts, TopicTrendPoint{Date: date, Count: 0})
			continue
		}
		insights.DayCounts = append(insights.DayCounts, TopicTrendPoint{Date: date, Count: len(items)})
		insights.TotalItems += len(items)
		for _, it := range items {
			platformCounts[it.PlatformID]++
		}
		all = append(all, items...)
	}
	if insights.TotalItems == 0 {
		return nil, &ErrNotFound{Date: fmt.Sprintf("%s..%s", dateRange.Start, dateRange.End)}
	}

	for _, id := range sortedKeys(platformCounts) {
		insights.PlatformStats = append(insights.PlatformStats, PlatformDiff{PlatformID: id, Count2: platformCounts[id], Delta: platformCounts[id]})
	}
	insights.TopWeighted = topByWeight(all, 10)
	return insights, nil
}

// SummaryReport is generate_summary_report output: a Markdown rendering
// plus the structured stats it was built from.
type SummaryReport struct {
	ReportType string               `json:"report_type"`
	Range      util.DateRange       `json:"range"`
	Total      int                  `json:"total"`
	Groups     []analyzer.GroupStat `json:"groups"`
	Markdown   string               `json:"markdown"`
}

// GenerateSummaryReport composes a Markdown/JSON bundle of the frequency
// analysis of the last day of the range. Without an explicit range the
// range is today (daily) or the trailing seven days (weekly); the earlier
// days of a multi-day range are reported in Range but not analyzed.
func (s *Service) GenerateSummaryReport(ctx context.Context, reportType string, dateRange util.DateRange) (*SummaryReport, error) {
	if dateRange.Start == "" {
		expr := "today"
		if reportType == "weekly" {
			expr = "last 7 days"
		}
		var err error
		dateRange, err = s.ResolveRange(expr)
		if err != nil {
			return nil, err
		}
	}

	day, err := s.backend.GetTodayAllData(ctx, dateRange.End)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, &ErrNotFound{Date: dateRange.End}
	}

	stats, total := analyzer.Analyze(day, nil, s.rules, analyzer.Options{
		Mode:              analyzer.ModeDaily,
		RankThreshold:     s.cfg.Report.RankThreshold,
		Weights:           analyzer.Weights(s.cfg.Report.Weights),
		MaxNewsPerKeyword: s.cfg.Report.MaxNewsPerKeyword,
		SortByPosition:    s.cfg.Report.SortByPosition,
	})

	var md strings.Builder
	fmt.Fprintf(&md, "# 热点汇总 %s\n\n", dateRange.End)
	fmt.Fprintf(&md, "共 %d 条新闻\n", total)
	for _, g := range stats {
		if g.Count == 0 {
			continue
		}
		fmt.Fprintf(&md, "\n## %s (%d, %.1f%%)\n\n", g.GroupKey, g.Count, g.Percentage)
		for _, t := range g.Titles {
			marker := ""
			if t.IsNew {
				marker = " 🆕"
			}
			fmt.Fprintf(&md, "- [%d] %s — %s %s%s\n", t.MinRank, t.Title, t.PlatformName, t.TimeDisplay, marker)
		}
	}

	return &SummaryReport{
		ReportType: reportType,
		Range:      dateRange,
		Total:      total,
		Groups:     stats,
		Markdown:   md.String(),
	}, nil
}

func (s *Service) stopWordSet() map[string]bool {
	stop := make(map[string]bool, len(s.cfg.Analytics.StopWords))
	for _, w := range s.cfg.Analytics.StopWords {
		stop[strings.ToLower(w)] = true
	}
	return stop
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
