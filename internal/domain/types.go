// Package domain defines the core value types shared across the crawler,
// storage, analyzer, and query layers: ranked news items, crawl batches,
// and the conversion from raw fetcher output.
package domain

import "sort"

// RankMissing is recorded when a platform board does not expose a rank.
const RankMissing = 99

// NewsItem is one ranked headline from one platform, merged over all
// observations of the same canonical URL within a day.
type NewsItem struct {
	Title        string
	PlatformID   string
	PlatformName string
	Rank         int
	URL          string
	MobileURL    string
	FirstSeen    string // HH-MM
	LastSeen     string // HH-MM
	CrawlCount   int
	RankHistory  []int // one entry per observation, temporal order
}

// MinRank returns the best (lowest) rank the item has held.
func (n NewsItem) MinRank() int {
	if len(n.RankHistory) == 0 {
		return n.Rank
	}
	min := n.RankHistory[0]
	for _, r := range n.RankHistory[1:] {
		if r < min {
			min = r
		}
	}
	return min
}

// MaxRank returns the worst (highest) rank the item has held.
func (n NewsItem) MaxRank() int {
	if len(n.RankHistory) == 0 {
		return n.Rank
	}
	max := n.RankHistory[0]
	for _, r := range n.RankHistory[1:] {
		if r > max {
			max = r
		}
	}
	return max
}

// NewsData is one crawl batch across all platforms.
type NewsData struct {
	Date      string // YYYY-MM-DD
	CrawlTime string // HH-MM
	Items     map[string][]NewsItem
	IDToName  map[string]string
	FailedIDs []string
}

// TotalItems counts items across all platforms.
func (d *NewsData) TotalItems() int {
	n := 0
	for _, list := range d.Items {
		n += len(list)
	}
	return n
}

// PlatformIDs returns the observed platform ids in sorted order.
func (d *NewsData) PlatformIDs() []string {
	ids := make([]string, 0, len(d.Items))
	for id := range d.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TitleInfo is the per-title payload produced by the external fetcher:
// observed ranks plus desktop and mobile links.
type TitleInfo struct {
	Ranks     []int  `json:"ranks"`
	URL       string `json:"url"`
	MobileURL string `json:"mobileUrl"`
}

// FromCrawlResults converts raw fetcher output into a NewsData batch.
// Results arrive as {platform_id -> {title -> TitleInfo}}; ranks default to
// RankMissing when the fetcher saw none.
func FromCrawlResults(
	results map[string]map[string]TitleInfo,
	idToName map[string]string,
	failedIDs []string,
	date, crawlTime string,
) *NewsData {
	items := make(map[string][]NewsItem, len(results))
	for platformID, titles := range results {
		list := make([]NewsItem, 0, len(titles))
		for title, info := range titles {
			rank := RankMissing
			if len(info.Ranks) > 0 {
				rank = info.Ranks[0]
			}
			list = append(list, NewsItem{
				Title:        title,
				PlatformID:   platformID,
				PlatformName: idToName[platformID],
				Rank:         rank,
				URL:          info.URL,
				MobileURL:    info.MobileURL,
				FirstSeen:    crawlTime,
				LastSeen:     crawlTime,
				CrawlCount:   1,
				RankHistory:  []int{rank},
			})
		}
		// Deterministic per-platform order: by rank, then title.
		sort.Slice(list, func(i, j int) bool {
			if list[i].Rank != list[j].Rank {
				return list[i].Rank < list[j].Rank
			}
			return list[i].Title < list[j].Title
		})
		items[platformID] = list
	}
	return &NewsData{
		Date:      date,
		CrawlTime: crawlTime,
		Items:     items,
		IDToName:  idToName,
		FailedIDs: failedIDs,
	}
}
