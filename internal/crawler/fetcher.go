// Package crawler fetches ranking boards from the configured hot-board API.
// The engine only depends on the Fetcher contract; the HTTP implementation
// here is one possible provider.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"trendradar/internal/config"
	"trendradar/internal/domain"
	"trendradar/internal/util"
)

// Fetcher is the external fetcher contract: given platform refs and a
// request interval, it returns per-platform title data, a display-name map,
// and the ids that failed. Failures are per-platform, never fatal.
type Fetcher interface {
	Crawl(ctx context.Context, platforms []config.Platform, requestIntervalMS int) (
		results map[string]map[string]domain.TitleInfo,
		idToName map[string]string,
		failedIDs []string,
	)
}

// HTTPFetcher pulls boards from a newsnow-style JSON API.
type HTTPFetcher struct {
	apiBase string
	client  *http.Client
	log     *slog.Logger
}

// NewHTTPFetcher builds a fetcher with a ~10s per-request timeout and an
// optional proxy.
func NewHTTPFetcher(apiBase, proxyURL string, log *slog.Logger) (*HTTPFetcher, error) {
	if log == nil {
		log = slog.Default()
	}
	client := &http.Client{Timeout: 10 * time.Second}
	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}
	return &HTTPFetcher{apiBase: apiBase, client: client, log: log}, nil
}

// boardResponse is the upstream API shape.
type boardResponse struct {
	Status string `json:"status"`
	Items  []struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		MobileURL string `json:"mobileUrl"`
	} `json:"items"`
}

// Crawl implements Fetcher. Platforms are fetched one at a time with the
// configured pause between requests.
func (f *HTTPFetcher) Crawl(ctx context.Context, platforms []config.Platform, requestIntervalMS int) (map[string]map[string]domain.TitleInfo, map[string]string, []string) {
	results := make(map[string]map[string]domain.TitleInfo)
	idToName := make(map[string]string)
	var failedIDs []string

	for i, platform := range platforms {
		if i > 0 && requestIntervalMS > 0 {
			select {
			case <-ctx.Done():
				for _, rest := range platforms[i:] {
					failedIDs = append(failedIDs, rest.ID)
				}
				return results, idToName, failedIDs
			case <-time.After(time.Duration(requestIntervalMS) * time.Millisecond):
			}
		}

		name := platform.Name
		if name == "" {
			name = platform.ID
		}

		titles, err := f.fetchBoard(ctx, platform.ID)
		if err != nil {
			f.log.Warn("platform fetch failed", "platform", platform.ID, "error", err)
			failedIDs = append(failedIDs, platform.ID)
			continue
		}
		results[platform.ID] = titles
		idToName[platform.ID] = name
	}
	return results, idToName, failedIDs
}

// fetchBoard requests one platform's board, retrying transient failures.
func (f *HTTPFetcher) fetchBoard(ctx context.Context, platformID string) (map[string]domain.TitleInfo, error) {
	endpoint := fmt.Sprintf("%s?id=%s&latest", f.apiBase, url.QueryEscape(platformID))

	var board boardResponse
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		board = boardResponse{}
		return json.NewDecoder(resp.Body).Decode(&board)
	})
	if err != nil {
		return nil, err
	}
	if len(board.Items) == 0 {
		return nil, fmt.Errorf("empty board (status %q)", board.Status)
	}

	titles := make(map[string]domain.TitleInfo, len(board.Items))
	for i, item := range board.Items {
		if item.Title == "" {
			continue
		}
		titles[item.Title] = domain.TitleInfo{
			Ranks:     []int{i + 1},
			URL:       item.URL,
			MobileURL: item.MobileURL,
		}
	}
	return titles, nil
}
