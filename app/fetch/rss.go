package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Wangx-create/TRNNew/app/news"
)

// RSSFetcher treats an RSS/Atom feed as a ranked board: the platform ID is
// the feed URL and an item's position in the feed is its rank.
type RSSFetcher struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	userAgent  string
	timeout    time.Duration
}

func NewRSSFetcher(httpClient *http.Client, userAgent string, timeout time.Duration) *RSSFetcher {
	return &RSSFetcher{
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

func (f *RSSFetcher) Fetch(ctx context.Context, platformID string, round int) ([]news.RawItem, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", platformID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	feed, err := f.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	now := time.Now().UTC()
	items := make([]news.RawItem, 0, len(feed.Items))
	for i, item := range feed.Items {
		if item == nil || item.Title == "" {
			continue
		}
		items = append(items, news.RawItem{
			Title:     item.Title,
			URL:       item.Link,
			Platform:  platformID,
			Rank:      i + 1,
			FetchedAt: now,
		})
	}

	return items, nil
}
