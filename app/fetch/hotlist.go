package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Wangx-create/TRNNew/app/news"
)

// HotlistClient fetches ranked boards from a newsnow-style aggregation
// API: one GET per platform ID, items ordered by rank.
type HotlistClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	timeout    time.Duration
}

type hotlistResponse struct {
	Status string        `json:"status"`
	Items  []hotlistItem `json:"items"`
}

type hotlistItem struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	MobileURL string `json:"mobileUrl"`
}

func NewHotlistClient(httpClient *http.Client, baseURL, userAgent string, timeout time.Duration) *HotlistClient {
	return &HotlistClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

func (c *HotlistClient) Fetch(ctx context.Context, platformID string, round int) ([]news.RawItem, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s?id=%s&latest", c.baseURL, url.QueryEscape(platformID))

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hot list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var payload hotlistResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse hot list response: %w", err)
	}

	if payload.Status != "success" && payload.Status != "cache" {
		return nil, fmt.Errorf("hot list API returned status '%s'", payload.Status)
	}

	now := time.Now().UTC()
	items := make([]news.RawItem, 0, len(payload.Items))
	for i, item := range payload.Items {
		if item.Title == "" {
			continue
		}
		items = append(items, news.RawItem{
			Title:     item.Title,
			URL:       item.URL,
			MobileURL: item.MobileURL,
			Platform:  platformID,
			Rank:      i + 1,
			FetchedAt: now,
		})
	}

	return items, nil
}
