package fetch

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Wangx-create/TRNNew/app/news"
)

// Registry dispatches fetches by platform ID shape: IDs that carry a URL
// scheme are RSS feeds, everything else is a hot-list platform identifier.
type Registry struct {
	hotlist *HotlistClient
	rss     *RSSFetcher
}

var _ Fetcher = (*Registry)(nil)

func NewRegistry(httpClient *http.Client, hotlistBase, userAgent string, timeout time.Duration) *Registry {
	return &Registry{
		hotlist: NewHotlistClient(httpClient, hotlistBase, userAgent, timeout),
		rss:     NewRSSFetcher(httpClient, userAgent, timeout),
	}
}

func (r *Registry) Fetch(ctx context.Context, platformID string, round int) ([]news.RawItem, error) {
	if strings.Contains(platformID, "://") {
		return r.rss.Fetch(ctx, platformID, round)
	}
	return r.hotlist.Fetch(ctx, platformID, round)
}
