package fetch

import (
	"context"

	"github.com/Wangx-create/TRNNew/app/news"
)

// Fetcher returns one round of ranked raw items for a platform. Rank is
// the 1-based position in the returned sequence. Implementations must be
// safe to call concurrently for distinct platform IDs.
type Fetcher interface {
	Fetch(ctx context.Context, platformID string, round int) ([]news.RawItem, error)
}
