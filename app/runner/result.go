package runner

import (
	"github.com/Wangx-create/TRNNew/app/news"
)

type Stats struct {
	TotalRawItems      int `json:"total_raw_items"`
	MatchedGroups      int `json:"matched_groups"`
	MatchedRecords     int `json:"matched_records"`
	PlatformsQueried   int `json:"platforms_queried"`
	PlatformsSucceeded int `json:"platforms_succeeded"`
}

// Result is the per-run payload handed to the renderer or API layer.
type Result struct {
	RunID      string
	Mode       news.Mode
	Signature  string
	Records    []news.AggregatedRecord
	Stats      Stats
	DurationMs int64
}
