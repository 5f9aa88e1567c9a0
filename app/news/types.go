package news

import (
	"time"
)

// Window identifies one fetch round within a run.
type Window struct {
	Round int
	Start time.Time
	End   time.Time
}

// RawItem is a single observation of a ranked item on one platform board.
type RawItem struct {
	Title     string
	URL       string
	MobileURL string
	Platform  string
	Rank      int // 1-based position on the board
	FetchedAt time.Time
}

// MatchedItem is a RawItem annotated with the keyword group label it satisfied.
type MatchedItem struct {
	RawItem
	Keyword string
}

type Observation struct {
	Rank   int
	Window Window
}

// AggregatedRecord collapses repeated observations of the same story into
// one record carrying its full rank history for the run. Identity is
// (Platform, TitleKey).
type AggregatedRecord struct {
	Platform     string
	Title        string
	TitleKey     string
	URL          string
	MobileURL    string
	Keyword      string
	Observations []Observation
	FirstSeen    Window
	LastSeen     Window
}

// Batch groups the matched items of one fetch round.
type Batch struct {
	Window Window
	Items  []MatchedItem
}
