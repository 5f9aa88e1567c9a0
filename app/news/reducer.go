package news

import (
	"log/slog"
	"time"
)

type Mode string

const (
	ModeDaily       Mode = "daily"
	ModeCurrent     Mode = "current"
	ModeIncremental Mode = "incremental"
)

func ValidMode(mode Mode) bool {
	switch mode {
	case ModeDaily, ModeCurrent, ModeIncremental:
		return true
	}
	return false
}

// HistoryKey is the persisted identity of an aggregated record.
type HistoryKey struct {
	Platform string
	TitleKey string
}

// HistoryStore is the persisted run-history log, keyed by run signature.
// Implemented by database.HistoryRepository.
type HistoryStore interface {
	SeenKeys(signature string) (map[HistoryKey]time.Time, error)
	RecordRun(signature, runID string, keys []HistoryKey, executedAt time.Time) error
}

type Reducer struct {
	history HistoryStore
}

func NewReducer(history HistoryStore) *Reducer {
	return &Reducer{history: history}
}

// Run selects which aggregated records surface for the report mode, then
// merges the run's full identity set into history. An unreadable history
// degrades incremental mode to daily selection for this run; history
// failures never fail the run.
func (r *Reducer) Run(records []AggregatedRecord, mode Mode, signature, runID string, finalRound int) []AggregatedRecord {
	var selected []AggregatedRecord

	switch mode {
	case ModeCurrent:
		selected = make([]AggregatedRecord, 0, len(records))
		for _, rec := range records {
			last := rec.Observations[len(rec.Observations)-1]
			if last.Window.Round == finalRound {
				selected = append(selected, rec)
			}
		}
	case ModeIncremental:
		seen, err := r.history.SeenKeys(signature)
		if err != nil {
			slog.Warn("Run history unreadable, degrading to daily selection",
				"signature", signature, "run_id", runID, "error", err)
			selected = records
			break
		}
		selected = make([]AggregatedRecord, 0, len(records))
		for _, rec := range records {
			if _, ok := seen[HistoryKey{Platform: rec.Platform, TitleKey: rec.TitleKey}]; !ok {
				selected = append(selected, rec)
			}
		}
	default:
		selected = records
	}

	r.recordRun(records, signature, runID)

	return selected
}

// recordRun writes every identity observed this run, selected or not, so
// the seen set grows monotonically regardless of report mode.
func (r *Reducer) recordRun(records []AggregatedRecord, signature, runID string) {
	keys := make([]HistoryKey, 0, len(records))
	for _, rec := range records {
		keys = append(keys, HistoryKey{Platform: rec.Platform, TitleKey: rec.TitleKey})
	}

	if err := r.history.RecordRun(signature, runID, keys, time.Now().UTC()); err != nil {
		slog.Warn("Failed to record run history",
			"signature", signature, "run_id", runID, "error", err)
	}
}
