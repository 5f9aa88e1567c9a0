package database

import (
	"fmt"
	"time"

	"github.com/Wangx-create/TRNNew/app/news"
)

type historyRepository struct {
	db         *DB
	retainRuns int
}

// NewHistoryRepository creates a run-history repository retaining the most
// recent retainRuns runs per signature. Identities whose last observation
// falls outside the retained window are pruned with their runs.
func NewHistoryRepository(db *DB, retainRuns int) HistoryRepository {
	if retainRuns < 1 {
		retainRuns = 30
	}
	return &historyRepository{db: db, retainRuns: retainRuns}
}

func (r *historyRepository) SeenKeys(signature string) (map[news.HistoryKey]time.Time, error) {
	rows, err := r.db.Query(`
		SELECT platform, title_key, first_seen
		FROM run_history
		WHERE signature = ?
	`, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to read run history: %w", err)
	}
	defer rows.Close()

	seen := make(map[news.HistoryKey]time.Time)
	for rows.Next() {
		var key news.HistoryKey
		var firstSeen time.Time
		if err := rows.Scan(&key.Platform, &key.TitleKey, &firstSeen); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		seen[key] = firstSeen
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return seen, nil
}

// RecordRun merges a run's identity set into history as an idempotent
// union: known identities keep their first_seen, new ones are inserted,
// and every mentioned identity is stamped with this run so retention can
// age out identities not observed within the retained runs.
func (r *historyRepository) RecordRun(signature, runID string, keys []news.HistoryKey, executedAt time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO history_runs (signature, run_id, executed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (signature, run_id) DO NOTHING
	`, signature, runID, executedAt)
	if err != nil {
		return fmt.Errorf("failed to record history run: %w", err)
	}

	for _, key := range keys {
		_, err = tx.Exec(`
			INSERT INTO run_history (signature, platform, title_key, first_seen, last_run_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (signature, platform, title_key) DO UPDATE SET
				last_run_id = excluded.last_run_id
		`, signature, key.Platform, key.TitleKey, executedAt, runID)
		if err != nil {
			return fmt.Errorf("failed to record history identity: %w", err)
		}
	}

	_, err = tx.Exec(`
		DELETE FROM history_runs
		WHERE signature = ?
		  AND run_id NOT IN (
			SELECT run_id FROM history_runs
			WHERE signature = ?
			ORDER BY executed_at DESC, run_id DESC
			LIMIT ?
		  )
	`, signature, signature, r.retainRuns)
	if err != nil {
		return fmt.Errorf("failed to prune history runs: %w", err)
	}

	_, err = tx.Exec(`
		DELETE FROM run_history
		WHERE signature = ?
		  AND last_run_id NOT IN (
			SELECT run_id FROM history_runs WHERE signature = ?
		  )
	`, signature, signature)
	if err != nil {
		return fmt.Errorf("failed to prune history identities: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history transaction: %w", err)
	}

	return nil
}

func (r *historyRepository) GetSignatureCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(DISTINCT signature) FROM history_runs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get signature count: %w", err)
	}
	return count, nil
}

func (r *historyRepository) GetIdentityCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM run_history").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get identity count: %w", err)
	}
	return count, nil
}
