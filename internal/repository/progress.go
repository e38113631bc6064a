package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Verdenroz/champion-recap/internal/domain"

	"github.com/rs/zerolog"
)

// ProgressRepository owns the per-player run ledger. Counters only move
// through single UPDATE statements so concurrent workers never read a stale
// value; RETURNING hands each caller the count its own increment produced,
// which is what makes threshold detection race free.
type ProgressRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewProgressRepository(sqlDB *sql.DB, logger zerolog.Logger) *ProgressRepository {
	return &ProgressRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Init starts or restarts the run for a player and year. Processed, cached
// and skipped are recounted from the match_ids flags rather than zeroed, so
// a re-trigger converges on the truth instead of double counting work that
// already happened.
func (r *ProgressRepository) Init(ctx context.Context, puuid string, year, total int) (*domain.ProgressRecord, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO progress (puuid, year, total_matches, processed_matches, cached_matches, skipped_matches, status, reason, updated_at)
VALUES (?, ?, ?,
    (SELECT COUNT(*) FROM match_ids WHERE puuid = ? AND year = ? AND (cached = 1 OR failed = 1)),
    (SELECT COUNT(*) FROM match_ids WHERE puuid = ? AND year = ? AND cached = 1),
    (SELECT COUNT(*) FROM match_ids WHERE puuid = ? AND year = ? AND failed = 1),
    'PROCESSING', '', ?)
ON CONFLICT(puuid) DO UPDATE SET
    year = excluded.year,
    total_matches = excluded.total_matches,
    processed_matches = excluded.processed_matches,
    cached_matches = excluded.cached_matches,
    skipped_matches = excluded.skipped_matches,
    status = excluded.status,
    reason = excluded.reason,
    updated_at = excluded.updated_at
`, puuid, year, total, puuid, year, puuid, year, puuid, year, now)
	if err != nil {
		return nil, fmt.Errorf("failed to init progress for %s: %w", puuid, err)
	}
	return r.Get(ctx, puuid)
}

// IncrementCached counts a successfully stored match: it advances both the
// processed and cached counters in one statement and returns the new
// processed count plus the total from that same statement.
func (r *ProgressRepository) IncrementCached(ctx context.Context, puuid string) (int, int, error) {
	var processed, total int
	err := r.db.QueryRowContext(ctx, `
UPDATE progress SET processed_matches = processed_matches + 1, cached_matches = cached_matches + 1, updated_at = ?
WHERE puuid = ?
RETURNING processed_matches, total_matches
`, time.Now().UTC(), puuid).Scan(&processed, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment cached for %s: %w", puuid, err)
	}
	return processed, total, nil
}

// IncrementSkipped counts a permanently failed match: it still advances the
// processed counter so the run can finish, and surfaces the skip separately.
func (r *ProgressRepository) IncrementSkipped(ctx context.Context, puuid string) (int, int, error) {
	var processed, total int
	err := r.db.QueryRowContext(ctx, `
UPDATE progress SET processed_matches = processed_matches + 1, skipped_matches = skipped_matches + 1, updated_at = ?
WHERE puuid = ?
RETURNING processed_matches, total_matches
`, time.Now().UTC(), puuid).Scan(&processed, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment skipped for %s: %w", puuid, err)
	}
	return processed, total, nil
}

// MarkComplete transitions PROCESSING to COMPLETE once processed has reached
// total. It reports whether this call made the transition, so exactly one
// caller runs the completion hook.
func (r *ProgressRepository) MarkComplete(ctx context.Context, puuid string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE progress SET status = 'COMPLETE', updated_at = ?
WHERE puuid = ? AND status = 'PROCESSING' AND processed_matches >= total_matches
`, time.Now().UTC(), puuid)
	if err != nil {
		return false, fmt.Errorf("failed to mark progress complete for %s: %w", puuid, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// FailInterrupted moves every PROCESSING run to ERROR. The queue holding the
// pending work is in memory, so runs that were live before a restart can
// never finish; failing them lets the next trigger start a clean run.
func (r *ProgressRepository) FailInterrupted(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE progress SET status = 'ERROR', reason = 'interrupted by restart', updated_at = ?
WHERE status = 'PROCESSING'
`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted runs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		r.logger.Warn().Int64("runs", affected).Msg("failed interrupted ingestion runs")
	}
	return affected, nil
}

func (r *ProgressRepository) SetError(ctx context.Context, puuid, reason string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE progress SET status = 'ERROR', reason = ?, updated_at = ?
WHERE puuid = ?
`, reason, time.Now().UTC(), puuid)
	if err != nil {
		return fmt.Errorf("failed to set progress error for %s: %w", puuid, err)
	}
	r.logger.Warn().Str("puuid", puuid).Str("reason", reason).Msg("progress marked as error")
	return nil
}

// Get returns nil without error when the player has no run yet.
func (r *ProgressRepository) Get(ctx context.Context, puuid string) (*domain.ProgressRecord, error) {
	var p domain.ProgressRecord
	err := r.db.QueryRowContext(ctx, `
SELECT puuid, year, total_matches, processed_matches, cached_matches, skipped_matches, status, reason, updated_at
FROM progress
WHERE puuid = ?
`, puuid).Scan(&p.Puuid, &p.Year, &p.TotalMatches, &p.ProcessedMatches, &p.CachedMatches, &p.SkippedMatches,
		&p.Status, &p.Reason, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress for %s: %w", puuid, err)
	}
	return &p, nil
}
