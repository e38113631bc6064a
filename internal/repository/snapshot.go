package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Verdenroz/champion-recap/internal/domain"

	"github.com/rs/zerolog"
)

// SnapshotRepository stores computed recap snapshots keyed by player and
// year. Each write carries a generation; the upsert only replaces a row when
// the incoming generation is higher, so a slow recompute can never overwrite
// a newer result.
type SnapshotRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSnapshotRepository(sqlDB *sql.DB, logger zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *SnapshotRepository) Upsert(ctx context.Context, snapshot *domain.ChampionStatsSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for %s: %w", snapshot.Puuid, err)
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO champion_snapshots (puuid, year, generation, payload, computed_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(puuid, year) DO UPDATE SET
    generation = excluded.generation,
    payload = excluded.payload,
    computed_at = excluded.computed_at,
    expires_at = excluded.expires_at
WHERE excluded.generation > champion_snapshots.generation
`, snapshot.Puuid, snapshot.Year, snapshot.Generation, payload, snapshot.ComputedAt, snapshot.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot for %s/%d: %w", snapshot.Puuid, snapshot.Year, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		r.logger.Debug().
			Str("puuid", snapshot.Puuid).
			Int("year", snapshot.Year).
			Int64("generation", snapshot.Generation).
			Msg("snapshot write skipped, newer generation already stored")
	}
	return nil
}

// GetLatest returns the stored snapshot for the player and year, nil without
// error when none exists or the stored one has expired.
func (r *SnapshotRepository) GetLatest(ctx context.Context, puuid string, year int) (*domain.ChampionStatsSnapshot, error) {
	var payload []byte
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx, `
SELECT payload, expires_at FROM champion_snapshots
WHERE puuid = ? AND year = ?
`, puuid, year).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot for %s/%d: %w", puuid, year, err)
	}
	if !expiresAt.After(time.Now()) {
		r.logger.Debug().Str("puuid", puuid).Int("year", year).Msg("stored snapshot expired")
		return nil, nil
	}

	var snapshot domain.ChampionStatsSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for %s/%d: %w", puuid, year, err)
	}
	return &snapshot, nil
}

// DeleteExpired removes snapshots past their expiry and returns how many
// rows went away.
func (r *SnapshotRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM champion_snapshots WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired snapshots: %w", err)
	}
	return res.RowsAffected()
}
