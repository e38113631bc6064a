package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Verdenroz/champion-recap/internal/constants"
	"github.com/Verdenroz/champion-recap/internal/domain"

	"github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

// CacheRepository stores raw match payloads keyed by match id. Writes are
// insert-or-ignore, so a payload is immutable once present and concurrent
// writers of the same match cannot clobber each other.
type CacheRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewCacheRepository(sqlDB *sql.DB, logger zerolog.Logger) *CacheRepository {
	return &CacheRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *CacheRepository) Has(ctx context.Context, matchID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cached_matches WHERE match_id = ?`, matchID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check cache for match %s: %w", matchID, err)
	}
	return count > 0, nil
}

// Get returns nil without error on a cache miss.
func (r *CacheRepository) Get(ctx context.Context, matchID string) (*domain.CachedMatch, error) {
	var m domain.CachedMatch
	err := r.db.QueryRowContext(ctx, `
SELECT match_id, cache_key, region, payload, game_creation, game_duration, game_mode, cached_at
FROM cached_matches
WHERE match_id = ?
`, matchID).Scan(&m.MatchID, &m.CacheKey, &m.Region, &m.Payload, &m.GameCreation, &m.GameDuration, &m.GameMode, &m.CachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached match %s: %w", matchID, err)
	}
	return &m, nil
}

// Put writes a match payload once. It reports whether this call wrote the
// row; false means another writer got there first, which callers treat the
// same as success.
func (r *CacheRepository) Put(ctx context.Context, m *domain.CachedMatch) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO cached_matches (match_id, cache_key, region, payload, game_creation, game_duration, game_mode, cached_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(match_id) DO NOTHING
`, m.MatchID, m.CacheKey, m.Region, m.Payload, m.GameCreation, m.GameDuration, m.GameMode, m.CachedAt)
	if err != nil {
		return false, fmt.Errorf("failed to cache match %s: %w", m.MatchID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		r.logger.Debug().Str("match_id", m.MatchID).Msg("match already cached, keeping existing payload")
		return false, nil
	}
	return true, nil
}

// BatchCheck returns the subset of the given ids that already have a cached
// payload.
func (r *CacheRepository) BatchCheck(ctx context.Context, matchIDs []string) (map[string]bool, error) {
	cached := make(map[string]bool, len(matchIDs))
	if len(matchIDs) == 0 {
		return cached, nil
	}

	for i := 0; i < len(matchIDs); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(matchIDs) {
			end = len(matchIDs)
		}

		query, args, err := sqlBuilder.Select("match_id").
			From("cached_matches").
			Where(squirrel.Eq{"match_id": matchIDs[i:end]}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build batch check query: %w", err)
		}

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to batch check cache: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			cached[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return cached, nil
}
