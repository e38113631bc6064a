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

var sqlBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// MatchIndexRepository owns the match_ids ledger. One row is one unit of
// ingestion work for one player; its cached and failed flags each flip at
// most once, which is what keeps progress counters from double counting.
type MatchIndexRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchIndexRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchIndexRepository {
	return &MatchIndexRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// InsertBatch records discovered match ids, ignoring ids already present so
// re-triggers never reset existing flags.
func (r *MatchIndexRepository) InsertBatch(ctx context.Context, records []domain.MatchIDRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO match_ids (match_id, puuid, year, cached, failed, inserted_at)
VALUES (?, ?, ?, 0, 0, ?)
ON CONFLICT(match_id, puuid) DO NOTHING
`)
	if err != nil {
		return fmt.Errorf("failed to prepare match id insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < len(records); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(records) {
			end = len(records)
		}

		for _, record := range records[i:end] {
			if _, err := stmt.ExecContext(ctx, record.MatchID, record.Puuid, record.Year, record.InsertedAt); err != nil {
				return fmt.Errorf("failed to insert match id %s: %w", record.MatchID, err)
			}
		}
	}

	return tx.Commit()
}

// MarkCached flips the cached flag and reports whether this call did the
// flip. Exactly one concurrent caller observes true for a given row.
func (r *MatchIndexRepository) MarkCached(ctx context.Context, matchID, puuid string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE match_ids SET cached = 1
WHERE match_id = ? AND puuid = ? AND cached = 0 AND failed = 0
`, matchID, puuid)
	if err != nil {
		return false, fmt.Errorf("failed to mark match %s cached: %w", matchID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkCachedBulk flips the cached flag for every given id that is still
// pending and returns how many rows actually flipped.
func (r *MatchIndexRepository) MarkCachedBulk(ctx context.Context, puuid string, matchIDs []string) (int, error) {
	if len(matchIDs) == 0 {
		return 0, nil
	}

	flipped := 0
	for i := 0; i < len(matchIDs); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(matchIDs) {
			end = len(matchIDs)
		}

		query, args, err := sqlBuilder.Update("match_ids").
			Set("cached", 1).
			Where(squirrel.Eq{"puuid": puuid, "match_id": matchIDs[i:end]}).
			Where("cached = 0 AND failed = 0").
			ToSql()
		if err != nil {
			return flipped, fmt.Errorf("failed to build bulk mark query: %w", err)
		}

		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return flipped, fmt.Errorf("failed to bulk mark matches cached: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return flipped, err
		}
		flipped += int(affected)
	}

	r.logger.Debug().Str("puuid", puuid).Int("flipped", flipped).Int("candidates", len(matchIDs)).Msg("bulk marked cached")
	return flipped, nil
}

// MarkFailed flips the failed flag for a permanently unprocessable match and
// reports whether this call did the flip.
func (r *MatchIndexRepository) MarkFailed(ctx context.Context, matchID, puuid string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE match_ids SET failed = 1
WHERE match_id = ? AND puuid = ? AND cached = 0 AND failed = 0
`, matchID, puuid)
	if err != nil {
		return false, fmt.Errorf("failed to mark match %s failed: %w", matchID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListPending returns ids discovered for the player and year that are neither
// cached nor failed, newest insert first.
func (r *MatchIndexRepository) ListPending(ctx context.Context, puuid string, year int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT match_id FROM match_ids
WHERE puuid = ? AND year = ? AND cached = 0 AND failed = 0
ORDER BY inserted_at DESC, match_id DESC
`, puuid, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending matches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
