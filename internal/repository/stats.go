package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Verdenroz/champion-recap/internal/constants"
	"github.com/Verdenroz/champion-recap/internal/domain"

	"github.com/rs/zerolog"
)

// StatsRepository owns the denormalized match_stats rows, one per participant
// per match. The aggregator reads these instead of raw payloads.
type StatsRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewStatsRepository(sqlDB *sql.DB, logger zerolog.Logger) *StatsRepository {
	return &StatsRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *StatsRepository) InsertBatch(ctx context.Context, stats []domain.MatchStat) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO match_stats (match_id, puuid, champion_id, champion_name, team_id, role, win, kills, deaths, assists,
                         damage_dealt, gold_earned, cs, vision_score, game_creation, game_duration)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(match_id, puuid) DO NOTHING
`)
	if err != nil {
		return fmt.Errorf("failed to prepare stat insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < len(stats); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(stats) {
			end = len(stats)
		}

		for _, s := range stats[i:end] {
			_, err := stmt.ExecContext(ctx, s.MatchID, s.Puuid, s.ChampionID, s.ChampionName, s.TeamID, s.Role,
				s.Win, s.Kills, s.Deaths, s.Assists, s.DamageDealt, s.GoldEarned, s.CS, s.VisionScore,
				s.GameCreation, s.GameDuration)
			if err != nil {
				return fmt.Errorf("failed to insert stat %s/%s: %w", s.MatchID, s.Puuid, err)
			}
		}
	}

	return tx.Commit()
}

// ListSeasonRows returns every participant row of every match the player
// appeared in during the given calendar year. Rows are grouped by match so
// the aggregator can walk one match at a time.
func (r *StatsRepository) ListSeasonRows(ctx context.Context, puuid string, year int) ([]domain.MatchStat, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	rows, err := r.db.QueryContext(ctx, `
SELECT s.match_id, s.puuid, s.champion_id, s.champion_name, s.team_id, s.role, s.win, s.kills, s.deaths, s.assists,
       s.damage_dealt, s.gold_earned, s.cs, s.vision_score, s.game_creation, s.game_duration
FROM match_stats s
JOIN match_stats p ON p.match_id = s.match_id
WHERE p.puuid = ? AND p.game_creation >= ? AND p.game_creation < ?
ORDER BY s.match_id, s.team_id, s.puuid
`, puuid, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list season rows: %w", err)
	}
	defer rows.Close()

	var stats []domain.MatchStat
	for rows.Next() {
		var s domain.MatchStat
		if err := rows.Scan(&s.MatchID, &s.Puuid, &s.ChampionID, &s.ChampionName, &s.TeamID, &s.Role,
			&s.Win, &s.Kills, &s.Deaths, &s.Assists, &s.DamageDealt, &s.GoldEarned, &s.CS, &s.VisionScore,
			&s.GameCreation, &s.GameDuration); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	r.logger.Debug().Str("puuid", puuid).Int("year", year).Int("rows", len(stats)).Msg("loaded season stat rows")
	return stats, rows.Err()
}
