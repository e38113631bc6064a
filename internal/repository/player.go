package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Verdenroz/champion-recap/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *PlayerRepository) Upsert(ctx context.Context, player *domain.PlayerProfile) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO players (puuid, game_name, tag_line, platform, region, summoner_level, profile_icon_id, last_refresh_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(puuid) DO UPDATE SET
    game_name = excluded.game_name,
    tag_line = excluded.tag_line,
    platform = excluded.platform,
    region = excluded.region,
    summoner_level = excluded.summoner_level,
    profile_icon_id = excluded.profile_icon_id,
    last_refresh_at = excluded.last_refresh_at,
    updated_at = excluded.updated_at
`, player.Puuid, player.GameName, player.TagLine, player.Platform, player.Region,
		player.SummonerLevel, player.ProfileIconID, player.LastRefreshAt, player.CreatedAt, player.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", player.Puuid, err)
	}
	return nil
}

// GetByPuuid returns nil without error when the player is unknown.
func (r *PlayerRepository) GetByPuuid(ctx context.Context, puuid string) (*domain.PlayerProfile, error) {
	var p domain.PlayerProfile
	err := r.db.QueryRowContext(ctx, `
SELECT puuid, game_name, tag_line, platform, region, summoner_level, profile_icon_id, last_refresh_at, created_at, updated_at
FROM players
WHERE puuid = ?
`, puuid).Scan(&p.Puuid, &p.GameName, &p.TagLine, &p.Platform, &p.Region,
		&p.SummonerLevel, &p.ProfileIconID, &p.LastRefreshAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player %s: %w", puuid, err)
	}
	return &p, nil
}

// GetByRiotID returns nil without error when no player matches the riot id.
func (r *PlayerRepository) GetByRiotID(ctx context.Context, gameName, tagLine string) (*domain.PlayerProfile, error) {
	var p domain.PlayerProfile
	err := r.db.QueryRowContext(ctx, `
SELECT puuid, game_name, tag_line, platform, region, summoner_level, profile_icon_id, last_refresh_at, created_at, updated_at
FROM players
WHERE game_name = ? AND tag_line = ?
`, gameName, tagLine).Scan(&p.Puuid, &p.GameName, &p.TagLine, &p.Platform, &p.Region,
		&p.SummonerLevel, &p.ProfileIconID, &p.LastRefreshAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player %s#%s: %w", gameName, tagLine, err)
	}
	return &p, nil
}

func (r *PlayerRepository) ShouldRefresh(ctx context.Context, puuid string, ttl time.Duration) (bool, error) {
	var lastRefreshAt time.Time
	err := r.db.QueryRowContext(ctx, `SELECT last_refresh_at FROM players WHERE puuid = ?`, puuid).Scan(&lastRefreshAt)
	if err == sql.ErrNoRows {
		r.logger.Debug().Str("puuid", puuid).Msg("player not found, should refresh")
		return true, nil
	}
	if err != nil {
		r.logger.Error().Err(err).Str("puuid", puuid).Msg("failed to get player")
		return false, err
	}

	timeSince := time.Since(lastRefreshAt)
	shouldRefresh := timeSince > ttl
	r.logger.Debug().
		Str("puuid", puuid).
		Time("last_refresh_at", lastRefreshAt).
		Dur("time_since", timeSince).
		Dur("ttl", ttl).
		Bool("should_refresh", shouldRefresh).
		Msg("checking if player should refresh")

	return shouldRefresh, nil
}
