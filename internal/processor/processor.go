package processor

import (
	"context"
	"time"

	"github.com/Verdenroz/champion-recap/internal/api"
	"github.com/Verdenroz/champion-recap/internal/config"
	"github.com/Verdenroz/champion-recap/internal/constants"
	"github.com/Verdenroz/champion-recap/internal/domain"
	"github.com/Verdenroz/champion-recap/internal/errors"
	"github.com/Verdenroz/champion-recap/internal/queue"
	"github.com/Verdenroz/champion-recap/internal/repository"

	"github.com/rs/zerolog"
)

// Recomputer rebuilds a player's snapshot. Satisfied by the aggregator.
type Recomputer interface {
	Recompute(ctx context.Context, puuid string, year int) (*domain.ChampionStatsSnapshot, error)
}

// Processor turns queue items into cached matches, derived stat rows and
// progress movement. All of its writes are guarded by the single-flip
// match_ids flags, so redelivered items never double count.
type Processor struct {
	client     api.ClientInterface
	cache      *repository.CacheRepository
	stats      *repository.StatsRepository
	matchIndex *repository.MatchIndexRepository
	progress   *repository.ProgressRepository
	recomputer Recomputer
	threshold  int
	logger     zerolog.Logger
}

func New(
	client api.ClientInterface,
	cache *repository.CacheRepository,
	stats *repository.StatsRepository,
	matchIndex *repository.MatchIndexRepository,
	progress *repository.ProgressRepository,
	recomputer Recomputer,
	cfg *config.Config,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		client:     client,
		cache:      cache,
		stats:      stats,
		matchIndex: matchIndex,
		progress:   progress,
		recomputer: recomputer,
		threshold:  cfg.AggregationThreshold,
		logger:     logger,
	}
}

// ProcessBatch handles one delivered batch and returns failures keyed by
// match id. Anything in the returned map gets redelivered by the queue;
// permanently failed matches are recorded as skipped instead and count as
// handled here.
func (p *Processor) ProcessBatch(ctx context.Context, batch *queue.Batch) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, constants.BatchTimeout)
	defer cancel()

	failures := make(map[string]error)
	for _, item := range batch.Items {
		if err := p.processItem(ctx, item); err != nil {
			p.logger.Warn().
				Err(err).
				Str("puuid", item.PlayerID).
				Str("match_id", item.MatchID).
				Int("attempts", item.Attempts).
				Msg("item failed, leaving for redelivery")
			failures[item.MatchID] = err
		}
	}
	return failures
}

func (p *Processor) processItem(ctx context.Context, item *queue.Item) error {
	has, err := p.cache.Has(ctx, item.MatchID)
	if err != nil {
		return err
	}

	if !has {
		match, raw, err := p.client.FetchMatch(ctx, item.Platform, item.MatchID)
		if err != nil {
			if errors.IsTransient(err) {
				return err
			}
			// permanent upstream failure, record the skip and finish the item
			return p.skipItem(ctx, item, err)
		}
		if err := p.storeMatch(ctx, item, match, raw); err != nil {
			return err
		}
	}

	return p.finishItem(ctx, item)
}

// storeMatch writes the derived stat rows first and the raw payload second;
// a payload in the cache therefore always has its stat rows present.
func (p *Processor) storeMatch(ctx context.Context, item *queue.Item, match *api.MatchDto, raw []byte) error {
	if err := p.stats.InsertBatch(ctx, deriveStats(item.MatchID, match)); err != nil {
		return err
	}

	written, err := p.cache.Put(ctx, &domain.CachedMatch{
		MatchID:      item.MatchID,
		CacheKey:     domain.CacheKey(item.PlayerID, item.MatchID),
		Region:       api.RegionRouting(item.Platform),
		Payload:      raw,
		GameCreation: time.UnixMilli(match.Info.GameCreation).UTC(),
		GameDuration: match.Info.GameDuration,
		GameMode:     match.Info.GameMode,
		CachedAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !written {
		p.logger.Debug().
			Err(errors.NewCacheConflictError(item.MatchID)).
			Str("puuid", item.PlayerID).
			Msg("treating concurrent cache write as success")
	}
	return nil
}

// finishItem flips the per-player cached flag and, on the first flip only,
// moves the progress counters and fires whatever the new count warrants.
func (p *Processor) finishItem(ctx context.Context, item *queue.Item) error {
	flipped, err := p.matchIndex.MarkCached(ctx, item.MatchID, item.PlayerID)
	if err != nil {
		return err
	}
	if !flipped {
		// a redelivery after the flip already happened, nothing left to count
		return nil
	}

	processed, total, err := p.progress.IncrementCached(ctx, item.PlayerID)
	if err != nil {
		return err
	}
	p.afterIncrement(ctx, item, processed, total)
	return nil
}

// skipItem handles a permanently failed match: it counts toward processed so
// the run can complete, and shows up separately as skipped.
func (p *Processor) skipItem(ctx context.Context, item *queue.Item, cause error) error {
	flipped, err := p.matchIndex.MarkFailed(ctx, item.MatchID, item.PlayerID)
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}

	p.logger.Warn().
		Err(cause).
		Str("puuid", item.PlayerID).
		Str("match_id", item.MatchID).
		Msg("skipping permanently failed match")

	processed, total, err := p.progress.IncrementSkipped(ctx, item.PlayerID)
	if err != nil {
		return err
	}
	p.afterIncrement(ctx, item, processed, total)
	return nil
}

// afterIncrement runs the side effects owed by a counter move: completion
// when the run has covered every match, otherwise a threshold recompute when
// the new count lands exactly on a multiple of the configured threshold.
func (p *Processor) afterIncrement(ctx context.Context, item *queue.Item, processed, total int) {
	if processed >= total {
		p.completeRun(ctx, item)
		return
	}
	if p.threshold > 0 && processed%p.threshold == 0 {
		p.triggerRecompute(item.PlayerID, item.Year, processed)
	}
}

func (p *Processor) completeRun(ctx context.Context, item *queue.Item) {
	transitioned, err := p.progress.MarkComplete(ctx, item.PlayerID)
	if err != nil {
		p.logger.Error().Err(err).Str("puuid", item.PlayerID).Msg("failed to mark run complete")
		return
	}
	if !transitioned {
		return
	}

	p.logger.Info().
		Str("puuid", item.PlayerID).
		Int("year", item.Year).
		Msg("ingestion run complete")

	// final snapshot so the recap covers every processed match
	p.triggerRecompute(item.PlayerID, item.Year, 0)
}

// triggerRecompute fires the aggregator without blocking the worker. A
// failed recompute is only logged; the next threshold crossing retries it.
func (p *Processor) triggerRecompute(puuid string, year, processed int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.AggregationTimeout)
		defer cancel()

		if _, err := p.recomputer.Recompute(ctx, puuid, year); err != nil {
			if errors.IsAggregationNotReady(err) {
				p.logger.Debug().Str("puuid", puuid).Int("year", year).Msg("no aggregation input yet")
				return
			}
			p.logger.Error().
				Err(err).
				Str("puuid", puuid).
				Int("year", year).
				Int("processed", processed).
				Msg("snapshot recompute failed")
		}
	}()
}

func deriveStats(matchID string, match *api.MatchDto) []domain.MatchStat {
	info := match.Info
	creation := time.UnixMilli(info.GameCreation).UTC()

	stats := make([]domain.MatchStat, 0, len(info.Participants))
	for _, part := range info.Participants {
		stats = append(stats, domain.MatchStat{
			MatchID:      matchID,
			Puuid:        part.Puuid,
			ChampionID:   part.ChampionID,
			ChampionName: part.ChampionName,
			TeamID:       part.TeamID,
			Role:         api.NormalizeRole(part.TeamPosition, part.Lane),
			Win:          part.Win,
			Kills:        part.Kills,
			Deaths:       part.Deaths,
			Assists:      part.Assists,
			DamageDealt:  part.TotalDamageDealtToChampions,
			GoldEarned:   part.GoldEarned,
			CS:           part.TotalMinionsKilled + part.NeutralMinionsKilled,
			VisionScore:  part.VisionScore,
			GameCreation: creation,
			GameDuration: info.GameDuration,
		})
	}
	return stats
}
