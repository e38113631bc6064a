package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Verdenroz/champion-recap/internal/api"
	"github.com/Verdenroz/champion-recap/internal/constants"
	"github.com/Verdenroz/champion-recap/internal/domain"
	"github.com/Verdenroz/champion-recap/internal/errors"
	"github.com/Verdenroz/champion-recap/internal/queue"
	"github.com/Verdenroz/champion-recap/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// match-v5 keeps no usable history before this
const minRecapYear = 2010

// Recomputer rebuilds a player's snapshot. Satisfied by the aggregator.
type Recomputer interface {
	Recompute(ctx context.Context, puuid string, year int) (*domain.ChampionStatsSnapshot, error)
}

// RecapStatus is the combined read model for the status endpoint. Either
// field can be nil: progress exists only while the player's single run row
// tracks the requested year, the snapshot only after a recompute landed.
type RecapStatus struct {
	Progress *domain.ProgressRecord
	Snapshot *domain.ChampionStatsSnapshot
}

// StartResult pairs the resolved player with the run's progress.
type StartResult struct {
	Player   *domain.PlayerProfile
	Progress *domain.ProgressRecord
}

type RecapService struct {
	client     api.ClientInterface
	players    *repository.PlayerRepository
	matchIndex *repository.MatchIndexRepository
	cache      *repository.CacheRepository
	progress   *repository.ProgressRepository
	snapshots  *repository.SnapshotRepository
	queue      *queue.Queue
	recomputer Recomputer
	logger     zerolog.Logger
}

func NewRecapService(
	client api.ClientInterface,
	players *repository.PlayerRepository,
	matchIndex *repository.MatchIndexRepository,
	cache *repository.CacheRepository,
	progress *repository.ProgressRepository,
	snapshots *repository.SnapshotRepository,
	q *queue.Queue,
	recomputer Recomputer,
	logger zerolog.Logger,
) *RecapService {
	return &RecapService{
		client:     client,
		players:    players,
		matchIndex: matchIndex,
		cache:      cache,
		progress:   progress,
		snapshots:  snapshots,
		queue:      q,
		recomputer: recomputer,
		logger:     logger,
	}
}

// StartRecap resolves the riot id, lists the season's match ids and queues
// every match that is not already cached. It returns the resolved player and
// the run's progress; triggering again while a run is PROCESSING returns that
// run's progress instead of starting a second one.
func (s *RecapService) StartRecap(ctx context.Context, gameName, tagLine, platform string, year int) (*StartResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if err := validateRecapRequest(gameName, tagLine, platform, year); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("game_name", gameName).
		Str("tag_line", tagLine).
		Str("platform", platform).
		Int("year", year).
		Msg("starting recap")

	player, err := s.players.GetByRiotID(ctx, gameName, tagLine)
	if err != nil {
		return nil, err
	}

	if player != nil {
		existing, err := s.progress.Get(ctx, player.Puuid)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Status == domain.StatusProcessing {
			s.logger.Info().
				Str("puuid", player.Puuid).
				Int("active_year", existing.Year).
				Msg("ingestion already running, returning current progress")
			return &StartResult{Player: player, Progress: existing}, nil
		}
	}

	needProfile := player == nil
	var puuid string
	if player != nil {
		puuid = player.Puuid
		needProfile, err = s.players.ShouldRefresh(ctx, puuid, constants.ProfileRefreshTTL)
		if err != nil {
			return nil, err
		}
	}

	apiCtx, apiCancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer apiCancel()

	if player == nil {
		account, err := s.client.ResolveAccount(apiCtx, platform, gameName, tagLine)
		if err != nil {
			s.logger.Error().Err(err).Str("game_name", gameName).Str("tag_line", tagLine).Msg("failed to resolve account")
			return nil, fmt.Errorf("failed to resolve account: %w", err)
		}
		puuid = account.Puuid
		// canonical casing from the account endpoint
		gameName, tagLine = account.GameName, account.TagLine
	}

	g, gCtx := errgroup.WithContext(apiCtx)

	var matchIDs []string
	g.Go(func() error {
		ids, err := s.listSeasonMatchIDs(gCtx, platform, puuid, year)
		if err != nil {
			return err
		}
		matchIDs = ids
		return nil
	})

	if needProfile {
		g.Go(func() error {
			summoner, err := s.client.GetSummoner(gCtx, platform, puuid)
			if err != nil {
				return fmt.Errorf("failed to fetch summoner: %w", err)
			}
			now := time.Now().UTC()
			return s.players.Upsert(gCtx, &domain.PlayerProfile{
				Puuid:         puuid,
				GameName:      gameName,
				TagLine:       tagLine,
				Platform:      platform,
				Region:        api.RegionRouting(platform),
				SummonerLevel: int(summoner.SummonerLevel),
				ProfileIconID: summoner.ProfileIconID,
				LastRefreshAt: now,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Str("puuid", puuid).Msg("failed to fetch upstream data")
		return nil, err
	}

	s.logger.Info().
		Str("puuid", puuid).
		Int("year", year).
		Int("match_count", len(matchIDs)).
		Msg("season match ids listed")

	now := time.Now().UTC()
	records := make([]domain.MatchIDRecord, 0, len(matchIDs))
	for _, id := range matchIDs {
		records = append(records, domain.MatchIDRecord{MatchID: id, Puuid: puuid, Year: year, InsertedAt: now})
	}
	if err := s.matchIndex.InsertBatch(ctx, records); err != nil {
		return nil, err
	}

	hits, err := s.cache.BatchCheck(ctx, matchIDs)
	if err != nil {
		return nil, err
	}
	var cachedIDs []string
	for _, id := range matchIDs {
		if hits[id] {
			cachedIDs = append(cachedIDs, id)
		}
	}
	if len(cachedIDs) > 0 {
		flipped, err := s.matchIndex.MarkCachedBulk(ctx, puuid, cachedIDs)
		if err != nil {
			return nil, err
		}
		s.logger.Debug().
			Str("puuid", puuid).
			Int("hits", len(cachedIDs)).
			Int("flipped", flipped).
			Msg("reused already cached matches")
	}

	// Init recounts the flag columns, so it runs after the bulk flip above.
	prog, err := s.progress.Init(ctx, puuid, year, len(matchIDs))
	if err != nil {
		return nil, err
	}

	pending, err := s.matchIndex.ListPending(ctx, puuid, year)
	if err != nil {
		return nil, err
	}
	pendingSet := make(map[string]struct{}, len(pending))
	for _, id := range pending {
		pendingSet[id] = struct{}{}
	}

	// enqueue in the order the listing returned, newest first
	items := make([]*queue.Item, 0, len(pending))
	for _, id := range matchIDs {
		if _, ok := pendingSet[id]; ok {
			items = append(items, &queue.Item{PlayerID: puuid, MatchID: id, Platform: platform, Year: year})
		}
	}

	if len(items) == 0 {
		prog, err = s.finishIdleRun(ctx, puuid, year)
		if err != nil {
			return nil, err
		}
		return s.startResult(ctx, puuid, prog)
	}

	queued, err := s.queue.Enqueue(items...)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("puuid", puuid).
		Int("total", prog.TotalMatches).
		Int("already_cached", prog.CachedMatches).
		Int("queued", queued).
		Msg("recap ingestion started")

	return s.startResult(ctx, puuid, prog)
}

func (s *RecapService) startResult(ctx context.Context, puuid string, prog *domain.ProgressRecord) (*StartResult, error) {
	player, err := s.players.GetByPuuid(ctx, puuid)
	if err != nil {
		return nil, err
	}
	return &StartResult{Player: player, Progress: prog}, nil
}

// Status reports the run progress and the latest snapshot for one player and
// year. Both absent means nothing was ever triggered for the pair.
func (s *RecapService) Status(ctx context.Context, puuid string, year int) (*RecapStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	prog, err := s.progress.Get(ctx, puuid)
	if err != nil {
		return nil, err
	}
	if prog != nil && prog.Year != year {
		// the player's single run row tracks a different season
		prog = nil
	}

	snapshot, err := s.snapshots.GetLatest(ctx, puuid, year)
	if err != nil {
		return nil, err
	}

	if prog == nil && snapshot == nil {
		return nil, errors.NewNotFoundError("recap", puuid)
	}
	return &RecapStatus{Progress: prog, Snapshot: snapshot}, nil
}

// GetMatch returns one cached raw match record.
func (s *RecapService) GetMatch(ctx context.Context, matchID string) (*domain.CachedMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	match, err := s.cache.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, errors.NewNotFoundError("match", matchID)
	}
	return match, nil
}

// listSeasonMatchIDs pages through match-v5 until a short page, keeping the
// upstream newest-first ordering.
func (s *RecapService) listSeasonMatchIDs(ctx context.Context, platform, puuid string, year int) ([]string, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	var all []string
	for start := 0; ; start += constants.MatchIDPageSize {
		page, err := s.client.ListMatchIDs(ctx, platform, puuid, from.Unix(), to.Unix(), start, constants.MatchIDPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list match ids: %w", err)
		}
		all = append(all, page...)
		if len(page) < constants.MatchIDPageSize {
			return all, nil
		}
	}
}

// finishIdleRun closes out a run with no queue work left, either because
// every match was already cached or the season listing came back empty.
func (s *RecapService) finishIdleRun(ctx context.Context, puuid string, year int) (*domain.ProgressRecord, error) {
	transitioned, err := s.progress.MarkComplete(ctx, puuid)
	if err != nil {
		return nil, err
	}
	if transitioned {
		s.logger.Info().Str("puuid", puuid).Int("year", year).Msg("ingestion run complete without queue work")
		s.recompute(puuid, year)
	}
	return s.progress.Get(ctx, puuid)
}

// recompute fires the aggregator without blocking the request. An empty
// season produces no snapshot, which is not an error here.
func (s *RecapService) recompute(puuid string, year int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.AggregationTimeout)
		defer cancel()

		if _, err := s.recomputer.Recompute(ctx, puuid, year); err != nil {
			if errors.IsAggregationNotReady(err) {
				s.logger.Debug().Str("puuid", puuid).Int("year", year).Msg("no aggregation input yet")
				return
			}
			s.logger.Error().Err(err).Str("puuid", puuid).Int("year", year).Msg("snapshot recompute failed")
		}
	}()
}

func validateRecapRequest(gameName, tagLine, platform string, year int) error {
	if gameName == "" {
		return errors.NewValidationError("gameName", "must not be empty")
	}
	if tagLine == "" {
		return errors.NewValidationError("tagLine", "must not be empty")
	}
	if !api.ValidPlatform(platform) {
		return errors.NewValidationError("platform", fmt.Sprintf("unknown platform %q", platform))
	}
	if year < minRecapYear || year > time.Now().UTC().Year() {
		return errors.NewValidationError("year", fmt.Sprintf("must be between %d and the current year", minRecapYear))
	}
	return nil
}
