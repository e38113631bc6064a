package aggregator

import (
	"context"
	"time"

	"github.com/Verdenroz/champion-recap/internal/constants"
	"github.com/Verdenroz/champion-recap/internal/repository"

	"github.com/rs/zerolog"
)

// Sweeper periodically removes expired snapshots so reads never serve stale
// recaps and the table does not grow without bound.
type Sweeper struct {
	snapshots *repository.SnapshotRepository
	interval  time.Duration
	logger    zerolog.Logger
}

func NewSweeper(snapshots *repository.SnapshotRepository, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		snapshots: snapshots,
		interval:  constants.SnapshotSweep,
		logger:    logger,
	}
}

// Run blocks until ctx is done, sweeping on each tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("snapshot sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes expired snapshots a single time.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	deleted, err := s.snapshots.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to sweep expired snapshots")
		return
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("swept expired snapshots")
	}
}
