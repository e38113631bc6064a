package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/Verdenroz/champion-recap/internal/config"
	"github.com/Verdenroz/champion-recap/internal/constants"
	"github.com/Verdenroz/champion-recap/internal/queue"
	"github.com/Verdenroz/champion-recap/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Workers drains the queue with a fixed pool of goroutines. Each worker
// dequeues one batch at a time, processes it and acks the outcome back so
// the queue can release the player or redeliver the failures.
type Workers struct {
	queue     *queue.Queue
	processor *Processor
	progress  *repository.ProgressRepository
	count     int
	logger    zerolog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewWorkers(
	q *queue.Queue,
	proc *Processor,
	progress *repository.ProgressRepository,
	cfg *config.Config,
	logger zerolog.Logger,
) *Workers {
	w := &Workers{
		queue:     q,
		processor: proc,
		progress:  progress,
		count:     cfg.WorkerCount,
		logger:    logger,
	}
	q.SetDeadLetterHandler(w.handleDeadLetter)
	return w
}

func (w *Workers) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	group, ctx := errgroup.WithContext(ctx)
	w.group = group

	w.logger.Info().Int("workers", w.count).Msg("starting queue workers")
	for i := 0; i < w.count; i++ {
		id := i + 1
		group.Go(func() error {
			w.run(ctx, id)
			return nil
		})
	}
}

// Stop cancels the pool and waits for in-flight batches to finish.
func (w *Workers) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.group != nil {
		_ = w.group.Wait()
	}
	w.logger.Info().Msg("queue workers stopped")
}

func (w *Workers) run(ctx context.Context, id int) {
	logger := w.logger.With().Int("worker_id", id).Logger()
	logger.Debug().Msg("worker started")

	for {
		batch, err := w.queue.Dequeue(ctx)
		if err != nil {
			logger.Debug().Msg("worker shutting down")
			return
		}

		start := time.Now()
		failures := w.processor.ProcessBatch(ctx, batch)
		w.queue.Ack(batch, failures)

		logger.Debug().
			Str("puuid", batch.PlayerID).
			Int("items", len(batch.Items)).
			Int("failures", len(failures)).
			Dur("duration", time.Since(start)).
			Msg("batch processed")
	}
}

// handleDeadLetter runs when the queue gives up on an item. The run cannot
// complete once a match is unaccounted for, so the progress row is moved to
// ERROR with the cause recorded for the status endpoint.
func (w *Workers) handleDeadLetter(item *queue.Item, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	reason := fmt.Sprintf("match %s failed after %d attempts: %v", item.MatchID, item.Attempts, cause)
	if err := w.progress.SetError(ctx, item.PlayerID, reason); err != nil {
		w.logger.Error().
			Err(err).
			Str("puuid", item.PlayerID).
			Str("match_id", item.MatchID).
			Msg("failed to record dead letter on progress")
	}
}
