package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Verdenroz/champion-recap/internal/constants"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Item is one match fetch waiting to be processed for one player.
type Item struct {
	ID         string // nanoid
	PlayerID   string
	MatchID    string
	Platform   string
	Year       int
	Attempts   int
	EnqueuedAt time.Time
}

func (i *Item) key() string {
	return i.PlayerID + "/" + i.MatchID
}

// Batch is an ordered slice of items for a single player. At most one batch
// per player is out with a worker at any time, which keeps per-player
// processing in enqueue order even with many workers.
type Batch struct {
	PlayerID string
	Items    []*Item
}

// DeadLetterFunc is invoked, outside the queue lock, for each item that
// exhausted its delivery attempts.
type DeadLetterFunc func(item *Item, err error)

// Queue is an in-memory work queue with per-player FIFO ordering,
// at-least-once delivery and bounded retries. Items that keep failing are
// parked on a dead letter list instead of being redelivered forever.
type Queue struct {
	mu       sync.Mutex
	pending  map[string][]*Item
	order    []string
	inflight map[string]*Batch
	recent   map[string]time.Time
	dead     []*Item

	notify chan struct{}

	batchSize   int
	maxAttempts int
	dedupWindow time.Duration

	onDeadLetter DeadLetterFunc

	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Queue {
	return &Queue{
		pending:     make(map[string][]*Item),
		inflight:    make(map[string]*Batch),
		recent:      make(map[string]time.Time),
		notify:      make(chan struct{}, 1),
		batchSize:   constants.QueueBatchSize,
		maxAttempts: constants.QueueMaxAttempts,
		dedupWindow: constants.QueueDedupWindow,
		logger:      logger,
	}
}

// SetDeadLetterHandler installs the hook called when an item exhausts its
// attempts. Must be set before workers start dequeuing.
func (q *Queue) SetDeadLetterHandler(fn DeadLetterFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDeadLetter = fn
}

// Enqueue appends items to their players' pending lists in the given order
// and returns how many were accepted. Items already pending, in flight, or
// completed within the dedup window are dropped.
func (q *Queue) Enqueue(items ...*Item) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	q.pruneRecentLocked(now)

	accepted := 0
	for _, item := range items {
		if item.PlayerID == "" || item.MatchID == "" {
			return accepted, fmt.Errorf("queue item missing player or match id")
		}
		if q.isDuplicateLocked(item) {
			continue
		}
		if item.ID == "" {
			id, err := gonanoid.New()
			if err != nil {
				return accepted, fmt.Errorf("failed to generate nanoid: %w", err)
			}
			item.ID = id
		}
		item.EnqueuedAt = now

		if len(q.pending[item.PlayerID]) == 0 {
			q.order = append(q.order, item.PlayerID)
		}
		q.pending[item.PlayerID] = append(q.pending[item.PlayerID], item)
		accepted++
	}

	if accepted > 0 {
		q.signalLocked()
	}
	return accepted, nil
}

// Dequeue blocks until a batch is available or ctx is done. The returned
// batch holds up to the configured batch size of the oldest pending items of
// one player that currently has no batch in flight.
func (q *Queue) Dequeue(ctx context.Context) (*Batch, error) {
	for {
		q.mu.Lock()
		batch := q.takeBatchLocked()
		if batch != nil {
			// more players may still have work for other workers
			if q.hasAvailableLocked() {
				q.signalLocked()
			}
			q.mu.Unlock()
			return batch, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Ack reports the outcome of a delivered batch. Failed items keyed by match
// id are redelivered ahead of newer work in their original order until they
// run out of attempts; everything else counts as completed for the dedup
// window. Dead letter callbacks run after the queue lock is released.
func (q *Queue) Ack(batch *Batch, failures map[string]error) {
	type deadItem struct {
		item *Item
		err  error
	}
	var deadLetters []deadItem
	var handler DeadLetterFunc

	q.mu.Lock()
	delete(q.inflight, batch.PlayerID)

	now := time.Now()
	var requeue []*Item
	for _, item := range batch.Items {
		failure, failed := failures[item.MatchID]
		if !failed {
			q.recent[item.key()] = now
			continue
		}

		item.Attempts++
		if item.Attempts >= q.maxAttempts {
			q.dead = append(q.dead, item)
			deadLetters = append(deadLetters, deadItem{item: item, err: failure})
			q.logger.Warn().
				Str("puuid", item.PlayerID).
				Str("match_id", item.MatchID).
				Int("attempts", item.Attempts).
				Err(failure).
				Msg("item moved to dead letter list")
			continue
		}
		requeue = append(requeue, item)
	}

	if len(requeue) > 0 {
		if len(q.pending[batch.PlayerID]) == 0 {
			q.order = append(q.order, batch.PlayerID)
		}
		q.pending[batch.PlayerID] = append(requeue, q.pending[batch.PlayerID]...)
	}

	// the player's remaining work was blocked by this batch, wake a worker
	if len(q.pending[batch.PlayerID]) > 0 {
		q.signalLocked()
	}
	handler = q.onDeadLetter
	q.mu.Unlock()

	if handler != nil {
		for _, d := range deadLetters {
			handler(d.item, d.err)
		}
	}
}

// Depth returns the total number of pending items across all players.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, items := range q.pending {
		total += len(items)
	}
	return total
}

// DeadLetters returns a copy of the dead letter list.
func (q *Queue) DeadLetters() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Item, len(q.dead))
	copy(out, q.dead)
	return out
}

func (q *Queue) isDuplicateLocked(item *Item) bool {
	key := item.key()
	if _, ok := q.recent[key]; ok {
		return true
	}
	for _, pending := range q.pending[item.PlayerID] {
		if pending.MatchID == item.MatchID {
			return true
		}
	}
	if batch, ok := q.inflight[item.PlayerID]; ok {
		for _, inflight := range batch.Items {
			if inflight.MatchID == item.MatchID {
				return true
			}
		}
	}
	return false
}

func (q *Queue) takeBatchLocked() *Batch {
	for idx, playerID := range q.order {
		if _, busy := q.inflight[playerID]; busy {
			continue
		}
		items := q.pending[playerID]
		if len(items) == 0 {
			continue
		}

		n := q.batchSize
		if n > len(items) {
			n = len(items)
		}
		batch := &Batch{PlayerID: playerID, Items: items[:n:n]}
		rest := items[n:]
		if len(rest) == 0 {
			delete(q.pending, playerID)
			q.order = append(q.order[:idx], q.order[idx+1:]...)
		} else {
			q.pending[playerID] = rest
			// rotate so other players get a turn
			q.order = append(append(q.order[:idx], q.order[idx+1:]...), playerID)
		}
		q.inflight[playerID] = batch
		return batch
	}
	return nil
}

func (q *Queue) hasAvailableLocked() bool {
	for _, playerID := range q.order {
		if _, busy := q.inflight[playerID]; busy {
			continue
		}
		if len(q.pending[playerID]) > 0 {
			return true
		}
	}
	return false
}

func (q *Queue) pruneRecentLocked(now time.Time) {
	for key, completedAt := range q.recent {
		if now.Sub(completedAt) > q.dedupWindow {
			delete(q.recent, key)
		}
	}
}

func (q *Queue) signalLocked() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
