package queue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Verdenroz/champion-recap/internal/queue"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type QueueSuite struct {
	suite.Suite
	q *queue.Queue
}

func (s *QueueSuite) SetupTest() {
	s.q = queue.New(zerolog.Nop())
}

func newItem(playerID, matchID string) *queue.Item {
	return &queue.Item{
		PlayerID: playerID,
		MatchID:  matchID,
		Platform: "na1",
		Year:     2025,
	}
}

func newItems(playerID string, n int) []*queue.Item {
	items := make([]*queue.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, newItem(playerID, fmt.Sprintf("NA1_%d", i+1)))
	}
	return items
}

func matchIDs(batch *queue.Batch) []string {
	ids := make([]string, 0, len(batch.Items))
	for _, item := range batch.Items {
		ids = append(ids, item.MatchID)
	}
	return ids
}

func (s *QueueSuite) dequeue() *queue.Batch {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, err := s.q.Dequeue(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(batch)
	return batch
}

func (s *QueueSuite) TestEnqueue_AssignsIDs() {
	accepted, err := s.q.Enqueue(newItems("p1", 3)...)
	s.Require().NoError(err)
	s.Assert().Equal(3, accepted)

	batch := s.dequeue()
	for _, item := range batch.Items {
		s.Assert().NotEmpty(item.ID)
		s.Assert().False(item.EnqueuedAt.IsZero())
	}
}

func (s *QueueSuite) TestEnqueue_RejectsIncompleteItems() {
	_, err := s.q.Enqueue(&queue.Item{PlayerID: "p1"})
	s.Require().Error(err)
}

func (s *QueueSuite) TestDequeue_BatchSizeCap() {
	_, err := s.q.Enqueue(newItems("p1", 7)...)
	s.Require().NoError(err)

	batch := s.dequeue()
	s.Assert().Equal("p1", batch.PlayerID)
	s.Assert().Equal([]string{"NA1_1", "NA1_2", "NA1_3", "NA1_4", "NA1_5"}, matchIDs(batch))
	s.Assert().Equal(2, s.q.Depth())
}

func (s *QueueSuite) TestDequeue_OneBatchPerPlayer() {
	_, err := s.q.Enqueue(newItems("p1", 7)...)
	s.Require().NoError(err)

	first := s.dequeue()
	s.Require().Len(first.Items, 5)

	// the remaining two items are blocked until the first batch is acked
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.q.Dequeue(ctx)
	s.Require().ErrorIs(err, context.DeadlineExceeded)

	s.q.Ack(first, nil)

	second := s.dequeue()
	s.Assert().Equal([]string{"NA1_6", "NA1_7"}, matchIDs(second))
}

func (s *QueueSuite) TestDequeue_InterleavesPlayers() {
	_, err := s.q.Enqueue(newItems("p1", 6)...)
	s.Require().NoError(err)
	_, err = s.q.Enqueue(newItem("p2", "EUW1_1"))
	s.Require().NoError(err)

	first := s.dequeue()
	s.Assert().Equal("p1", first.PlayerID)

	// p1 still has pending work but its batch is in flight, so p2 goes next
	second := s.dequeue()
	s.Assert().Equal("p2", second.PlayerID)
	s.Assert().Equal([]string{"EUW1_1"}, matchIDs(second))
}

func (s *QueueSuite) TestEnqueue_DedupAcrossStates() {
	accepted, err := s.q.Enqueue(newItem("p1", "NA1_1"), newItem("p1", "NA1_1"))
	s.Require().NoError(err)
	s.Assert().Equal(1, accepted)

	batch := s.dequeue()

	// in flight
	accepted, err = s.q.Enqueue(newItem("p1", "NA1_1"))
	s.Require().NoError(err)
	s.Assert().Equal(0, accepted)

	s.q.Ack(batch, nil)

	// completed within the dedup window
	accepted, err = s.q.Enqueue(newItem("p1", "NA1_1"))
	s.Require().NoError(err)
	s.Assert().Equal(0, accepted)
	s.Assert().Equal(0, s.q.Depth())

	// a different player is never deduped against p1
	accepted, err = s.q.Enqueue(newItem("p2", "NA1_1"))
	s.Require().NoError(err)
	s.Assert().Equal(1, accepted)
}

func (s *QueueSuite) TestAck_RedeliversFailuresAheadOfNewerWork() {
	_, err := s.q.Enqueue(newItems("p1", 6)...)
	s.Require().NoError(err)

	batch := s.dequeue()
	s.Require().Len(batch.Items, 5)

	s.q.Ack(batch, map[string]error{
		"NA1_2": errors.New("upstream 500"),
		"NA1_4": errors.New("upstream 500"),
	})

	redelivered := s.dequeue()
	s.Assert().Equal([]string{"NA1_2", "NA1_4", "NA1_6"}, matchIDs(redelivered))
	s.Assert().Equal(1, redelivered.Items[0].Attempts)
	s.Assert().Equal(1, redelivered.Items[1].Attempts)
	s.Assert().Equal(0, redelivered.Items[2].Attempts)
}

func (s *QueueSuite) TestAck_DeadLettersAfterMaxAttempts() {
	var dead []*queue.Item
	var deadErrs []error
	s.q.SetDeadLetterHandler(func(item *queue.Item, err error) {
		dead = append(dead, item)
		deadErrs = append(deadErrs, err)
	})

	_, err := s.q.Enqueue(newItem("p1", "NA1_1"))
	s.Require().NoError(err)

	cause := errors.New("upstream 503")
	for i := 0; i < 3; i++ {
		batch := s.dequeue()
		s.Require().Equal([]string{"NA1_1"}, matchIDs(batch))
		s.q.Ack(batch, map[string]error{"NA1_1": cause})
	}

	s.Require().Len(dead, 1)
	s.Assert().Equal("NA1_1", dead[0].MatchID)
	s.Assert().Equal(3, dead[0].Attempts)
	s.Assert().Equal(cause, deadErrs[0])

	letters := s.q.DeadLetters()
	s.Require().Len(letters, 1)
	s.Assert().Equal("NA1_1", letters[0].MatchID)

	// dead items are not redelivered
	s.Assert().Equal(0, s.q.Depth())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.q.Dequeue(ctx)
	s.Require().ErrorIs(err, context.DeadlineExceeded)
}

func (s *QueueSuite) TestDequeue_ContextCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := s.q.Dequeue(ctx)
	s.Require().ErrorIs(err, context.Canceled)
}

func (s *QueueSuite) TestDepth() {
	s.Assert().Equal(0, s.q.Depth())

	_, err := s.q.Enqueue(newItems("p1", 3)...)
	s.Require().NoError(err)
	_, err = s.q.Enqueue(newItem("p2", "EUW1_1"))
	s.Require().NoError(err)

	s.Assert().Equal(4, s.q.Depth())
}

func TestQueueSuite(t *testing.T) {
	suite.Run(t, new(QueueSuite))
}
