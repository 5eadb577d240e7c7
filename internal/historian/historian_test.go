package historian

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/musicquiz/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu        sync.Mutex
	batches   [][]models.MatchEvent
	abandoned []uuid.UUID
	fail      bool
}

func (f *fakeSink) Write(_ context.Context, events []models.MatchEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("db down")
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakeSink) Abandon(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, id)
	return nil
}

func newTestService(sink Sink, batch int) *Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(nil, sink, Options{Queue: "q", BatchSize: batch, FlushEvery: time.Second, Inactivity: 10 * time.Minute}, logger)
}

func event(id uuid.UUID, seq int, typ string) string {
	data, _ := json.Marshal(models.MatchEvent{MatchID: id, LobbyCode: "ABCD", Seq: seq, Type: typ})
	return string(data)
}

func TestBatchFlushesWhenFull(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(sink, 3)
	id := uuid.New()
	ctx := context.Background()

	s.handle(ctx, event(id, 1, "match_started"))
	s.handle(ctx, event(id, 2, "round_started"))
	assert.Empty(t, sink.batches)

	s.handle(ctx, event(id, 3, "answer_submitted"))
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 3)
	assert.Equal(t, 3, sink.batches[0][2].Seq)

	s.flush(ctx)
	assert.Len(t, sink.batches, 1, "empty flush writes nothing")
}

func TestInvalidPayloadsAreDropped(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(sink, 1)

	s.handle(context.Background(), "{not json")
	s.handle(context.Background(), event(uuid.Nil, 1, "round_started"))
	assert.Empty(t, sink.batches)
}

func TestFailedFlushIsRetried(t *testing.T) {
	sink := &fakeSink{fail: true}
	s := newTestService(sink, 10)
	id := uuid.New()
	ctx := context.Background()

	s.handle(ctx, event(id, 1, "match_started"))
	s.flush(ctx)
	assert.Empty(t, sink.batches)

	sink.fail = false
	s.handle(ctx, event(id, 2, "round_started"))
	s.flush(ctx)
	require.Len(t, sink.batches, 1)
	assert.Equal(t, []int{1, 2}, []int{sink.batches[0][0].Seq, sink.batches[0][1].Seq})
}

func TestSweepAbandonsQuietMatches(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(sink, 100)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	quiet, finished, busy := uuid.New(), uuid.New(), uuid.New()
	s.handle(ctx, event(quiet, 1, "match_started"))
	s.handle(ctx, event(finished, 1, "match_started"))
	s.handle(ctx, event(finished, 2, "match_ended"))

	now = now.Add(11 * time.Minute)
	s.handle(ctx, event(busy, 1, "match_started"))
	s.sweep(ctx)

	assert.Equal(t, []uuid.UUID{quiet}, sink.abandoned)
	require.Len(t, sink.batches, 1, "buffered events are flushed before abandoning")
	assert.Len(t, sink.batches[0], 4)

	s.sweep(ctx)
	assert.Len(t, sink.abandoned, 1, "a match is abandoned once")
}
