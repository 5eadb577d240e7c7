package cache

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/musicquiz/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherPushesInOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb, err := Connect(ctx, "localhost:6379", 15)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer rdb.Close()

	queue := "test_match_events_" + uuid.NewString()
	defer rdb.Del(context.Background(), queue)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	p := NewPublisher(rdb, queue, 16, logger)

	matchID := uuid.New()
	for seq := 1; seq <= 3; seq++ {
		p.Record(models.MatchEvent{MatchID: matchID, LobbyCode: "ABCD", Seq: seq, Type: "round_started"})
	}
	p.Close()

	raw, err := rdb.LRange(ctx, queue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 3)
	for i, item := range raw {
		var ev models.MatchEvent
		require.NoError(t, json.Unmarshal([]byte(item), &ev))
		assert.Equal(t, i+1, ev.Seq)
		assert.Equal(t, matchID, ev.MatchID)
	}
}

func TestConnectFailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, "127.0.0.1:1", 0)
	assert.Error(t, err)
}

func TestPublisherRecordAfterClose(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	p := NewPublisher(rdb, "", 1, logger)
	p.Close()
	p.Close()

	assert.NotPanics(t, func() {
		p.Record(models.MatchEvent{MatchID: uuid.New(), LobbyCode: "ABCD", Seq: 1, Type: "lobby_closed"})
	})
	assert.Empty(t, p.events)
}
