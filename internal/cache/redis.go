// Package cache publishes match events to Redis for the historian.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/musicquiz/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list (queue) name for match events.
const DefaultQueueName = "musicquiz_match_events"

// Connect creates a Redis client and checks it answers.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// PublishMatchEvent serializes ev and pushes it onto queue.
func PublishMatchEvent(ctx context.Context, rdb *redis.Client, queue string, ev models.MatchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchEvent: %w", err)
	}
	if err := rdb.RPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queue, err)
	}
	return nil
}

// Publisher records match events without blocking the caller. Events are pushed in the order
// they were recorded by a single background goroutine; when its buffer is full they are dropped.
type Publisher struct {
	rdb    *redis.Client
	queue  string
	log    *logrus.Logger
	events chan models.MatchEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewPublisher(rdb *redis.Client, queue string, buffer int, logger *logrus.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	p := &Publisher{
		rdb:    rdb,
		queue:  queue,
		log:    logger,
		events: make(chan models.MatchEvent, buffer),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Record queues ev for publishing. Events recorded after Close are dropped.
func (p *Publisher) Record(ev models.MatchEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Debugf("Publisher: closed, dropped %s event %d of match %s", ev.Type, ev.Seq, ev.MatchID)
		return
	}
	select {
	case p.events <- ev:
	default:
		p.log.Warnf("Publisher: queue full, dropped %s event %d of match %s", ev.Type, ev.Seq, ev.MatchID)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for ev := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := PublishMatchEvent(ctx, p.rdb, p.queue, ev); err != nil {
			p.log.Warnf("Publisher: %v", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queued ones to be pushed.
func (p *Publisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()
	<-p.done
}
