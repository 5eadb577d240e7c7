// Package historian drains match events from Redis and archives them in PostgreSQL.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/musicquiz/internal/database"
	"github.com/jason-s-yu/musicquiz/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Sink stores archived events.
type Sink interface {
	Write(ctx context.Context, events []models.MatchEvent) error
	Abandon(ctx context.Context, matchID uuid.UUID) error
}

// PostgresSink writes to the matches and match_events tables.
type PostgresSink struct {
	Pool *pgxpool.Pool
}

func (s PostgresSink) Write(ctx context.Context, events []models.MatchEvent) error {
	return database.InsertMatchEvents(ctx, s.Pool, events)
}

func (s PostgresSink) Abandon(ctx context.Context, matchID uuid.UUID) error {
	return database.MarkMatchAbandoned(ctx, s.Pool, matchID)
}

type Options struct {
	Queue      string
	BatchSize  int
	FlushEvery time.Duration
	Inactivity time.Duration // a match with no events for this long is marked abandoned
}

// Service accumulates events popped from the queue and flushes them to the sink in batches.
type Service struct {
	rdb  *redis.Client
	sink Sink
	opts Options
	log  *logrus.Logger
	now  func() time.Time

	mu           sync.Mutex
	batch        []models.MatchEvent
	lastActivity map[uuid.UUID]time.Time
}

func New(rdb *redis.Client, sink Sink, opts Options, logger *logrus.Logger) *Service {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &Service{
		rdb:          rdb,
		sink:         sink,
		opts:         opts,
		log:          logger,
		now:          time.Now,
		batch:        make([]models.MatchEvent, 0, opts.BatchSize),
		lastActivity: make(map[uuid.UUID]time.Time),
	}
}

// Run blocks until ctx is cancelled, then flushes whatever is still buffered.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(ctx) })
	g.Go(func() error { return s.tickLoop(ctx) })
	s.log.Info("historian started")
	err := g.Wait()

	// ctx is done; give the last flush its own deadline
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx)
	s.log.Info("historian stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readLoop pops events with a short BLPop timeout so cancellation is noticed.
func (s *Service) readLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.rdb.BLPop(ctx, 3*time.Second, s.opts.Queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Errorf("BLPop: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}
		// res[0] is the queue name and res[1] the payload.
		s.handle(ctx, res[1])
	}
}

func (s *Service) tickLoop(ctx context.Context) error {
	flush := time.NewTicker(s.opts.FlushEvery)
	defer flush.Stop()
	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-flush.C:
			s.flush(ctx)
		case <-sweep.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) handle(ctx context.Context, payload string) {
	var ev models.MatchEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		s.log.Warnf("invalid match event: %v", err)
		return
	}
	if ev.MatchID == uuid.Nil {
		s.log.Warnf("match event without match id dropped: %s", ev.Type)
		return
	}
	s.add(ctx, ev)
}

// add buffers ev and flushes once the batch is full.
func (s *Service) add(ctx context.Context, ev models.MatchEvent) {
	s.mu.Lock()
	s.batch = append(s.batch, ev)
	switch ev.Type {
	case "match_ended", "lobby_closed":
		delete(s.lastActivity, ev.MatchID)
	default:
		s.lastActivity[ev.MatchID] = s.now()
	}
	full := len(s.batch) >= s.opts.BatchSize
	s.mu.Unlock()

	if full {
		s.flush(ctx)
	}
}

func (s *Service) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.batch
	s.batch = make([]models.MatchEvent, 0, s.opts.BatchSize)
	s.mu.Unlock()

	if err := s.sink.Write(ctx, batch); err != nil {
		s.log.Errorf("flush of %d events failed: %v", len(batch), err)
		// put them back in front so the next flush retries
		s.mu.Lock()
		s.batch = append(batch, s.batch...)
		s.mu.Unlock()
		return
	}
	s.log.Debugf("Flushed %d events to DB.", len(batch))
}

// sweep marks matches that went quiet as abandoned.
func (s *Service) sweep(ctx context.Context) {
	now := s.now()
	var stale []uuid.UUID
	s.mu.Lock()
	for id, last := range s.lastActivity {
		if now.Sub(last) > s.opts.Inactivity {
			stale = append(stale, id)
			delete(s.lastActivity, id)
		}
	}
	s.mu.Unlock()

	if len(stale) == 0 {
		return
	}
	// pending events for these matches must land before the status update
	s.flush(ctx)
	for _, id := range stale {
		if err := s.sink.Abandon(ctx, id); err != nil {
			s.log.Errorf("failed to mark match %s abandoned: %v", id, err)
			continue
		}
		s.log.Infof("Marked match %s as 'abandoned' due to inactivity.", id)
	}
}
