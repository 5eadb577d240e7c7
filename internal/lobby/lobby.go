// Package lobby holds the room registry and the per-lobby state machine that drives a match.
//
// Each Lobby is owned by a single goroutine. Client actions and timer expiries are queued to it
// as commands and applied one at a time, so lobby fields are never touched from anywhere else.
package lobby

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/musicquiz/internal/models"
	"github.com/jason-s-yu/musicquiz/internal/protocol"
	"github.com/sirupsen/logrus"
)

// ClueLoader returns the clues matching the given sources and categories.
type ClueLoader interface {
	Load(ctx context.Context, sources, categories []string) ([]models.Clue, error)
}

// Broadcaster delivers outbound messages. Calls are made from the lobby goroutine in commit order.
type Broadcaster interface {
	Subscribe(code string, conn uuid.UUID)
	Broadcast(code string, ev protocol.Outbound)
	Send(conn uuid.UUID, ev protocol.Outbound)
	Release(code string)
}

// Recorder receives match transitions for the history archive. It must not block.
type Recorder interface {
	Record(ev models.MatchEvent)
}

// Options are the server-wide rules every lobby plays by.
type Options struct {
	ReviewDelay      time.Duration
	PointsPerCorrect int
	MinRoundSeconds  int
	MaxRoundSeconds  int
	MaxRounds        int
	LateJoinScoring  bool
	Strict           bool // panic on invariant violations
	LoadTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		ReviewDelay:      8 * time.Second,
		PointsPerCorrect: 1,
		MinRoundSeconds:  5,
		MaxRoundSeconds:  120,
		MaxRounds:        50,
		LateJoinScoring:  true,
		LoadTimeout:      10 * time.Second,
	}
}

// member is a player plus the bookkeeping only the lobby needs.
type member struct {
	models.Player
	joinedMidRound bool
}

type command struct {
	fn    func() error
	reply chan error
}

// Lobby is one game session. Exported methods are safe for concurrent use; they hand the work
// to the lobby goroutine and wait for the result.
type Lobby struct {
	Code      string
	CreatedAt time.Time

	opts   Options
	loader ClueLoader
	bc     Broadcaster
	rec    Recorder
	clock  Clock
	log    *logrus.Entry

	inbox chan command
	done  chan struct{}

	// Everything below is owned by the run goroutine.
	hostConn    uuid.UUID
	hostID      uuid.UUID
	players     []*member
	joined      int
	settings    models.Settings
	phase       models.Phase
	round       int
	deck        []models.Clue
	used        map[string]struct{}
	current     *models.Clue
	pending     map[uuid.UUID]string
	earned      map[uuid.UUID]int
	roundTimer  *armedTimer
	reviewTimer *armedTimer
	timerSeq    uint64
	matchID     uuid.UUID
	eventSeq    int
	lastRound   *protocol.RoundStarted
	lastResult  *protocol.RoundEnded
	closed      bool
}

func newLobby(code string, deps Deps) *Lobby {
	l := &Lobby{
		Code:      code,
		opts:      deps.Options,
		loader:    deps.Loader,
		bc:        deps.Broadcaster,
		rec:       deps.Recorder,
		clock:     deps.Clock,
		log:       deps.Logger.WithField("lobby", code),
		inbox:     make(chan command),
		done:      make(chan struct{}),
		settings:  models.DefaultSettings(),
		phase:     models.PhaseLobby,
		used:      make(map[string]struct{}),
		pending:   make(map[uuid.UUID]string),
		earned:    make(map[uuid.UUID]int),
	}
	l.CreatedAt = l.clock.Now()
	go l.run()
	return l
}

func (l *Lobby) run() {
	defer close(l.done)
	for cmd := range l.inbox {
		err := cmd.fn()
		if cmd.reply != nil {
			cmd.reply <- err
		}
		if l.closed {
			return
		}
	}
}

// do runs fn on the lobby goroutine and returns its error. Once the lobby has shut down it
// returns ErrNotFound.
func (l *Lobby) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case l.inbox <- command{fn: fn, reply: reply}:
	case <-l.done:
		return fmt.Errorf("lobby %s: %w", l.Code, ErrNotFound)
	}
	return <-reply
}

// post queues fn without waiting. Used by timer callbacks.
func (l *Lobby) post(fn func()) {
	select {
	case l.inbox <- command{fn: func() error { fn(); return nil }}:
	case <-l.done:
	}
}

// Done is closed once the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) violation(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if l.opts.Strict {
		panic(fmt.Sprintf("lobby %s: invariant violated: %s", l.Code, msg))
	}
	l.log.Errorf("invariant violated: %s", msg)
	return fmt.Errorf("%w: %s", ErrInternal, msg)
}

func (l *Lobby) memberByConn(conn uuid.UUID) *member {
	for _, m := range l.players {
		if m.ConnectionID == conn {
			return m
		}
	}
	return nil
}

func (l *Lobby) snapshot() protocol.LobbySnapshot {
	players := make([]models.Player, len(l.players))
	for i, m := range l.players {
		players[i] = m.Player
	}
	settings := l.settings
	settings.Categories = slices.Clone(l.settings.Categories)
	settings.Sources = slices.Clone(l.settings.Sources)
	return protocol.LobbySnapshot{
		Code:        l.Code,
		HostID:      l.hostID,
		Phase:       l.phase,
		RoundNumber: l.round,
		TotalRounds: l.settings.RoundCount,
		Settings:    settings,
		Players:     players,
	}
}

func (l *Lobby) broadcastUpdate() {
	l.bc.Broadcast(l.Code, protocol.LobbyUpdated{Lobby: l.snapshot()})
}

func (l *Lobby) record(eventType string, payload map[string]any) {
	if l.rec == nil || l.matchID == uuid.Nil {
		return
	}
	l.eventSeq++
	l.rec.Record(models.MatchEvent{
		MatchID:   l.matchID,
		LobbyCode: l.Code,
		Seq:       l.eventSeq,
		Type:      eventType,
		Payload:   payload,
		Timestamp: l.clock.Now(),
	})
}

// Summary is a read-only view used by the admin listing.
type Summary struct {
	Code        string       `json:"code"`
	Phase       models.Phase `json:"phase"`
	RoundNumber int          `json:"roundNumber"`
	TotalRounds int          `json:"totalRounds"`
	Players     int          `json:"players"`
	CreatedAt   time.Time    `json:"createdAt"`
}

func (l *Lobby) Summary() (Summary, error) {
	var s Summary
	err := l.do(func() error {
		s = Summary{
			Code:        l.Code,
			Phase:       l.phase,
			RoundNumber: l.round,
			TotalRounds: l.settings.RoundCount,
			Players:     len(l.players),
			CreatedAt:   l.CreatedAt,
		}
		return nil
	})
	return s, err
}

// Snapshot returns the current player-visible state.
func (l *Lobby) Snapshot() (protocol.LobbySnapshot, error) {
	var s protocol.LobbySnapshot
	err := l.do(func() error {
		s = l.snapshot()
		return nil
	})
	return s, err
}
