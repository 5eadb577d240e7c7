package lobby

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/musicquiz/internal/models"
	"github.com/jason-s-yu/musicquiz/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out timers that only fire when a test says so.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *fakeTimer) isStopped() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.stopped
}

// live returns the timers that are neither stopped nor fired.
func (c *fakeClock) live() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireOnly fires the single live timer, checking its duration, and waits for the lobby to apply it.
func (c *fakeClock) fireOnly(t *testing.T, l *Lobby, want time.Duration) {
	t.Helper()
	live := c.live()
	require.Len(t, live, 1, "expected exactly one live timer")
	require.Equal(t, want, live[0].d)
	c.mu.Lock()
	live[0].fired = true
	c.mu.Unlock()
	live[0].f()
	settle(l)
}

// settle waits until every command queued before it has been applied.
func settle(l *Lobby) {
	_ = l.do(func() error { return nil })
}

type recordingBroadcaster struct {
	mu         sync.Mutex
	groups     map[string][]uuid.UUID
	broadcasts []protocol.Outbound
	direct     map[uuid.UUID][]protocol.Outbound
	released   []string
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{
		groups: make(map[string][]uuid.UUID),
		direct: make(map[uuid.UUID][]protocol.Outbound),
	}
}

func (b *recordingBroadcaster) Subscribe(code string, conn uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.groups[code], conn) {
		b.groups[code] = append(b.groups[code], conn)
	}
}

func (b *recordingBroadcaster) Broadcast(code string, ev protocol.Outbound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, ev)
}

func (b *recordingBroadcaster) Send(conn uuid.UUID, ev protocol.Outbound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.direct[conn] = append(b.direct[conn], ev)
}

func (b *recordingBroadcaster) Release(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = append(b.released, code)
	delete(b.groups, code)
}

func (b *recordingBroadcaster) all() []protocol.Outbound {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.broadcasts)
}

func (b *recordingBroadcaster) sentTo(conn uuid.UUID) []protocol.Outbound {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.direct[conn])
}

func (b *recordingBroadcaster) last() protocol.Outbound {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.broadcasts) == 0 {
		return nil
	}
	return b.broadcasts[len(b.broadcasts)-1]
}

// ofType filters events down to a single payload type.
func ofType[T protocol.Outbound](evs []protocol.Outbound) []T {
	var out []T
	for _, ev := range evs {
		if v, ok := ev.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []models.MatchEvent
}

func (r *recordingRecorder) Record(ev models.MatchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingRecorder) ofType(typ string) []models.MatchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.MatchEvent
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// staticLoader serves clues from memory, filtered like the real catalogs.
type staticLoader struct {
	clues []models.Clue
	err   error
}

func (s *staticLoader) Load(_ context.Context, sources, categories []string) ([]models.Clue, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Clue
	for _, c := range s.clues {
		if slices.Contains(sources, c.Source) && slices.Contains(categories, c.Category) {
			out = append(out, c)
		}
	}
	return out, nil
}

func makeDeck(n int) []models.Clue {
	deck := make([]models.Clue, n)
	for i := range deck {
		deck[i] = models.Clue{
			ID:       fmt.Sprintf("red_blue/%d", i),
			Title:    fmt.Sprintf("Track %d", i),
			Game:     "Pokemon Red/Blue",
			Link:     fmt.Sprintf("media/red_blue/%02d.ogg", i),
			Category: "route",
			Source:   "red_blue",
		}
	}
	return deck
}

func testSettings(rounds int) models.Settings {
	return models.Settings{
		Difficulty:    models.DifficultyNormal,
		RoundDuration: 20,
		RoundCount:    rounds,
		Categories:    []string{"route"},
		Sources:       []string{"red_blue"},
	}
}

type testEnv struct {
	store  *Store
	bc     *recordingBroadcaster
	clock  *fakeClock
	rec    *recordingRecorder
	loader *staticLoader
}

func newTestEnv(t *testing.T, deckSize int, mutate ...func(*Options)) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts := DefaultOptions()
	opts.Strict = true
	for _, m := range mutate {
		m(&opts)
	}

	env := &testEnv{
		bc:     newRecordingBroadcaster(),
		clock:  newFakeClock(),
		rec:    &recordingRecorder{},
		loader: &staticLoader{clues: makeDeck(deckSize)},
	}
	env.store = NewStore(Deps{
		Loader:      env.loader,
		Broadcaster: env.bc,
		Recorder:    env.rec,
		Clock:       env.clock,
		Logger:      logger,
		Options:     opts,
	})
	t.Cleanup(env.store.Shutdown)
	return env
}

// newLobbyWithPlayers creates a lobby hosted by the first returned handle with n-1 more players joined.
func (e *testEnv) newLobbyWithPlayers(t *testing.T, n int) (*Lobby, []uuid.UUID) {
	t.Helper()
	conns := make([]uuid.UUID, n)
	for i := range conns {
		conns[i] = uuid.New()
	}
	lob, err := e.store.Create(conns[0], "")
	require.NoError(t, err)
	for i, c := range conns[1:] {
		require.NoError(t, lob.Join(c, fmt.Sprintf("Guest %d", i+1)))
	}
	return lob, conns
}

func currentTitle(t *testing.T, l *Lobby) string {
	t.Helper()
	var title string
	require.NoError(t, l.do(func() error {
		if l.current == nil {
			return fmt.Errorf("no clue in play")
		}
		title = l.current.Title
		return nil
	}))
	return title
}

func playerByConn(t *testing.T, l *Lobby, conn uuid.UUID) models.Player {
	t.Helper()
	snap, err := l.Snapshot()
	require.NoError(t, err)
	for _, p := range snap.Players {
		if p.ConnectionID == conn {
			return p
		}
	}
	t.Fatalf("no player for connection %s", conn)
	return models.Player{}
}
