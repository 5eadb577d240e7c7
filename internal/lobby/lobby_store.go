package lobby

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators shared by every lobby in a Store.
type Deps struct {
	Loader      ClueLoader
	Broadcaster Broadcaster
	Recorder    Recorder // optional
	Clock       Clock    // defaults to the wall clock
	Logger      *logrus.Logger
	Options     Options
}

// Store is the room registry: it maps live lobby codes to their lobbies.
type Store struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby

	deps    Deps
	log     *logrus.Logger
	newCode func() string
	closed  bool
}

// NewStore initializes an empty Store.
func NewStore(deps Deps) *Store {
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &Store{
		lobbies: make(map[string]*Lobby),
		deps:    deps,
		log:     deps.Logger,
		newCode: generateCode,
	}
}

// Create registers a new lobby hosted by conn under a code unique among live lobbies, and sends
// the lobby-created snapshot to conn.
func (s *Store) Create(conn uuid.UUID, hostName string) (*Lobby, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	code := s.newCode()
	for s.lobbies[code] != nil {
		code = s.newCode()
	}
	lob := newLobby(code, s.deps)
	s.lobbies[code] = lob
	s.mu.Unlock()

	if err := lob.do(func() error { return lob.create(conn, hostName) }); err != nil {
		s.Destroy(code, "creation failed")
		return nil, err
	}
	s.log.Infof("LobbyStore: Created lobby %s for %s.", code, conn)
	return lob, nil
}

// Get returns the live lobby for code, or ErrNotFound.
func (s *Store) Get(code string) (*Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lob, ok := s.lobbies[code]
	if !ok {
		return nil, fmt.Errorf("lobby %q: %w", code, ErrNotFound)
	}
	return lob, nil
}

// Destroy cancels the lobby's timers, notifies its members and removes it. Unknown codes are ignored.
func (s *Store) Destroy(code, reason string) {
	s.mu.Lock()
	lob, ok := s.lobbies[code]
	s.mu.Unlock()
	if !ok {
		return
	}

	// A concurrent Destroy may already have closed it; that is fine.
	_ = lob.Close(reason)

	// The code stays reserved until its group is released, so a new lobby cannot take it over
	// and lose its subscribers.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lobbies[code] != lob {
		return
	}
	s.deps.Broadcaster.Release(code)
	delete(s.lobbies, code)
	s.log.Infof("LobbyStore: Destroyed lobby %s (%s).", code, reason)
}

// Disconnect forwards a dropped connection to the lobby and destroys the lobby if conn was its host.
func (s *Store) Disconnect(code string, conn uuid.UUID) error {
	lob, err := s.Get(code)
	if err != nil {
		return err
	}
	wasHost, err := lob.Disconnect(conn)
	if err != nil {
		return err
	}
	if wasHost {
		s.Destroy(code, "host disconnected")
	}
	return nil
}

// List returns a summary of every live lobby.
func (s *Store) List() []Summary {
	s.mu.Lock()
	lobbies := make([]*Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		lobbies = append(lobbies, l)
	}
	s.mu.Unlock()

	out := make([]Summary, 0, len(lobbies))
	for _, l := range lobbies {
		if sum, err := l.Summary(); err == nil {
			out = append(out, sum)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lobbies)
}

// Shutdown destroys every live lobby and refuses new ones.
func (s *Store) Shutdown() {
	s.mu.Lock()
	s.closed = true
	codes := make([]string, 0, len(s.lobbies))
	for code := range s.lobbies {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	for _, code := range codes {
		s.Destroy(code, "server shutting down")
	}
}
