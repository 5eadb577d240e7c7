package lobby

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/musicquiz/internal/models"
	"github.com/jason-s-yu/musicquiz/internal/protocol"
)

const maxNameLength = 24

// Join adds a player for conn. A connection that is already a member is left as is.
func (l *Lobby) Join(conn uuid.UUID, name string) error {
	return l.do(func() error { return l.join(conn, name) })
}

// Watch subscribes conn to the lobby's broadcasts and sends it the current snapshot.
func (l *Lobby) Watch(conn uuid.UUID) error {
	return l.do(func() error {
		l.bc.Subscribe(l.Code, conn)
		l.bc.Send(conn, protocol.LobbyUpdated{Lobby: l.snapshot()})
		return nil
	})
}

func (l *Lobby) EditPlayer(conn uuid.UUID, patch models.PlayerPatch) error {
	return l.do(func() error { return l.editPlayer(conn, patch) })
}

// Start validates settings, loads the deck and begins the first round. Only the host may start.
func (l *Lobby) Start(ctx context.Context, conn uuid.UUID, settings models.Settings) error {
	return l.do(func() error { return l.start(ctx, conn, settings) })
}

func (l *Lobby) SubmitAnswer(conn uuid.UUID, answer string) error {
	return l.do(func() error { return l.submitAnswer(conn, answer) })
}

// CurrentRound re-sends the live round (or the last round result while in review) to conn.
func (l *Lobby) CurrentRound(conn uuid.UUID) error {
	return l.do(func() error {
		switch {
		case l.phase == models.PhaseInProgress && l.lastRound != nil:
			l.bc.Send(conn, *l.lastRound)
		case l.phase == models.PhaseReview && l.lastResult != nil:
			l.bc.Send(conn, *l.lastResult)
		default:
			return fmt.Errorf("no round in progress: %w", ErrInvalidState)
		}
		return nil
	})
}

// PlayAgain resets a finished lobby back to LOBBY, keeping the roster.
func (l *Lobby) PlayAgain(conn uuid.UUID) error {
	return l.do(func() error { return l.playAgain(conn) })
}

// Disconnect handles a dropped connection. It reports whether conn was the host, in which case
// the caller must destroy the lobby.
func (l *Lobby) Disconnect(conn uuid.UUID) (bool, error) {
	var wasHost bool
	err := l.do(func() error {
		wasHost = conn == l.hostConn
		if !wasHost {
			l.disconnect(conn)
		}
		return nil
	})
	return wasHost, err
}

// Close cancels timers, tells remaining members the lobby is gone and stops the lobby goroutine.
func (l *Lobby) Close(reason string) error {
	return l.do(func() error {
		l.cancelRoundTimer()
		l.cancelReviewTimer()
		l.bc.Broadcast(l.Code, protocol.LobbyClosed{Code: l.Code, Reason: reason})
		l.record("lobby_closed", map[string]any{"reason": reason, "phase": l.phase})
		l.closed = true
		l.log.Infof("Lobby closed: %s", reason)
		return nil
	})
}

func (l *Lobby) create(conn uuid.UUID, name string) error {
	if name = strings.TrimSpace(name); name == "" {
		name = "Host"
	}
	m := l.addMember(conn, name)
	m.IsHost = true
	l.hostConn = conn
	l.hostID = m.ID
	l.bc.Subscribe(l.Code, conn)
	l.bc.Send(conn, protocol.LobbyCreated{Lobby: l.snapshot()})
	return nil
}

func (l *Lobby) addMember(conn uuid.UUID, name string) *member {
	l.joined++
	m := &member{
		Player: models.Player{
			ID:           uuid.New(),
			ConnectionID: conn,
			Name:         name,
			Connected:    true,
		},
		joinedMidRound: l.phase == models.PhaseInProgress,
	}
	l.players = append(l.players, m)
	return m
}

func (l *Lobby) join(conn uuid.UUID, name string) error {
	if l.memberByConn(conn) != nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Player %d", l.joined+1)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("name longer than %d characters: %w", maxNameLength, ErrInvalidPlayer)
	}
	m := l.addMember(conn, name)
	l.bc.Subscribe(l.Code, conn)
	l.log.Infof("Player %s (%s) joined during %s", m.ID, m.Name, l.phase)
	l.broadcastUpdate()
	return nil
}

func (l *Lobby) editPlayer(conn uuid.UUID, patch models.PlayerPatch) error {
	if l.phase != models.PhaseLobby {
		return fmt.Errorf("players can only be edited before the game starts: %w", ErrInvalidState)
	}
	m := l.memberByConn(conn)
	if m == nil {
		return fmt.Errorf("not a member of lobby %s: %w", l.Code, ErrForbidden)
	}
	if patch.PlayerID != nil && *patch.PlayerID != m.ID {
		return fmt.Errorf("cannot edit another player: %w", ErrForbidden)
	}

	name, avatar := m.Name, m.Avatar
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			return fmt.Errorf("name must be 1-%d characters: %w", maxNameLength, ErrInvalidPlayer)
		}
	}
	if patch.Avatar != nil {
		avatar = strings.TrimSpace(*patch.Avatar)
	}
	m.Name, m.Avatar = name, avatar
	l.broadcastUpdate()
	return nil
}

// normalizeSettings fills defaults and removes duplicate or blank selections.
func normalizeSettings(s models.Settings) models.Settings {
	if s.Difficulty == "" {
		s.Difficulty = models.DifficultyNormal
	}
	s.Sources = compact(s.Sources)
	s.Categories = compact(s.Categories)
	return s
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func (l *Lobby) validateSettings(s models.Settings) error {
	switch {
	case !s.Difficulty.Valid():
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidSettings, s.Difficulty)
	case s.RoundDuration < l.opts.MinRoundSeconds || s.RoundDuration > l.opts.MaxRoundSeconds:
		return fmt.Errorf("%w: round duration must be between %d and %d seconds",
			ErrInvalidSettings, l.opts.MinRoundSeconds, l.opts.MaxRoundSeconds)
	case s.RoundCount < 1 || s.RoundCount > l.opts.MaxRounds:
		return fmt.Errorf("%w: round count must be between 1 and %d", ErrInvalidSettings, l.opts.MaxRounds)
	case len(s.Sources) == 0:
		return fmt.Errorf("%w: select at least one source", ErrInvalidSettings)
	case len(s.Categories) == 0:
		return fmt.Errorf("%w: select at least one category", ErrInvalidSettings)
	}
	return nil
}

func (l *Lobby) start(ctx context.Context, conn uuid.UUID, settings models.Settings) error {
	if conn != l.hostConn {
		return fmt.Errorf("only the host can start the game: %w", ErrForbidden)
	}
	if l.phase != models.PhaseLobby {
		return fmt.Errorf("game already started: %w", ErrInvalidState)
	}
	settings = normalizeSettings(settings)
	if err := l.validateSettings(settings); err != nil {
		return err
	}

	if l.opts.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.LoadTimeout)
		defer cancel()
	}
	deck, err := l.loader.Load(ctx, settings.Sources, settings.Categories)
	if err != nil {
		l.log.Warnf("Failed to load clues: %v", err)
		return fmt.Errorf("loading clues: %w", err)
	}
	if len(deck) == 0 {
		return ErrEmptyDeck
	}
	if len(deck) < settings.RoundCount {
		return fmt.Errorf("%w: %d available, %d requested", ErrInsufficientClues, len(deck), settings.RoundCount)
	}

	l.settings = settings
	l.deck = deck
	l.phase = models.PhaseInProgress
	l.round = 0
	clear(l.used)
	clear(l.pending)
	clear(l.earned)
	l.matchID = uuid.New()
	l.eventSeq = 0

	l.log.Infof("Game started: %d rounds, %s, %d clues in deck", settings.RoundCount, settings.Difficulty, len(deck))
	l.bc.Broadcast(l.Code, protocol.GameStarted{Lobby: l.snapshot()})
	l.record("match_started", map[string]any{
		"settings": settings,
		"players":  l.playerNames(),
	})
	return l.startRound()
}

func (l *Lobby) submitAnswer(conn uuid.UUID, answer string) error {
	if l.phase != models.PhaseInProgress {
		return fmt.Errorf("no round in progress: %w", ErrInvalidState)
	}
	m := l.memberByConn(conn)
	if m == nil {
		return fmt.Errorf("not a member of lobby %s: %w", l.Code, ErrForbidden)
	}
	if m.joinedMidRound && !l.opts.LateJoinScoring {
		return fmt.Errorf("joined after this round started: %w", ErrInvalidState)
	}
	if _, ok := l.pending[m.ID]; ok {
		return ErrDuplicateAction
	}
	if l.current == nil {
		return l.violation("answer submitted with no current clue in round %d", l.round)
	}

	l.pending[m.ID] = answer
	correct := answer == l.current.Title
	if correct {
		m.Score += l.opts.PointsPerCorrect
		l.earned[m.ID] = l.opts.PointsPerCorrect
	}
	l.bc.Send(conn, protocol.AnswerAcknowledged{Answer: answer})
	l.record("answer_submitted", map[string]any{
		"round":     l.round,
		"player_id": m.ID,
		"answer":    answer,
		"correct":   correct,
	})

	if l.allAnswered() {
		l.log.Debugf("All players answered round %d", l.round)
		return l.endRound()
	}
	return nil
}

// allAnswered reports whether every player expected to answer this round has done so.
// Disconnected players, and late joiners when they may not score, are not waited for.
func (l *Lobby) allAnswered() bool {
	expected := 0
	for _, m := range l.players {
		if !m.Connected || (m.joinedMidRound && !l.opts.LateJoinScoring) {
			continue
		}
		expected++
		if _, ok := l.pending[m.ID]; !ok {
			return false
		}
	}
	return expected > 0
}

func (l *Lobby) playAgain(conn uuid.UUID) error {
	if conn != l.hostConn {
		return fmt.Errorf("only the host can restart the game: %w", ErrForbidden)
	}
	if l.phase != models.PhaseGameOver {
		return fmt.Errorf("game is not over: %w", ErrInvalidState)
	}
	l.cancelRoundTimer()
	l.cancelReviewTimer()
	l.phase = models.PhaseLobby
	l.round = 0
	l.deck = nil
	l.current = nil
	l.lastRound = nil
	l.lastResult = nil
	clear(l.used)
	clear(l.pending)
	clear(l.earned)
	// Back in LOBBY, players who dropped during the match leave the roster.
	l.players = slices.DeleteFunc(l.players, func(m *member) bool { return !m.Connected })
	for _, m := range l.players {
		m.Score = 0
		m.joinedMidRound = false
	}
	l.log.Info("Lobby reset for another game")
	l.broadcastUpdate()
	return nil
}

func (l *Lobby) disconnect(conn uuid.UUID) {
	m := l.memberByConn(conn)
	if m == nil {
		return
	}
	if l.phase == models.PhaseLobby {
		l.players = slices.DeleteFunc(l.players, func(p *member) bool { return p == m })
		l.log.Infof("Player %s (%s) left", m.ID, m.Name)
		l.broadcastUpdate()
		return
	}

	m.Connected = false
	l.log.Infof("Player %s (%s) disconnected during %s; keeping score", m.ID, m.Name, l.phase)
	l.broadcastUpdate()
	if l.phase == models.PhaseInProgress && l.allAnswered() {
		if err := l.endRound(); err != nil {
			l.log.Errorf("Ending round after disconnect: %v", err)
		}
	}
}

func (l *Lobby) playerNames() []string {
	names := make([]string, len(l.players))
	for i, m := range l.players {
		names[i] = m.Name
	}
	return names
}
