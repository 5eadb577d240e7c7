// Package protocol defines the messages exchanged with clients over the websocket.
// Every message travels in an Envelope whose Type selects the payload shape.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/musicquiz/internal/models"
)

// Kind names a message type on the wire.
type Kind string

const (
	KindWelcome      Kind = "welcome"
	KindLobbyCreated Kind = "lobby-created"
	KindLobbyUpdated Kind = "lobby-updated"
	KindGameStarted  Kind = "game-started"
	KindRoundStarted Kind = "round-started"
	KindAnswerAck    Kind = "answer-acknowledged"
	KindRoundEnded   Kind = "round-ended"
	KindGameEnded    Kind = "game-ended"
	KindLobbyClosed  Kind = "lobby-closed"
	KindError        Kind = "error"
)

// Outbound is implemented by every server-to-client payload.
type Outbound interface {
	Kind() Kind
}

// Envelope is the wire frame for both directions.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps an outbound payload in an Envelope and marshals it.
func Encode(o Outbound) ([]byte, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", o.Kind(), err)
	}
	return json.Marshal(Envelope{Type: o.Kind(), Payload: payload})
}

// LobbySnapshot is the player-visible state of a lobby.
type LobbySnapshot struct {
	Code        string          `json:"code"`
	HostID      uuid.UUID       `json:"hostId"`
	Phase       models.Phase    `json:"phase"`
	RoundNumber int             `json:"roundNumber"`
	TotalRounds int             `json:"totalRounds"`
	Settings    models.Settings `json:"settings"`
	Players     []models.Player `json:"players"`
}

type Welcome struct {
	ConnectionID uuid.UUID `json:"connectionId"`
}

type LobbyCreated struct {
	Lobby LobbySnapshot `json:"lobby"`
}

type LobbyUpdated struct {
	Lobby LobbySnapshot `json:"lobby"`
}

type GameStarted struct {
	Lobby LobbySnapshot `json:"lobby"`
}

// ClueRef is what players get to hear during a round. It deliberately has no title.
type ClueRef struct {
	Link     string `json:"link"`
	Category string `json:"category"`
	Game     string `json:"game"`
}

// Choice is one selectable answer.
type Choice struct {
	Title string `json:"title"`
	Game  string `json:"game"`
}

type RoundStarted struct {
	Code            string            `json:"code"`
	RoundNumber     int               `json:"roundNumber"`
	TotalRounds     int               `json:"totalRounds"`
	Clue            ClueRef           `json:"clue"`
	Choices         []Choice          `json:"choices"`
	AnswerList      []Choice          `json:"answerList"`
	DurationSeconds int               `json:"durationSeconds"`
	Difficulty      models.Difficulty `json:"difficulty"`
	EndsAt          time.Time         `json:"endsAt"`
}

type AnswerAcknowledged struct {
	Answer string `json:"answer"`
}

// Result is one player's row in a round summary. Answer is nil when the player did not answer.
type Result struct {
	PlayerID     uuid.UUID `json:"playerId"`
	Name         string    `json:"name"`
	Answer       *string   `json:"answer"`
	WasCorrect   bool      `json:"wasCorrect"`
	Score        int       `json:"score"`
	PointsEarned int       `json:"pointsEarned"`
}

type RoundEnded struct {
	Code           string   `json:"code"`
	RevealedAnswer Choice   `json:"revealedAnswer"`
	Results        []Result `json:"results"`
	RoundNumber    int      `json:"roundNumber"`
	TotalRounds    int      `json:"totalRounds"`
}

type Standing struct {
	PlayerID uuid.UUID `json:"playerId"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
}

type GameEnded struct {
	Code           string     `json:"code"`
	FinalStandings []Standing `json:"finalStandings"`
	TotalRounds    int        `json:"totalRounds"`
}

type LobbyClosed struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Error struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (Welcome) Kind() Kind            { return KindWelcome }
func (LobbyCreated) Kind() Kind       { return KindLobbyCreated }
func (LobbyUpdated) Kind() Kind       { return KindLobbyUpdated }
func (GameStarted) Kind() Kind        { return KindGameStarted }
func (RoundStarted) Kind() Kind       { return KindRoundStarted }
func (AnswerAcknowledged) Kind() Kind { return KindAnswerAck }
func (RoundEnded) Kind() Kind         { return KindRoundEnded }
func (GameEnded) Kind() Kind          { return KindGameEnded }
func (LobbyClosed) Kind() Kind        { return KindLobbyClosed }
func (Error) Kind() Kind              { return KindError }
