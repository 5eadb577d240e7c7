package models

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the top-level state of a lobby.
type Phase string

const (
	PhaseLobby      Phase = "LOBBY"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseReview     Phase = "REVIEW"
	PhaseGameOver   Phase = "GAME_OVER"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard" // free-text guessing against the full answer list
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyNormal, DifficultyHard:
		return true
	}
	return false
}

// Settings holds the match configuration chosen by the host. It is frozen once a match starts.
type Settings struct {
	Difficulty    Difficulty `json:"difficulty"`
	RoundDuration int        `json:"roundDuration"` // seconds
	RoundCount    int        `json:"roundCount"`
	Categories    []string   `json:"categories"`
	Sources       []string   `json:"sources"`
}

// DefaultSettings returns the settings a fresh lobby starts with.
func DefaultSettings() Settings {
	return Settings{
		Difficulty:    DifficultyNormal,
		RoundDuration: 20,
		RoundCount:    5,
		Categories:    []string{},
		Sources:       []string{},
	}
}

// MatchEvent is a single match transition published for the historian.
type MatchEvent struct {
	MatchID   uuid.UUID      `json:"match_id"`
	LobbyCode string         `json:"lobby_code"`
	Seq       int            `json:"seq"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}
