package lobby

import (
	"errors"

	"github.com/jason-s-yu/musicquiz/internal/protocol"
)

var (
	ErrNotFound          = errors.New("lobby not found")
	ErrForbidden         = errors.New("not allowed")
	ErrInvalidState      = errors.New("not allowed in the current phase")
	ErrEmptyDeck         = errors.New("no clues found for the selected sources and categories")
	ErrInsufficientClues = errors.New("not enough clues for the requested round count")
	ErrInvalidSettings   = errors.New("invalid settings")
	ErrInvalidPlayer     = errors.New("invalid player details")

	// ErrDuplicateAction marks a repeated answer in the same round. It is never reported to clients.
	ErrDuplicateAction = errors.New("duplicate action")

	ErrInternal     = errors.New("internal error")
	ErrShuttingDown = errors.New("server is shutting down")
)

// Severity maps an operation error to the severity shown to the client.
func Severity(err error) protocol.Severity {
	switch {
	case errors.Is(err, ErrEmptyDeck),
		errors.Is(err, ErrInsufficientClues),
		errors.Is(err, ErrInvalidSettings),
		errors.Is(err, ErrInvalidPlayer):
		return protocol.SeverityWarning
	default:
		return protocol.SeverityError
	}
}
