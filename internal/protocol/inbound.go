package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/musicquiz/internal/models"
)

const (
	KindCreateLobby         Kind = "create-lobby"
	KindJoinLobby           Kind = "join-lobby"
	KindEditPlayer          Kind = "edit-player"
	KindRequestSnapshot     Kind = "request-lobby-snapshot"
	KindRequestCurrentRound Kind = "request-current-round"
	KindStartGame           Kind = "start-game"
	KindSubmitAnswer        Kind = "submit-answer"
	KindPlayAgain           Kind = "play-again"
)

// ErrUnknownKind is returned by Decode for a type it does not recognise.
var ErrUnknownKind = errors.New("unknown message type")

// Inbound is implemented by every client-to-server message.
type Inbound interface {
	Kind() Kind
}

type CreateLobby struct {
	Name string `json:"name,omitempty"`
}

type JoinLobby struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type EditPlayer struct {
	Code  string             `json:"code"`
	Patch models.PlayerPatch `json:"player"`
}

type RequestSnapshot struct {
	Code string `json:"code"`
}

type RequestCurrentRound struct {
	Code string `json:"code"`
}

type StartGame struct {
	Code     string          `json:"code"`
	Settings models.Settings `json:"settings"`
}

type SubmitAnswer struct {
	Code   string `json:"code"`
	Answer string `json:"answer"`
}

type PlayAgain struct {
	Code string `json:"code"`
}

func (CreateLobby) Kind() Kind         { return KindCreateLobby }
func (JoinLobby) Kind() Kind           { return KindJoinLobby }
func (EditPlayer) Kind() Kind          { return KindEditPlayer }
func (RequestSnapshot) Kind() Kind     { return KindRequestSnapshot }
func (RequestCurrentRound) Kind() Kind { return KindRequestCurrentRound }
func (StartGame) Kind() Kind           { return KindStartGame }
func (SubmitAnswer) Kind() Kind        { return KindSubmitAnswer }
func (PlayAgain) Kind() Kind           { return KindPlayAgain }

// Decode parses an Envelope and returns the typed inbound message it carries.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	var msg Inbound
	switch env.Type {
	case KindCreateLobby:
		msg = &CreateLobby{}
	case KindJoinLobby:
		msg = &JoinLobby{}
	case KindEditPlayer:
		msg = &EditPlayer{}
	case KindRequestSnapshot:
		msg = &RequestSnapshot{}
	case KindRequestCurrentRound:
		msg = &RequestCurrentRound{}
	case KindStartGame:
		msg = &StartGame{}
	case KindSubmitAnswer:
		msg = &SubmitAnswer{}
	case KindPlayAgain:
		msg = &PlayAgain{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}

	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
	}
	return msg, nil
}
