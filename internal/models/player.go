package models

import "github.com/google/uuid"

type Player struct {
	ID           uuid.UUID `json:"id"`
	ConnectionID uuid.UUID `json:"connectionId"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar"`
	Score        int       `json:"score"`
	Connected    bool      `json:"connected"`
	IsHost       bool      `json:"isHost"`
}

// PlayerPatch carries the editable fields of a player. Nil fields are left untouched.
// PlayerID, when set, names the record the caller is trying to edit.
type PlayerPatch struct {
	PlayerID *uuid.UUID `json:"playerId,omitempty"`
	Name     *string    `json:"name,omitempty"`
	Avatar   *string    `json:"avatar,omitempty"`
}
