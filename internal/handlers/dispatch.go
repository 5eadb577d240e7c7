package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/musicquiz/internal/lobby"
	"github.com/jason-s-yu/musicquiz/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Dispatcher applies decoded client messages to the lobby registry and reports failures back to the sender.
type Dispatcher struct {
	store *lobby.Store
	hub   *Hub
	log   *logrus.Logger
}

func NewDispatcher(store *lobby.Store, hub *Hub, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{store: store, hub: hub, log: logger}
}

// Handle runs one inbound message for conn. Errors become an error event sent to conn only.
func (d *Dispatcher) Handle(ctx context.Context, conn uuid.UUID, msg protocol.Inbound) {
	err := d.dispatch(ctx, conn, msg)
	if err == nil || errors.Is(err, lobby.ErrDuplicateAction) {
		return
	}
	d.log.WithFields(logrus.Fields{"conn": conn, "type": msg.Kind()}).Debugf("request rejected: %v", err)
	d.fail(conn, err)
}

// fail sends an error event to conn.
func (d *Dispatcher) fail(conn uuid.UUID, err error) {
	d.hub.Send(conn, protocol.Error{Message: errorMessage(err), Severity: lobby.Severity(err)})
}

func (d *Dispatcher) dispatch(ctx context.Context, conn uuid.UUID, msg protocol.Inbound) error {
	switch m := msg.(type) {
	case *protocol.CreateLobby:
		_, err := d.store.Create(conn, m.Name)
		return err
	case *protocol.JoinLobby:
		lob, err := d.lookup(m.Code)
		if err != nil {
			return err
		}
		return lob.Join(conn, m.Name)
	case *protocol.EditPlayer:
		lob, err := d.lookup(m.Code)
		if err != nil {
			return err
		}
		return lob.EditPlayer(conn, m.Patch)
	case *protocol.RequestSnapshot:
		lob, err := d.lookup(m.Code)
		if err != nil {
			return err
		}
		return lob.Watch(conn)
	case *protocol.RequestCurrentRound:
		lob, err := d.lookup(m.Code)
		if err != nil {
			return err
		}
		return lob.CurrentRound(conn)
	case *protocol.StartGame:
		lob, err := d.lookup(m.Code)
		if err != nil {
			return err
		}
		return lob.Start(ctx, conn, m.Settings)
	case *protocol.SubmitAnswer:
		lob, err := d.lookup(m.Code)
		if err != nil {
			return err
		}
		return lob.SubmitAnswer(conn, m.Answer)
	case *protocol.PlayAgain:
		lob, err := d.lookup(m.Code)
		if err != nil {
			return err
		}
		return lob.PlayAgain(conn)
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnknownKind, msg.Kind())
	}
}

func (d *Dispatcher) lookup(code string) (*lobby.Lobby, error) {
	return d.store.Get(NormalizeCode(code))
}

// NormalizeCode trims and upper-cases a lobby code typed by a player.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// errorMessage picks the text shown to the player. Internal details stay in the logs.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, lobby.ErrNotFound):
		return "Lobby not found"
	case errors.Is(err, lobby.ErrInternal):
		return "Internal server error"
	case errors.Is(err, protocol.ErrUnknownKind):
		return "Unknown message type"
	default:
		return err.Error()
	}
}
