package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/musicquiz/internal/lobby"
	"github.com/jason-s-yu/musicquiz/internal/middleware"
	"github.com/jason-s-yu/musicquiz/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 15 * time.Second
	writeTimeout = 5 * time.Second
)

// WSHandler upgrades a request to the quiz websocket. Every connection gets a fresh handle, announced
// with a welcome event; all further traffic is enveloped protocol messages.
func WSHandler(logger *logrus.Logger, store *lobby.Store, hub *Hub, d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the quiz subprotocol")
			return
		}

		connID := uuid.New()
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		client, ok := hub.Register(connID)
		if !ok {
			c.Close(ServerShutdownError, "server shutting down")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)
		hub.Send(connID, protocol.Welcome{ConnectionID: connID})

		go writePump(ctx, c, client, logger)
		readErr := readPump(ctx, c, connID, hub, d, logger)

		cancel()
		for _, code := range hub.Unregister(connID) {
			if err := store.Disconnect(code, connID); err != nil && !errors.Is(err, lobby.ErrNotFound) {
				logger.Warnf("disconnect %s from lobby %s: %v", connID, code, err)
			}
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump decodes client messages and hands them to the dispatcher until the socket closes.
// Messages from one connection are applied in the order they arrive.
func readPump(ctx context.Context, c *websocket.Conn, connID uuid.UUID, hub *Hub, d *Dispatcher, logger *logrus.Logger) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if typ != websocket.MessageText {
			logger.Warnf("Conn %s: received non-text message type %d. Ignoring.", connID, typ)
			continue
		}

		in, err := protocol.Decode(msg)
		if err != nil {
			logger.Debugf("Conn %s: %v", connID, err)
			d.fail(connID, err)
			continue
		}
		d.Handle(ctx, connID, in)
	}
}

// writePump drains the client's outbox onto the socket and keeps the connection alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, client *Client, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Quit():
			flush(ctx, c, client)
			c.Close(ServerShutdownError, "server shutting down")
			return
		case data, ok := <-client.OutChan:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Conn %s: failed to write to websocket: %v", client.ID, err)
				c.Close(websocket.StatusGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("Conn %s: ping failed: %v. Assuming disconnect.", client.ID, err)
				c.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

// flush writes whatever is already queued for client, without waiting for more.
func flush(ctx context.Context, c *websocket.Conn, client *Client) {
	for {
		select {
		case data, ok := <-client.OutChan:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		default:
			return
		}
	}
}
