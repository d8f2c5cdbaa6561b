// internal/handlers/race_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/typerace/internal/middleware"
	"github.com/jason-s-yu/typerace/internal/race"
	"github.com/sirupsen/logrus"
)

const (
	raceSubprotocol = "race"
	pingInterval    = 30 * time.Second
	writeTimeout    = 5 * time.Second
)

// EventConnected tells a new client the id the server knows it by, so it can find itself
// in user_connect snapshots.
const EventConnected race.EventType = "connected"

// ConnectedPayload is the body of EventConnected.
type ConnectedPayload struct {
	ConnID string `json:"conn_id"`
}

// RaceWSHandler accepts race websockets. Each connection gets a fresh id; its messages
// are handled in order by its read pump and its events are written by its write pump.
func RaceWSHandler(logger *logrus.Logger, hub *Hub, sess *race.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{raceSubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != raceSubprotocol {
			c.Close(BadSubprotocolError, "client must speak the race subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		conn := &RaceConnection{
			ID:      uuid.NewString(),
			OutChan: make(chan race.Event, outBufferSize),
			Cancel:  cancel,
		}
		hub.Register(conn)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, conn.ID)
		hub.Emit(conn.ID, race.Event{Type: EventConnected, Data: ConnectedPayload{ConnID: conn.ID}})

		go writePump(ctx, c, conn, logger)
		readErr := readPump(ctx, c, conn, hub, sess, logger)

		sess.HandleDisconnect(conn.ID)
		hub.Unregister(conn.ID)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, conn.ID, readErr)

		if ctx.Err() != nil && r.Context().Err() == nil {
			c.Close(SlowConsumerError, "too slow")
			return
		}
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump decodes inbound messages and hands them to the session one at a time. It
// returns the error that ended the connection, or nil on a normal close.
func readPump(ctx context.Context, c *websocket.Conn, conn *RaceConnection, hub *Hub, sess *race.Session, logger *logrus.Logger) error {
	log := logger.WithField("conn", conn.ID)
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			log.Warnf("ignoring non-text message type %d", typ)
			continue
		}

		var msg race.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("invalid json: %v", err)
			hub.Emit(conn.ID, race.Event{Type: race.EventError, Data: race.ErrorPayload{Message: "Invalid JSON format"}})
			continue
		}
		log.WithField("event", msg.Type).Debug("received")
		sess.HandleMessage(conn.ID, msg)
	}
}

// writePump drains OutChan to the socket and pings periodically until ctx is done.
func writePump(ctx context.Context, c *websocket.Conn, conn *RaceConnection, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	log := logger.WithField("conn", conn.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-conn.OutChan:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Warnf("failed to marshal %s: %v", ev.Type, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Warnf("write failed: %v", err)
				conn.drop()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Warnf("ping failed: %v", err)
				conn.drop()
				return
			}
		}
	}
}
