package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
)

const maxInboundMessage = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// resyncGroups are announced to a viewer that asks to resync so it refetches
// everything it caches.
var resyncGroups = []broadcast.Group{
	broadcast.GroupTask,
	broadcast.GroupQueue,
	broadcast.GroupStagePlan,
	broadcast.GroupComponent,
	broadcast.GroupDirectory,
}

// wsConn adapts a gorilla connection to broadcast.Conn. Data frames are
// serialized by mu; control frames may be sent concurrently.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) WriteMessage(ctx context.Context, msg broadcast.Message) error {
	data, err := broadcast.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
	return c.conn.Close()
}

func (s *apiServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	logger := logging.WithContext(r.Context(), s.logger)
	conn := &wsConn{conn: raw}
	sub := s.daemon.hub.Subscribe(conn)
	defer sub.Close()

	readWait := 2 * s.pingInterval
	raw.SetReadLimit(maxInboundMessage)
	_ = raw.SetReadDeadline(time.Now().Add(readWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(readWait))
	})

	inbound := make(chan error, 1)
	go func() {
		inbound <- s.readLoop(r.Context(), conn, readWait, logger)
	}()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sub.Done():
			return
		case <-r.Context().Done():
			return
		case err := <-inbound:
			if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("viewer connection closed",
					logging.String(logging.FieldSubscriberID, sub.ID()),
					logging.Error(err),
				)
			}
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.wsWriteTimeout)
			if err := raw.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// readLoop handles viewer requests until the connection fails. Anything
// that is not a well-formed request closes the connection.
func (s *apiServer) readLoop(ctx context.Context, conn *wsConn, readWait time.Duration, logger *slog.Logger) error {
	for {
		kind, data, err := conn.conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			return errors.New("binary frames are not accepted")
		}
		in, err := broadcast.DecodeInbound(data)
		if err != nil {
			logging.WarnWithContext(logger, "rejected viewer request", "ws_request_rejected",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "viewers may only send ping or resync requests"),
				logging.String(logging.FieldImpact, "viewer connection closed"),
			)
			return err
		}
		_ = conn.conn.SetReadDeadline(time.Now().Add(readWait))
		if in.Type == broadcast.CommandResync {
			if err := s.resync(ctx, conn); err != nil {
				return err
			}
		}
	}
}

func (s *apiServer) resync(ctx context.Context, conn *wsConn) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.wsWriteTimeout)
	defer cancel()
	now := time.Now().UTC()
	for _, group := range resyncGroups {
		msg := broadcast.Message{Group: group, Event: broadcast.EventUpdated, Time: now}
		if err := conn.WriteMessage(writeCtx, msg); err != nil {
			return err
		}
	}
	return nil
}
