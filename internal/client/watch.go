package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
)

const handshakeTimeout = 10 * time.Second

// Watch streams change notifications to onMessage until ctx ends. Whenever a
// connection is established, including the first, onReconnect runs so the
// caller can refetch everything it caches; notifications missed while
// disconnected are never replayed. A failed connection is retried with
// exponential backoff. Watch returns nil once ctx is canceled, or the error
// of onReconnect if it fails.
func (c *Client) Watch(ctx context.Context, onMessage func(broadcast.Message), onReconnect func(context.Context) error) error {
	backoff := c.initialBackoff
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			backoff = c.initialBackoff
			if onReconnect != nil {
				if err := onReconnect(ctx); err != nil {
					conn.Close()
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("refetch after connect: %w", err)
				}
			}
			err = c.stream(ctx, conn, onMessage)
		}
		if ctx.Err() != nil {
			return nil
		}
		logging.WarnWithContext(c.logger, "change stream disconnected", "watch_disconnected",
			logging.Error(err),
			logging.Duration("retry_in", backoff),
			logging.String(logging.FieldImpact, "cached data may be stale until the stream reconnects"),
			logging.String(logging.FieldErrorHint, "check that the daemon is running and reachable"),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := *c.base
	switch c.base.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	default:
		endpoint.Scheme = "ws"
	}
	endpoint.Path = c.base.Path + "/api/ws"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, err
	}
	return conn, nil
}

// stream reads notifications until the connection fails or ctx ends.
func (c *Client) stream(ctx context.Context, conn *websocket.Conn, onMessage func(broadcast.Message)) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer func() {
		if stop() {
			_ = conn.Close()
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		msg, err := broadcast.Decode(data)
		if err != nil {
			logging.WarnWithContext(c.logger, "ignored malformed notification", "watch_invalid_message",
				logging.Error(err),
				logging.String(logging.FieldImpact, "one change notification was skipped"),
				logging.String(logging.FieldErrorHint, "check that the client and daemon versions match"),
			)
			continue
		}
		if onMessage != nil {
			onMessage(msg)
		}
	}
}
