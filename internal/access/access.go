// Package access hands CLI commands an api.Commands implementation backed by
// the running daemon when one answers on the control socket, or by the
// database opened directly otherwise.
package access

import (
	"fmt"
	"log/slog"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
	"github.com/formemu/aditim-monitor-sub000/internal/ipc"
	"github.com/formemu/aditim-monitor-sub000/internal/scheduler"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

// Session is a command handle and its cleanup function.
type Session struct {
	Commands api.Commands
	// Remote is true when commands go through the daemon.
	Remote bool
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// NewIPCSession wraps a connected IPC client.
func NewIPCSession(client *ipc.Client) Session {
	return Session{Commands: client, Remote: true, close: client.Close}
}

// NewStoreSession serves commands from a directly opened store. Changes made
// this way reach no WebSocket subscriber.
func NewStoreSession(st *store.Store, logger *slog.Logger) Session {
	return Session{
		Commands: api.NewService(scheduler.New(st, nil, logger)),
		close:    st.Close,
	}
}

// OpenWithFallback tries IPC-backed access first, then falls back to direct
// store access.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*store.Store, error),
	logger *slog.Logger,
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return NewIPCSession(client), nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open store: no store opener configured")
	}
	st, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open store: %w", err)
	}
	return NewStoreSession(st, logger), nil
}
