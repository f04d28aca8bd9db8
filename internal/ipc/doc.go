// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The server forwards every call to the daemon's api.Commands; the client
// implements api.Commands itself, so CLI code does not care whether it talks
// to a daemon or to a store it opened directly. Domain errors cross the
// socket as "[code] message" strings and are rebuilt with api.NewError on the
// client, which keeps errors.Is working against the scheduler sentinels.
//
// Calls honour the caller's context: the client abandons a call when the
// context ends and the server bounds each call with its own timeout.
package ipc
