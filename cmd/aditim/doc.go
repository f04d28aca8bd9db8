// Command aditim runs the workshop task scheduler daemon and provides the
// operator CLI for tasks, the production queue, and stage tracking.
//
// Commands talk to a running daemon over its control socket. When no daemon
// answers, data commands open the SQLite database directly so the shop can
// keep working while the daemon is down.
package main
