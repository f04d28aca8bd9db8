// Package daemon coordinates the long-running scheduler process.
//
// It owns the scheduler service, the change hub, and the REST + WebSocket
// server viewers connect to, and uses a flock-based lock so only one
// instance serves a database. Start repairs queue positions before accepting
// requests. Stop closes every viewer connection and releases the lock.
//
// Handlers stay thin: they decode requests, call api.Commands, and map
// errors through api.HTTPStatus. Business rules belong in the scheduler.
package daemon
