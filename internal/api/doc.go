// Package api defines the wire-format types shared by the HTTP server, the
// control socket, and the clients. It converts scheduler and store models
// into transport DTOs and maps domain errors to stable codes.
//
// # Key Types
//
// Task, Component, Stage: transport views of the persisted records.
//
// ComponentPlan / TaskDetail: a component with its ordered stages and the
// stage that may run next.
//
// Commands: the command surface as seen by transports. Service implements
// it on top of scheduler.Service; the IPC client implements it remotely.
//
// # Errors
//
// ErrorCode maps sentinel errors to codes such as "invalid_transition" and
// HTTPStatus maps them to status codes. Error carries a code across a
// transport and unwraps back to the matching sentinel, so errors.Is works on
// both sides of the wire.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Request dates accept either a calendar date (2006-01-02) or RFC3339.
package api
