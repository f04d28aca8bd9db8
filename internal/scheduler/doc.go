// Package scheduler is the command surface of the work-order tracker.
//
// Service composes the store, the stage resolver, the status lifecycle, and
// the queue manager. Every mutation runs under one in-process writer lock and
// inside one SQLite transaction, and publishes its change notifications only
// after the transaction commits. Reads take no lock.
package scheduler
