// Package relay forwards locally published change notifications beyond the
// process.
//
// Redis mirrors notifications to other scheduler instances over pub/sub and
// delivers theirs to the local hub, so a viewer connected to any instance sees
// every change. Kafka journals notifications to a topic for audit consumers.
// Both register as broadcast sinks: Append never blocks, and a full buffer
// drops the notification with a warning. Viewers recover from a dropped
// notification on their next reconnect refetch.
package relay
