// Package broadcast fans change notifications out to connected viewers.
//
// A Hub holds one Subscription per viewer connection. Each subscription owns
// a bounded send buffer drained by a single writer goroutine, so messages
// reach one connection in publish order while a slow or dead connection only
// ever affects itself: when its buffer is full or a write fails, that
// subscription is dropped and its connection closed.
//
// Messages only name a stale data group; viewers refetch the group themselves.
package broadcast
