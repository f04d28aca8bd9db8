package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formemu/aditim-monitor-sub000/internal/logging"
)

// Conn is the write side of one viewer connection.
type Conn interface {
	WriteMessage(ctx context.Context, msg Message) error
	Close() error
}

// Sink receives every locally published message after it is fanned out.
// Append must not block.
type Sink interface {
	Append(Message)
}

// Options tunes a Hub.
type Options struct {
	SendBuffer   int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 5 * time.Second
)

// Hub tracks subscriptions and publishes messages to all of them.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	sinks   []Sink
	nextSeq uint64
	closed  bool

	buffer       int
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewHub constructs an empty hub.
func NewHub(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Hub{
		subs:         make(map[string]*Subscription),
		buffer:       opts.SendBuffer,
		writeTimeout: opts.WriteTimeout,
		logger:       logging.NewComponentLogger(opts.Logger, "broadcast"),
	}
}

// AddSink wires an additional sink that receives every published message.
func (h *Hub) AddSink(sink Sink) {
	if h == nil || sink == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// Subscribe registers conn and starts its writer. The returned subscription
// ends when Unsubscribe is called, the hub closes, or delivery fails.
func (h *Hub) Subscribe(conn Conn) *Subscription {
	sub := &Subscription{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Message, h.buffer),
		done: make(chan struct{}),
		hub:  h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.stop()
		return sub
	}
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	go sub.writeLoop()
	h.logger.Debug("subscriber connected",
		logging.String(logging.FieldSubscriberID, sub.id),
		logging.Int("subscribers", count),
	)
	return sub
}

// Unsubscribe removes a subscription and closes its connection. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		sub.stop()
	}
}

// Publish stamps msg with the next sequence number, enqueues it for every
// subscriber without blocking, then hands it to the sinks. Subscribers whose
// buffer is full are dropped.
func (h *Hub) Publish(msg Message) Message {
	msg, sinks := h.fanOut(msg, true)
	for _, sink := range sinks {
		sink.Append(msg)
	}
	return msg
}

// Deliver fans out a message that arrived from another instance. Sinks are
// skipped so relayed messages are not relayed again.
func (h *Hub) Deliver(msg Message) {
	h.fanOut(msg, false)
}

func (h *Hub) fanOut(msg Message, withSinks bool) (Message, []Sink) {
	if msg.Time.IsZero() {
		msg.Time = time.Now().UTC()
	}

	var dropped []*Subscription
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return msg, nil
	}
	h.nextSeq++
	msg.Seq = h.nextSeq
	for id, sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			delete(h.subs, id)
			dropped = append(dropped, sub)
		}
	}
	var sinks []Sink
	if withSinks {
		sinks = append([]Sink(nil), h.sinks...)
	}
	h.mu.Unlock()

	for _, sub := range dropped {
		logging.WarnWithContext(h.logger, "subscriber dropped; send buffer full", "subscriber_overflow",
			logging.String(logging.FieldSubscriberID, sub.id),
			logging.Int("buffer", h.buffer),
			logging.String(logging.FieldErrorHint, "viewer is not reading; it will refetch after reconnecting"),
			logging.String(logging.FieldImpact, "viewer stops receiving change notifications until it reconnects"),
		)
		sub.stop()
	}
	return msg, sinks
}

// Count reports the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// LastSequence reports the sequence number of the most recent message.
func (h *Hub) LastSequence() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq
}

// Close drops every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for id, sub := range h.subs {
		subs = append(subs, sub)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

// drop is called by a writer whose connection failed.
func (h *Hub) drop(sub *Subscription, err error) {
	h.mu.Lock()
	if current, ok := h.subs[sub.id]; ok && current == sub {
		delete(h.subs, sub.id)
	}
	h.mu.Unlock()

	logging.WarnWithContext(h.logger, "subscriber dropped; write failed", "subscriber_write_failed",
		logging.String(logging.FieldSubscriberID, sub.id),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "connection closed or too slow"),
		logging.String(logging.FieldImpact, "viewer stops receiving change notifications until it reconnects"),
	)
	sub.stop()
}

// Subscription is one registered viewer connection.
type Subscription struct {
	id   string
	conn Conn
	send chan Message
	done chan struct{}
	once sync.Once
	hub  *Hub
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Done is closed once the subscription has ended for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close is equivalent to Unsubscribe(s.ID()).
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s.id)
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Subscription) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			ctx, cancel := context.WithTimeout(context.Background(), s.hub.writeTimeout)
			err := s.conn.WriteMessage(ctx, msg)
			cancel()
			if err != nil {
				s.hub.drop(s, err)
				return
			}
		}
	}
}
