package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/relay"
)

// bus is an in-memory pub/sub shared by several fake transports.
type bus struct {
	mu       sync.Mutex
	handlers map[int]func([]byte)
	nextID   int
}

func newBus() *bus {
	return &bus{handlers: make(map[int]func([]byte))}
}

func (b *bus) transport() *busTransport {
	return &busTransport{bus: b, subscribed: make(chan struct{})}
}

type busTransport struct {
	bus        *bus
	once       sync.Once
	subscribed chan struct{}
}

func (t *busTransport) Publish(_ context.Context, _ string, payload []byte) error {
	t.bus.mu.Lock()
	handlers := make([]func([]byte), 0, len(t.bus.handlers))
	for _, h := range t.bus.handlers {
		handlers = append(handlers, h)
	}
	t.bus.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (t *busTransport) Subscribe(ctx context.Context, _ string, handle func([]byte)) error {
	t.bus.mu.Lock()
	id := t.bus.nextID
	t.bus.nextID++
	t.bus.handlers[id] = handle
	t.bus.mu.Unlock()
	t.once.Do(func() { close(t.subscribed) })

	<-ctx.Done()
	t.bus.mu.Lock()
	delete(t.bus.handlers, id)
	t.bus.mu.Unlock()
	return nil
}

func (t *busTransport) Close() error { return nil }

type recorder struct {
	mu   sync.Mutex
	msgs []broadcast.Message
	got  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 16)}
}

func (r *recorder) Deliver(msg broadcast.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) snapshot() []broadcast.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]broadcast.Message(nil), r.msgs...)
}

func waitSubscribed(t *testing.T, transports ...*busTransport) {
	t.Helper()
	for _, tr := range transports {
		select {
		case <-tr.subscribed:
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not subscribe")
		}
	}
}

func TestRedisRelayDeliversToOtherInstances(t *testing.T) {
	shared := newBus()
	firstTransport, secondTransport := shared.transport(), shared.transport()
	first := relay.NewRedisWithTransport(firstTransport, "changes", nil)
	second := relay.NewRedisWithTransport(secondTransport, "changes", nil)
	if first.Origin() == second.Origin() {
		t.Fatal("expected distinct origins")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstSeen, secondSeen := newRecorder(), newRecorder()
	go first.Run(ctx, firstSeen)
	go second.Run(ctx, secondSeen)
	waitSubscribed(t, firstTransport, secondTransport)

	first.Append(broadcast.Message{Seq: 7, Group: broadcast.GroupQueue, Event: broadcast.EventReordered, Time: time.Now()})

	select {
	case <-secondSeen.got:
	case <-time.After(2 * time.Second):
		t.Fatal("second instance did not receive the notification")
	}
	got := secondSeen.snapshot()
	if len(got) != 1 || got[0].Group != broadcast.GroupQueue || got[0].Event != broadcast.EventReordered {
		t.Fatalf("unexpected delivery %+v", got)
	}
	if got[0].Origin != first.Origin() {
		t.Fatalf("expected origin %q, got %q", first.Origin(), got[0].Origin)
	}
	if got[0].Seq != 0 {
		t.Fatalf("expected local sequence to be stripped, got %d", got[0].Seq)
	}

	select {
	case <-firstSeen.got:
		t.Fatal("relay delivered its own notification back to itself")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisRelayFeedsRemoteChangesIntoHub(t *testing.T) {
	shared := newBus()
	localTransport, remoteTransport := shared.transport(), shared.transport()
	local := relay.NewRedisWithTransport(localTransport, "changes", nil)
	remote := relay.NewRedisWithTransport(remoteTransport, "changes", nil)

	localHub := broadcast.NewHub(broadcast.Options{})
	defer localHub.Close()
	remoteHub := broadcast.NewHub(broadcast.Options{})
	defer remoteHub.Close()
	remoteHub.AddSink(remote)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go local.Run(ctx, localHub)
	go remote.Run(ctx, remoteHub)
	waitSubscribed(t, localTransport, remoteTransport)

	before := localHub.LastSequence()
	remoteHub.Publish(broadcast.NewMessage(broadcast.GroupTask, 12, broadcast.EventStatus))

	deadline := time.Now().Add(2 * time.Second)
	for localHub.LastSequence() == before {
		if time.Now().After(deadline) {
			t.Fatal("local hub never received the remote change")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if remoteHub.LastSequence() != 1 {
		t.Fatalf("relayed change echoed back into the origin hub: seq=%d", remoteHub.LastSequence())
	}
}

func TestRedisRelayIgnoresMalformedPayloads(t *testing.T) {
	shared := newBus()
	tr := shared.transport()
	r := relay.NewRedisWithTransport(tr, "changes", nil)
	seen := newRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, seen)
	waitSubscribed(t, tr)

	injector := shared.transport()
	for _, payload := range []string{
		`{"group":"task","event":"created","origin":"other","extra":1}`,
		`{"group":"orders","event":"created","origin":"other"}`,
		`{"group":"task","event":"created"}`,
		`not json`,
	} {
		if err := injector.Publish(ctx, "changes", []byte(payload)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if got := seen.snapshot(); len(got) != 0 {
		t.Fatalf("expected malformed payloads to be ignored, got %+v", got)
	}
}

type fakeWriter struct {
	mu      sync.Mutex
	records []kafka.Message
	fail    error
	wrote   chan struct{}
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		w.wrote <- struct{}{}
		return w.fail
	}
	w.records = append(w.records, msgs...)
	w.wrote <- struct{}{}
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaJournalWritesKeyedRecords(t *testing.T) {
	writer := &fakeWriter{wrote: make(chan struct{}, 4)}
	journal := relay.NewKafkaWithWriter(writer, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go journal.Run(ctx)

	hub := broadcast.NewHub(broadcast.Options{})
	defer hub.Close()
	hub.AddSink(journal)
	hub.Publish(broadcast.NewMessage(broadcast.GroupStagePlan, 5, broadcast.EventFinished))

	select {
	case <-writer.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("journal did not write")
	}
	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.records) != 1 {
		t.Fatalf("expected one record, got %d", len(writer.records))
	}
	record := writer.records[0]
	if string(record.Key) != string(broadcast.GroupStagePlan) {
		t.Fatalf("unexpected key %q", record.Key)
	}
	msg, err := broadcast.Decode(record.Value)
	if err != nil {
		t.Fatalf("journal value is not a valid message: %v", err)
	}
	if msg.Key != "5" || msg.Event != broadcast.EventFinished || msg.Seq != 1 {
		t.Fatalf("unexpected journaled message %+v", msg)
	}
}

func TestKafkaJournalSurvivesWriteFailure(t *testing.T) {
	writer := &fakeWriter{wrote: make(chan struct{}, 4), fail: errors.New("broker down")}
	journal := relay.NewKafkaWithWriter(writer, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go journal.Run(ctx)

	journal.Append(broadcast.NewMessage(broadcast.GroupTask, 1, broadcast.EventCreated))
	journal.Append(broadcast.NewMessage(broadcast.GroupTask, 2, broadcast.EventCreated))
	for range 2 {
		select {
		case <-writer.wrote:
		case <-time.After(2 * time.Second):
			t.Fatal("journal stopped after a failed write")
		}
	}
}
