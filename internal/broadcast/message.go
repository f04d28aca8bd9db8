package broadcast

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Group names a data set viewers cache and refetch as a whole.
type Group string

const (
	GroupTask      Group = "task"
	GroupQueue     Group = "queue"
	GroupStagePlan Group = "stage-plan"
	GroupComponent Group = "component"
	GroupDirectory Group = "directory"
)

// Event names what happened to the group.
type Event string

const (
	EventCreated   Event = "created"
	EventUpdated   Event = "updated"
	EventDeleted   Event = "deleted"
	EventReordered Event = "reordered"
	EventStatus    Event = "status"
	EventStarted   Event = "started"
	EventFinished  Event = "finished"
)

var validGroups = map[Group]struct{}{
	GroupTask:      {},
	GroupQueue:     {},
	GroupStagePlan: {},
	GroupComponent: {},
	GroupDirectory: {},
}

var validEvents = map[Event]struct{}{
	EventCreated:   {},
	EventUpdated:   {},
	EventDeleted:   {},
	EventReordered: {},
	EventStatus:    {},
	EventStarted:   {},
	EventFinished:  {},
}

// ErrInvalidMessage reports a payload that is not a well-formed change notification.
var ErrInvalidMessage = errors.New("invalid broadcast message")

// Message tells viewers that Group (optionally narrowed to Key) is stale.
// It never carries row data.
type Message struct {
	Seq    uint64    `json:"seq,omitempty"`
	Group  Group     `json:"group"`
	Key    string    `json:"key,omitempty"`
	Event  Event     `json:"event"`
	Origin string    `json:"origin,omitempty"`
	Time   time.Time `json:"ts,omitzero"`
}

// NewMessage builds a message keyed by a numeric id. A zero id leaves Key empty.
func NewMessage(group Group, id int64, event Event) Message {
	msg := Message{Group: group, Event: event}
	if id != 0 {
		msg.Key = strconv.FormatInt(id, 10)
	}
	return msg
}

// Validate checks group and event against the allow-lists.
func (m Message) Validate() error {
	if _, ok := validGroups[m.Group]; !ok {
		return fmt.Errorf("%w: unknown group %q", ErrInvalidMessage, m.Group)
	}
	if _, ok := validEvents[m.Event]; !ok {
		return fmt.Errorf("%w: unknown event %q", ErrInvalidMessage, m.Event)
	}
	if len(m.Key) > 64 {
		return fmt.Errorf("%w: key too long", ErrInvalidMessage)
	}
	return nil
}

// Decode parses exactly one JSON message, rejecting unknown fields,
// trailing data, and values outside the allow-lists.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := decodeStrict(data, &msg); err != nil {
		return Message{}, err
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Encode renders a message as JSON.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Command is a request a viewer may send over its connection.
type Command string

const (
	CommandPing   Command = "ping"
	CommandResync Command = "resync"
)

// Inbound is the only shape accepted from viewers.
type Inbound struct {
	Type Command `json:"type"`
}

// DecodeInbound strictly parses a viewer request.
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := decodeStrict(data, &in); err != nil {
		return Inbound{}, err
	}
	switch in.Type {
	case CommandPing, CommandResync:
		return in, nil
	default:
		return Inbound{}, fmt.Errorf("%w: unknown command %q", ErrInvalidMessage, in.Type)
	}
}

func decodeStrict(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", ErrInvalidMessage)
	}
	return nil
}
