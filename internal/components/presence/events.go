package presence

import (
	"encoding/json"
	"fmt"
)

// EventKind is a wire event name. The set is closed; unknown names do not parse.
type EventKind uint8

const (
	EventConnected EventKind = iota + 1
	EventDisconnect
	EventJoinChat
	EventLeaveChat
	EventUpdateGroupName
	EventMessageReceived
	EventNewChat
	EventSocketError
	EventTyping
	EventStopTyping
	EventMessageDeleted
)

var eventNames = map[EventKind]string{
	EventConnected:       "connected",
	EventDisconnect:      "disconnect",
	EventJoinChat:        "joinChat",
	EventLeaveChat:       "leaveChat",
	EventUpdateGroupName: "updateGroupName",
	EventMessageReceived: "messageReceived",
	EventNewChat:         "newChat",
	EventSocketError:     "socketError",
	EventTyping:          "typing",
	EventStopTyping:      "stopTyping",
	EventMessageDeleted:  "messageDeleted",
}

var eventsByName = func() map[string]EventKind {
	m := make(map[string]EventKind, len(eventNames))
	for k, name := range eventNames {
		m[name] = k
	}
	return m
}()

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// ParseEventKind maps a wire name to its kind.
func ParseEventKind(name string) (EventKind, error) {
	if k, ok := eventsByName[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

func (k EventKind) MarshalText() ([]byte, error) {
	name, ok := eventNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %d", uint8(k))
	}
	return []byte(name), nil
}

func (k *EventKind) UnmarshalText(b []byte) error {
	parsed, err := ParseEventKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Frame is the JSON envelope of every socket message, in both directions.
type Frame struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event EventKind, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Frame{Event: event, Data: data})
}
