package replication

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/1broseidon/winmesh/internal/geometry"
)

// Kind tags a replication message.
type Kind string

const (
	KindSnapshot               Kind = "snapshot"
	KindRequestSnapshot        Kind = "request-snapshot"
	KindRequestInitialSnapshot Kind = "request-initial-snapshot"
	KindWindowClosed           Kind = "window-closed"
)

var (
	// ErrMalformed is returned by Decode for payloads that are not a valid message.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownKind is returned by Decode for a well-formed message with an unrecognised type.
	ErrUnknownKind = errors.New("unknown message kind")
)

// Snapshot maps window ids to their geometry.
type Snapshot map[string]geometry.WindowGeometry

// Clone returns a copy that shares nothing with s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, g := range s {
		out[id] = g
	}
	return out
}

// Message is the envelope exchanged between peers.
type Message struct {
	Type              Kind     `json:"type"`
	Source            string   `json:"source"`
	Data              Snapshot `json:"data,omitempty"`
	Timestamp         int64    `json:"timestamp"`
	IsResponse        bool     `json:"isResponse,omitempty"`
	IsInitialResponse bool     `json:"isInitialResponse,omitempty"`
}

// NewMessage stamps a message with the current time in milliseconds.
func NewMessage(kind Kind, source string) Message {
	return Message{
		Type:      kind,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Validate checks the payload schema for the message kind.
func (m Message) Validate() error {
	switch m.Type {
	case KindSnapshot:
		for id, g := range m.Data {
			if id == "" {
				return fmt.Errorf("%w: snapshot entry with empty id", ErrMalformed)
			}
			if err := g.Validate(); err != nil {
				return fmt.Errorf("%w: window %s: %v", ErrMalformed, id, err)
			}
		}
	case KindRequestSnapshot, KindRequestInitialSnapshot:
		if len(m.Data) > 0 {
			return fmt.Errorf("%w: %s carries data", ErrMalformed, m.Type)
		}
	case KindWindowClosed:
		if m.Source == "" {
			return fmt.Errorf("%w: %s without source", ErrMalformed, m.Type)
		}
	case "":
		return fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Type)
	}
	return nil
}

// Encode marshals a validated message.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", m.Type, err)
	}
	return data, nil
}

// Decode parses and validates a message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
