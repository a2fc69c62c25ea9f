package log

import (
	"time"
)

// Event represents a bridge log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ClientID identifies the MQTT client that produced the event.
	ClientID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Topic is the MQTT topic involved, if any.
	Topic string `cbor:"5,keyasint,omitempty"`

	// State is the state mapping involved in merge/publish/remote events.
	State map[string]any `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (at most one of these is set).
	StateChange *StateChangeEvent `cbor:"7,keyasint,omitempty"` // Connection state transitions
	Error       *ErrorEvent       `cbor:"8,keyasint,omitempty"` // Errors at any layer
}

// StateChangeEvent describes a connection state transition.
type StateChangeEvent struct {
	// OldState is the state before the transition.
	OldState string `cbor:"1,keyasint"`

	// NewState is the state after the transition.
	NewState string `cbor:"2,keyasint"`

	// Reason describes why the transition happened, if known.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEvent describes an error at any layer.
type ErrorEvent struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context describes what the bridge was doing when the error occurred.
	Context string `cbor:"2,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message or locally observed event.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryConnect indicates a broker connection event.
	CategoryConnect Category = 0
	// CategorySubscribe indicates a topic subscription event.
	CategorySubscribe Category = 1
	// CategoryPublish indicates a snapshot publication.
	CategoryPublish Category = 2
	// CategoryMerge indicates a local state merge.
	CategoryMerge Category = 3
	// CategoryFlush indicates a coalesced flush completion.
	CategoryFlush Category = 4
	// CategoryRemote indicates a state mapping received from the peer.
	CategoryRemote Category = 5
	// CategoryState indicates a connection state change.
	CategoryState Category = 6
	// CategoryError indicates an error event.
	CategoryError Category = 7
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryConnect:
		return "CONNECT"
	case CategorySubscribe:
		return "SUBSCRIBE"
	case CategoryPublish:
		return "PUBLISH"
	case CategoryMerge:
		return "MERGE"
	case CategoryFlush:
		return "FLUSH"
	case CategoryRemote:
		return "REMOTE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
