// Package protocol classifies inbound ActionCable frames and builds the
// outbound subscribe command.
package protocol

import "encoding/json"

// Kind names an event class. Used for logging and metric labels.
type Kind string

const (
	KindPing      Kind = "ping"
	KindWelcome   Kind = "welcome"
	KindConfirmed Kind = "confirm_subscription"
	KindRejected  Kind = "reject_subscription"
	KindData      Kind = "data"
	KindUnknown   Kind = "unknown"
	KindMalformed Kind = "malformed"
)

const defaultDataKind = "update"

// Event is one classified inbound frame.
type Event interface {
	Kind() Kind
}

// PingEvent is the server heartbeat. Message usually holds a unix timestamp.
type PingEvent struct {
	Raw     []byte
	Message json.RawMessage
}

// WelcomeEvent is sent once after the handshake. Data may carry an initial
// full snapshot.
type WelcomeEvent struct {
	Data json.RawMessage
}

type SubscriptionConfirmed struct {
	Identifier string
}

type SubscriptionRejected struct {
	Identifier string
}

// DataEvent is a channel broadcast. UpdateKind is the payload's own type
// field, "update" when absent.
type DataEvent struct {
	Payload    json.RawMessage
	UpdateKind string
}

// UnknownEvent is a parseable frame that matched no known shape.
type UnknownEvent struct {
	Raw []byte
}

func (PingEvent) Kind() Kind             { return KindPing }
func (WelcomeEvent) Kind() Kind          { return KindWelcome }
func (SubscriptionConfirmed) Kind() Kind { return KindConfirmed }
func (SubscriptionRejected) Kind() Kind  { return KindRejected }
func (DataEvent) Kind() Kind             { return KindData }
func (UnknownEvent) Kind() Kind          { return KindUnknown }
