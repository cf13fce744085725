package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned for frames that are not valid JSON.
var ErrMalformedFrame = errors.New("malformed frame")

// envelope is the ActionCable frame shape. Fields are raw so that a
// wrongly typed field degrades to UnknownEvent instead of a parse error.
type envelope struct {
	Type       json.RawMessage `json:"type"`
	Message    json.RawMessage `json:"message"`
	Identifier json.RawMessage `json:"identifier"`
	Data       json.RawMessage `json:"data"`
}

// Classify parses one text frame into exactly one Event.
func Classify(raw []byte) (Event, error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(raw))
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return UnknownEvent{Raw: raw}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch stringField(env.Type) {
	case "ping":
		return PingEvent{Raw: raw, Message: env.Message}, nil
	case "welcome":
		return WelcomeEvent{Data: env.Data}, nil
	case "confirm_subscription":
		return SubscriptionConfirmed{Identifier: stringField(env.Identifier)}, nil
	case "reject_subscription":
		return SubscriptionRejected{Identifier: stringField(env.Identifier)}, nil
	}

	if env.Message != nil {
		return DataEvent{Payload: env.Message, UpdateKind: updateKind(env.Message)}, nil
	}
	return UnknownEvent{Raw: raw}, nil
}

func updateKind(msg json.RawMessage) string {
	var inner struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(msg, &inner); err != nil {
		return defaultDataKind
	}
	if k := stringField(inner.Type); k != "" {
		return k
	}
	return defaultDataKind
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
