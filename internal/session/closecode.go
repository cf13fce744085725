package session

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// Application close codes sent by the server.
const (
	CloseUnauthorized = 4001
	CloseForbidden    = 4003
)

var closeReasons = map[int]string{
	websocket.CloseNormalClosure:           "Normal closure",
	websocket.CloseGoingAway:               "Going away",
	websocket.CloseProtocolError:           "Protocol error",
	websocket.CloseUnsupportedData:         "Unsupported data",
	websocket.CloseAbnormalClosure:         "Abnormal closure (no close frame)",
	websocket.CloseInvalidFramePayloadData: "Invalid payload",
	websocket.ClosePolicyViolation:         "Policy violation",
	websocket.CloseMessageTooBig:           "Message too big",
	websocket.CloseInternalServerErr:       "Server error",
	websocket.CloseTLSHandshake:            "TLS handshake failed",
	CloseUnauthorized:                      "Unauthorized - invalid API key",
	CloseForbidden:                         "Forbidden - WebSocket access not enabled",
}

// CloseReason maps a close code to a human readable reason.
func CloseReason(code int) string {
	if r, ok := closeReasons[code]; ok {
		return r
	}
	return "Unknown"
}

// NeedsCredentialHint reports codes after which the user should check the
// API key and plan.
func NeedsCredentialHint(code int) bool {
	switch code {
	case CloseUnauthorized, CloseForbidden, websocket.CloseAbnormalClosure:
		return true
	}
	return false
}

// OutcomeKind classifies how a session attempt ended.
type OutcomeKind int

const (
	NormalClose OutcomeKind = iota
	AbnormalClose
	TransportError
	Cancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case NormalClose:
		return "normal_close"
	case AbnormalClose:
		return "abnormal_close"
	case TransportError:
		return "transport_error"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Outcome is the result of one Session.Run. Code is zero when no close
// frame was received.
type Outcome struct {
	Kind      OutcomeKind
	Code      int
	Reason    string
	Err       error
	Connected bool
}

// Recoverable reports whether the supervisor should consult the policy.
func (o Outcome) Recoverable() bool {
	return o.Kind == AbnormalClose || o.Kind == TransportError
}

// class is the metric label for the closure.
func (o Outcome) class() string {
	switch {
	case o.Kind == NormalClose:
		return "normal"
	case o.Code == CloseUnauthorized || o.Code == CloseForbidden:
		return "auth"
	case o.Kind == TransportError:
		return "transport"
	default:
		return "abnormal"
	}
}

// ErrPingTimeout marks a connection dropped because the peer stopped
// answering keep-alive pings.
var ErrPingTimeout = errors.New("ping timeout")

func outcomeFromReadError(err error, pingTimeout bool) Outcome {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseNormalClosure {
			return Outcome{Kind: NormalClose, Code: ce.Code, Reason: ce.Text, Connected: true}
		}
		return Outcome{Kind: AbnormalClose, Code: ce.Code, Reason: ce.Text, Err: err, Connected: true}
	}
	if pingTimeout {
		err = fmt.Errorf("%w: %v", ErrPingTimeout, err)
	}
	return Outcome{Kind: TransportError, Err: err, Connected: true}
}
