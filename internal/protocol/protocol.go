// Package protocol defines the JSON frames exchanged on the live channel.
// Frames are decoded into a closed set of variants; a frame whose type is not
// known decodes to Unknown instead of an error.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/notify-relay/internal/domain"
)

// Frame types.
const (
	TypeAuth         = "auth"
	TypeAuthOK       = "auth_ok"
	TypeError        = "error"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeNotification = domain.KindNotification
)

// ErrMalformed is returned for frames that are not a JSON object with a
// string "type", or whose known type has an invalid body.
var ErrMalformed = errors.New("malformed frame")

// Inbound is a client-to-server frame: Auth, Ping or Unknown.
type Inbound interface{ inbound() }

// Event is a server-to-client frame: Notification, AuthOK, Pong, Error or
// Unknown.
type Event interface{ event() }

// Auth declares the user id of a freshly opened connection.
type Auth struct {
	UserID string
}

// AuthOK acknowledges a successful handshake.
type AuthOK struct{}

// Ping is an application-level keepalive; browsers cannot send control
// frames. The server answers with Pong.
type Ping struct{}

type Pong struct{}

// Error carries a server message before the connection is closed.
type Error struct {
	Message string
}

// Unknown is any frame with an unrecognised type. Receivers ignore it.
type Unknown struct {
	Type string
}

// Notification wraps the domain event as a frame variant.
type Notification struct {
	domain.NotificationEvent
}

func (Auth) inbound()    {}
func (Ping) inbound()    {}
func (Unknown) inbound() {}

func (AuthOK) event()       {}
func (Pong) event()         {}
func (Error) event()        {}
func (Unknown) event()      {}
func (Notification) event() {}

type envelope struct {
	Type string `json:"type"`
}

type authFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func peekType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env.Type, nil
}

// DecodeInbound parses a client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	typ, err := peekType(data)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeAuth:
		var f authFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if f.UserID == "" {
			return nil, fmt.Errorf("%w: auth without userId", ErrMalformed)
		}
		return Auth{UserID: f.UserID}, nil
	case TypePing:
		return Ping{}, nil
	default:
		return Unknown{Type: typ}, nil
	}
}

// DecodeEvent parses a server frame.
func DecodeEvent(data []byte) (Event, error) {
	typ, err := peekType(data)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeNotification:
		var e domain.NotificationEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Notification{NotificationEvent: e}, nil
	case TypeAuthOK:
		return AuthOK{}, nil
	case TypePong:
		return Pong{}, nil
	case TypeError:
		var f errorFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Error{Message: f.Message}, nil
	default:
		return Unknown{Type: typ}, nil
	}
}

// EncodeAuth renders the handshake frame a client sends first.
func EncodeAuth(userID string) ([]byte, error) {
	return json.Marshal(authFrame{Type: TypeAuth, UserID: userID})
}

// EncodeEvent renders a notification frame. An empty kind is sent as
// "notification".
func EncodeEvent(e domain.NotificationEvent) ([]byte, error) {
	if e.Kind == "" {
		e.Kind = TypeNotification
	}
	return json.Marshal(e)
}

func EncodeAuthOK() []byte {
	return []byte(`{"type":"auth_ok"}`)
}

func EncodePing() []byte {
	return []byte(`{"type":"ping"}`)
}

func EncodePong() []byte {
	return []byte(`{"type":"pong"}`)
}

func EncodeError(message string) ([]byte, error) {
	return json.Marshal(errorFrame{Type: TypeError, Message: message})
}
