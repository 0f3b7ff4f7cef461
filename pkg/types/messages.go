package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client -> Server
// hello:          { sessionId, authToken }
// queue_join:     {}
// queue_leave:    {}
// pve_start:      {}
// layout_draft:   { matchId, layout: [card|null, card|null, card|null] }
// layout_confirm: { layout: [card, card, card] }
//
// Every frame is an Envelope; the payload shape is fixed by the type tag.

var ErrMalformed = errors.New("malformed message")
var ErrUnknownType = errors.New("unknown message type")

const (
	TypeHello         = "hello"
	TypeQueueJoin     = "queue_join"
	TypeQueueLeave    = "queue_leave"
	TypePveStart      = "pve_start"
	TypeLayoutDraft   = "layout_draft"
	TypeLayoutConfirm = "layout_confirm"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClientMessage is the closed set of messages a client may send.
type ClientMessage interface{ isClientMessage() }

type Hello struct {
	SessionID string `json:"sessionId"`
	AuthToken string `json:"authToken"`
}

type QueueJoin struct{}

type QueueLeave struct{}

type PveStart struct{}

type LayoutDraft struct {
	MatchID string    `json:"matchId"`
	Layout  []*string `json:"layout"`
}

type LayoutConfirm struct {
	Layout []string `json:"layout"`
}

func (Hello) isClientMessage()         {}
func (QueueJoin) isClientMessage()     {}
func (QueueLeave) isClientMessage()    {}
func (PveStart) isClientMessage()      {}
func (LayoutDraft) isClientMessage()   {}
func (LayoutConfirm) isClientMessage() {}

// DecodeClient parses one frame into its concrete message.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeHello:
		return decodePayload[Hello](env.Payload)
	case TypeQueueJoin:
		return QueueJoin{}, nil
	case TypeQueueLeave:
		return QueueLeave{}, nil
	case TypePveStart:
		return PveStart{}, nil
	case TypeLayoutDraft:
		return decodePayload[LayoutDraft](env.Payload)
	case TypeLayoutConfirm:
		return decodePayload[LayoutConfirm](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodePayload[T ClientMessage](raw json.RawMessage) (ClientMessage, error) {
	var msg T
	if len(raw) == 0 {
		return nil, ErrMalformed
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

// EncodeClient is the client-side counterpart of DecodeClient.
func EncodeClient(msg ClientMessage) ([]byte, error) {
	var typ string
	switch msg.(type) {
	case Hello:
		typ = TypeHello
	case QueueJoin:
		typ = TypeQueueJoin
	case QueueLeave:
		typ = TypeQueueLeave
	case PveStart:
		typ = TypePveStart
	case LayoutDraft:
		typ = TypeLayoutDraft
	case LayoutConfirm:
		typ = TypeLayoutConfirm
	default:
		return nil, ErrUnknownType
	}
	return encode(typ, msg)
}

func encode(typ string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Payload: payload})
}
