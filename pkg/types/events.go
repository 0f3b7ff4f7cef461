package types

// Server -> Client
// hello_ok, error_msg, queue_ok, confirm_ok, prep_start, step_reveal,
// round_end, match_end, sync_state, opponent_disconnected, opponent_reconnected.

const (
	TypeHelloOK              = "hello_ok"
	TypeErrorMsg             = "error_msg"
	TypeQueueOK              = "queue_ok"
	TypeConfirmOK            = "confirm_ok"
	TypePrepStart            = "prep_start"
	TypeStepReveal           = "step_reveal"
	TypeRoundEnd             = "round_end"
	TypeMatchEnd             = "match_end"
	TypeSyncState            = "sync_state"
	TypeOpponentDisconnected = "opponent_disconnected"
	TypeOpponentReconnected  = "opponent_reconnected"
)

// Error codes carried by error_msg.
const (
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotAuthenticated = "not_authenticated"
	ErrCodeNotEnoughTokens  = "not_enough_tokens"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeBusy             = "already_in_match"
	ErrCodeInternal         = "internal"
)

// Winner values as seen by the recipient.
const (
	WinnerYou      = "YOU"
	WinnerOpponent = "OPPONENT"
	WinnerDraw     = "DRAW"
)

// ServerEvent is the closed set of messages the server sends.
type ServerEvent interface{ EventType() string }

type HelloOK struct {
	SessionID string `json:"sessionId"`
	AccountID string `json:"accountId"`
	Tokens    int64  `json:"tokens"`
}

type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type QueueOK struct {
	Tokens int64 `json:"tokens"`
}

type ConfirmOK struct{}

type PrepStart struct {
	MatchID     string   `json:"matchId"`
	RoundIndex  int      `json:"roundIndex"`
	SuddenDeath bool     `json:"suddenDeath"`
	DeadlineTs  int64    `json:"deadlineTs"`
	YourHP      int      `json:"yourHp"`
	OppHP       int      `json:"oppHp"`
	Cards       []string `json:"cards"`
}

type StepReveal struct {
	RoundIndex int    `json:"roundIndex"`
	StepIndex  int    `json:"stepIndex"`
	YourCard   string `json:"yourCard"`
	OppCard    string `json:"oppCard"`
	YourHP     int    `json:"yourHp"`
	OppHP      int    `json:"oppHp"`
}

type RoundEnd struct {
	RoundIndex  int  `json:"roundIndex"`
	SuddenDeath bool `json:"suddenDeath"`
	YourHP      int  `json:"yourHp"`
	OppHP       int  `json:"oppHp"`
}

type MatchEnd struct {
	MatchID    string `json:"matchId"`
	Winner     string `json:"winner"`
	YourHP     int    `json:"yourHp"`
	OppHP      int    `json:"oppHp"`
	YourTokens int64  `json:"yourTokens"`
	Reason     string `json:"reason"`
}

type OpponentDisconnected struct {
	GraceDeadlineTs int64 `json:"graceDeadlineTs"`
}

type OpponentReconnected struct{}

func (HelloOK) EventType() string              { return TypeHelloOK }
func (ErrorMsg) EventType() string             { return TypeErrorMsg }
func (QueueOK) EventType() string              { return TypeQueueOK }
func (ConfirmOK) EventType() string            { return TypeConfirmOK }
func (PrepStart) EventType() string            { return TypePrepStart }
func (StepReveal) EventType() string           { return TypeStepReveal }
func (RoundEnd) EventType() string             { return TypeRoundEnd }
func (MatchEnd) EventType() string             { return TypeMatchEnd }
func (SyncState) EventType() string            { return TypeSyncState }
func (OpponentDisconnected) EventType() string { return TypeOpponentDisconnected }
func (OpponentReconnected) EventType() string  { return TypeOpponentReconnected }

// EncodeServer wraps ev in an Envelope tagged with its event type.
func EncodeServer(ev ServerEvent) ([]byte, error) {
	return encode(ev.EventType(), ev)
}
