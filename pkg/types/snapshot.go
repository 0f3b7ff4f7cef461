package types

// SyncState is sent after a successful hello so a reconnecting client can
// rebuild its screen without replaying the events it missed.
//
//	inMatch:     bool
//	matchId:     string
//	phase:       "PREP" | "REVEAL" | "END"
//	roundIndex:  number
//	suddenDeath: bool
//	deadlineTs:  number // unix ms, PREP only
//	stepIndex:   number // REVEAL only, -1 otherwise
//	paused:      bool
//	confirmed:   bool
//	layout:      card[] // own confirmed layout, if any
//	cards:       card[] // hand for the current round
type SyncState struct {
	InMatch     bool     `json:"inMatch"`
	MatchID     string   `json:"matchId,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Phase       string   `json:"phase,omitempty"`
	RoundIndex  int      `json:"roundIndex,omitempty"`
	SuddenDeath bool     `json:"suddenDeath,omitempty"`
	DeadlineTs  int64    `json:"deadlineTs,omitempty"`
	StepIndex   int      `json:"stepIndex"`
	Paused      bool     `json:"paused,omitempty"`
	Confirmed   bool     `json:"confirmed,omitempty"`
	Layout      []string `json:"layout,omitempty"`
	Cards       []string `json:"cards,omitempty"`
	YourHP      int      `json:"yourHp,omitempty"`
	OppHP       int      `json:"oppHp,omitempty"`
	Queued      bool     `json:"queued,omitempty"`
}
