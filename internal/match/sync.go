package match

import (
	"github.com/DoyleJ11/card-duel-backend/internal/engine"
	"github.com/DoyleJ11/card-duel-backend/pkg/types"
)

// Sync builds the state snapshot sessionID needs to redraw its screen.
func (m *Match) Sync(sessionID string) types.SyncState {
	side, ok := m.SideOf(sessionID)
	if !ok {
		return types.SyncState{StepIndex: -1}
	}
	own, opp := m.seats[side], m.seats[side.Other()]

	st := types.SyncState{
		InMatch:     m.phase != PhaseEnd,
		MatchID:     m.id,
		Mode:        string(m.mode),
		Phase:       string(m.phase),
		RoundIndex:  m.round,
		SuddenDeath: m.suddenDeath,
		StepIndex:   m.step,
		Paused:      m.paused,
		Confirmed:   own.confirmed,
		Cards:       cardStrings(m.rules.Hand),
		YourHP:      own.hp,
		OppHP:       opp.hp,
	}
	if m.phase == PhasePrep {
		st.DeadlineTs = m.deadline.UnixMilli()
	}
	if own.confirmed {
		st.Layout = own.layout.Strings()
	}
	return st
}

func (m *Match) prepStart(side engine.Side) types.PrepStart {
	return types.PrepStart{
		MatchID:     m.id,
		RoundIndex:  m.round,
		SuddenDeath: m.suddenDeath,
		DeadlineTs:  m.deadline.UnixMilli(),
		YourHP:      m.seats[side].hp,
		OppHP:       m.seats[side.Other()].hp,
		Cards:       cardStrings(m.rules.Hand),
	}
}

func cardStrings(cards []engine.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = string(c)
	}
	return out
}
