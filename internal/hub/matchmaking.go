package hub

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/card-duel-backend/internal/bot"
	"github.com/DoyleJ11/card-duel-backend/internal/economy"
	"github.com/DoyleJ11/card-duel-backend/internal/match"
	"github.com/DoyleJ11/card-duel-backend/internal/session"
	"github.com/DoyleJ11/card-duel-backend/internal/store"
	"github.com/DoyleJ11/card-duel-backend/pkg/types"
)

// pairWaiting turns queued sessions into matches, two at a time, for as long
// as the queue holds a pair.
func (h *Hub) pairWaiting() {
	for {
		a, b, ok := h.queue.DequeuePairIfReady()
		if !ok {
			return
		}
		sa, okA := h.sessions.Get(a)
		sb, okB := h.sessions.Get(b)
		if !okA || !okB {
			if okA {
				h.queue.PushFront(a)
			}
			if okB {
				h.queue.PushFront(b)
			}
			continue
		}

		seats := [2]*session.Session{sa, sb}
		id := uuid.NewString()
		ctx, done := h.storeCtx()
		pot, err := h.settle.Charge(ctx, id, store.ModePvP, [2]string{sa.AccountID, sb.AccountID})
		done()
		if err != nil {
			h.chargeFailed(id, seats, err)
			continue
		}
		h.startMatch(id, store.ModePvP, pot, seats, nil)
	}
}

// chargeFailed reports a failed entry charge. The side that could not pay is
// told so; the other goes back to the head of the queue.
func (h *Hub) chargeFailed(matchID string, seats [2]*session.Session, err error) {
	h.settle.Forget(matchID, [2]string{seats[0].AccountID, seats[1].AccountID})

	var ce *economy.ChargeError
	if errors.As(err, &ce) && errors.Is(ce.Err, economy.ErrInsufficientTokens) {
		h.log.Info("entry charge declined", zap.String("account_id", ce.AccountID))
		for i := len(seats) - 1; i >= 0; i-- {
			s := seats[i]
			if s.AccountID == ce.AccountID {
				h.errorTo(s.TransportID, types.ErrCodeNotEnoughTokens, "")
				continue
			}
			h.queue.PushFront(s.ID)
		}
		return
	}

	h.log.Error("entry charge failed", zap.String("match_id", matchID), zap.Error(err))
	for _, s := range seats {
		h.errorTo(s.TransportID, types.ErrCodeInternal, "could not start match")
	}
}

func (h *Hub) startMatch(id string, mode store.Mode, pot int64, seats [2]*session.Session, agent *bot.Agent) {
	var players [2]match.Player
	for i, s := range seats {
		players[i] = match.Player{SessionID: s.ID, AccountID: s.AccountID, Connected: s.Connected()}
		s.MatchID = id
	}
	players[1].Bot = agent

	mt := match.New(match.Config{
		ID:      id,
		Mode:    mode,
		Players: players,
		Pot:     pot,
		Rules:   h.rules,
		Timers:  h,
		Sink:    h,
		Settler: h.settle,
		Log:     h.log.Named("match"),
		Rand:    h.rng,
		Now:     h.now,
		OnEnd:   h.onMatchEnd,
	})
	h.matches[id] = mt
	mt.Start()
}

// onMatchEnd runs once a match has settled and told both seats.
func (h *Hub) onMatchEnd(mt *match.Match, res match.Result) {
	delete(h.matches, mt.ID())

	var accounts [2]string
	for i, p := range mt.Players() {
		accounts[i] = p.AccountID
		h.cancelGrace(p.SessionID)
		if s, ok := h.sessions.Get(p.SessionID); ok && s.MatchID == mt.ID() {
			s.MatchID = ""
		}
		if p.Bot != nil {
			h.sessions.Remove(p.SessionID)
		}
	}
	h.settle.Forget(mt.ID(), accounts)

	h.log.Debug("match removed", zap.String("match_id", mt.ID()), zap.String("reason", res.Reason))
}
