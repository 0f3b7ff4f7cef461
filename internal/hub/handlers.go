package hub

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/card-duel-backend/internal/bot"
	"github.com/DoyleJ11/card-duel-backend/internal/engine"
	"github.com/DoyleJ11/card-duel-backend/internal/match"
	"github.com/DoyleJ11/card-duel-backend/internal/session"
	"github.com/DoyleJ11/card-duel-backend/internal/store"
	"github.com/DoyleJ11/card-duel-backend/pkg/types"
)

func (h *Hub) handleClient(transportID string, msg types.ClientMessage) {
	if _, ok := h.conns[transportID]; !ok {
		return
	}

	if hello, ok := msg.(types.Hello); ok {
		h.onHello(transportID, hello)
		return
	}

	s, ok := h.sessions.Resolve(transportID)
	if !ok {
		h.errorTo(transportID, types.ErrCodeNotAuthenticated, "send hello first")
		return
	}

	switch m := msg.(type) {
	case types.QueueJoin:
		h.onQueueJoin(transportID, s)
	case types.QueueLeave:
		h.queue.Remove(s.ID)
	case types.PveStart:
		h.onPveStart(transportID, s)
	case types.LayoutDraft:
		h.onDraft(s, m)
	case types.LayoutConfirm:
		h.onConfirm(s, m)
	}
}

func (h *Hub) onHello(transportID string, msg types.Hello) {
	b, err := h.sessions.Bind(transportID, msg.SessionID, msg.AuthToken)
	switch {
	case errors.Is(err, session.ErrUnauthorized):
		h.log.Debug("hello rejected", zap.String("transport_id", transportID), zap.Error(err))
		h.errorTo(transportID, types.ErrCodeUnauthorized, "invalid auth token")
		return
	case err != nil:
		h.errorTo(transportID, types.ErrCodeBadRequest, err.Error())
		return
	}
	s := b.Session
	log := h.log.With(zap.String("session_id", s.ID), zap.String("account_id", s.AccountID))

	if b.Stale != "" {
		log.Info("session taken over by new transport", zap.String("stale", b.Stale))
		h.closeConn(b.Stale)
	}
	mt := h.rejoin(s, log)

	ctx, done := h.storeCtx()
	defer done()
	if _, err := h.accounts.EnsureAccount(ctx, s.AccountID, h.startingTokens); err != nil {
		log.Error("ensure account", zap.Error(err))
		h.errorTo(transportID, types.ErrCodeInternal, "account unavailable")
		return
	}
	tokens, err := h.accounts.GetTokens(ctx, s.AccountID)
	if err != nil {
		log.Error("get tokens", zap.Error(err))
		h.errorTo(transportID, types.ErrCodeInternal, "account unavailable")
		return
	}

	h.sendTo(transportID, types.HelloOK{SessionID: s.ID, AccountID: s.AccountID, Tokens: tokens})

	if mt == nil {
		h.sendTo(transportID, types.SyncState{StepIndex: -1, Queued: h.queue.Contains(s.ID)})
		return
	}
	h.sendTo(transportID, mt.Sync(s.ID))
}

// rejoin puts a freshly bound session back in its seat. It runs before any
// store access so a failing hello still ends the grace window.
func (h *Hub) rejoin(s *session.Session, log *zap.Logger) *match.Match {
	h.cancelGrace(s.ID)
	mt := h.matches[s.MatchID]
	if mt == nil || mt.SeatConnected(s.ID) {
		return mt
	}
	log.Info("player reconnected", zap.String("match_id", mt.ID()))
	mt.PlayerReconnected(s.ID)
	return mt
}

func (h *Hub) onQueueJoin(transportID string, s *session.Session) {
	if h.queue.Contains(s.ID) {
		h.sendQueueOK(transportID, s)
		return
	}
	if h.busy(s.AccountID) {
		h.log.Debug("queue join ignored, account busy", zap.String("session_id", s.ID))
		return
	}

	ctx, done := h.storeCtx()
	tokens, ok, err := h.settle.CanAfford(ctx, s.AccountID)
	done()
	if err != nil {
		h.log.Error("check balance", zap.String("account_id", s.AccountID), zap.Error(err))
		h.errorTo(transportID, types.ErrCodeInternal, "account unavailable")
		return
	}
	if !ok {
		h.errorTo(transportID, types.ErrCodeNotEnoughTokens, "")
		return
	}

	h.queue.Enqueue(s.ID)
	h.sendTo(transportID, types.QueueOK{Tokens: tokens})
	h.pairWaiting()
}

func (h *Hub) sendQueueOK(transportID string, s *session.Session) {
	ctx, done := h.storeCtx()
	defer done()
	tokens, err := h.accounts.GetTokens(ctx, s.AccountID)
	if err != nil {
		h.errorTo(transportID, types.ErrCodeInternal, "account unavailable")
		return
	}
	h.sendTo(transportID, types.QueueOK{Tokens: tokens})
}

func (h *Hub) onPveStart(transportID string, s *session.Session) {
	h.queue.Remove(s.ID)
	if h.busy(s.AccountID) {
		h.errorTo(transportID, types.ErrCodeBusy, "already playing")
		return
	}

	agent := bot.NewAgent(h.rng)
	bs := h.sessions.AddBot(agent.AccountID)
	h.startMatch(uuid.NewString(), store.ModePvE, 0, [2]*session.Session{s, bs}, agent)
}

func (h *Hub) onDraft(s *session.Session, msg types.LayoutDraft) {
	mt := h.matches[s.MatchID]
	if mt == nil || (msg.MatchID != "" && msg.MatchID != mt.ID()) {
		return
	}
	if err := mt.Draft(s.ID, engine.CardsFromNullable(msg.Layout)); err != nil {
		h.log.Debug("draft ignored", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (h *Hub) onConfirm(s *session.Session, msg types.LayoutConfirm) {
	mt := h.matches[s.MatchID]
	if mt == nil {
		return
	}
	if err := mt.Confirm(s.ID, engine.CardsFromStrings(msg.Layout)); err != nil {
		h.log.Debug("confirm ignored", zap.String("session_id", s.ID), zap.Error(err))
	}
}

// busy reports whether any session of accountID is queued or seated.
func (h *Hub) busy(accountID string) bool {
	for _, mt := range h.matches {
		for _, p := range mt.Players() {
			if p.AccountID == accountID {
				return true
			}
		}
	}
	for _, sid := range h.queue.Waiting() {
		if s, ok := h.sessions.Get(sid); ok && s.AccountID == accountID {
			return true
		}
	}
	return false
}
