package hub

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/card-duel-backend/internal/economy"
)

// transportLost handles a transport going away. A queued session leaves the
// queue; a seated one gets a grace window to come back before it forfeits.
func (h *Hub) transportLost(transportID string) {
	s, ok := h.sessions.Unbind(transportID)
	if !ok {
		return
	}
	log := h.log.With(zap.String("session_id", s.ID), zap.String("transport_id", transportID))

	if h.queue.Remove(s.ID) {
		log.Info("left queue on disconnect")
	}

	mt := h.matches[s.MatchID]
	if mt == nil {
		return
	}
	deadline := h.now().Add(h.rules.ReconnectGrace)
	h.startGrace(s.ID)
	log.Info("player disconnected", zap.String("match_id", mt.ID()), zap.Time("grace_deadline", deadline))
	mt.PlayerDisconnected(s.ID, deadline)
}

func (h *Hub) startGrace(sessionID string) {
	h.cancelGrace(sessionID)
	h.graceGen++
	gen := h.graceGen
	timer := time.AfterFunc(h.rules.ReconnectGrace, func() {
		h.Post(graceExpired{SessionID: sessionID, Generation: gen})
	})
	h.grace[sessionID] = &graceTimer{gen: gen, timer: timer}
}

func (h *Hub) cancelGrace(sessionID string) {
	if g, ok := h.grace[sessionID]; ok {
		g.timer.Stop()
		delete(h.grace, sessionID)
	}
}

func (h *Hub) onGraceExpired(msg graceExpired) {
	g, ok := h.grace[msg.SessionID]
	if !ok || g.gen != msg.Generation {
		return
	}
	delete(h.grace, msg.SessionID)

	s, ok := h.sessions.Get(msg.SessionID)
	if !ok {
		return
	}
	mt := h.matches[s.MatchID]
	if mt == nil {
		return
	}
	if s.Connected() {
		// Bound again without the seat hearing about it.
		if !mt.SeatConnected(s.ID) {
			h.log.Warn("seat out of sync at grace expiry, rejoining", zap.String("session_id", s.ID), zap.String("match_id", mt.ID()))
			mt.PlayerReconnected(s.ID)
		}
		return
	}
	h.log.Info("grace expired, forfeiting", zap.String("session_id", s.ID), zap.String("match_id", mt.ID()))
	mt.Forfeit(s.ID, economy.ReasonDisconnect)
}
