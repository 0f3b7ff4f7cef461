package hub

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/card-duel-backend/internal/economy"
	"github.com/DoyleJ11/card-duel-backend/internal/engine"
	"github.com/DoyleJ11/card-duel-backend/internal/match"
	"github.com/DoyleJ11/card-duel-backend/internal/queue"
	"github.com/DoyleJ11/card-duel-backend/internal/session"
	"github.com/DoyleJ11/card-duel-backend/internal/store"
	"github.com/DoyleJ11/card-duel-backend/pkg/types"
)

const storeTimeout = 5 * time.Second

type HubMsg interface{ isHubMsg() }

// Connect registers a new transport. Outbox receives every event for the
// session bound to it and is closed by the hub when the transport is dropped.
type Connect struct {
	TransportID string
	Outbox      chan types.ServerEvent
}

type Disconnect struct {
	TransportID string
}

type FromClient struct {
	TransportID string
	Msg         types.ClientMessage
}

type GetStats struct {
	Reply chan Stats
}

type ShutdownHub struct{}

type tickMsg struct {
	tick match.Tick
}

type graceExpired struct {
	SessionID  string
	Generation uint64
}

func (Connect) isHubMsg()      {}
func (Disconnect) isHubMsg()   {}
func (FromClient) isHubMsg()   {}
func (GetStats) isHubMsg()     {}
func (ShutdownHub) isHubMsg()  {}
func (tickMsg) isHubMsg()      {}
func (graceExpired) isHubMsg() {}

type Stats struct {
	Matches     int `json:"matches"`
	Queued      int `json:"queued"`
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
}

type Config struct {
	Rules          engine.Rules
	Accounts       store.Accounts
	Verifier       session.Verifier
	StartingTokens int64
	Log            *zap.Logger
	Rand           *rand.Rand
	Now            func() time.Time
}

type graceTimer struct {
	gen   uint64
	timer *time.Timer
}

// Hub is the single goroutine that owns every session, the queue and all
// live matches. Everything else talks to it through Inbox.
type Hub struct {
	inbox  chan HubMsg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	rules          engine.Rules
	accounts       store.Accounts
	settle         *economy.Settlement
	startingTokens int64
	log            *zap.Logger
	rng            *rand.Rand
	now            func() time.Time

	sessions *session.Registry
	queue    *queue.Queue
	matches  map[string]*match.Match
	conns    map[string]chan types.ServerEvent
	grace    map[string]*graceTimer
	graceGen uint64
	dropped  []string
}

func NewHub(parent context.Context, cfg Config) *Hub {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:          make(chan HubMsg, 256),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		rules:          cfg.Rules,
		accounts:       cfg.Accounts,
		settle:         economy.New(cfg.Accounts, cfg.Rules.EntryStake, cfg.Log.Named("economy")),
		startingTokens: cfg.StartingTokens,
		log:            cfg.Log,
		rng:            cfg.Rand,
		now:            cfg.Now,
		sessions:       session.NewRegistry(cfg.Verifier),
		queue:          queue.New(),
		matches:        make(map[string]*match.Match),
		conns:          make(map[string]chan types.ServerEvent),
		grace:          make(map[string]*graceTimer),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub goroutine has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Post delivers msg unless the hub has already stopped.
func (h *Hub) Post(msg HubMsg) bool {
	select {
	case h.inbox <- msg:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Connect:
				h.conns[msg.TransportID] = msg.Outbox

			case Disconnect:
				h.closeConn(msg.TransportID)
				h.transportLost(msg.TransportID)

			case FromClient:
				h.handleClient(msg.TransportID, msg.Msg)

			case tickMsg:
				if mt := h.matches[msg.tick.MatchID]; mt != nil {
					mt.Fire(msg.tick)
				}

			case graceExpired:
				h.onGraceExpired(msg)

			case GetStats:
				msg.Reply <- Stats{
					Matches:     len(h.matches),
					Queued:      h.queue.Len(),
					Sessions:    h.sessions.Bound(),
					Connections: len(h.conns),
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
			h.flushDropped()
		}
	}
}

// Schedule implements match.Timers: the tick comes back through the inbox so
// the match only ever runs on the hub goroutine.
func (h *Hub) Schedule(d time.Duration, t match.Tick) match.Cancel {
	timer := time.AfterFunc(d, func() { h.Post(tickMsg{tick: t}) })
	return func() { timer.Stop() }
}

// Send implements match.Sink. Events for a disconnected session are dropped;
// sync_state covers them on reconnect.
func (h *Hub) Send(sessionID string, ev types.ServerEvent) {
	s, ok := h.sessions.Get(sessionID)
	if !ok || s.TransportID == "" {
		return
	}
	h.sendTo(s.TransportID, ev)
}

func (h *Hub) sendTo(transportID string, ev types.ServerEvent) {
	ch, ok := h.conns[transportID]
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		// Slow consumer: dropped once the current message is done.
		h.dropped = append(h.dropped, transportID)
	}
}

func (h *Hub) flushDropped() {
	for len(h.dropped) > 0 {
		tid := h.dropped[0]
		h.dropped = h.dropped[1:]
		if _, ok := h.conns[tid]; !ok {
			continue
		}
		h.log.Info("dropping slow transport", zap.String("transport_id", tid))
		h.closeConn(tid)
		h.transportLost(tid)
	}
}

func (h *Hub) closeConn(transportID string) {
	if ch, ok := h.conns[transportID]; ok {
		close(ch)
		delete(h.conns, transportID)
	}
}

func (h *Hub) shutdown() {
	for id, mt := range h.matches {
		mt.Abort()
		h.log.Warn("match aborted by shutdown", zap.String("match_id", id), zap.Int64("pot", mt.Pot()))
	}
	clear(h.matches)
	for sid, g := range h.grace {
		g.timer.Stop()
		delete(h.grace, sid)
	}
	for tid := range h.conns {
		h.closeConn(tid)
	}
	h.cancel()
}

func (h *Hub) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(h.ctx, storeTimeout)
}

func (h *Hub) errorTo(transportID, code, message string) {
	h.sendTo(transportID, types.ErrorMsg{Code: code, Message: message})
}
