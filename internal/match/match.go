package match

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/card-duel-backend/internal/bot"
	"github.com/DoyleJ11/card-duel-backend/internal/economy"
	"github.com/DoyleJ11/card-duel-backend/internal/engine"
	"github.com/DoyleJ11/card-duel-backend/internal/store"
	"github.com/DoyleJ11/card-duel-backend/pkg/types"
)

var ErrWrongPhase = errors.New("match not in required phase")
var ErrAlreadyConfirmed = errors.New("layout already confirmed")
var ErrNotSeated = errors.New("session not seated in match")

const settleTimeout = 5 * time.Second

type Phase string

const (
	PhasePrep   Phase = "PREP"
	PhaseReveal Phase = "REVEAL"
	PhaseEnd    Phase = "END"
)

const PauseDisconnect = "disconnect"

type TickKind int

const (
	TickPrepDeadline TickKind = iota
	TickRevealStep
	TickBotConfirm
)

// Tick is a scheduled callback. It carries the generation that was current
// when it was scheduled; Fire drops it if the match has moved on since.
type Tick struct {
	MatchID    string
	Kind       TickKind
	Generation uint64
	// Step is the reveal step for TickRevealStep and the seat for
	// TickBotConfirm.
	Step int
}

type Cancel func()

// Timers arranges for a Tick to be handed back to Match.Fire after d, on the
// goroutine that owns the match.
type Timers interface {
	Schedule(d time.Duration, t Tick) Cancel
}

// Sink delivers an event to whatever transport a session is bound to.
type Sink interface {
	Send(sessionID string, ev types.ServerEvent)
}

type Settler interface {
	Settle(ctx context.Context, o economy.Outcome) (economy.Receipt, error)
}

// Player is one participant as the hub hands it to a new match.
type Player struct {
	SessionID string
	AccountID string
	Bot       *bot.Agent
	Connected bool
}

// Result is passed to OnEnd once the match has been settled.
type Result struct {
	Winner  engine.Side
	Reason  string
	Receipt economy.Receipt
}

type Config struct {
	ID      string
	Mode    store.Mode
	Players [2]Player
	Pot     int64
	Rules   engine.Rules
	Timers  Timers
	Sink    Sink
	Settler Settler
	Log     *zap.Logger
	Rand    *rand.Rand
	Now     func() time.Time
	OnEnd   func(*Match, Result)
}

type seat struct {
	Player
	hp         int
	draft      engine.Draft
	layout     engine.Layout
	confirmed  bool
	active     bool
	idleRounds int
	lastLayout engine.Layout
}

// Match is one two-seat contest. It is driven by a single goroutine: every
// method, including Fire, must be called from the goroutine that owns it.
type Match struct {
	id      string
	mode    store.Mode
	rules   engine.Rules
	combat  engine.Combat
	timers  Timers
	sink    Sink
	settler Settler
	log     *zap.Logger
	rng     *rand.Rand
	now     func() time.Time
	onEnd   func(*Match, Result)

	seats       [2]*seat
	round       int
	suddenDeath bool
	phase       Phase
	pot         int64
	paused      bool
	pauseReason string
	step        int
	deadline    time.Time
	generation  uint64

	prepCancel Cancel
	stepCancel Cancel
	botCancel  [2]Cancel
}

func New(cfg Config) *Match {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	m := &Match{
		id:      cfg.ID,
		mode:    cfg.Mode,
		rules:   cfg.Rules,
		combat:  cfg.Rules.Combat(),
		timers:  cfg.Timers,
		sink:    cfg.Sink,
		settler: cfg.Settler,
		log:     cfg.Log.With(zap.String("match_id", cfg.ID)),
		rng:     cfg.Rand,
		now:     cfg.Now,
		onEnd:   cfg.OnEnd,
		pot:     cfg.Pot,
		step:    -1,
	}
	for i, p := range cfg.Players {
		m.seats[i] = &seat{Player: p, hp: cfg.Rules.StartHP}
	}
	return m
}

// Start enters the first PREP phase.
func (m *Match) Start() {
	m.round = 1
	m.log.Info("match started",
		zap.String("mode", string(m.mode)),
		zap.String("a", m.seats[0].AccountID),
		zap.String("b", m.seats[1].AccountID),
		zap.Int64("pot", m.pot))
	m.enterPrep()
}

func (m *Match) ID() string          { return m.id }
func (m *Match) Mode() store.Mode    { return m.mode }
func (m *Match) Phase() Phase        { return m.phase }
func (m *Match) Round() int          { return m.round }
func (m *Match) SuddenDeath() bool   { return m.suddenDeath }
func (m *Match) Paused() bool        { return m.paused }
func (m *Match) PauseReason() string { return m.pauseReason }
func (m *Match) Step() int           { return m.step }
func (m *Match) Pot() int64          { return m.pot }
func (m *Match) Generation() uint64  { return m.generation }
func (m *Match) Deadline() time.Time { return m.deadline }

func (m *Match) HP() (int, int) { return m.seats[0].hp, m.seats[1].hp }

func (m *Match) Players() [2]Player {
	return [2]Player{m.seats[0].Player, m.seats[1].Player}
}

// SideOf returns the seat sessionID occupies.
func (m *Match) SideOf(sessionID string) (engine.Side, bool) {
	for i, s := range m.seats {
		if s.SessionID == sessionID {
			return engine.Side(i), true
		}
	}
	return engine.SideNone, false
}

// Draft records an advisory, possibly partial layout. It never advances the
// phase.
func (m *Match) Draft(sessionID string, cards []engine.Card) error {
	side, ok := m.SideOf(sessionID)
	if !ok {
		return ErrNotSeated
	}
	if m.phase != PhasePrep {
		return ErrWrongPhase
	}
	s := m.seats[side]
	if s.confirmed {
		return ErrAlreadyConfirmed
	}
	d, err := engine.NewDraft(cards, m.rules.Hand)
	if err != nil {
		return err
	}
	s.draft = d
	s.active = true
	return nil
}

// Confirm locks in a full layout. Once both seats have confirmed the reveal
// starts immediately.
func (m *Match) Confirm(sessionID string, cards []engine.Card) error {
	side, ok := m.SideOf(sessionID)
	if !ok {
		return ErrNotSeated
	}
	if m.phase != PhasePrep {
		return ErrWrongPhase
	}
	if m.seats[side].confirmed {
		return ErrAlreadyConfirmed
	}
	l, err := engine.NewLayout(cards, m.rules.Hand)
	if err != nil {
		return err
	}
	m.send(side, types.ConfirmOK{})
	m.confirm(side, l)
	return nil
}

func (m *Match) confirm(side engine.Side, l engine.Layout) {
	s := m.seats[side]
	s.layout = l
	s.confirmed = true
	s.active = true

	if m.seats[0].confirmed && m.seats[1].confirmed {
		m.closePrep()
		m.beginReveal()
	}
}

// Fire delivers a scheduled tick. Ticks from an older generation, or for a
// match that has ended, are dropped.
func (m *Match) Fire(t Tick) bool {
	if m.phase == PhaseEnd || t.Generation != m.generation {
		m.log.Debug("stale tick dropped", zap.Int("kind", int(t.Kind)), zap.Uint64("gen", t.Generation), zap.Uint64("current", m.generation))
		return false
	}

	switch t.Kind {
	case TickPrepDeadline:
		if m.phase != PhasePrep {
			return false
		}
		m.prepCancel = nil
		m.onDeadline()
	case TickRevealStep:
		if m.phase != PhaseReveal || m.paused || t.Step != m.step {
			return false
		}
		m.stepCancel = nil
		m.revealStep()
	case TickBotConfirm:
		if m.phase != PhasePrep || t.Step < 0 || t.Step > 1 {
			return false
		}
		m.botCancel[t.Step] = nil
		m.botConfirm(engine.Side(t.Step))
	default:
		return false
	}
	return true
}

func (m *Match) enterPrep() {
	m.phase = PhasePrep
	m.step = -1
	m.generation++
	for _, s := range m.seats {
		s.draft = engine.Draft{}
		s.layout = engine.Layout{}
		s.confirmed = false
		s.active = false
	}

	m.deadline = m.now().Add(m.rules.PrepWindow)
	m.prepCancel = m.timers.Schedule(m.rules.PrepWindow, m.tick(TickPrepDeadline, 0))

	for i := range m.seats {
		m.send(engine.Side(i), m.prepStart(engine.Side(i)))
	}

	for i, s := range m.seats {
		if s.Bot == nil {
			continue
		}
		if m.rules.BotThinkDelay > 0 {
			m.botCancel[i] = m.timers.Schedule(m.rules.BotThinkDelay, m.tick(TickBotConfirm, i))
			continue
		}
		m.botConfirm(engine.Side(i))
	}
}

func (m *Match) botConfirm(side engine.Side) {
	s := m.seats[side]
	if s.Bot == nil || s.confirmed {
		return
	}
	opp := m.seats[side.Other()]
	l := s.Bot.ChooseLayout(bot.View{
		Hand:    m.rules.Hand,
		HP:      s.hp,
		OppHP:   opp.hp,
		MaxHP:   m.rules.MaxHP,
		OppLast: opp.lastLayout,
	})
	m.confirm(side, l)
}

// onDeadline closes PREP when the window runs out. Seats that stayed idle for
// too many consecutive rounds forfeit. Any other unconfirmed seat keeps its
// draft and has only the empty slots filled at random.
func (m *Match) onDeadline() {
	m.closePrep()

	idleA := m.seats[0].idleRounds >= m.rules.AFKRoundLimit
	idleB := m.seats[1].idleRounds >= m.rules.AFKRoundLimit
	switch {
	case idleA && idleB:
		m.finish(engine.SideNone, economy.ReasonTimeout)
		return
	case idleA:
		m.finish(engine.SideB, economy.ReasonTimeout)
		return
	case idleB:
		m.finish(engine.SideA, economy.ReasonTimeout)
		return
	}

	for i, s := range m.seats {
		if s.confirmed {
			continue
		}
		s.layout = engine.CompleteDraft(m.rng, s.draft, m.rules.Hand)
		s.confirmed = true
		m.log.Debug("layout synthesized at deadline", zap.Int("seat", i), zap.Strings("layout", s.layout.Strings()))
	}
	m.beginReveal()
}

func (m *Match) closePrep() {
	cancel(&m.prepCancel)
	for i := range m.botCancel {
		cancel(&m.botCancel[i])
	}
	for _, s := range m.seats {
		if s.active || s.Bot != nil {
			s.idleRounds = 0
		} else {
			s.idleRounds++
		}
	}
}

func (m *Match) beginReveal() {
	m.phase = PhaseReveal
	m.step = 0
	m.generation++
	if !m.allConnected() {
		m.paused = true
		m.pauseReason = PauseDisconnect
		m.log.Info("reveal held until both players are connected")
		return
	}
	m.scheduleStep(m.rules.FirstStepDelay)
}

func (m *Match) scheduleStep(d time.Duration) {
	m.stepCancel = m.timers.Schedule(d, m.tick(TickRevealStep, m.step))
}

func (m *Match) revealStep() {
	a, b := m.seats[0], m.seats[1]
	cardA, cardB := a.layout[m.step], b.layout[m.step]
	a.hp, b.hp = m.combat.Resolve(cardA, cardB, a.hp, b.hp)

	for i := range m.seats {
		side := engine.Side(i)
		own, opp := m.seats[side], m.seats[side.Other()]
		m.send(side, types.StepReveal{
			RoundIndex: m.round,
			StepIndex:  m.step,
			YourCard:   string(own.layout[m.step]),
			OppCard:    string(opp.layout[m.step]),
			YourHP:     own.hp,
			OppHP:      opp.hp,
		})
	}

	m.step++
	if m.step < engine.LayoutSize {
		m.scheduleStep(m.rules.StepDelay)
		return
	}
	m.finishRound()
}

func (m *Match) finishRound() {
	a, b := m.seats[0], m.seats[1]
	for _, s := range m.seats {
		s.lastLayout = s.layout
	}

	verdict := m.rules.JudgeRound(m.round, a.hp, b.hp)
	if verdict == engine.VerdictSuddenDeath && !m.suddenDeath {
		m.suddenDeath = true
		m.log.Info("sudden death", zap.Int("round", m.round), zap.Int("hp", a.hp))
	}

	for i := range m.seats {
		side := engine.Side(i)
		m.send(side, types.RoundEnd{
			RoundIndex:  m.round,
			SuddenDeath: m.suddenDeath,
			YourHP:      m.seats[side].hp,
			OppHP:       m.seats[side.Other()].hp,
		})
	}

	if verdict == engine.VerdictMatchOver {
		m.finish(engine.Leader(a.hp, b.hp), economy.ReasonNormal)
		return
	}
	m.round++
	m.enterPrep()
}

// PlayerDisconnected marks sessionID's transport as lost. A reveal in flight
// is paused on the current step until every seat is connected again.
func (m *Match) PlayerDisconnected(sessionID string, graceDeadline time.Time) {
	side, ok := m.SideOf(sessionID)
	if !ok || m.phase == PhaseEnd {
		return
	}
	m.seats[side].Connected = false
	m.send(side.Other(), types.OpponentDisconnected{GraceDeadlineTs: graceDeadline.UnixMilli()})

	if m.phase == PhaseReveal && !m.paused {
		cancel(&m.stepCancel)
		m.generation++
		m.paused = true
		m.pauseReason = PauseDisconnect
		m.log.Info("reveal paused", zap.String("session_id", sessionID), zap.Int("step", m.step))
	}
}

// SeatConnected reports whether the match still counts sessionID's seat as
// connected. Unknown sessions report false.
func (m *Match) SeatConnected(sessionID string) bool {
	side, ok := m.SideOf(sessionID)
	return ok && m.seats[side].Connected
}

// PlayerReconnected resumes a paused reveal from the step it stopped on once
// both seats are connected.
func (m *Match) PlayerReconnected(sessionID string) {
	side, ok := m.SideOf(sessionID)
	if !ok || m.phase == PhaseEnd {
		return
	}
	m.seats[side].Connected = true
	m.send(side.Other(), types.OpponentReconnected{})

	if m.paused && m.pauseReason == PauseDisconnect && m.allConnected() {
		m.paused = false
		m.pauseReason = ""
		m.generation++
		m.log.Info("reveal resumed", zap.Int("step", m.step))
		m.scheduleStep(m.rules.StepDelay)
	}
}

// Forfeit ends the match against sessionID's seat.
func (m *Match) Forfeit(sessionID, reason string) {
	side, ok := m.SideOf(sessionID)
	if !ok {
		return
	}
	m.finish(side.Other(), reason)
}

// finish is the single way into END. It settles, notifies both seats and
// hands the match back to its owner for removal. Calling it again is a no-op.
func (m *Match) finish(winner engine.Side, reason string) {
	if m.phase == PhaseEnd {
		return
	}
	m.phase = PhaseEnd
	m.generation++
	m.paused = false
	m.step = -1
	cancel(&m.prepCancel)
	cancel(&m.stepCancel)
	for i := range m.botCancel {
		cancel(&m.botCancel[i])
	}

	a, b := m.seats[0], m.seats[1]
	outcome := economy.Outcome{
		MatchID:  m.id,
		Mode:     m.mode,
		Reason:   reason,
		Accounts: [2]string{a.AccountID, b.AccountID},
		Bots:     [2]bool{a.Bot != nil, b.Bot != nil},
		Winner:   winner,
		HP:       [2]int{a.hp, b.hp},
		Rounds:   m.round,
		Pot:      m.pot,
	}

	var receipt economy.Receipt
	if m.settler != nil {
		ctx, done := context.WithTimeout(context.Background(), settleTimeout)
		r, err := m.settler.Settle(ctx, outcome)
		done()
		if err != nil {
			m.log.Error("settle match", zap.Error(err))
		}
		receipt = r
	}

	m.log.Info("match ended",
		zap.String("reason", reason),
		zap.Int("winner", int(winner)),
		zap.Int("round", m.round),
		zap.Int("hp_a", a.hp),
		zap.Int("hp_b", b.hp))

	for i := range m.seats {
		side := engine.Side(i)
		m.send(side, types.MatchEnd{
			MatchID:    m.id,
			Winner:     winnerFor(side, winner),
			YourHP:     m.seats[side].hp,
			OppHP:      m.seats[side.Other()].hp,
			YourTokens: receipt.Tokens[side],
			Reason:     reason,
		})
	}

	if m.onEnd != nil {
		m.onEnd(m, Result{Winner: winner, Reason: reason, Receipt: receipt})
	}
}

// Abort stops every timer without settling; used on shutdown.
func (m *Match) Abort() {
	m.generation++
	cancel(&m.prepCancel)
	cancel(&m.stepCancel)
	for i := range m.botCancel {
		cancel(&m.botCancel[i])
	}
}

func (m *Match) allConnected() bool {
	for _, s := range m.seats {
		if s.Bot == nil && !s.Connected {
			return false
		}
	}
	return true
}

func (m *Match) tick(kind TickKind, step int) Tick {
	return Tick{MatchID: m.id, Kind: kind, Generation: m.generation, Step: step}
}

func (m *Match) send(side engine.Side, ev types.ServerEvent) {
	s := m.seats[side]
	if s.Bot != nil || m.sink == nil {
		return
	}
	m.sink.Send(s.SessionID, ev)
}

func cancel(c *Cancel) {
	if *c != nil {
		(*c)()
		*c = nil
	}
}

func winnerFor(side, winner engine.Side) string {
	switch winner {
	case engine.SideNone:
		return types.WinnerDraw
	case side:
		return types.WinnerYou
	default:
		return types.WinnerOpponent
	}
}
