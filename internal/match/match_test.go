package match

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/card-duel-backend/internal/bot"
	"github.com/DoyleJ11/card-duel-backend/internal/economy"
	"github.com/DoyleJ11/card-duel-backend/internal/engine"
	"github.com/DoyleJ11/card-duel-backend/internal/store"
	"github.com/DoyleJ11/card-duel-backend/internal/store/memory"
	"github.com/DoyleJ11/card-duel-backend/pkg/types"
)

var (
	A, D, H, C = engine.CardAttack, engine.CardDefense, engine.CardHeal, engine.CardCounter
	N          = engine.CardNone
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type scheduled struct {
	d         time.Duration
	tick      Tick
	cancelled bool
	fired     bool
}

// fakeTimers records schedules; tests fire them by hand.
type fakeTimers struct {
	all []*scheduled
}

func (f *fakeTimers) Schedule(d time.Duration, t Tick) Cancel {
	s := &scheduled{d: d, tick: t}
	f.all = append(f.all, s)
	return func() { s.cancelled = true }
}

func (f *fakeTimers) pending(kind TickKind) []*scheduled {
	var out []*scheduled
	for _, s := range f.all {
		if s.tick.Kind == kind && !s.cancelled && !s.fired {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeTimers) last(kind TickKind) *scheduled {
	for i := len(f.all) - 1; i >= 0; i-- {
		if f.all[i].tick.Kind == kind {
			return f.all[i]
		}
	}
	return nil
}

func (f *fakeTimers) fire(t *testing.T, m *Match, kind TickKind) bool {
	t.Helper()
	p := f.pending(kind)
	require.NotEmpty(t, p, "no pending tick of kind %d", kind)
	p[0].fired = true
	return m.Fire(p[0].tick)
}

type recordSink struct {
	events map[string][]types.ServerEvent
}

func (r *recordSink) Send(sessionID string, ev types.ServerEvent) {
	r.events[sessionID] = append(r.events[sessionID], ev)
}

func eventsOf[T types.ServerEvent](r *recordSink, sessionID string) []T {
	var out []T
	for _, ev := range r.events[sessionID] {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	m      *Match
	timers *fakeTimers
	sink   *recordSink
	store  *memory.Store
	ended  []Result
}

func newFixture(t *testing.T, mode store.Mode, players [2]Player, tweak func(*engine.Rules)) *fixture {
	t.Helper()
	rules := engine.DefaultRules()
	if tweak != nil {
		tweak(&rules)
	}

	f := &fixture{
		timers: &fakeTimers{},
		sink:   &recordSink{events: map[string][]types.ServerEvent{}},
		store:  memory.New(),
	}
	for _, p := range players {
		if p.Bot == nil {
			f.store.Seed(p.AccountID, 100)
		}
	}

	settle := economy.New(f.store, rules.EntryStake, zap.NewNop())
	pot, err := settle.Charge(context.Background(), "m1", mode, [2]string{players[0].AccountID, players[1].AccountID})
	require.NoError(t, err)

	f.m = New(Config{
		ID:      "m1",
		Mode:    mode,
		Players: players,
		Pot:     pot,
		Rules:   rules,
		Timers:  f.timers,
		Sink:    f.sink,
		Settler: settle,
		Log:     zap.NewNop(),
		Rand:    rand.New(rand.NewSource(3)),
		Now:     func() time.Time { return epoch },
		OnEnd:   func(_ *Match, r Result) { f.ended = append(f.ended, r) },
	})
	f.m.Start()
	return f
}

func humans() [2]Player {
	return [2]Player{
		{SessionID: "s-a", AccountID: "acc-a", Connected: true},
		{SessionID: "s-b", AccountID: "acc-b", Connected: true},
	}
}

func (f *fixture) playRound(t *testing.T, a, b []engine.Card) {
	t.Helper()
	require.NoError(t, f.m.Confirm("s-a", a))
	require.NoError(t, f.m.Confirm("s-b", b))
	for i := 0; i < engine.LayoutSize; i++ {
		require.True(t, f.timers.fire(t, f.m, TickRevealStep))
	}
}

func (f *fixture) idleRound(t *testing.T) {
	t.Helper()
	require.True(t, f.timers.fire(t, f.m, TickPrepDeadline))
	if f.m.Phase() != PhaseReveal {
		return
	}
	for i := 0; i < engine.LayoutSize; i++ {
		require.True(t, f.timers.fire(t, f.m, TickRevealStep))
	}
}

func TestMatch_StartSendsPrepStart(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)

	assert.Equal(t, PhasePrep, f.m.Phase())
	assert.Equal(t, 1, f.m.Round())
	assert.Equal(t, int64(20), f.m.Pot())

	for _, id := range []string{"s-a", "s-b"} {
		ps := eventsOf[types.PrepStart](f.sink, id)
		require.Len(t, ps, 1)
		assert.Equal(t, 1, ps[0].RoundIndex)
		assert.False(t, ps[0].SuddenDeath)
		assert.Equal(t, epoch.Add(20*time.Second).UnixMilli(), ps[0].DeadlineTs)
		assert.Equal(t, 10, ps[0].YourHP)
		assert.Equal(t, []string{"ATTACK", "DEFENSE", "HEAL", "COUNTER"}, ps[0].Cards)
	}

	deadline := f.timers.pending(TickPrepDeadline)
	require.Len(t, deadline, 1)
	assert.Equal(t, 20*time.Second, deadline[0].d)
}

func TestMatch_EarlyConfirmSkipsDeadline(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)
	deadline := f.timers.last(TickPrepDeadline)

	require.NoError(t, f.m.Confirm("s-a", []engine.Card{A, D, H}))
	assert.Equal(t, PhasePrep, f.m.Phase())
	require.NoError(t, f.m.Confirm("s-b", []engine.Card{C, A, D}))

	assert.Equal(t, PhaseReveal, f.m.Phase())
	assert.Equal(t, 0, f.m.Step())
	assert.True(t, deadline.cancelled)
	assert.False(t, f.m.Fire(deadline.tick), "deadline from the closed PREP must be ignored")

	step := f.timers.pending(TickRevealStep)
	require.Len(t, step, 1)
	assert.Equal(t, 600*time.Millisecond, step[0].d)

	assert.Len(t, eventsOf[types.ConfirmOK](f.sink, "s-a"), 1)
	assert.Len(t, eventsOf[types.ConfirmOK](f.sink, "s-b"), 1)
}

func TestMatch_RevealStepsAndRoundEnd(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)
	f.playRound(t, []engine.Card{A, D, H}, []engine.Card{A, A, C})

	steps := eventsOf[types.StepReveal](f.sink, "s-b")
	require.Len(t, steps, 3)
	assert.Equal(t, types.StepReveal{RoundIndex: 1, StepIndex: 0, YourCard: "ATTACK", OppCard: "ATTACK", YourHP: 8, OppHP: 8}, steps[0])
	assert.Equal(t, types.StepReveal{RoundIndex: 1, StepIndex: 1, YourCard: "ATTACK", OppCard: "DEFENSE", YourHP: 8, OppHP: 8}, steps[1])
	assert.Equal(t, types.StepReveal{RoundIndex: 1, StepIndex: 2, YourCard: "COUNTER", OppCard: "HEAL", YourHP: 8, OppHP: 9}, steps[2])

	re := eventsOf[types.RoundEnd](f.sink, "s-a")
	require.Len(t, re, 1)
	assert.Equal(t, types.RoundEnd{RoundIndex: 1, YourHP: 9, OppHP: 8}, re[0])

	// next round opens with HP carried over
	assert.Equal(t, PhasePrep, f.m.Phase())
	assert.Equal(t, 2, f.m.Round())
	ps := eventsOf[types.PrepStart](f.sink, "s-a")
	require.Len(t, ps, 2)
	assert.Equal(t, 9, ps[1].YourHP)
	assert.Equal(t, 8, ps[1].OppHP)

	second := f.timers.pending(TickRevealStep)
	assert.Empty(t, second)
}

func TestMatch_StepDelays(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)
	require.NoError(t, f.m.Confirm("s-a", []engine.Card{A, D, H}))
	require.NoError(t, f.m.Confirm("s-b", []engine.Card{A, D, H}))

	require.True(t, f.timers.fire(t, f.m, TickRevealStep))
	next := f.timers.pending(TickRevealStep)
	require.Len(t, next, 1)
	assert.Equal(t, 1400*time.Millisecond, next[0].d)
	assert.Equal(t, 1, next[0].tick.Step)
}

func TestMatch_ConfirmRejections(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)

	assert.ErrorIs(t, f.m.Confirm("s-a", []engine.Card{A, A, H}), engine.ErrDuplicateCard)
	assert.ErrorIs(t, f.m.Confirm("s-a", []engine.Card{A, H}), engine.ErrInvalidLayout)
	assert.ErrorIs(t, f.m.Confirm("ghost", []engine.Card{A, D, H}), ErrNotSeated)

	require.NoError(t, f.m.Confirm("s-a", []engine.Card{A, D, H}))
	assert.ErrorIs(t, f.m.Confirm("s-a", []engine.Card{C, D, H}), ErrAlreadyConfirmed)
	assert.ErrorIs(t, f.m.Draft("s-a", []engine.Card{C, N, N}), ErrAlreadyConfirmed)
	assert.Equal(t, []string{"ATTACK", "DEFENSE", "HEAL"}, f.m.Sync("s-a").Layout)

	require.NoError(t, f.m.Confirm("s-b", []engine.Card{A, D, H}))
	assert.ErrorIs(t, f.m.Confirm("s-b", []engine.Card{A, D, H}), ErrWrongPhase)
	assert.ErrorIs(t, f.m.Draft("s-b", []engine.Card{A, N, N}), ErrWrongPhase)
	assert.Len(t, eventsOf[types.ConfirmOK](f.sink, "s-a"), 1)
}

func TestMatch_DeadlineCompletesDraft(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)

	require.NoError(t, f.m.Draft("s-a", []engine.Card{N, C, N}))
	require.NoError(t, f.m.Confirm("s-b", []engine.Card{A, D, H}))
	require.True(t, f.timers.fire(t, f.m, TickPrepDeadline))

	assert.Equal(t, PhaseReveal, f.m.Phase())
	sync := f.m.Sync("s-a")
	require.True(t, sync.Confirmed)
	require.Len(t, sync.Layout, 3)
	assert.Equal(t, "COUNTER", sync.Layout[1])

	cards := engine.CardsFromStrings(sync.Layout)
	_, err := engine.NewLayout(cards, engine.StandardHand)
	assert.NoError(t, err)
}

func TestMatch_BothIdleBurnsPot(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)

	f.idleRound(t)
	assert.Equal(t, 2, f.m.Round())
	f.idleRound(t)

	assert.Equal(t, PhaseEnd, f.m.Phase())
	require.Len(t, f.ended, 1)
	assert.Equal(t, engine.SideNone, f.ended[0].Winner)
	assert.Equal(t, economy.ReasonTimeout, f.ended[0].Reason)
	assert.Equal(t, int64(20), f.ended[0].Receipt.Burned)

	for _, id := range []string{"s-a", "s-b"} {
		me := eventsOf[types.MatchEnd](f.sink, id)
		require.Len(t, me, 1)
		assert.Equal(t, types.WinnerDraw, me[0].Winner)
		assert.Equal(t, "timeout", me[0].Reason)
		assert.Equal(t, int64(90), me[0].YourTokens)
	}
	assert.Empty(t, f.timers.pending(TickPrepDeadline))
	assert.Empty(t, f.timers.pending(TickRevealStep))
}

func TestMatch_OneSideIdleForfeits(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)

	require.NoError(t, f.m.Confirm("s-a", []engine.Card{D, H, C}))
	f.idleRound(t)
	require.NoError(t, f.m.Confirm("s-a", []engine.Card{D, H, C}))
	f.idleRound(t)

	require.Len(t, f.ended, 1)
	assert.Equal(t, engine.SideA, f.ended[0].Winner)
	assert.Equal(t, economy.ReasonTimeout, f.ended[0].Reason)

	meA := eventsOf[types.MatchEnd](f.sink, "s-a")
	require.Len(t, meA, 1)
	assert.Equal(t, types.WinnerYou, meA[0].Winner)
	assert.Equal(t, int64(110), meA[0].YourTokens)

	meB := eventsOf[types.MatchEnd](f.sink, "s-b")
	require.Len(t, meB, 1)
	assert.Equal(t, types.WinnerOpponent, meB[0].Winner)
	assert.Equal(t, int64(90), meB[0].YourTokens)
}

func TestMatch_DraftResetsIdleCount(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), func(r *engine.Rules) {
		r.RoundsBeforeSuddenDeath = 10
	})

	f.idleRound(t)
	require.NoError(t, f.m.Draft("s-a", []engine.Card{H, N, N}))
	require.NoError(t, f.m.Draft("s-b", []engine.Card{N, N, D}))
	f.idleRound(t)
	f.idleRound(t)

	assert.NotEqual(t, PhaseEnd, f.m.Phase())
	assert.Empty(t, f.ended)
}

func TestMatch_DisconnectPausesReveal(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)
	require.NoError(t, f.m.Confirm("s-a", []engine.Card{A, D, H}))
	require.NoError(t, f.m.Confirm("s-b", []engine.Card{A, D, H}))
	require.True(t, f.timers.fire(t, f.m, TickRevealStep))

	inflight := f.timers.last(TickRevealStep)
	grace := epoch.Add(15 * time.Second)
	f.m.PlayerDisconnected("s-b", grace)

	assert.True(t, f.m.Paused())
	assert.Equal(t, 1, f.m.Step())
	assert.True(t, inflight.cancelled)
	assert.False(t, f.m.Fire(inflight.tick))
	assert.Len(t, eventsOf[types.StepReveal](f.sink, "s-a"), 1)

	od := eventsOf[types.OpponentDisconnected](f.sink, "s-a")
	require.Len(t, od, 1)
	assert.Equal(t, grace.UnixMilli(), od[0].GraceDeadlineTs)

	sync := f.m.Sync("s-b")
	assert.True(t, sync.Paused)
	assert.Equal(t, "REVEAL", sync.Phase)
	assert.Equal(t, 1, sync.StepIndex)

	f.m.PlayerReconnected("s-b")
	assert.False(t, f.m.Paused())
	assert.Len(t, eventsOf[types.OpponentReconnected](f.sink, "s-a"), 1)

	resumed := f.timers.pending(TickRevealStep)
	require.Len(t, resumed, 1)
	assert.Equal(t, 1, resumed[0].tick.Step)
	assert.Equal(t, 1400*time.Millisecond, resumed[0].d)

	require.True(t, f.timers.fire(t, f.m, TickRevealStep))
	steps := eventsOf[types.StepReveal](f.sink, "s-a")
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[1].StepIndex)
}

func TestMatch_DisconnectDuringPrepKeepsDeadline(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)
	assert.True(t, f.m.SeatConnected("s-b"))
	f.m.PlayerDisconnected("s-b", epoch.Add(15*time.Second))

	assert.False(t, f.m.SeatConnected("s-b"))
	assert.True(t, f.m.SeatConnected("s-a"))
	assert.False(t, f.m.SeatConnected("nobody"))
	assert.False(t, f.m.Paused())
	require.Len(t, f.timers.pending(TickPrepDeadline), 1)

	// reveal is held at step 0 until the seat comes back
	require.True(t, f.timers.fire(t, f.m, TickPrepDeadline))
	assert.Equal(t, PhaseReveal, f.m.Phase())
	assert.True(t, f.m.Paused())
	assert.Empty(t, f.timers.pending(TickRevealStep))

	f.m.PlayerReconnected("s-b")
	assert.True(t, f.m.SeatConnected("s-b"))
	resumed := f.timers.pending(TickRevealStep)
	require.Len(t, resumed, 1)
	assert.Equal(t, 0, resumed[0].tick.Step)
}

func TestMatch_ForfeitSettlesOnce(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)
	f.m.PlayerDisconnected("s-b", epoch.Add(15*time.Second))

	f.m.Forfeit("s-b", economy.ReasonDisconnect)
	f.m.Forfeit("s-b", economy.ReasonDisconnect)
	f.m.Forfeit("s-a", economy.ReasonDisconnect)

	require.Len(t, f.ended, 1)
	assert.Equal(t, engine.SideA, f.ended[0].Winner)
	assert.Equal(t, economy.ReasonDisconnect, f.ended[0].Reason)
	assert.Len(t, eventsOf[types.MatchEnd](f.sink, "s-a"), 1)

	tokens, err := f.store.GetTokens(context.Background(), "acc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(110), tokens)
	assert.Len(t, f.store.Results(), 1)

	assert.Empty(t, f.timers.pending(TickPrepDeadline))
	assert.ErrorIs(t, f.m.Confirm("s-a", []engine.Card{A, D, H}), ErrWrongPhase)
}

func TestMatch_SuddenDeath(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), func(r *engine.Rules) {
		r.RoundsBeforeSuddenDeath = 1
	})

	f.playRound(t, []engine.Card{A, D, H}, []engine.Card{A, D, H})
	re := eventsOf[types.RoundEnd](f.sink, "s-a")
	require.Len(t, re, 1)
	assert.True(t, re[0].SuddenDeath)
	assert.Equal(t, 9, re[0].YourHP)
	assert.Equal(t, 9, re[0].OppHP)

	require.True(t, f.m.SuddenDeath())
	ps := eventsOf[types.PrepStart](f.sink, "s-b")
	require.Len(t, ps, 2)
	assert.True(t, ps[1].SuddenDeath)

	f.playRound(t, []engine.Card{A, D, H}, []engine.Card{H, D, C})

	require.Len(t, f.ended, 1)
	assert.Equal(t, engine.SideA, f.ended[0].Winner)
	assert.Equal(t, economy.ReasonNormal, f.ended[0].Reason)

	me := eventsOf[types.MatchEnd](f.sink, "s-b")
	require.Len(t, me, 1)
	assert.Equal(t, types.MatchEnd{MatchID: "m1", Winner: types.WinnerOpponent, YourHP: 8, OppHP: 10, YourTokens: 90, Reason: "normal"}, me[0])
	assert.Equal(t, 2, f.m.Round())
}

func TestMatch_DoubleKnockoutIsDraw(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), func(r *engine.Rules) {
		r.StartHP = 2
	})
	f.playRound(t, []engine.Card{A, D, C}, []engine.Card{A, D, C})

	require.Len(t, f.ended, 1)
	assert.Equal(t, engine.SideNone, f.ended[0].Winner)

	// stakes come back on a draw
	for _, acc := range []string{"acc-a", "acc-b"} {
		tokens, err := f.store.GetTokens(context.Background(), acc)
		require.NoError(t, err)
		assert.Equal(t, int64(100), tokens)
	}
	assert.Equal(t, types.WinnerDraw, eventsOf[types.MatchEnd](f.sink, "s-a")[0].Winner)
}

func pve() [2]Player {
	agent := bot.NewAgent(rand.New(rand.NewSource(9)))
	return [2]Player{
		{SessionID: "s-a", AccountID: "acc-a", Connected: true},
		{SessionID: "bot-1", AccountID: agent.AccountID, Bot: agent},
	}
}

func TestMatch_BotConfirmsAtPrepStart(t *testing.T) {
	f := newFixture(t, store.ModePvE, pve(), nil)
	assert.Equal(t, int64(0), f.m.Pot())

	assert.Equal(t, PhasePrep, f.m.Phase())
	require.NoError(t, f.m.Confirm("s-a", []engine.Card{A, D, H}))
	assert.Equal(t, PhaseReveal, f.m.Phase())

	assert.Empty(t, f.sink.events["bot-1"])
}

func TestMatch_BotThinkDelay(t *testing.T) {
	f := newFixture(t, store.ModePvE, pve(), func(r *engine.Rules) {
		r.BotThinkDelay = 2 * time.Second
	})

	think := f.timers.pending(TickBotConfirm)
	require.Len(t, think, 1)
	assert.Equal(t, 1, think[0].tick.Step)

	require.NoError(t, f.m.Confirm("s-a", []engine.Card{A, D, H}))
	assert.Equal(t, PhasePrep, f.m.Phase())
	require.True(t, f.timers.fire(t, f.m, TickBotConfirm))
	assert.Equal(t, PhaseReveal, f.m.Phase())
}

func TestMatch_PvEDoesNotMoveTokens(t *testing.T) {
	f := newFixture(t, store.ModePvE, pve(), nil)
	f.m.Forfeit("bot-1", economy.ReasonDisconnect)

	me := eventsOf[types.MatchEnd](f.sink, "s-a")
	require.Len(t, me, 1)
	assert.Equal(t, types.WinnerYou, me[0].Winner)
	assert.Equal(t, int64(100), me[0].YourTokens)
}

func TestMatch_SyncDuringPrep(t *testing.T) {
	f := newFixture(t, store.ModePvP, humans(), nil)
	sync := f.m.Sync("s-a")

	assert.True(t, sync.InMatch)
	assert.Equal(t, "m1", sync.MatchID)
	assert.Equal(t, "pvp", sync.Mode)
	assert.Equal(t, "PREP", sync.Phase)
	assert.Equal(t, epoch.Add(20*time.Second).UnixMilli(), sync.DeadlineTs)
	assert.Equal(t, -1, sync.StepIndex)
	assert.False(t, sync.Confirmed)
	assert.Nil(t, sync.Layout)
}
