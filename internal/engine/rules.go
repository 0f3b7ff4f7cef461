package engine

import "time"

// Rules are the fixed constants a match runs under. They are set once at
// process start and never negotiated with clients.
type Rules struct {
	PrepWindow     time.Duration
	FirstStepDelay time.Duration
	StepDelay      time.Duration
	ReconnectGrace time.Duration
	BotThinkDelay  time.Duration

	RoundsBeforeSuddenDeath int
	// AFKRoundLimit is how many consecutive idle rounds a side may accumulate
	// before the match is forfeited instead of played out with a random layout.
	AFKRoundLimit int

	EntryStake int64

	MaxHP        int
	StartHP      int
	AttackDamage int
	HealAmount   int

	Hand []Card
}

func DefaultRules() Rules {
	return Rules{
		PrepWindow:              20 * time.Second,
		FirstStepDelay:          600 * time.Millisecond,
		StepDelay:               1400 * time.Millisecond,
		ReconnectGrace:          15 * time.Second,
		RoundsBeforeSuddenDeath: 3,
		AFKRoundLimit:           2,
		EntryStake:              10,
		MaxHP:                   10,
		StartHP:                 10,
		AttackDamage:            2,
		HealAmount:              1,
		Hand:                    StandardHand,
	}
}

func (r Rules) Combat() Combat {
	return Combat{MaxHP: r.MaxHP, AttackDamage: r.AttackDamage, HealAmount: r.HealAmount}
}
