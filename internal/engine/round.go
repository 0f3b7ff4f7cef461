package engine

// Side identifies one of the two seats of a match.
type Side int

const (
	SideNone Side = -1
	SideA    Side = 0
	SideB    Side = 1
)

func (s Side) Other() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	default:
		return SideNone
	}
}

// RoundVerdict is what happens after a round has been fully revealed.
type RoundVerdict int

const (
	VerdictNextRound RoundVerdict = iota
	VerdictSuddenDeath
	VerdictMatchOver
)

// JudgeRound decides whether the match ends after round. A side at zero ends
// it at once; otherwise the match ends after the minimum round count unless
// health is tied, which extends it into sudden death.
func (r Rules) JudgeRound(round, hpA, hpB int) RoundVerdict {
	if hpA <= 0 || hpB <= 0 {
		return VerdictMatchOver
	}
	if round < r.RoundsBeforeSuddenDeath {
		return VerdictNextRound
	}
	if hpA != hpB {
		return VerdictMatchOver
	}
	return VerdictSuddenDeath
}

// Leader returns the side with more health, or SideNone on a tie.
func Leader(hpA, hpB int) Side {
	switch {
	case hpA > hpB:
		return SideA
	case hpB > hpA:
		return SideB
	default:
		return SideNone
	}
}
