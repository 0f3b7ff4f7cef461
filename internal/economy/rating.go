package economy

import "math"

const eloK = 24

func eloExpected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// EloDelta is the rating change for a player rated ra who scored score
// (1 win, 0.5 draw, 0 loss) against a player rated rb.
func EloDelta(ra, rb int, score float64) int {
	return int(math.Round(eloK * (score - eloExpected(ra, rb))))
}
