package engine

// Combat holds the constants the resolver needs.
type Combat struct {
	MaxHP        int
	AttackDamage int
	HealAmount   int
}

// Resolve computes both sides' health after one simultaneous step. hpA and hpB
// must be the pre-step values; heals are applied first, then every attack is
// evaluated against that same snapshot of plays.
func (c Combat) Resolve(a, b Card, hpA, hpB int) (int, int) {
	hpA, hpB = c.clamp(hpA), c.clamp(hpB)

	if a == CardHeal {
		hpA = c.clamp(hpA + c.HealAmount)
	}
	if b == CardHeal {
		hpB = c.clamp(hpB + c.HealAmount)
	}

	dmgA, dmgB := 0, 0
	if a == CardAttack {
		toB, toA := c.attack(b)
		dmgB += toB
		dmgA += toA
	}
	if b == CardAttack {
		toA, toB := c.attack(a)
		dmgA += toA
		dmgB += toB
	}

	return c.clamp(hpA - dmgA), c.clamp(hpB - dmgB)
}

// attack returns the damage dealt to the target and reflected to the attacker
// when the target played target.
func (c Combat) attack(target Card) (toTarget, toAttacker int) {
	switch target {
	case CardDefense:
		return 0, 0
	case CardCounter:
		return 0, c.AttackDamage
	default:
		return c.AttackDamage, 0
	}
}

func (c Combat) clamp(hp int) int {
	if hp < 0 {
		return 0
	}
	if hp > c.MaxHP {
		return c.MaxHP
	}
	return hp
}

// Resolve runs one step under the default ruleset.
func Resolve(a, b Card, hpA, hpB int) (int, int) {
	return DefaultRules().Combat().Resolve(a, b, hpA, hpB)
}
