package bot

import (
	"math/rand"
	"slices"
	"strings"

	"github.com/DoyleJ11/card-duel-backend/internal/engine"
)

// AccountPrefix marks account ids that belong to bots. Bot accounts never
// exist in the account store.
const AccountPrefix = "bot:"

var names = []string{"rook", "wren", "ember", "flint", "moss", "quill"}

func IsBot(accountID string) bool {
	return strings.HasPrefix(accountID, AccountPrefix)
}

// View is what the bot may see when choosing its layout.
type View struct {
	Hand    []engine.Card
	HP      int
	OppHP   int
	MaxHP   int
	OppLast engine.Layout
}

// Agent picks a layout each round for a PvE seat.
type Agent struct {
	AccountID string
	Name      string
	rng       *rand.Rand
}

func NewAgent(rng *rand.Rand) *Agent {
	name := names[rng.Intn(len(names))]
	return &Agent{AccountID: AccountPrefix + name, Name: name, rng: rng}
}

// ChooseLayout leads with HEAL when hurt, answers an opponent who opened with
// ATTACK last round with COUNTER, and otherwise plays a random ordering.
func (a *Agent) ChooseLayout(v View) engine.Layout {
	var d engine.Draft
	switch {
	case v.HP*2 <= v.MaxHP && slices.Contains(v.Hand, engine.CardHeal):
		d[0] = engine.CardHeal
	case v.OppLast[0] == engine.CardAttack && slices.Contains(v.Hand, engine.CardCounter):
		d[0] = engine.CardCounter
	case v.OppHP <= 2 && slices.Contains(v.Hand, engine.CardAttack):
		d[0] = engine.CardAttack
	}
	return engine.CompleteDraft(a.rng, d, v.Hand)
}
