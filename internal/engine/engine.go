package engine

import (
	"errors"
	"slices"
)

var ErrInvalidLayout = errors.New("invalid layout")
var ErrUnknownCard = errors.New("unknown card")
var ErrDuplicateCard = errors.New("duplicate card in layout")
var ErrCardNotInHand = errors.New("card not in hand")

// Card is one of the closed set of combat cards. CardNone is the filler played
// by a slot nobody filled: it deals no damage and blocks nothing.
type Card string

const (
	CardNone    Card = ""
	CardAttack  Card = "ATTACK"
	CardDefense Card = "DEFENSE"
	CardHeal    Card = "HEAL"
	CardCounter Card = "COUNTER"
)

// StandardHand is the 4-card hand dealt every round in the shipped ruleset.
var StandardHand = []Card{CardAttack, CardDefense, CardHeal, CardCounter}

// LayoutSize is the number of slots resolved per round.
const LayoutSize = 3

func ParseCard(s string) (Card, error) {
	switch c := Card(s); c {
	case CardAttack, CardDefense, CardHeal, CardCounter:
		return c, nil
	default:
		return CardNone, ErrUnknownCard
	}
}

// Layout is a confirmed ordering of exactly LayoutSize distinct cards.
type Layout [LayoutSize]Card

// Draft is an advisory layout whose slots may still be CardNone.
type Draft [LayoutSize]Card

func (l Layout) Strings() []string {
	out := make([]string, len(l))
	for i, c := range l {
		out[i] = string(c)
	}
	return out
}

// NewLayout validates a full layout against the hand it was drawn from.
func NewLayout(cards []Card, hand []Card) (Layout, error) {
	var l Layout
	if len(cards) != LayoutSize {
		return l, ErrInvalidLayout
	}
	for i, c := range cards {
		if err := checkSlot(c, hand, l[:i]); err != nil {
			return Layout{}, err
		}
		l[i] = c
	}
	return l, nil
}

// NewDraft validates a partial layout. Empty slots are CardNone.
func NewDraft(cards []Card, hand []Card) (Draft, error) {
	var d Draft
	if len(cards) != LayoutSize {
		return d, ErrInvalidLayout
	}
	for i, c := range cards {
		if c == CardNone {
			continue
		}
		if err := checkSlot(c, hand, d[:i]); err != nil {
			return Draft{}, err
		}
		d[i] = c
	}
	return d, nil
}

func (d Draft) Empty() bool {
	return d == Draft{}
}

func checkSlot(c Card, hand []Card, placed []Card) error {
	if _, err := ParseCard(string(c)); err != nil {
		return err
	}
	if !slices.Contains(hand, c) {
		return ErrCardNotInHand
	}
	if slices.Contains(placed, c) {
		return ErrDuplicateCard
	}
	return nil
}
