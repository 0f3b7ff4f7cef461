// Package store defines the narrow account persistence port the match core
// talks to. Every mutation is a single atomic operation on the backing store;
// callers never read-then-write a balance.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrAccountNotFound = errors.New("account not found")

// DefaultRating is assigned to accounts on creation.
const DefaultRating = 1000

type Mode string

const (
	ModePvP Mode = "pvp"
	ModePvE Mode = "pve"
)

// MatchResult is the durable record of one finished match. WinnerID and
// LoserID are empty when nobody won (draw or burned pot).
type MatchResult struct {
	MatchID  string
	Mode     Mode
	Reason   string
	WinnerID string
	LoserID  string
	PlayerA  string
	PlayerB  string
	FinalHPA int
	FinalHPB int
	Pot      int64
	Rounds   int
	EndedAt  time.Time
}

type Accounts interface {
	// EnsureAccount creates the account with startingTokens if it does not
	// exist yet. It reports whether a row was created.
	EnsureAccount(ctx context.Context, accountID string, startingTokens int64) (bool, error)
	GetTokens(ctx context.Context, accountID string) (int64, error)
	// DeductTokens debits amount only if the balance covers it. It reports
	// false, with a nil error, on insufficient balance.
	DeductTokens(ctx context.Context, accountID string, amount int64) (bool, error)
	AddTokens(ctx context.Context, accountID string, amount int64) error
	GetRating(ctx context.Context, accountID string) (int, error)
	AddRatingDelta(ctx context.Context, accountID string, delta int) error
	// RecordMatchResult stores r once; repeated calls for the same MatchID
	// are no-ops.
	RecordMatchResult(ctx context.Context, r MatchResult) error
}
