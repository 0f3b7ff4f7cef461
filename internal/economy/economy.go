package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/card-duel-backend/internal/engine"
	"github.com/DoyleJ11/card-duel-backend/internal/store"
)

var ErrInsufficientTokens = errors.New("not enough tokens")

// Reasons a match can end with.
const (
	ReasonNormal     = "normal"
	ReasonDisconnect = "disconnect"
	ReasonTimeout    = "timeout"
)

// ChargeError names the account whose stake could not be taken.
type ChargeError struct {
	AccountID string
	Err       error
}

func (e *ChargeError) Error() string {
	return fmt.Sprintf("charge %s: %v", e.AccountID, e.Err)
}

func (e *ChargeError) Unwrap() error { return e.Err }

// Outcome describes a finished match for settlement. Winner is SideNone for a
// draw or a burned pot.
type Outcome struct {
	MatchID  string
	Mode     store.Mode
	Reason   string
	Accounts [2]string
	Bots     [2]bool
	Winner   engine.Side
	HP       [2]int
	Rounds   int
	Pot      int64
}

// Receipt is what settlement did, per seat.
type Receipt struct {
	Tokens      [2]int64
	Paid        [2]int64
	Burned      int64
	RatingDelta [2]int
}

type chargeKey struct {
	matchID   string
	accountID string
}

// Settlement charges entry stakes and pays out pots. It is not safe for
// concurrent use; the hub goroutine is its only caller.
type Settlement struct {
	accounts store.Accounts
	stake    int64
	log      *zap.Logger
	now      func() time.Time

	charged map[chargeKey]bool
	settled map[string]Receipt
}

func New(accounts store.Accounts, stake int64, log *zap.Logger) *Settlement {
	return &Settlement{
		accounts: accounts,
		stake:    stake,
		log:      log,
		now:      time.Now,
		charged:  make(map[chargeKey]bool),
		settled:  make(map[string]Receipt),
	}
}

func (s *Settlement) Stake() int64 { return s.stake }

// CanAfford reports whether accountID holds at least one entry stake.
func (s *Settlement) CanAfford(ctx context.Context, accountID string) (int64, bool, error) {
	tokens, err := s.accounts.GetTokens(ctx, accountID)
	if err != nil {
		return 0, false, err
	}
	return tokens, tokens >= s.stake, nil
}

// Charge debits the entry stake from both accounts for matchID and returns
// the pot. Either both debits stand or neither does. Charging the same
// account for the same match twice only bills it once. PvE matches are free.
func (s *Settlement) Charge(ctx context.Context, matchID string, mode store.Mode, accounts [2]string) (int64, error) {
	if mode != store.ModePvP {
		return 0, nil
	}

	for _, acc := range accounts {
		key := chargeKey{matchID: matchID, accountID: acc}
		if s.charged[key] {
			continue
		}
		ok, err := s.accounts.DeductTokens(ctx, acc, s.stake)
		if err == nil && !ok {
			err = ErrInsufficientTokens
		}
		if err != nil {
			return 0, multierr.Append(&ChargeError{AccountID: acc, Err: err}, s.refund(ctx, matchID, accounts))
		}
		s.charged[key] = true
	}
	return s.stake * int64(len(accounts)), nil
}

func (s *Settlement) refund(ctx context.Context, matchID string, accounts [2]string) error {
	var errs error
	for _, acc := range accounts {
		key := chargeKey{matchID: matchID, accountID: acc}
		if !s.charged[key] {
			continue
		}
		if err := s.accounts.AddTokens(ctx, key.accountID, s.stake); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refund %s: %w", key.accountID, err))
			continue
		}
		delete(s.charged, key)
	}
	return errs
}

// Settle pays out or burns the pot, applies the rating change and records
// the result. A match is settled at most once; later calls return the first
// receipt.
func (s *Settlement) Settle(ctx context.Context, o Outcome) (Receipt, error) {
	if r, ok := s.settled[o.MatchID]; ok {
		return r, nil
	}
	// Marked before any mutation so a failure half way cannot lead to a
	// second payout.
	s.settled[o.MatchID] = Receipt{}

	log := s.log.With(zap.String("match_id", o.MatchID), zap.String("reason", o.Reason))
	var r Receipt
	var errs error

	if o.Mode == store.ModePvP {
		r, errs = s.payout(ctx, o)
		errs = multierr.Append(errs, s.rate(ctx, o, &r))
	}

	errs = multierr.Append(errs, s.accounts.RecordMatchResult(ctx, s.result(o)))

	for i, acc := range o.Accounts {
		if o.Bots[i] {
			continue
		}
		tokens, err := s.accounts.GetTokens(ctx, acc)
		errs = multierr.Append(errs, err)
		r.Tokens[i] = tokens
	}

	s.settled[o.MatchID] = r

	if errs != nil {
		log.Error("settlement incomplete", zap.Error(errs))
	} else {
		log.Info("match settled",
			zap.Int64("pot", o.Pot),
			zap.Int64s("paid", r.Paid[:]),
			zap.Int64("burned", r.Burned))
	}
	return r, errs
}

// Forget drops the bookkeeping for a match that has left the live registry
// and can no longer be charged or settled.
func (s *Settlement) Forget(matchID string, accounts [2]string) {
	delete(s.settled, matchID)
	for _, acc := range accounts {
		delete(s.charged, chargeKey{matchID: matchID, accountID: acc})
	}
}

func (s *Settlement) payout(ctx context.Context, o Outcome) (Receipt, error) {
	var r Receipt
	switch {
	case o.Winner != engine.SideNone:
		r.Paid[o.Winner] = o.Pot
	case o.Reason == ReasonTimeout:
		// Nobody played: the pot is burned.
		r.Burned = o.Pot
		return r, nil
	default:
		r.Paid[0] = o.Pot / 2
		r.Paid[1] = o.Pot - o.Pot/2
	}

	var errs error
	for i, amount := range r.Paid {
		if amount == 0 {
			continue
		}
		if err := s.accounts.AddTokens(ctx, o.Accounts[i], amount); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("pay %s: %w", o.Accounts[i], err))
		}
	}
	return r, errs
}

func (s *Settlement) rate(ctx context.Context, o Outcome, r *Receipt) error {
	if o.Winner == engine.SideNone && o.Reason == ReasonTimeout {
		return nil
	}
	ra, err := s.accounts.GetRating(ctx, o.Accounts[0])
	if err != nil {
		return err
	}
	rb, err := s.accounts.GetRating(ctx, o.Accounts[1])
	if err != nil {
		return err
	}

	scoreA := 0.5
	switch o.Winner {
	case engine.SideA:
		scoreA = 1
	case engine.SideB:
		scoreA = 0
	}
	r.RatingDelta[0] = EloDelta(ra, rb, scoreA)
	r.RatingDelta[1] = EloDelta(rb, ra, 1-scoreA)

	return multierr.Combine(
		s.accounts.AddRatingDelta(ctx, o.Accounts[0], r.RatingDelta[0]),
		s.accounts.AddRatingDelta(ctx, o.Accounts[1], r.RatingDelta[1]),
	)
}

func (s *Settlement) result(o Outcome) store.MatchResult {
	res := store.MatchResult{
		MatchID:  o.MatchID,
		Mode:     o.Mode,
		Reason:   o.Reason,
		PlayerA:  o.Accounts[0],
		PlayerB:  o.Accounts[1],
		FinalHPA: o.HP[0],
		FinalHPB: o.HP[1],
		Pot:      o.Pot,
		Rounds:   o.Rounds,
		EndedAt:  s.now(),
	}
	if o.Winner != engine.SideNone {
		res.WinnerID = o.Accounts[o.Winner]
		res.LoserID = o.Accounts[o.Winner.Other()]
	}
	return res
}
