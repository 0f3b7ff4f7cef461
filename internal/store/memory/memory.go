package memory

import (
	"context"
	"sync"

	"github.com/DoyleJ11/card-duel-backend/internal/store"
)

type account struct {
	tokens int64
	rating int
}

// Store is an in-process store.Accounts used for tests and local runs.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*account
	results  map[string]store.MatchResult
}

var _ store.Accounts = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: make(map[string]*account),
		results:  make(map[string]store.MatchResult),
	}
}

// Seed sets an account's balance, creating it if needed.
func (s *Store) Seed(accountID string, tokens int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[accountID]; ok {
		a.tokens = tokens
		return
	}
	s.accounts[accountID] = &account{tokens: tokens, rating: store.DefaultRating}
}

func (s *Store) EnsureAccount(_ context.Context, accountID string, startingTokens int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; ok {
		return false, nil
	}
	s.accounts[accountID] = &account{tokens: startingTokens, rating: store.DefaultRating}
	return true, nil
}

func (s *Store) GetTokens(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	return a.tokens, nil
}

func (s *Store) DeductTokens(_ context.Context, accountID string, amount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return false, store.ErrAccountNotFound
	}
	if a.tokens < amount {
		return false, nil
	}
	a.tokens -= amount
	return true, nil
}

func (s *Store) AddTokens(_ context.Context, accountID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	a.tokens += amount
	return nil
}

func (s *Store) GetRating(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	return a.rating, nil
}

func (s *Store) AddRatingDelta(_ context.Context, accountID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	a.rating = max(a.rating+delta, 0)
	return nil
}

func (s *Store) RecordMatchResult(_ context.Context, r store.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[r.MatchID]; ok {
		return nil
	}
	s.results[r.MatchID] = r
	return nil
}

// Results returns a copy of every recorded match.
func (s *Store) Results() []store.MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.MatchResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	return out
}
