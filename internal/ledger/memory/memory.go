// Package memory is an in-process ledger, optionally seeded from a YAML file.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"flusso/internal/core"
	"flusso/internal/ledger"
)

type Store struct {
	mu       sync.RWMutex
	accounts []core.Account
	txs      []core.Transaction
	rules    []core.RecurringRule
	nextID   int64
	version  int64
}

func New() *Store {
	return &Store{nextID: 1, version: 1}
}

// NewFromFile seeds a store from the YAML ledger at path.
func NewFromFile(path string) (*Store, error) {
	doc, err := ledger.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	contents, err := doc.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewFromContents(contents), nil
}

// NewFromContents seeds a store without validating entries. Bad dates or
// kinds are left for the projector to skip.
func NewFromContents(c ledger.Contents) *Store {
	s := New()
	for _, a := range c.Accounts {
		a.ID = s.allocID()
		s.accounts = append(s.accounts, a)
	}
	for _, t := range c.Transactions {
		t.ID = s.allocID()
		s.txs = append(s.txs, t)
	}
	for _, r := range c.Rules {
		r.ID = s.allocID()
		s.rules = append(s.rules, r)
	}
	return s
}

func (s *Store) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// Snapshot returns copies of the current ledger contents.
func (s *Store) Snapshot(_ context.Context) (ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var balance int64
	for _, a := range s.accounts {
		balance += a.Balance.Cents
	}
	return ledger.Snapshot{
		Balance:      core.Money{Cents: balance},
		Transactions: slices.Clone(s.txs),
		Rules:        slices.Clone(s.rules),
		Version:      s.version,
	}, nil
}

func (s *Store) UpsertAccount(_ context.Context, a core.Account) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	for i := range s.accounts {
		if s.accounts[i].Name == a.Name {
			s.accounts[i].Balance = a.Balance
			return s.accounts[i].ID, nil
		}
	}
	a.ID = s.allocID()
	s.accounts = append(s.accounts, a)
	return a.ID, nil
}

func (s *Store) AddTransaction(_ context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	t.ID = s.allocID()
	s.txs = append(s.txs, t)
	return t.ID, nil
}

func (s *Store) AddRule(_ context.Context, r core.RecurringRule) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	r.ID = s.allocID()
	s.rules = append(s.rules, r)
	return r.ID, nil
}

func (s *Store) DeleteRule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.rules, func(r core.RecurringRule) bool { return r.ID == id })
	if i < 0 {
		return fmt.Errorf("rule %d: %w", id, ledger.ErrNotFound)
	}
	s.rules = slices.Delete(s.rules, i, i+1)
	s.version++
	return nil
}

// Accounts returns a copy of the stored accounts.
func (s *Store) Accounts() []core.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.accounts)
}

var _ ledger.Store = (*Store)(nil)
