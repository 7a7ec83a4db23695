package ledger

import (
	"context"
	"sync"

	"presentos/internal/model"
)

// MemoryStore 进程内账本
type MemoryStore struct {
	mu      sync.Mutex
	balance model.ExperienceBalance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (model.ExperienceBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, expected int64, next model.ExperienceBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance.Version != expected {
		return ErrLedgerConflict
	}
	s.balance = next
	return nil
}
