package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
)

var ErrHoldNotFound = errors.New("hold not found")

// HoldStore is the persistence contract for tentative holds. Save performs
// an optimistic version check mirroring the conversation store.
type HoldStore interface {
	Load(ctx context.Context, id string) (*TentativeHold, error)
	Save(ctx context.Context, h *TentativeHold) error
	// ActiveForConversation returns the pending or confirmed hold for the
	// conversation, or ErrHoldNotFound.
	ActiveForConversation(ctx context.Context, conversationID string) (*TentativeHold, error)
	// ListPending returns every hold still in the pending status, so a
	// restarted scheduler can re-arm their expiry timers.
	ListPending(ctx context.Context) ([]*TentativeHold, error)
}

// MemoryHoldStore is an in-process HoldStore.
type MemoryHoldStore struct {
	mu    sync.RWMutex
	items map[string]*TentativeHold
}

func NewMemoryHoldStore() *MemoryHoldStore {
	return &MemoryHoldStore{items: make(map[string]*TentativeHold)}
}

func (s *MemoryHoldStore) Load(ctx context.Context, id string) (*TentativeHold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.items[id]
	if !ok {
		return nil, ErrHoldNotFound
	}
	return h.Clone(), nil
}

func (s *MemoryHoldStore) Save(ctx context.Context, h *TentativeHold) error {
	if h == nil || h.ID == "" {
		return fmt.Errorf("%w: hold id is empty", contractx.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[h.ID]
	if ok && stored.Version != h.Version {
		return fmt.Errorf("%w: hold %s version %d superseded by %d",
			contractx.ErrStaleWrite, h.ID, h.Version, stored.Version)
	}

	cp := h.Clone()
	cp.Version++
	s.items[h.ID] = cp
	h.Version = cp.Version
	return nil
}

func (s *MemoryHoldStore) ActiveForConversation(ctx context.Context, conversationID string) (*TentativeHold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range s.items {
		if h.ConversationID == conversationID && h.Active() {
			return h.Clone(), nil
		}
	}
	return nil, ErrHoldNotFound
}

func (s *MemoryHoldStore) ListPending(ctx context.Context) ([]*TentativeHold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*TentativeHold
	for _, h := range s.items {
		if h.Status == HoldPending {
			pending = append(pending, h.Clone())
		}
	}
	return pending, nil
}
