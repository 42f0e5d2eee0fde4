package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
)

var ErrNotFound = errors.New("conversation not found")

// Store is the persistence contract for conversations. Save performs an
// optimistic version check: it fails with ErrStaleWrite when the loaded
// version was superseded, and increments the version on success.
type Store interface {
	Load(ctx context.Context, id string) (*Conversation, error)
	Save(ctx context.Context, c *Conversation) error
	Delete(ctx context.Context, id string) error
	// ListActive returns every conversation not in a terminal stage. Used by
	// the inactivity sweep, never on the message-handling hot path.
	ListActive(ctx context.Context) ([]*Conversation, error)
}

// MemoryStore is an in-process Store for tests and single-node deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Conversation)}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, ErrInvalidID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, c *Conversation) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[c.ID]
	if ok && stored.Version != c.Version {
		return fmt.Errorf("%w: conversation %s version %d superseded by %d",
			contractx.ErrStaleWrite, c.ID, c.Version, stored.Version)
	}

	cp := c.Clone()
	cp.Version++
	s.items[c.ID] = cp
	c.Version = cp.Version
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Conversation
	for _, c := range s.items {
		if !c.Stage.Terminal() {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}
