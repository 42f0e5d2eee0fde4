package consent

import (
	"fmt"
	"strings"
	"sync"
	"time"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
)

// Ledger records informed consent per conversation. Recording is idempotent
// with the earliest timestamp preserved; the ledger never grants consent on
// its own.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]time.Time
}

func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]time.Time)}
}

// Record stores consent for the conversation and returns the effective
// timestamp. A repeat call keeps the earlier of the two timestamps.
func (l *Ledger) Record(conversationID string, at time.Time) (time.Time, error) {
	if strings.TrimSpace(conversationID) == "" {
		return time.Time{}, fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}
	at = at.UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.records[conversationID]; ok {
		if existing.Before(at) {
			return existing, nil
		}
	}
	l.records[conversationID] = at
	return at, nil
}

func (l *Ledger) Has(conversationID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[conversationID]
	return ok
}

// RecordedAt returns the consent timestamp, if any.
func (l *Ledger) RecordedAt(conversationID string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	at, ok := l.records[conversationID]
	return at, ok
}

// Require fails with ErrConsentRequired when no consent is on file. Callers
// performing consent-gated actions check this before acting.
func (l *Ledger) Require(conversationID string) error {
	if !l.Has(conversationID) {
		return fmt.Errorf("%w: conversation %s", contractx.ErrConsentRequired, conversationID)
	}
	return nil
}
