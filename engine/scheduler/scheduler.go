package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	eventbusx "github.com/leadflowhq/leadflow/engine/eventbus"
	syncx "github.com/leadflowhq/leadflow/pkg/syncx"
)

// Config holds the scheduler tunables.
type Config struct {
	HoldTTL         time.Duration `split_words:"true" default:"15m"`
	CalendarRetries int           `split_words:"true" default:"3"`
	CalendarBackoff time.Duration `split_words:"true" default:"500ms"`
}

var DefaultConfig = Config{
	HoldTTL:         15 * time.Minute,
	CalendarRetries: 3,
	CalendarBackoff: 500 * time.Millisecond,
}

// Scheduler owns tentative holds: it creates them with an expiry deadline,
// confirms them idempotently against the external calendar, and releases or
// expires them. Operations on the same hold are mutually exclusive; holds of
// distinct conversations proceed independently.
type Scheduler struct {
	store    HoldStore
	bus      *eventbusx.Bus
	calendar contractx.CalendarBackend
	cfg      Config

	locks *syncx.KeyedMutex

	tmu    sync.Mutex
	timers map[string]*time.Timer

	now func() time.Time
}

func New(store HoldStore, bus *eventbusx.Bus, calendar contractx.CalendarBackend, cfg Config) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("hold store is required")
	}
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	if calendar == nil {
		return nil, errors.New("calendar backend is required")
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = DefaultConfig.HoldTTL
	}
	if cfg.CalendarRetries <= 0 {
		cfg.CalendarRetries = DefaultConfig.CalendarRetries
	}
	if cfg.CalendarBackoff <= 0 {
		cfg.CalendarBackoff = DefaultConfig.CalendarBackoff
	}

	return &Scheduler{
		store:    store,
		bus:      bus,
		calendar: calendar,
		cfg:      cfg,
		locks:    syncx.NewKeyedMutex(),
		timers:   make(map[string]*time.Timer),
		now:      time.Now,
	}, nil
}

// RequestHold creates a tentative hold for the conversation. Fails with
// ErrConflict while a pending or confirmed hold exists.
func (s *Scheduler) RequestHold(ctx context.Context, conversationID string, window contractx.Window) (*TentativeHold, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}
	if !window.Valid() {
		return nil, fmt.Errorf("%w: proposed window is empty or inverted", contractx.ErrValidation)
	}

	unlock := s.locks.Lock("conversation:" + conversationID)
	defer unlock()

	existing, err := s.store.ActiveForConversation(ctx, conversationID)
	if err != nil && !errors.Is(err, ErrHoldNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: conversation %s already holds %s (%s)",
			contractx.ErrConflict, conversationID, existing.ID, existing.Status)
	}

	now := s.now().UTC()
	hold := &TentativeHold{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Window:         window,
		Status:         HoldPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.HoldTTL),
	}
	if err := s.store.Save(ctx, hold); err != nil {
		return nil, err
	}

	s.armExpiry(hold.ID, hold.ExpiresAt.Sub(now))
	s.bus.Publish(eventbusx.New(conversationID, eventbusx.KindMeetingTentativelyHeld, eventbusx.MeetingTentativelyHeldPayload{
		HoldID:    hold.ID,
		Window:    hold.Window,
		ExpiresAt: hold.ExpiresAt,
	}, now))

	log.Info().
		Str("conversation_id", conversationID).
		Str("hold_id", hold.ID).
		Time("expires_at", hold.ExpiresAt).
		Msg("tentative hold created")

	return hold.Clone(), nil
}

// Confirm finalizes a hold. Idempotent: confirming an already-confirmed hold
// returns the same result without a second calendar reservation. Confirming
// an expired or released hold fails with ErrHoldNotActive.
func (s *Scheduler) Confirm(ctx context.Context, holdID string) (*TentativeHold, error) {
	unlock := s.locks.Lock("hold:" + holdID)
	defer unlock()

	hold, err := s.store.Load(ctx, holdID)
	if err != nil {
		if errors.Is(err, ErrHoldNotFound) {
			return nil, fmt.Errorf("%w: hold %s", contractx.ErrValidation, holdID)
		}
		return nil, err
	}

	switch hold.Status {
	case HoldExpired, HoldReleased:
		return nil, fmt.Errorf("%w: hold %s is %s", contractx.ErrHoldNotActive, holdID, hold.Status)
	case HoldPending:
		hold.Status = HoldConfirmed
		if err := s.store.Save(ctx, hold); err != nil {
			return nil, err
		}
		s.cancelExpiry(holdID)
	}

	if hold.ReservationRef != "" {
		return hold.Clone(), nil
	}

	// The hold is already confirmed in memory; the calendar call reconciles
	// through the idempotency key, so a retried call cannot double-book.
	ref, err := s.reserveWithRetry(ctx, hold)
	if err != nil {
		s.bus.Publish(eventbusx.New(hold.ConversationID, eventbusx.KindSchedulerDegraded, eventbusx.SchedulerDegradedPayload{
			HoldID: hold.ID,
			Reason: err.Error(),
		}, s.now()))
		log.Error().Err(err).Str("hold_id", hold.ID).Msg("calendar reservation failed")
		return hold.Clone(), fmt.Errorf("%w: calendar reservation for hold %s: %v",
			contractx.ErrCollaboratorUnavailable, hold.ID, err)
	}

	hold.ReservationRef = ref.ID
	if err := s.store.Save(ctx, hold); err != nil {
		return nil, err
	}

	s.bus.Publish(eventbusx.New(hold.ConversationID, eventbusx.KindMeetingConfirmed, eventbusx.MeetingConfirmedPayload{
		HoldID:         hold.ID,
		ReservationRef: hold.ReservationRef,
	}, s.now()))

	log.Info().
		Str("conversation_id", hold.ConversationID).
		Str("hold_id", hold.ID).
		Str("reservation_ref", hold.ReservationRef).
		Msg("meeting confirmed")

	return hold.Clone(), nil
}

// Release cancels a hold explicitly. Valid from pending only.
func (s *Scheduler) Release(ctx context.Context, holdID string) error {
	unlock := s.locks.Lock("hold:" + holdID)
	defer unlock()

	hold, err := s.store.Load(ctx, holdID)
	if err != nil {
		if errors.Is(err, ErrHoldNotFound) {
			return fmt.Errorf("%w: hold %s", contractx.ErrValidation, holdID)
		}
		return err
	}
	if hold.Status != HoldPending {
		return fmt.Errorf("%w: hold %s is %s", contractx.ErrHoldNotActive, holdID, hold.Status)
	}

	hold.Status = HoldReleased
	if err := s.store.Save(ctx, hold); err != nil {
		return err
	}
	s.cancelExpiry(holdID)

	s.bus.Publish(eventbusx.New(hold.ConversationID, eventbusx.KindMeetingReleased, eventbusx.MeetingReleasedPayload{
		HoldID: hold.ID,
	}, s.now()))
	return nil
}

// Close stops all pending expiry timers. Holds persist; a restarted
// scheduler re-arms from the store via Rearm.
func (s *Scheduler) Close() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// Rearm restores expiry timers for every pending hold in the store. Called
// once at startup when the store is durable; holds already past their
// deadline expire immediately.
func (s *Scheduler) Rearm(ctx context.Context) error {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	for _, hold := range pending {
		s.armExpiry(hold.ID, hold.ExpiresAt.Sub(now))
	}
	if len(pending) > 0 {
		log.Info().Int("holds", len(pending)).Msg("expiry timers re-armed")
	}
	return nil
}

func (s *Scheduler) reserveWithRetry(ctx context.Context, hold *TentativeHold) (contractx.ReservationRef, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.CalendarRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return contractx.ReservationRef{}, ctx.Err()
			case <-time.After(s.cfg.CalendarBackoff * time.Duration(attempt)):
			}
		}
		ref, err := s.calendar.Reserve(ctx, hold.ID, hold.Window)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		if !errors.Is(err, contractx.ErrCollaboratorUnavailable) {
			break
		}
	}
	return contractx.ReservationRef{}, lastErr
}

func (s *Scheduler) armExpiry(holdID string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.tmu.Lock()
	defer s.tmu.Unlock()
	s.timers[holdID] = time.AfterFunc(d, func() { s.expire(holdID) })
}

func (s *Scheduler) cancelExpiry(holdID string) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if timer, ok := s.timers[holdID]; ok {
		timer.Stop()
		delete(s.timers, holdID)
	}
}

// expire fires at the deadline. A confirm that won the race has already
// cancelled the timer or flipped the status, so only pending holds expire.
func (s *Scheduler) expire(holdID string) {
	unlock := s.locks.Lock("hold:" + holdID)
	defer unlock()

	ctx := context.Background()
	hold, err := s.store.Load(ctx, holdID)
	if err != nil {
		log.Error().Err(err).Str("hold_id", holdID).Msg("expiry load failed")
		return
	}
	if hold.Status != HoldPending {
		s.cancelExpiry(holdID)
		return
	}

	hold.Status = HoldExpired
	if err := s.store.Save(ctx, hold); err != nil {
		log.Error().Err(err).Str("hold_id", holdID).Msg("expiry save failed")
		return
	}
	s.cancelExpiry(holdID)

	s.bus.Publish(eventbusx.New(hold.ConversationID, eventbusx.KindMeetingExpired, eventbusx.MeetingExpiredPayload{
		HoldID: hold.ID,
	}, s.now()))

	log.Info().
		Str("conversation_id", hold.ConversationID).
		Str("hold_id", hold.ID).
		Msg("tentative hold expired")
}
