package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	consentx "github.com/leadflowhq/leadflow/engine/consent"
	contractx "github.com/leadflowhq/leadflow/engine/contract"
	eventbusx "github.com/leadflowhq/leadflow/engine/eventbus"
	fitscorex "github.com/leadflowhq/leadflow/engine/fitscore"
	nodex "github.com/leadflowhq/leadflow/engine/flow"
	objectionx "github.com/leadflowhq/leadflow/engine/objection"
	policyx "github.com/leadflowhq/leadflow/engine/policy"
	schedulerx "github.com/leadflowhq/leadflow/engine/scheduler"
	statex "github.com/leadflowhq/leadflow/engine/state"
	syncx "github.com/leadflowhq/leadflow/pkg/syncx"
)

var (
	ErrInvalidMessage      = errors.New("message is empty")
	ErrInvalidConversation = nodex.ErrInvalidConversation

	// errNoChange aborts an update closure without saving.
	errNoChange = errors.New("no change")
)

// MeetingScheduler is the slice of the scheduler the engine drives.
type MeetingScheduler interface {
	RequestHold(ctx context.Context, conversationID string, window contractx.Window) (*schedulerx.TentativeHold, error)
	Confirm(ctx context.Context, holdID string) (*schedulerx.TentativeHold, error)
	Release(ctx context.Context, holdID string) error
}

type Config struct {
	SaveRetries       int           `split_words:"true" default:"3"`
	InactivityTimeout time.Duration `split_words:"true" default:"24h"`
	SweepInterval     time.Duration `split_words:"true" default:"5m"`
}

var DefaultConfig = Config{
	SaveRetries:       3,
	InactivityTimeout: 24 * time.Hour,
	SweepInterval:     5 * time.Minute,
}

// Result is the committed outcome of one processed message or extraction
// batch.
type Result struct {
	Conversation *statex.Conversation
	Missing      []string
}

// Engine orchestrates conversations: it runs every extraction batch through
// the pipeline graph under a per-conversation exclusion scope, publishes the
// resulting events after the commit, and drives the scheduler once a
// conversation qualifies. Distinct conversations are processed concurrently.
type Engine struct {
	store        statex.Store
	extractor    contractx.Extractor
	bus          *eventbusx.Bus
	consent      *consentx.Ledger
	scheduler    MeetingScheduler
	policy       policyx.Config
	calc         *fitscorex.Calculator
	requirements statex.Requirements
	cfg          Config

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]
	locks       *syncx.KeyedMutex

	unsubscribes []func()

	now func() time.Time
}

func New(
	store statex.Store,
	extractor contractx.Extractor,
	bus *eventbusx.Bus,
	ledger *consentx.Ledger,
	scheduler MeetingScheduler,
	policy policyx.Config,
	calc *fitscorex.Calculator,
	cfg Config,
) (*Engine, error) {
	if store == nil {
		return nil, errors.New("conversation store is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	if scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if calc == nil {
		return nil, errors.New("fit-score calculator is required")
	}
	if ledger == nil {
		ledger = consentx.NewLedger()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.SaveRetries <= 0 {
		cfg.SaveRetries = DefaultConfig.SaveRetries
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultConfig.InactivityTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig.SweepInterval
	}

	e := &Engine{
		store:        store,
		extractor:    extractor,
		bus:          bus,
		consent:      ledger,
		scheduler:    scheduler,
		policy:       policy,
		calc:         calc,
		requirements: statex.DefaultRequirements(),
		cfg:          cfg,
		locks:        syncx.NewKeyedMutex(),
		now:          time.Now,
	}

	graphRunner, err := e.compileHandleExtractionGraph(context.Background())
	if err != nil {
		return nil, err
	}
	e.graphRunner = graphRunner

	e.unsubscribes = append(e.unsubscribes,
		bus.Subscribe(eventbusx.KindMeetingConfirmed, e.onMeetingConfirmed),
		bus.Subscribe(eventbusx.KindMeetingExpired, e.onMeetingExpired),
	)

	return e, nil
}

// Shutdown detaches the engine from the bus. In-flight operations finish.
func (e *Engine) Shutdown() {
	for _, unsub := range e.unsubscribes {
		unsub()
	}
	e.unsubscribes = nil
}

// HandleMessage processes one inbound message end to end: it records the
// message, interprets consent replies, classifies objections, runs the
// extractor, and commits the extraction batch. The extractor runs outside
// the conversation's exclusion scope.
func (e *Engine) HandleMessage(ctx context.Context, conversationID, text string) (*Result, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, ErrInvalidConversation
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	e.bus.Publish(eventbusx.New(conversationID, eventbusx.KindMessageReceived, eventbusx.MessageReceivedPayload{
		Text: text,
	}, e.now()))

	if e.awaitingConsent(ctx, conversationID) {
		if v := consentx.ParseResponse(text); v != nil && *v {
			if err := e.RecordConsent(ctx, conversationID, e.now()); err != nil {
				return nil, err
			}
		}
	}

	objType, objMatched := objectionx.Classify(text)

	candidates, err := e.extractor.Extract(ctx, conversationID, text)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("extractor failed")
		if !objMatched {
			return nil, fmt.Errorf("%w: extractor: %v", contractx.ErrCollaboratorUnavailable, err)
		}
		// Commit the objection even without extraction results.
		candidates = nil
	}

	in := nodex.GraphInput{ConversationID: conversationID, Candidates: candidates}
	if objMatched {
		in.Objection = string(objType)
		in.ObjectionMessage = text
	}
	return e.commit(ctx, in)
}

// HandleExtraction commits a pre-extracted batch, bypassing the extractor.
func (e *Engine) HandleExtraction(ctx context.Context, conversationID string, candidates []contractx.ExtractedSlot) (*Result, error) {
	return e.commit(ctx, nodex.GraphInput{
		ConversationID: conversationID,
		Candidates:     candidates,
	})
}

func (e *Engine) commit(ctx context.Context, in nodex.GraphInput) (*Result, error) {
	unlock := e.locks.Lock(in.ConversationID)
	defer unlock()

	var out nodex.GraphOutput
	var err error
	for attempt := 0; ; attempt++ {
		out, err = e.graphRunner.Invoke(ctx, in)
		if err == nil {
			break
		}
		if !errors.Is(err, contractx.ErrStaleWrite) || attempt >= e.cfg.SaveRetries {
			return nil, err
		}
		log.Debug().Str("conversation_id", in.ConversationID).Int("attempt", attempt+1).Msg("stale write, retrying")
	}

	// Events go out only after the commit: a retried run cannot have
	// published anything yet.
	for _, ev := range out.Events {
		e.bus.Publish(ev)
	}

	conv := out.Conversation
	if out.ScheduleReady {
		conv = e.maybeSchedule(ctx, conv)
	}

	return &Result{Conversation: conv, Missing: out.Missing}, nil
}

// RecordConsent stores consent and resumes scheduling if it was withheld for
// the missing consent. Idempotent; the earliest timestamp wins.
func (e *Engine) RecordConsent(ctx context.Context, conversationID string, at time.Time) error {
	effective, err := e.consent.Record(conversationID, at)
	if err != nil {
		return err
	}

	unlock := e.locks.Lock(conversationID)
	defer unlock()

	conv, err := e.update(ctx, conversationID, func(c *statex.Conversation) error {
		if c.Stage.Terminal() {
			return fmt.Errorf("%w: conversation %s is %s", contractx.ErrConflict, c.ID, c.Stage)
		}
		c.RecordConsent(effective)
		return nil
	})
	if err != nil {
		return err
	}

	e.bus.Publish(eventbusx.New(conversationID, eventbusx.KindConsentRecorded, eventbusx.ConsentRecordedPayload{
		RecordedAt: effective,
	}, e.now()))

	if conv.PendingScheduling {
		e.maybeSchedule(ctx, conv)
	}
	return nil
}

// ConfirmMeeting confirms the conversation's tentative hold. Consent is
// checked again at the point of action. The conversation closes through the
// meeting.confirmed subscription, not here, so the scheduler stays the
// single source of confirmation truth.
func (e *Engine) ConfirmMeeting(ctx context.Context, conversationID string) (*schedulerx.TentativeHold, error) {
	unlock := e.locks.Lock(conversationID)
	conv, err := e.store.Load(ctx, conversationID)
	unlock()
	if err != nil {
		return nil, err
	}
	if conv.HoldID == "" {
		return nil, fmt.Errorf("%w: conversation %s has no tentative hold", contractx.ErrHoldNotActive, conversationID)
	}
	if !e.hasConsent(conv) {
		return nil, fmt.Errorf("%w: conversation %s", contractx.ErrConsentRequired, conversationID)
	}
	// Intentionally outside the conversation lock: the scheduler publishes
	// meeting.confirmed synchronously and our subscriber takes that lock.
	return e.scheduler.Confirm(ctx, conv.HoldID)
}

// CloseConversation ends the conversation explicitly. Idempotent; an active
// hold is released after the stage commit.
func (e *Engine) CloseConversation(ctx context.Context, conversationID string) error {
	return e.finishConversation(ctx, conversationID, statex.StageClosed, nil)
}

// finishConversation moves the conversation to a terminal stage. The guard,
// when set, is re-evaluated inside the exclusion scope so racing writers can
// veto the transition.
func (e *Engine) finishConversation(ctx context.Context, conversationID string, terminal statex.Stage, guard func(*statex.Conversation) bool) error {
	var from statex.Stage
	var holdID string

	unlock := e.locks.Lock(conversationID)
	_, err := e.update(ctx, conversationID, func(c *statex.Conversation) error {
		if c.Stage.Terminal() {
			return errNoChange
		}
		if guard != nil && !guard(c) {
			return errNoChange
		}
		from = c.Stage
		holdID = c.HoldID
		c.Stage = terminal
		c.PendingScheduling = false
		return nil
	})
	unlock()

	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	e.bus.Publish(eventbusx.New(conversationID, eventbusx.KindStageChanged, eventbusx.StageChangedPayload{
		From: string(from),
		To:   string(terminal),
	}, e.now()))

	if holdID != "" {
		if err := e.scheduler.Release(ctx, holdID); err != nil && !errors.Is(err, contractx.ErrHoldNotActive) {
			log.Warn().Err(err).Str("hold_id", holdID).Msg("release on close failed")
		}
	}
	return nil
}

// maybeSchedule requests a tentative hold when the conversation is at the
// scheduling stage with a usable window, a qualifying fit score, and no
// active hold. Without consent the intent is parked on the conversation
// instead. Called with the conversation lock held; never fails the message
// path.
func (e *Engine) maybeSchedule(ctx context.Context, conv *statex.Conversation) *statex.Conversation {
	if conv.Stage != statex.StageScheduling || conv.HoldID != "" {
		return conv
	}
	if conv.ProposedWindow == nil || !conv.ProposedWindow.Valid() {
		return conv
	}
	if conv.FitScore < e.calc.Threshold() {
		return conv
	}

	if !e.hasConsent(conv) {
		if conv.PendingScheduling {
			return conv
		}
		updated, err := e.update(ctx, conv.ID, func(c *statex.Conversation) error {
			c.PendingScheduling = true
			return nil
		})
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("parking scheduling intent failed")
			return conv
		}
		return updated
	}

	hold, err := e.scheduler.RequestHold(ctx, conv.ID, *conv.ProposedWindow)
	if err != nil {
		if !errors.Is(err, contractx.ErrConflict) {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("hold request failed")
		}
		return conv
	}

	updated, err := e.update(ctx, conv.ID, func(c *statex.Conversation) error {
		c.HoldID = hold.ID
		c.PendingScheduling = false
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Str("hold_id", hold.ID).Msg("persisting hold id failed")
		return conv
	}
	return updated
}

// update is a load-modify-save cycle with bounded retry on stale writes.
// Callers hold the conversation lock; retries absorb writers outside the
// engine's exclusion scope.
func (e *Engine) update(ctx context.Context, conversationID string, fn func(*statex.Conversation) error) (*statex.Conversation, error) {
	for attempt := 0; ; attempt++ {
		conv, err := e.store.Load(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if err := fn(conv); err != nil {
			return nil, err
		}
		conv.Touch(e.now())
		err = e.store.Save(ctx, conv)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, contractx.ErrStaleWrite) || attempt >= e.cfg.SaveRetries {
			return nil, err
		}
	}
}

func (e *Engine) awaitingConsent(ctx context.Context, conversationID string) bool {
	if e.consent.Has(conversationID) {
		return false
	}
	conv, err := e.store.Load(ctx, conversationID)
	if err != nil {
		return false
	}
	if e.hasConsent(conv) {
		return false
	}
	return conv.Stage == statex.StageConsultationOffer || conv.Stage == statex.StageScheduling
}

// hasConsent consults the ledger first and falls back to the durable record
// on the conversation, which survives a restart the in-memory ledger does
// not. A durable hit rehydrates the ledger so later checks stay local.
func (e *Engine) hasConsent(conv *statex.Conversation) bool {
	if conv == nil {
		return false
	}
	if e.consent.Has(conv.ID) {
		return true
	}
	if !conv.HasConsent() {
		return false
	}
	if _, err := e.consent.Record(conv.ID, *conv.ConsentRecordedAt); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("consent rehydration failed")
	}
	return true
}

func (e *Engine) onMeetingConfirmed(ev eventbusx.Event) error {
	payload, ok := ev.Payload.(eventbusx.MeetingConfirmedPayload)
	if !ok {
		return nil
	}

	var from statex.Stage
	unlock := e.locks.Lock(ev.ConversationID)
	_, err := e.update(context.Background(), ev.ConversationID, func(c *statex.Conversation) error {
		if c.HoldID != payload.HoldID || c.Stage.Terminal() {
			return errNoChange
		}
		from = c.Stage
		c.Stage = statex.StageClosed
		return nil
	})
	unlock()

	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	e.bus.Publish(eventbusx.New(ev.ConversationID, eventbusx.KindStageChanged, eventbusx.StageChangedPayload{
		From: string(from),
		To:   string(statex.StageClosed),
	}, e.now()))
	return nil
}

func (e *Engine) onMeetingExpired(ev eventbusx.Event) error {
	payload, ok := ev.Payload.(eventbusx.MeetingExpiredPayload)
	if !ok {
		return nil
	}

	unlock := e.locks.Lock(ev.ConversationID)
	defer unlock()

	_, err := e.update(context.Background(), ev.ConversationID, func(c *statex.Conversation) error {
		if c.HoldID != payload.HoldID {
			return errNoChange
		}
		c.HoldID = ""
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}
