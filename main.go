package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	consentx "github.com/leadflowhq/leadflow/engine/consent"
	dialoguex "github.com/leadflowhq/leadflow/engine/dialogue"
	eventbusx "github.com/leadflowhq/leadflow/engine/eventbus"
	fitscorex "github.com/leadflowhq/leadflow/engine/fitscore"
	policyx "github.com/leadflowhq/leadflow/engine/policy"
	schedulerx "github.com/leadflowhq/leadflow/engine/scheduler"
	statex "github.com/leadflowhq/leadflow/engine/state"
	storagex "github.com/leadflowhq/leadflow/engine/storage"
	configx "github.com/leadflowhq/leadflow/pkg/config"
	llmextractx "github.com/leadflowhq/leadflow/pkg/llmextract"
	logx "github.com/leadflowhq/leadflow/pkg/logger"
	webhookx "github.com/leadflowhq/leadflow/pkg/webhook"
)

func main() {
	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storageCfg := configx.MustNew[storagex.Config]("POSTGRES")
	store, holdStore := buildStores(ctx, *storageCfg)

	bus := eventbusx.NewBus()
	bus.Subscribe(eventbusx.KindStageChanged, auditEvent)
	bus.Subscribe(eventbusx.KindFitScoreCrossedThreshold, auditEvent)
	bus.Subscribe(eventbusx.KindSchedulerDegraded, auditEvent)
	attachWebhook(ctx, bus)

	schedCfg := configx.MustNew[schedulerx.Config]("SCHEDULER")
	sched, err := schedulerx.New(holdStore, bus, schedulerx.NewLoopbackCalendar(), *schedCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler init failed")
	}
	defer sched.Close()
	if err := sched.Rearm(ctx); err != nil {
		log.Fatal().Err(err).Msg("re-arming hold expiry failed")
	}

	calc, err := fitscorex.New(*configx.MustNew[fitscorex.Config]("FITSCORE"))
	if err != nil {
		log.Fatal().Err(err).Msg("fit-score init failed")
	}

	extractor, err := llmextractx.New(*configx.MustNew[llmextractx.Config]("EXTRACTOR"))
	if err != nil {
		log.Fatal().Err(err).Msg("extractor init failed")
	}

	engine, err := dialoguex.New(
		store,
		extractor,
		bus,
		consentx.NewLedger(),
		sched,
		*configx.MustNew[policyx.Config]("POLICY"),
		calc,
		*configx.MustNew[dialoguex.Config]("ENGINE"),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}
	defer engine.Shutdown()

	go engine.RunSweeper(ctx)

	log.Info().Msg("conversation engine ready")
	<-ctx.Done()
	log.Info().Msg("shutting down")
}

// buildStores wires Postgres persistence when a DSN is configured and falls
// back to the in-memory stores for single-node runs.
func buildStores(ctx context.Context, cfg storagex.Config) (statex.Store, schedulerx.HoldStore) {
	if cfg.DSN == "" {
		log.Info().Msg("no postgres dsn, using in-memory stores")
		return statex.NewMemoryStore(), schedulerx.NewMemoryHoldStore()
	}

	db, err := storagex.NewDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres init failed")
	}
	if err := storagex.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("postgres migration failed")
	}
	return storagex.NewConversationStore(db), storagex.NewHoldStore(db)
}

// attachWebhook forwards lifecycle events to the configured endpoint, for
// CRM sync and notifications. Skipped when no WEBHOOK_URL is set.
func attachWebhook(ctx context.Context, bus *eventbusx.Bus) {
	cfg, err := configx.New[webhookx.Config]("WEBHOOK")
	if err != nil || cfg.URL == "" {
		log.Info().Msg("no webhook endpoint, outbound bridge disabled")
		return
	}
	client := webhookx.MustNew(*cfg)

	forward := func(e eventbusx.Event) error {
		return client.Publish(ctx, e)
	}
	for _, kind := range []eventbusx.Kind{
		eventbusx.KindStageChanged,
		eventbusx.KindFitScoreCrossedThreshold,
		eventbusx.KindConsentRecorded,
		eventbusx.KindMeetingTentativelyHeld,
		eventbusx.KindMeetingConfirmed,
		eventbusx.KindMeetingExpired,
	} {
		bus.Subscribe(kind, forward)
	}
}

func auditEvent(e eventbusx.Event) error {
	log.Info().
		Str("conversation_id", e.ConversationID).
		Str("kind", string(e.Kind)).
		Interface("payload", e.Payload).
		Msg("domain event")
	return nil
}
