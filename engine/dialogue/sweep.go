package dialogue

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	statex "github.com/leadflowhq/leadflow/engine/state"
)

// SweepInactive abandons every active conversation whose last activity is
// older than the configured inactivity timeout. Returns the number of
// conversations abandoned. Each conversation is re-checked under its own
// lock, so a message racing the sweep wins.
func (e *Engine) SweepInactive(ctx context.Context) (int, error) {
	cutoff := e.now().UTC().Add(-e.cfg.InactivityTimeout)

	active, err := e.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	abandoned := 0
	for _, conv := range active {
		if conv.LastActivityAt.After(cutoff) {
			continue
		}
		if err := e.abandonIfStillInactive(ctx, conv.ID, cutoff); err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("abandon failed")
			continue
		}
		abandoned++
	}

	if abandoned > 0 {
		log.Info().Int("abandoned", abandoned).Msg("inactivity sweep finished")
	}
	return abandoned, nil
}

func (e *Engine) abandonIfStillInactive(ctx context.Context, conversationID string, cutoff time.Time) error {
	return e.finishConversation(ctx, conversationID, statex.StageAbandoned, func(c *statex.Conversation) bool {
		return !c.LastActivityAt.After(cutoff)
	})
}

// RunSweeper runs SweepInactive on the configured interval until the context
// is cancelled. Meant to be started as a goroutine from the composition
// root.
func (e *Engine) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.SweepInactive(ctx); err != nil {
				log.Error().Err(err).Msg("inactivity sweep failed")
			}
		}
	}
}
