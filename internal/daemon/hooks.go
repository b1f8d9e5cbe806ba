package daemon

import (
	"context"
	"fmt"

	"github.com/aigent/aigent/internal/logger"
	"github.com/aigent/aigent/internal/memory"
	"github.com/aigent/aigent/internal/proactive"
)

// SchedulerHooks builds scheduler.Hooks wired against this server's cell
// and broadcast hub, so cmd/aigent only needs to construct the Scheduler
// with these and call Start — C8's three tasks end up touching C1/C3/C7/
// C11 exactly as spec §1's Flow paragraph describes.
func (s *Server) SchedulerHooks() (passiveSleep, multiAgentSleep, runProactive func(ctx context.Context) error) {
	passiveSleep = func(ctx context.Context) error {
		if err := s.cell.Take(ctx); err != nil {
			return err
		}
		defer s.cell.Put()

		if _, err := s.cell.Memory.RunPassiveSleep(); err != nil {
			return err
		}
		if _, err := s.cell.Memory.ExportVault(); err != nil {
			logger.Warn("passive sleep vault export failed", "err", err)
		}
		s.hub.publish(Event{Kind: EventMemoryUpdated})
		return nil
	}

	multiAgentSleep = func(ctx context.Context) error {
		if err := s.cell.Take(ctx); err != nil {
			return err
		}
		defer s.cell.Put()

		provider, _ := s.cell.Runtime.Selector.ForTurn("")
		if _, err := s.cell.Memory.RunMultiAgentSleep(ctx, provider); err != nil {
			return err
		}
		if _, err := s.cell.Memory.ExportVault(); err != nil {
			logger.Warn("multi-agent sleep vault export failed", "err", err)
		}
		s.hub.publish(Event{Kind: EventMemoryUpdated})
		return nil
	}

	runProactive = func(ctx context.Context) error {
		return s.runProactiveFiring(ctx)
	}
	return
}

// runProactiveFiring is C11's firing body: compose the identity-grounded
// prompt, call the model, and — if it produced a shareable message and the
// cooldown the scheduler already gated on permits it — broadcast
// ProactiveMessage and persist an Episodic entry with source="proactive"
// (spec §4.11).
func (s *Server) runProactiveFiring(ctx context.Context) error {
	if err := s.cell.Take(ctx); err != nil {
		return err
	}
	defer s.cell.Put()

	provider, _ := s.cell.Runtime.Selector.ForTurn("")
	identityContext := s.cell.Memory.Identity().IdentityContext()

	result, err := proactive.Run(ctx, provider, identityContext)
	if err != nil {
		s.cell.RecordProactiveFiring(false)
		return fmt.Errorf("proactive run: %w", err)
	}

	if !result.HasMessage() {
		s.cell.RecordProactiveFiring(false)
		return nil
	}

	entry := memory.NewEntry(memory.TierEpisodic, result.Message, "proactive")
	if err := s.cell.Memory.Append(entry); err != nil {
		logger.Warn("failed to persist proactive entry", "err", err)
	}

	s.cell.RecordProactiveFiring(true)
	s.hub.publish(Event{Kind: EventProactiveMessage, Payload: result})
	return nil
}
