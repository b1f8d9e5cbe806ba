package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aigent/aigent/internal/logger"
	"github.com/aigent/aigent/internal/memory"
)

// ReloadResult is CmdReloadConfig's response body.
type ReloadResult struct {
	OK              bool `json:"ok"`
	TelegramChanged bool `json:"telegram_changed"`
}

func (s *Server) dispatch(ctx context.Context, req Request, w *bufio.Writer) {
	switch req.Command {
	case CmdSubmitTurn:
		s.handleSubmitTurn(ctx, req, w)
	case CmdGetStatus:
		s.reply(w, req, s.cell.StatusSnapshot())
	case CmdGetMemoryPeek:
		s.handleMemoryPeek(req, w)
	case CmdGetRecentContext:
		s.handleRecentContext(req, w)
	case CmdListTools:
		s.reply(w, req, s.cell.Executor.Registry.Specs())
	case CmdExecuteTool:
		s.handleExecuteTool(ctx, req, w)
	case CmdRunSleepCycle:
		s.handleRunSleepCycle(ctx, req, w)
	case CmdRunMultiAgentSleepCycle:
		s.handleRunMultiAgentSleepCycle(ctx, req, w)
	case CmdTriggerProactive:
		s.handleTriggerProactive(ctx, req, w)
	case CmdGetProactiveStats:
		s.reply(w, req, s.cell.ProactiveStatsSnapshot())
	case CmdInspectCore:
		s.reply(w, req, s.cell.Memory.CoreEntries())
	case CmdGetPromotions:
		s.reply(w, req, s.cell.Memory.PromotionHistory())
	case CmdExportVault:
		s.handleExportVault(ctx, req, w)
	case CmdWipeMemory:
		s.handleWipeMemory(req, w)
	case CmdReloadConfig:
		s.handleReloadConfig(ctx, req, w)
	case CmdPing:
		s.reply(w, req, map[string]bool{"ok": true})
	case CmdShutdown:
		s.handleShutdown(req, w)
	default:
		s.replyError(w, req, fmt.Errorf("unknown command %q", req.Command))
	}
}

func (s *Server) reply(w *bufio.Writer, req Request, payload any) {
	if err := writeFrame(w, Event{Kind: EventDone, ReplyTo: req.ID, Payload: payload}); err != nil {
		logger.Debug("reply write failed", "err", err)
	}
}

func (s *Server) replyError(w *bufio.Writer, req Request, err error) {
	_ = writeFrame(w, Event{Kind: EventError, ReplyTo: req.ID, Payload: err.Error()})
}

// handleSubmitTurn runs C10's per-turn flow against the shared cell,
// forwarding streamed tokens to both this connection and every Subscribe
// listener, per spec §4.10's ordering guarantees (tool call precedes
// tokens; Done follows all tokens).
func (s *Server) handleSubmitTurn(ctx context.Context, req Request, w *bufio.Writer) {
	var payload SubmitTurnPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		s.replyError(w, req, err)
		return
	}

	if err := s.cell.Take(ctx); err != nil {
		s.replyError(w, req, err)
		return
	}
	defer s.cell.Put()

	onToken := func(chunk string) {
		ev := Event{Kind: EventToken, ReplyTo: req.ID, Payload: chunk}
		_ = writeFrame(w, ev)
		s.hub.publish(ev)
	}

	onToolEvent := func(call memory.ToolCall, result *memory.ToolResult) {
		if result == nil {
			s.hub.publish(Event{Kind: EventToolCallStart, Payload: call})
			return
		}
		s.cell.RecordToolExecution(call.Name)
		s.hub.publish(Event{Kind: EventToolCallEnd, Payload: result})
	}

	result, err := s.cell.Runtime.ProcessTurn(ctx, payload.User, payload.Source, onToken, onToolEvent)
	if err != nil {
		s.replyError(w, req, err)
		s.hub.publish(Event{Kind: EventError, Payload: err.Error()})
		return
	}

	done := Event{Kind: EventDone, ReplyTo: req.ID, Payload: result.Response}
	_ = writeFrame(w, done)
	s.hub.publish(Event{Kind: EventMemoryUpdated})
}

func (s *Server) handleMemoryPeek(req Request, w *bufio.Writer) {
	var payload LimitPayload
	_ = json.Unmarshal(req.Payload, &payload)
	limit := payload.Limit
	if limit <= 0 {
		limit = 20
	}

	entries := s.cell.Memory.Entries()
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	s.reply(w, req, entries)
}

func (s *Server) handleRecentContext(req Request, w *bufio.Writer) {
	var payload LimitPayload
	_ = json.Unmarshal(req.Payload, &payload)
	limit := payload.Limit
	if limit <= 0 {
		limit = 20
	}
	s.reply(w, req, s.cell.Runtime.Sessions.Recent(limit))
}

func (s *Server) handleExecuteTool(ctx context.Context, req Request, w *bufio.Writer) {
	var payload ExecuteToolPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		s.replyError(w, req, err)
		return
	}

	if err := s.cell.Take(ctx); err != nil {
		s.replyError(w, req, err)
		return
	}
	defer s.cell.Put()

	s.hub.publish(Event{Kind: EventToolCallStart, Payload: payload})
	result, err := s.cell.Executor.Execute(ctx, memory.ToolCall{Name: payload.Name, Args: payload.Args})
	if err != nil {
		s.replyError(w, req, err)
		return
	}
	s.cell.RecordToolExecution(payload.Name)
	s.hub.publish(Event{Kind: EventToolCallEnd, Payload: result})
	s.reply(w, req, result)
}

func (s *Server) handleRunSleepCycle(ctx context.Context, req Request, w *bufio.Writer) {
	if err := s.cell.Take(ctx); err != nil {
		s.replyError(w, req, err)
		return
	}
	defer s.cell.Put()

	result, err := s.cell.Memory.RunPassiveSleep()
	if err != nil {
		s.replyError(w, req, err)
		return
	}
	if _, err := s.cell.Memory.ExportVault(); err != nil {
		logger.Warn("passive sleep vault export failed", "err", err)
	}
	s.hub.publish(Event{Kind: EventMemoryUpdated})
	s.reply(w, req, result)
}

func (s *Server) handleRunMultiAgentSleepCycle(ctx context.Context, req Request, w *bufio.Writer) {
	if err := s.cell.Take(ctx); err != nil {
		s.replyError(w, req, err)
		return
	}
	defer s.cell.Put()

	provider, _ := s.cell.Runtime.Selector.ForTurn("")
	insights, err := s.cell.Memory.RunMultiAgentSleep(ctx, provider)
	if err != nil {
		s.replyError(w, req, err)
		return
	}
	if _, err := s.cell.Memory.ExportVault(); err != nil {
		logger.Warn("multi-agent sleep vault export failed", "err", err)
	}
	s.hub.publish(Event{Kind: EventMemoryUpdated})
	s.reply(w, req, insights)
}

// handleShutdown acks the request, then signals ShutdownRequested so the
// process's main loop runs the real graceful sequence (spec §4.10:
// "Shutdown | Ack / graceful termination") rather than this handler just
// closing its own connection.
func (s *Server) handleShutdown(req Request, w *bufio.Writer) {
	s.reply(w, req, map[string]bool{"ok": true})
	s.RequestShutdown()
}

// handleExportVault runs C3's export on demand and, when the caller asked
// for a remote copy, mirrors the resulting vault tree to the configured
// backup bucket (spec §6: `aigent memory export-vault [--remote]`).
func (s *Server) handleExportVault(ctx context.Context, req Request, w *bufio.Writer) {
	var payload ExportVaultPayload
	_ = json.Unmarshal(req.Payload, &payload)

	if err := s.cell.Take(ctx); err != nil {
		s.replyError(w, req, err)
		return
	}
	defer s.cell.Put()

	summary, err := s.cell.Memory.ExportVault()
	if err != nil {
		s.replyError(w, req, err)
		return
	}

	if payload.Remote {
		if s.Storage == nil {
			s.replyError(w, req, fmt.Errorf("remote export requested but no storage backend is configured"))
			return
		}
		uploaded, err := s.Storage.BackupTree(ctx, s.cell.Memory.VaultRoot(), "vault")
		if err != nil {
			s.replyError(w, req, fmt.Errorf("remote vault backup: %w", err))
			return
		}
		logger.Info("vault mirrored to remote storage", "files", uploaded)
	}

	s.reply(w, req, summary)
}

// handleWipeMemory deletes every entry of one tier via EventLog.Overwrite
// (spec §6: `aigent memory wipe --layer L --yes`). The CLI is responsible
// for the --yes confirmation; by the time this command reaches the socket
// the wipe is unconditional.
func (s *Server) handleWipeMemory(req Request, w *bufio.Writer) {
	var payload WipeMemoryPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		s.replyError(w, req, err)
		return
	}
	tier := memory.Tier(payload.Layer)
	if !tier.Valid() {
		s.replyError(w, req, fmt.Errorf("unknown memory layer %q", payload.Layer))
		return
	}

	removed, err := s.cell.Memory.WipeTier(tier)
	if err != nil {
		s.replyError(w, req, err)
		return
	}
	s.hub.publish(Event{Kind: EventMemoryUpdated})
	s.reply(w, req, map[string]int{"removed": removed})
}

// handleReloadConfig re-reads the config file/.env via the ReloadConfig
// hook cmd/aigent's serve() wires in (spec §4.10's CmdReloadConfig: "Re-reads
// config file and .env; if Telegram token/enable changed, the bot task is
// restarted; acks."). With no hook configured this degrades to a bare ack.
func (s *Server) handleReloadConfig(ctx context.Context, req Request, w *bufio.Writer) {
	if s.ReloadConfig == nil {
		s.reply(w, req, ReloadResult{OK: true})
		return
	}
	result, err := s.ReloadConfig(ctx)
	if err != nil {
		s.replyError(w, req, err)
		return
	}
	s.reply(w, req, result)
}

func (s *Server) handleTriggerProactive(ctx context.Context, req Request, w *bufio.Writer) {
	if s.cell.Scheduler == nil {
		s.replyError(w, req, fmt.Errorf("scheduler not configured"))
		return
	}
	if err := s.cell.Scheduler.TriggerProactiveNow(ctx); err != nil {
		s.replyError(w, req, err)
		return
	}
	s.reply(w, req, s.cell.ProactiveStatsSnapshot())
}
