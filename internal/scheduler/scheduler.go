package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/aigent/aigent/internal/logger"
)

// Config configures the three independent background tasks (spec §4.8).
type Config struct {
	Timezone *time.Location

	QuietWindowStartHour int // nightly multi-agent gate
	QuietWindowEndHour   int
	NightlyCooldown      time.Duration // default 22h
	ConversationQuiet    time.Duration // default 15m

	ProactiveIntervalMinutes int // 0 disables task C
	ProactiveCooldown        time.Duration
	DNDStartHour             int
	DNDEndHour               int
}

func (c Config) nightlyCooldown() time.Duration {
	if c.NightlyCooldown <= 0 {
		return 22 * time.Hour
	}
	return c.NightlyCooldown
}

func (c Config) conversationQuiet() time.Duration {
	if c.ConversationQuiet <= 0 {
		return 15 * time.Minute
	}
	return c.ConversationQuiet
}

// Hooks are the actions each task invokes; the scheduler holds no direct
// reference to MemoryManager/AgentRuntime so it can be tested without a
// live daemon.
type Hooks struct {
	RunPassiveSleep    func(ctx context.Context) error
	RunMultiAgentSleep func(ctx context.Context) error
	RunProactive       func(ctx context.Context) error

	// LastConversationAt reports when the most recent turn was submitted,
	// used by the nightly gate's "no conversation in last 15 min" clause.
	LastConversationAt func() time.Time
}

// Scheduler owns the three independent periodic tasks (A passive, B
// nightly multi-agent, C proactive), each with its own cancellation handle
// so daemon shutdown can abort them independently before the final flush
// (spec §4.8, §5 "Scheduler tasks are abort-safe at any suspension point").
type Scheduler struct {
	cfg   Config
	hooks Hooks

	mu            sync.Mutex
	lastNightly   time.Time
	lastProactive time.Time

	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Scheduler. Call Start to launch the three tasks.
func New(cfg Config, hooks Hooks) *Scheduler {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	return &Scheduler{cfg: cfg, hooks: hooks}
}

// Start launches the passive and nightly tasks, plus the proactive task
// when ProactiveIntervalMinutes > 0, as goroutines under ctx. Returns a
// function that cancels each task's own handle independently, matching
// spec §4.8's "each with its own cancellation handle" and §4.10's shutdown
// sequence (scheduler handles are taken and aborted before the final
// flush-and-sleep).
func (s *Scheduler) Start(ctx context.Context) (stop func()) {
	taskCtx := func() context.Context {
		c, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancels = append(s.cancels, cancel)
		s.mu.Unlock()
		return c
	}

	passiveCtx := taskCtx()
	s.wg.Add(1)
	go s.runPassive(passiveCtx)

	nightlyCtx := taskCtx()
	s.wg.Add(1)
	go s.runNightly(nightlyCtx)

	if s.cfg.ProactiveIntervalMinutes > 0 {
		proactiveCtx := taskCtx()
		s.wg.Add(1)
		go s.runProactive(proactiveCtx)
	}

	return func() {
		s.mu.Lock()
		cancels := s.cancels
		s.cancels = nil
		s.mu.Unlock()
		for _, cancel := range cancels {
			cancel()
		}
		s.wg.Wait()
	}
}

func (s *Scheduler) runPassive(ctx context.Context) {
	defer s.wg.Done()
	const period = 8 * time.Hour
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("passive sleep scheduler stopping")
			return
		case <-ticker.C:
			if s.hooks.RunPassiveSleep == nil {
				continue
			}
			if err := s.hooks.RunPassiveSleep(ctx); err != nil {
				logger.Warn("passive sleep task failed, will retry next tick", "err", err)
			}
		}
	}
}

func (s *Scheduler) runNightly(ctx context.Context) {
	defer s.wg.Done()
	const pollPeriod = 5 * time.Minute
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("nightly multi-agent scheduler stopping")
			return
		case <-ticker.C:
			if !s.nightlyGateOpen(time.Now()) {
				continue
			}
			if s.hooks.RunMultiAgentSleep == nil {
				continue
			}
			if err := s.hooks.RunMultiAgentSleep(ctx); err != nil {
				logger.Warn("nightly multi-agent task failed, will retry next poll", "err", err)
				continue
			}
			s.mu.Lock()
			s.lastNightly = time.Now()
			s.mu.Unlock()
		}
	}
}

// nightlyGateOpen evaluates task B's gate: in the quiet window AND at least
// nightlyCooldown since the last run AND no conversation in the last
// conversationQuiet window.
func (s *Scheduler) nightlyGateOpen(now time.Time) bool {
	if !InWindow(now, s.cfg.Timezone, s.cfg.QuietWindowStartHour, s.cfg.QuietWindowEndHour) {
		return false
	}

	s.mu.Lock()
	last := s.lastNightly
	s.mu.Unlock()
	if !last.IsZero() && now.Sub(last) < s.cfg.nightlyCooldown() {
		return false
	}

	if s.hooks.LastConversationAt != nil {
		lastTurn := s.hooks.LastConversationAt()
		if !lastTurn.IsZero() && now.Sub(lastTurn) < s.cfg.conversationQuiet() {
			return false
		}
	}
	return true
}

func (s *Scheduler) runProactive(ctx context.Context) {
	defer s.wg.Done()
	period := time.Duration(s.cfg.ProactiveIntervalMinutes) * time.Minute
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("proactive scheduler stopping")
			return
		case <-ticker.C:
			if !s.proactiveGateOpen(time.Now()) {
				continue
			}
			if s.hooks.RunProactive == nil {
				continue
			}
			if err := s.hooks.RunProactive(ctx); err != nil {
				logger.Warn("proactive task failed, will retry next tick", "err", err)
				continue
			}
			s.mu.Lock()
			s.lastProactive = time.Now()
			s.mu.Unlock()
		}
	}
}

// proactiveGateOpen evaluates task C's gate: NOT in the DND window AND at
// least proactiveCooldown since the last send.
func (s *Scheduler) proactiveGateOpen(now time.Time) bool {
	if InWindow(now, s.cfg.Timezone, s.cfg.DNDStartHour, s.cfg.DNDEndHour) {
		return false
	}
	s.mu.Lock()
	last := s.lastProactive
	s.mu.Unlock()
	if !last.IsZero() && now.Sub(last) < s.cfg.ProactiveCooldown {
		return false
	}
	return true
}

// TriggerProactiveNow runs the proactive hook immediately, bypassing the
// DND window and interval but still respecting cooldown semantics for
// future scheduled firings (spec §4.11: "TriggerProactive bypasses both the
// DND window and the interval (but not the cooldown semantics for future
// firings)").
func (s *Scheduler) TriggerProactiveNow(ctx context.Context) error {
	if s.hooks.RunProactive == nil {
		return nil
	}
	if err := s.hooks.RunProactive(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastProactive = time.Now()
	s.mu.Unlock()
	return nil
}
