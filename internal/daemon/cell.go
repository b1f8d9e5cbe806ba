package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/aigent/aigent/internal/agent"
	"github.com/aigent/aigent/internal/memory"
	"github.com/aigent/aigent/internal/scheduler"
	"github.com/aigent/aigent/internal/tools"
)

// ProactiveStats is CmdGetProactiveStats's response body.
type ProactiveStats struct {
	LastFiredAt  time.Time `json:"last_fired_at"`
	MessagesSent int       `json:"messages_sent"`
	TotalFirings int       `json:"total_firings"`
}

// Cell is spec §5's single authoritative shared cell: "(MemoryManager,
// AgentRuntime, ToolRegistry, tool_execution_counts, proactive_handle)".
// Two distinct disciplines guard it:
//
//   - bookkeeping (ToolExecutionCounts, ProactiveStats) is small and fast,
//     so it's protected by a 1-buffered channel used as a mutex, held only
//     for the update;
//   - the long-running resources (Memory/Runtime/Executor) are guarded by
//     a binary semaphore that a caller takes out before any LLM or
//     distillation work and puts back after — never holding it across a
//     suspension point that doesn't need exclusivity, per spec §4.10's
//     "no long-running LLM call or distillation may be performed while
//     holding this lock" (read as: while preventing another caller from
//     taking its own turn with the same resources).
type Cell struct {
	sem chan struct{}

	Runtime   *agent.Runtime
	Memory    *memory.MemoryManager
	Executor  *tools.Executor
	Scheduler *scheduler.Scheduler

	bookkeeping chan struct{} // 1-buffered mutex; see withBookkeeping
	toolCounts  map[string]int
	proactive   ProactiveStats
}

// NewCell assembles the shared cell from its already-constructed parts.
func NewCell(rt *agent.Runtime, mem *memory.MemoryManager, exec *tools.Executor, sched *scheduler.Scheduler) *Cell {
	c := &Cell{
		sem:         make(chan struct{}, 1),
		bookkeeping: make(chan struct{}, 1),
		Runtime:     rt,
		Memory:      mem,
		Executor:    exec,
		Scheduler:   sched,
		toolCounts:  map[string]int{},
	}
	c.sem <- struct{}{}
	c.bookkeeping <- struct{}{}
	return c
}

// Take blocks until the cell's long-running resources are free, then
// returns them for lock-free use. The caller must call Put exactly once
// when done, including on error paths.
func (c *Cell) Take(ctx context.Context) error {
	select {
	case <-c.sem:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Put returns the cell's long-running resources, unblocking the next
// waiting Take.
func (c *Cell) Put() {
	c.sem <- struct{}{}
}

// TakeTimeout is a convenience for the graceful-shutdown drain deadline
// (spec §4.10: "allow in-flight turns to drain with a deadline").
func (c *Cell) TakeTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Take(ctx)
}

// withBookkeeping runs fn while holding the small bookkeeping mutex.
func (c *Cell) withBookkeeping(fn func()) {
	<-c.bookkeeping
	fn()
	c.bookkeeping <- struct{}{}
}

// RecordToolExecution increments the named tool's execution counter.
func (c *Cell) RecordToolExecution(name string) {
	c.withBookkeeping(func() {
		c.toolCounts[name]++
	})
}

// ToolExecutionCounts returns a snapshot of the counters.
func (c *Cell) ToolExecutionCounts() map[string]int {
	var out map[string]int
	c.withBookkeeping(func() {
		out = make(map[string]int, len(c.toolCounts))
		for k, v := range c.toolCounts {
			out[k] = v
		}
	})
	return out
}

// RecordProactiveFiring updates the proactive stats snapshot after one
// firing, whether or not it produced a message.
func (c *Cell) RecordProactiveFiring(sentMessage bool) {
	c.withBookkeeping(func() {
		c.proactive.LastFiredAt = time.Now().UTC()
		c.proactive.TotalFirings++
		if sentMessage {
			c.proactive.MessagesSent++
		}
	})
}

// ProactiveStatsSnapshot returns the current proactive stats.
func (c *Cell) ProactiveStatsSnapshot() ProactiveStats {
	var out ProactiveStats
	c.withBookkeeping(func() {
		out = c.proactive
	})
	return out
}

// Status is CmdGetStatus's response body.
type Status struct {
	EntryCount        int            `json:"entry_count"`
	ToolCounts        map[string]int `json:"tool_counts"`
	Proactive         ProactiveStats `json:"proactive"`
	IdentityRebuiltAt time.Time      `json:"identity_rebuilt_at"`
}

func (c *Cell) StatusSnapshot() Status {
	return Status{
		EntryCount:        len(c.Memory.Entries()),
		ToolCounts:        c.ToolExecutionCounts(),
		Proactive:         c.ProactiveStatsSnapshot(),
		IdentityRebuiltAt: c.Memory.Identity().RebuiltAt,
	}
}

func (c *Cell) String() string {
	return fmt.Sprintf("Cell{entries=%d}", len(c.Memory.Entries()))
}
