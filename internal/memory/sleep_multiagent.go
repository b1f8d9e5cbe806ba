package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aigent/aigent/internal/llm"
)

// MultiAgentSleepConfig configures the nightly batched pipeline (spec §4.7
// Multi-agent).
type MultiAgentSleepConfig struct {
	BatchSize int // default 60
}

func (c MultiAgentSleepConfig) batchSize() int {
	if c.BatchSize <= 0 {
		return 60
	}
	return c.BatchSize
}

// Specialist is one of the four nightly consolidation perspectives. Naming
// follows spec.md's vocabulary (Identity/Relationships/Knowledge/
// Reflections), not the original Rust implementation's
// Archivist/Psychologist/Strategist/Critic — see DESIGN.md's Open Question
// resolution.
type Specialist string

const (
	SpecialistIdentity      Specialist = "Identity"
	SpecialistRelationships Specialist = "Relationships"
	SpecialistKnowledge     Specialist = "Knowledge"
	SpecialistReflections   Specialist = "Reflections"
)

var allSpecialists = []Specialist{SpecialistIdentity, SpecialistRelationships, SpecialistKnowledge, SpecialistReflections}

func (s Specialist) roleFraming() string {
	switch s {
	case SpecialistIdentity:
		return "You assess factual durability and the assistant's own sense of self: which memories contain facts worth keeping long-term, which are redundant or superseded, and which Core entries should be promoted, merged, or retired. Focus on PROMOTE, MERGE, RETIRE."
	case SpecialistRelationships:
		return "You track the human relationship: emotional patterns, recurring themes, and the evolving dynamic between assistant and user. Focus on STYLE_UPDATE, VALENCE, and any relationship-shaping PROMOTE/MERGE."
	case SpecialistKnowledge:
		return "You plan future action: what should change, what follow-ups matter, what new long-term goals have emerged from today's memories. Focus on GOAL_ADD and PROMOTE of durable knowledge."
	case SpecialistReflections:
		return "You challenge assumptions and form the assistant's own opinions: what contradicts existing beliefs, what is stale or wrong, what deserves RETIRE or MERGE. Be willing to retire or merge Core entries when genuinely warranted."
	}
	return ""
}

// BatchMemories partitions entries into batches for multi-agent processing.
// Core and UserProfile entries are replicated into every batch; the
// remaining pool is ordered Reflective (newest first) -> Semantic (highest
// confidence first) -> Procedural (newest first) -> Episodic (newest
// first) and chunked sequentially so each non-anchor entry appears in
// exactly one batch (grounded on
// original_source/crates/memory/src/multi_sleep.rs::batch_memories).
func BatchMemories(entries []Entry, batchSize int) [][]Entry {
	if batchSize <= 0 {
		batchSize = 60
	}

	var anchor []Entry
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		if e.Tier == TierCore || e.Tier == TierUserProfile {
			anchor = append(anchor, e)
		}
	}

	group := func(tier Tier) []Entry {
		var out []Entry
		for _, e := range entries {
			if !e.IsTombstone() && e.Tier == tier {
				out = append(out, e)
			}
		}
		return out
	}

	reflective := group(TierReflective)
	sort.SliceStable(reflective, func(i, j int) bool { return reflective[i].CreatedAt.After(reflective[j].CreatedAt) })

	semantic := group(TierSemantic)
	sort.SliceStable(semantic, func(i, j int) bool { return semantic[i].Confidence > semantic[j].Confidence })

	procedural := group(TierProcedural)
	sort.SliceStable(procedural, func(i, j int) bool { return procedural[i].CreatedAt.After(procedural[j].CreatedAt) })

	episodic := group(TierEpisodic)
	sort.SliceStable(episodic, func(i, j int) bool { return episodic[i].CreatedAt.After(episodic[j].CreatedAt) })

	var ordered []Entry
	ordered = append(ordered, reflective...)
	ordered = append(ordered, semantic...)
	ordered = append(ordered, procedural...)
	ordered = append(ordered, episodic...)

	if len(ordered) == 0 {
		return [][]Entry{anchor}
	}

	var batches [][]Entry
	for start := 0; start < len(ordered); start += batchSize {
		end := start + batchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		batch := make([]Entry, 0, len(anchor)+end-start)
		batch = append(batch, anchor...)
		batch = append(batch, ordered[start:end]...)
		batches = append(batches, batch)
	}
	return batches
}

// SpecialistPrompt builds one specialist's prompt for a given batch.
func SpecialistPrompt(specialist Specialist, batch []Entry, identityCtx string) string {
	var b strings.Builder
	b.WriteString(identityCtx)
	fmt.Fprintf(&b, "\n\n=== %s SPECIALIST ===\n%s\n\n", strings.ToUpper(string(specialist)), specialist.roleFraming())
	b.WriteString("MEMORIES IN THIS BATCH:\n")
	for _, e := range batch {
		fmt.Fprintf(&b, "  [%s][%s] %s\n", shortID(e.ID), e.Tier, truncate(e.Content, 250))
	}
	b.WriteString("\n")
	b.WriteString(agenticSleepResponseFormat)
	return b.String()
}

// DeliberationPrompt builds the synthesis/deliberation prompt shown to the
// final agent once all specialists have reported for a batch.
func DeliberationPrompt(reports map[Specialist]string, identityCtx string) string {
	var b strings.Builder
	b.WriteString(identityCtx)
	b.WriteString("\n\nRead all specialist reports below. Where they agree, honour the consensus. Where they conflict, use your judgment. Produce one final consolidated answer. Be conservative with Core mutations — only retire or merge when multiple specialists agree.\n\n")
	for _, s := range allSpecialists {
		if report, ok := reports[s]; ok {
			fmt.Fprintf(&b, "=== %s REPORT ===\n%s\n\n", strings.ToUpper(string(s)), truncate(report, 1200))
		}
	}
	b.WriteString(agenticSleepResponseFormat)
	return b.String()
}

// MergeAgenticInsights combines insights from multiple batches/specialists
// into one consolidated instance, deduplicating and applying "retire loses
// to merge" across the full set (grounded on
// original_source/crates/memory/src/multi_sleep.rs::merge_insights).
func MergeAgenticInsights(all []AgenticInsights) AgenticInsights {
	merged := AgenticInsights{}

	mergeTargets := map[string]bool{}
	for _, ins := range all {
		for _, m := range ins.Merges {
			for _, id := range m.IDShorts {
				mergeTargets[id] = true
			}
		}
	}

	promoteSeen := map[string]bool{}
	styleSeen := map[string]bool{}
	goalSeen := map[string]bool{}
	retireSeen := map[string]bool{}
	mergeCSVSeen := map[string]int{}
	valenceMap := map[string]ValenceInstruction{}

	for _, ins := range all {
		for _, p := range ins.Promotions {
			key := p.IDShort + "::" + string(p.TargetTier)
			if !promoteSeen[key] {
				promoteSeen[key] = true
				merged.Promotions = append(merged.Promotions, p)
			}
		}
		for _, s := range ins.StyleUpdates {
			if !styleSeen[strings.ToLower(s)] {
				styleSeen[strings.ToLower(s)] = true
				merged.StyleUpdates = append(merged.StyleUpdates, s)
			}
		}
		for _, g := range ins.GoalAdds {
			if !goalSeen[strings.ToLower(g)] {
				goalSeen[strings.ToLower(g)] = true
				merged.GoalAdds = append(merged.GoalAdds, g)
			}
		}
		for _, id := range ins.Retire {
			if mergeTargets[id] {
				continue // retire loses to merge
			}
			if !retireSeen[id] {
				retireSeen[id] = true
				merged.Retire = append(merged.Retire, id)
			}
		}
		for _, m := range ins.Merges {
			key := strings.Join(m.IDShorts, ",")
			idx, exists := mergeCSVSeen[key]
			if exists {
				merged.Merges[idx] = m // last synthesis wins
			} else {
				mergeCSVSeen[key] = len(merged.Merges)
				merged.Merges = append(merged.Merges, m)
			}
		}
		for _, v := range ins.Valence {
			valenceMap[v.IDShort] = v // last correction wins
		}
	}

	for _, v := range valenceMap {
		merged.Valence = append(merged.Valence, v)
	}
	return merged
}

// SpecialistRunner runs one specialist against one batch; returns an error
// on LLM failure so the caller can apply the per-batch fallback policy. The
// raw report text is returned alongside the parsed insights so a
// DeliberationRunner can quote it back to the synthesis agent.
type SpecialistRunner func(ctx context.Context, specialist Specialist, batch []Entry) (report string, insights AgenticInsights, err error)

// NewLLMSpecialistRunner builds a SpecialistRunner backed by model,
// rendering each specialist's prompt with SpecialistPrompt.
func NewLLMSpecialistRunner(model llm.LLM, identityCtx string) SpecialistRunner {
	return func(ctx context.Context, specialist Specialist, batch []Entry) (string, AgenticInsights, error) {
		prompt := SpecialistPrompt(specialist, batch, identityCtx)
		reply, err := model.Chat(ctx, "", []llm.Message{{Role: "user", Content: prompt}})
		if err != nil {
			return "", AgenticInsights{}, fmt.Errorf("specialist %s: %w", specialist, err)
		}
		return reply, ParseAgenticInsights(reply), nil
	}
}

// DeliberationRunner resolves one batch's specialist reports into a single
// consolidated AgenticInsights (spec §4.7: "a synthesis/deliberation agent"
// that reads all specialist reports and uses judgment where they conflict).
type DeliberationRunner func(ctx context.Context, reports map[Specialist]string, batch []Entry) (AgenticInsights, error)

// NewLLMDeliberationRunner builds a DeliberationRunner backed by model,
// rendering DeliberationPrompt over the batch's specialist reports.
func NewLLMDeliberationRunner(model llm.LLM, identityCtx string) DeliberationRunner {
	return func(ctx context.Context, reports map[Specialist]string, batch []Entry) (AgenticInsights, error) {
		prompt := DeliberationPrompt(reports, identityCtx)
		reply, err := model.Chat(ctx, "", []llm.Message{{Role: "user", Content: prompt}})
		if err != nil {
			return AgenticInsights{}, fmt.Errorf("deliberation: %w", err)
		}
		return ParseAgenticInsights(reply), nil
	}
}

// RunMultiAgentSleep executes the full nightly pipeline: batch entries, run
// four specialists per batch in parallel, deliberate, then merge across all
// batches. A failed specialist drops that batch to single-agent agentic
// fallback (fallback runs the same batch through runSingleAgent). Total
// failure of every batch falls back to single-agent agentic over all
// candidate entries (spec §4.7's Fallback clause).
func RunMultiAgentSleep(
	ctx context.Context,
	entries []Entry,
	cfg MultiAgentSleepConfig,
	runSpecialist SpecialistRunner,
	deliberate DeliberationRunner,
	runSingleAgent func(ctx context.Context, batch []Entry) (AgenticInsights, error),
) (AgenticInsights, error) {
	batches := BatchMemories(entries, cfg.batchSize())

	var batchResults []AgenticInsights
	anyBatchSucceeded := false

	for _, batch := range batches {
		insights, ok := runBatchSpecialists(ctx, batch, runSpecialist, deliberate)
		if !ok {
			// This batch's specialists failed (or partially failed enough to
			// lose confidence); fall back to single-agent agentic for it.
			fallback, err := runSingleAgent(ctx, batch)
			if err != nil {
				continue // recoverable: skip this batch, keep going
			}
			batchResults = append(batchResults, fallback)
			anyBatchSucceeded = true
			continue
		}
		batchResults = append(batchResults, insights)
		anyBatchSucceeded = true
	}

	if !anyBatchSucceeded {
		// Total multi-agent failure: fall back to single-agent agentic over
		// all candidates.
		fallback, err := runSingleAgent(ctx, entries)
		if err != nil {
			return AgenticInsights{}, fmt.Errorf("multi-agent sleep: total failure, single-agent fallback also failed: %w", err)
		}
		return fallback, nil
	}

	return MergeAgenticInsights(batchResults), nil
}

// runBatchSpecialists runs all four specialists in parallel for one batch,
// then resolves their reports into a single result via deliberate; ok is
// false if any specialist failed.
func runBatchSpecialists(ctx context.Context, batch []Entry, runSpecialist SpecialistRunner, deliberate DeliberationRunner) (AgenticInsights, bool) {
	type slotResult struct {
		specialist Specialist
		report     string
		insights   AgenticInsights
		err        error
	}

	results := make([]slotResult, len(allSpecialists))
	var wg sync.WaitGroup
	for i, s := range allSpecialists {
		wg.Add(1)
		go func(i int, s Specialist) {
			defer wg.Done()
			report, insights, err := runSpecialist(ctx, s, batch)
			results[i] = slotResult{specialist: s, report: report, insights: insights, err: err}
		}(i, s)
	}
	wg.Wait()

	var succeeded []AgenticInsights
	reports := map[Specialist]string{}
	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
			continue
		}
		succeeded = append(succeeded, r.insights)
		reports[r.specialist] = r.report
	}

	// A failed specialist causes that batch to fall back to single-agent
	// agentic mode (spec §4.7): treat any specialist failure as a signal to
	// discard this batch's specialist results entirely, letting the caller
	// retry the whole batch through runSingleAgent.
	if failures > 0 {
		return AgenticInsights{}, false
	}

	if deliberate != nil {
		if insights, err := deliberate(ctx, reports, batch); err == nil {
			return insights, true
		}
		// Deliberation failed (e.g. the synthesis call itself errored); fall
		// back to the deterministic merge rather than losing the batch.
	}

	return MergeAgenticInsights(succeeded), true
}
