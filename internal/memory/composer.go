package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const defaultMaxBeliefsInPrompt = 5

// BeliefScore is the composite ranking used to select which active beliefs
// make it into the MY_BELIEFS: prompt block (spec §4.5 step 3).
func BeliefScore(e Entry, now time.Time) float64 {
	days := now.Sub(e.CreatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	recencyFactor := 1.0 / (1.0 + days)
	return 0.6*clamp01(e.Confidence) + 0.25*recencyFactor + 0.15*((e.Valence+1)/2)
}

// ActiveBeliefs filters entries down to beliefs (Tier=Core, Source="belief")
// that have no sibling retraction entry, per spec §3's Belief definition.
func ActiveBeliefs(entries []Entry) []Entry {
	retracted := map[string]bool{}
	for _, e := range entries {
		const prefix = "belief:retracted:"
		if strings.HasPrefix(e.Source, prefix) {
			retracted[strings.TrimPrefix(e.Source, prefix)] = true
		}
	}
	var out []Entry
	for _, e := range entries {
		if IsBelief(e) && !retracted[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

// RelationalMatrix computes a compact cross-tier association table from
// co-occurring topics/tags: pairs of tiers that share at least one topic
// token, with the shared token set.
type RelationalMatrix []RelationalLink

type RelationalLink struct {
	TierA, TierB Tier
	SharedTopics []string
}

func BuildRelationalMatrix(entries []Entry) RelationalMatrix {
	topicsByTier := map[Tier]map[string]bool{}
	for _, e := range entries {
		if e.IsTombstone() {
			continue
		}
		set := topicsByTier[e.Tier]
		if set == nil {
			set = map[string]bool{}
			topicsByTier[e.Tier] = set
		}
		for _, tok := range Tokenize(e.Content) {
			set[tok] = true
		}
	}

	tiers := make([]Tier, 0, len(topicsByTier))
	for t := range topicsByTier {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })

	var matrix RelationalMatrix
	for i := 0; i < len(tiers); i++ {
		for j := i + 1; j < len(tiers); j++ {
			var shared []string
			for tok := range topicsByTier[tiers[i]] {
				if topicsByTier[tiers[j]][tok] {
					shared = append(shared, tok)
				}
			}
			if len(shared) == 0 {
				continue
			}
			sort.Strings(shared)
			matrix = append(matrix, RelationalLink{TierA: tiers[i], TierB: tiers[j], SharedTopics: shared})
		}
	}
	return matrix
}

// PromptComponents holds every input ComposePrompt needs, assembled by the
// caller (daemon runtime) so this package never depends on the llm package.
type PromptComponents struct {
	KVBlock           string // raw contents of core_summary.yaml + user_profile.yaml
	Identity          Identity
	AllEntries        []Entry
	RankedContext     []ScoredEntry
	RecentTurns       []ConversationTurn
	UserMessage       string
	MaxBeliefsInPrompt int
	Now               time.Time
}

// ComposePrompt assembles the final prompt in the pinned order required by
// spec §4.5: KV auto-injection, IDENTITY, MY_BELIEFS, RELATIONAL MATRIX,
// ranked context, recent turns, then the current user message.
func ComposePrompt(c PromptComponents) string {
	now := c.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	maxBeliefs := c.MaxBeliefsInPrompt
	if maxBeliefs <= 0 {
		maxBeliefs = defaultMaxBeliefsInPrompt
	}

	var b strings.Builder

	if c.KVBlock != "" {
		b.WriteString("KV:\n")
		b.WriteString(c.KVBlock)
		b.WriteString("\n\n")
	}

	b.WriteString(c.Identity.PromptBlock())
	b.WriteString("\n")

	beliefs := ActiveBeliefs(c.AllEntries)
	sort.SliceStable(beliefs, func(i, j int) bool {
		return BeliefScore(beliefs[i], now) > BeliefScore(beliefs[j], now)
	})
	if len(beliefs) > maxBeliefs {
		beliefs = beliefs[:maxBeliefs]
	}
	if len(beliefs) > 0 {
		b.WriteString("MY_BELIEFS:\n")
		for _, belief := range beliefs {
			fmt.Fprintf(&b, "- %s (confidence %.2f)\n", belief.Content, belief.Confidence)
		}
		b.WriteString("\n")
	}

	matrix := BuildRelationalMatrix(c.AllEntries)
	if len(matrix) > 0 {
		b.WriteString("RELATIONAL MATRIX:\n")
		for _, link := range matrix {
			fmt.Fprintf(&b, "- %s <-> %s: %s\n", link.TierA, link.TierB, strings.Join(link.SharedTopics, ", "))
		}
		b.WriteString("\n")
	}

	if len(c.RankedContext) > 0 {
		b.WriteString("CONTEXT:\n")
		for _, s := range c.RankedContext {
			fmt.Fprintf(&b, "- [%s] %s\n", s.Entry.Tier, s.Entry.Content)
		}
		b.WriteString("\n")
	}

	if len(c.RecentTurns) > 0 {
		b.WriteString("RECENT CONVERSATION:\n")
		for _, t := range c.RecentTurns {
			fmt.Fprintf(&b, "user: %s\nassistant: %s\n", t.UserText, t.AssistantText)
		}
		b.WriteString("\n")
	}

	b.WriteString("USER: ")
	b.WriteString(c.UserMessage)

	return b.String()
}
