package memory

import (
	"strings"
	"unicode"
)

var positiveWords = map[string]bool{
	"great": true, "love": true, "excited": true, "happy": true, "amazing": true,
	"solved": true, "success": true, "excellent": true, "wonderful": true,
	"fantastic": true, "glad": true, "pleased": true, "proud": true,
	"brilliant": true, "perfect": true, "works": true, "fixed": true,
	"done": true, "achieved": true, "helpful": true, "thanks": true,
	"awesome": true, "enjoy": true, "like": true, "good": true, "nice": true,
	"yes": true,
}

var negativeWords = map[string]bool{
	"frustrated": true, "confused": true, "error": true, "failed": true,
	"worried": true, "stuck": true, "broken": true, "terrible": true,
	"awful": true, "wrong": true, "bad": true, "hate": true, "annoying": true,
	"difficult": true, "struggle": true, "issue": true, "bug": true,
	"crash": true, "problem": true, "cannot": true, "unable": true,
	"fail": true, "loss": true, "lost": true, "miss": true, "missing": true,
}

var negationTokens = map[string]bool{
	"not": true, "no": true, "never": true, "without": true,
}

// ScoreValence infers an emotional valence for content on a keyword
// heuristic, clamped to [-1,1] (spec §3: "sentiment under a two-word
// negation window; 'not' acts as modifier only"). Ported from
// original_source/crates/memory/src/sentiment.rs::infer_valence.
func ScoreValence(content string) float64 {
	lower := strings.ToLower(content)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var score float64
	for i, word := range words {
		negated := (i > 0 && negationTokens[words[i-1]]) ||
			(i > 1 && negationTokens[words[i-2]])

		switch {
		case positiveWords[word]:
			if negated {
				score -= 0.10
			} else {
				score += 0.15
			}
		case negativeWords[word]:
			if negated {
				score += 0.10
			} else {
				score -= 0.15
			}
		}
	}

	exclamations := float64(strings.Count(content, "!"))
	score += min(exclamations*0.05, 0.20)

	var capsBonus float64
	for _, word := range strings.Fields(content) {
		var alphaOnly strings.Builder
		for _, r := range word {
			if unicode.IsLetter(r) {
				alphaOnly.WriteRune(r)
			}
		}
		letters := alphaOnly.String()
		if len(letters) >= 4 && letters == strings.ToUpper(letters) {
			capsBonus += 0.10
		}
	}
	score += min(capsBonus, 0.20)

	return clampValence(score)
}

func clampValence(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}
