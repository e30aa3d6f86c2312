// Package fuzzy ranks candidate capability and action names against a
// possibly misspelled target, so validation failures come back as
// "did you mean X?" messages instead of dead ends.
package fuzzy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

type MatchType string

const (
	MatchExact     MatchType = "exact"
	MatchAlias     MatchType = "alias"
	MatchSubstring MatchType = "substring"
	MatchPrefix    MatchType = "prefix"
	MatchFuzzy     MatchType = "fuzzy"
)

type Match struct {
	Name      string
	Score     float64
	MatchType MatchType
	Reason    string
}

type Options struct {
	MaxSuggestions int
	MinScore       float64
	IncludeAliases bool
}

func DefaultOptions() Options {
	return Options{MaxSuggestions: 3, MinScore: 0.4, IncludeAliases: true}
}

// aliases maps common synonyms and typos to canonical capability names.
var aliases = map[string]string{
	"calc":      "calculator",
	"math":      "calculator",
	"calculate": "calculator",
	"remmeber":  "memory",
	"remember":  "memory",
	"recall":    "memory",
	"notes":     "memory",
	"search":    "web",
	"browse":    "web",
	"google":    "web",
	"fetch":     "web",
	"files":     "filesystem",
	"file":      "filesystem",
	"fs":        "filesystem",
	"bash":      "shell",
	"terminal":  "shell",
	"cmd":       "shell",
	"cron":      "scheduler",
	"schedule":  "scheduler",
	"reminder":  "scheduler",
	"git":       "github",
	"wolfram":   "wolframalpha",
}

// FindMatches ranks candidates against target. Precedence, highest first:
// exact (1.0), alias (0.95), substring (0.8), shared prefix (0.7-0.9),
// Levenshtein similarity (kept only when >= opts.MinScore).
func FindMatches(target string, candidates []string, opts Options) []Match {
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 3
	}
	t := strings.ToLower(strings.TrimSpace(target))
	if t == "" {
		return nil
	}

	var matches []Match
	for _, cand := range candidates {
		c := strings.ToLower(cand)
		switch {
		case c == t:
			matches = append(matches, Match{
				Name: cand, Score: 1.0, MatchType: MatchExact,
				Reason: "exact match",
			})
		case opts.IncludeAliases && aliases[t] == c:
			matches = append(matches, Match{
				Name: cand, Score: 0.95, MatchType: MatchAlias,
				Reason: fmt.Sprintf("%q is a known alias of %q", target, cand),
			})
		case strings.Contains(c, t) || strings.Contains(t, c):
			matches = append(matches, Match{
				Name: cand, Score: 0.8, MatchType: MatchSubstring,
				Reason: "substring match",
			})
		default:
			if prefixScore := sharedPrefixScore(t, c); prefixScore > 0 {
				matches = append(matches, Match{
					Name: cand, Score: prefixScore, MatchType: MatchPrefix,
					Reason: "shared prefix",
				})
				continue
			}
			if sim := similarity(t, c); sim >= opts.MinScore {
				matches = append(matches, Match{
					Name: cand, Score: sim, MatchType: MatchFuzzy,
					Reason: fmt.Sprintf("%.0f%% similar", sim*100),
				})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > opts.MaxSuggestions {
		matches = matches[:opts.MaxSuggestions]
	}
	return matches
}

// sharedPrefixScore returns 0.7-0.9 scaled by how much of the shorter string
// the common prefix covers, or 0 when the prefix is too short to mean much.
func sharedPrefixScore(a, b string) float64 {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	if n < 3 {
		return 0
	}
	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}
	frac := float64(n) / float64(shorter)
	return 0.7 + 0.2*frac
}

// similarity is 1 - distance/max(len(a), len(b)).
func similarity(a, b string) float64 {
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 1.0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(d)/float64(longer)
}

// bestSuggestionThresholds gates auto-correction per match type. Exact and
// alias hits always qualify.
var bestSuggestionThresholds = map[MatchType]float64{
	MatchExact:     0,
	MatchAlias:     0,
	MatchSubstring: 0.8,
	MatchPrefix:    0.7,
	MatchFuzzy:     0.6,
}

// GetBestSuggestion returns the top match's name when it is confident enough
// to auto-correct to, or "" when the caller should surface suggestions instead.
func GetBestSuggestion(target string, candidates []string) string {
	matches := FindMatches(target, candidates, DefaultOptions())
	if len(matches) == 0 {
		return ""
	}
	top := matches[0]
	if top.Score >= bestSuggestionThresholds[top.MatchType] {
		return top.Name
	}
	return ""
}

// FormatSuggestions builds the corrective message fed back into the loop when
// a requested name does not exist.
func FormatSuggestions(kind, target string, matches []Match) string {
	if len(matches) == 0 {
		return fmt.Sprintf("Unknown %s %q and no close matches found.", kind, target)
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return fmt.Sprintf("Unknown %s %q. Did you mean: %s?", kind, target, strings.Join(names, ", "))
}
