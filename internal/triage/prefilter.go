package triage

import (
	"regexp"
	"strings"
)

// Keyword heuristics for messages that plainly want a tool. Advisory only:
// a false negative here just means the triage model gets consulted, and the
// pre-filter is never the sole basis for blocking capability use.
var capabilityKeywords = []string{
	"calculate", "compute", "math", "sum", "multiply", "divide",
	"remember", "recall", "remind", "forget", "note",
	"search", "look up", "lookup", "fetch", "browse", "url", "http",
	"file", "read", "write", "delete", "list", "directory",
	"run", "execute", "command", "shell", "script",
	"schedule", "cron", "every day", "every hour", "later",
	"github", "repo", "issue", "pull request",
	"deploy", "notify", "send",
}

var arithmeticPattern = regexp.MustCompile(`\d+\s*[-+*/^%]\s*\d+`)

// LikelyNeedsCapabilities is a cheap short-circuit: when it returns false the
// caller may skip the triage model call and hand the model no tools.
func LikelyNeedsCapabilities(message string) bool {
	lower := strings.ToLower(message)
	if arithmeticPattern.MatchString(lower) {
		return true
	}
	for _, kw := range capabilityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
