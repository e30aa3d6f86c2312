package conscience

import (
	"fmt"
	"regexp"
	"strings"
)

// The danger manifest is the static, deterministic first line of defense.
// It runs before any model call and its blocks are authoritative: no
// downstream step can override them.

var protectedPathPrefixes = []string{
	"/etc/", "/usr/", "/var/", "/System/", "/boot/", "/root/",
}

var protectedFilenames = []string{"passwd", "shadow", "hosts"}

var destructiveCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf`),
	regexp.MustCompile(`\bdd\b`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bfdisk\b`),
	regexp.MustCompile(`\bformat\b`),
	regexp.MustCompile(`del\s+/s`),
}

var sqlInjectionTokens = []string{
	"DROP TABLE", "DELETE FROM", "UPDATE SET", "; --", "UNION SELECT",
}

// allowlistedCapabilities bypass review entirely; they are inherently safe
// or guarded by their own handler-side validation.
var allowlistedCapabilities = map[string]bool{
	"memory":       true,
	"calculator":   true,
	"web":          true,
	"deployment":   true,
	"notification": true,
	"github":       true,
	"scheduler":    true,
}

var deleteActions = map[string]bool{"delete": true, "remove": true, "rm": true, "unlink": true}

var memoryWriteActions = map[string]bool{"remember": true, "save": true, "write": true, "store": true}

// checkManifest returns a block reason when the invocation trips a static
// danger rule, or "" when it passes.
func checkManifest(name, action string, params map[string]any, content string) string {
	switch name {
	case "filesystem", "file":
		if !deleteActions[action] {
			return ""
		}
		path := stringParam(params, "path")
		if path == "" {
			path = strings.TrimSpace(content)
		}
		for _, prefix := range protectedPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				return fmt.Sprintf("refusing to delete %q: system path %s is protected", path, prefix)
			}
		}
		base := path
		if i := strings.LastIndex(path, "/"); i >= 0 {
			base = path[i+1:]
		}
		for _, fname := range protectedFilenames {
			if base == fname {
				return fmt.Sprintf("refusing to delete %q: %s is a protected system file", path, fname)
			}
		}

	case "shell", "terminal":
		cmd := stringParam(params, "command")
		if cmd == "" {
			cmd = content
		}
		for _, pat := range destructiveCommandPatterns {
			if pat.MatchString(cmd) {
				return fmt.Sprintf("refusing to run shell command: matches destructive pattern %q", pat.String())
			}
		}

	case "memory":
		if !memoryWriteActions[action] {
			return ""
		}
		text := strings.ToUpper(content + " " + stringParam(params, "content"))
		for _, token := range sqlInjectionTokens {
			if strings.Contains(text, token) {
				return fmt.Sprintf("refusing to store memory: content contains SQL pattern %q", token)
			}
		}
	}
	return ""
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// capabilityRiskNotes feed the model-review prompt for non-allowlisted
// capabilities.
var capabilityRiskNotes = map[string]string{
	"filesystem": "can read, write and delete files; deletes outside the workspace are dangerous",
	"shell":      "runs arbitrary commands; anything touching disks, system services or package managers is dangerous",
	"email":      "sends email on the user's behalf; mass or unsolicited sending is abuse",
	"sms":        "sends SMS on the user's behalf; costs money per message",
}
