package capability

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Capability tags come back from the model as
//
//	<capability name="X" action="Y" attr="val" data='{"k":"v"}' />
//	<capability name="X" action="Y">free text content</capability>
//
// with single or double quoting on any attribute. The data attribute holds a
// JSON object that is merged into the params; the literal "data" key never
// survives into the final params. Malformed tags are skipped, never fatal.

var (
	openTagPattern = regexp.MustCompile(`<capability\b([^>]*?)(/?)>`)
	attrPattern    = regexp.MustCompile(`([a-zA-Z_][\w-]*)\s*=\s*(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')`)
)

const closeTag = "</capability>"

// ExtractCapabilities returns every well-formed invocation in text, in the
// order the tags appear. It never returns an error: malformed tags are
// dropped and extraction continues with the rest of the document.
func ExtractCapabilities(text string) []Invocation {
	var invocations []Invocation
	rest := text
	for {
		loc := openTagPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		attrText := rest[loc[2]:loc[3]]
		selfClosing := loc[4] != loc[5]
		after := rest[loc[1]:]

		var rawContent string
		if selfClosing {
			rest = after
		} else {
			end := strings.Index(after, closeTag)
			if end < 0 {
				// Unterminated tag: skip it, keep scanning the remainder.
				rest = after
				continue
			}
			rawContent = strings.TrimSpace(after[:end])
			rest = after[end+len(closeTag):]
		}

		inv, ok := buildInvocation(attrText, rawContent)
		if !ok {
			continue
		}
		invocations = append(invocations, inv)
	}
	return invocations
}

func buildInvocation(attrText, rawContent string) (Invocation, bool) {
	params := make(map[string]any)
	var name, action, dataBlob string

	for _, idx := range attrPattern.FindAllStringSubmatchIndex(attrText, -1) {
		key := attrText[idx[2]:idx[3]]
		var val string
		switch {
		case idx[4] >= 0: // double-quoted
			val = attrText[idx[4]:idx[5]]
		case idx[6] >= 0: // single-quoted
			val = attrText[idx[6]:idx[7]]
		}
		val = unescapeQuotes(val)

		switch key {
		case "name":
			name = val
		case "action":
			action = val
		case "data":
			dataBlob = val
		default:
			params[key] = val
		}
	}

	if name == "" || action == "" {
		return Invocation{}, false
	}

	if dataBlob != "" {
		var blob map[string]any
		if err := json.Unmarshal([]byte(dataBlob), &blob); err == nil {
			for k, v := range blob {
				if k == "data" {
					continue
				}
				params[k] = v
			}
		}
		// On malformed JSON the params stay attribute-only; the rest of the
		// document still parses.
	}

	return Invocation{
		Name:       name,
		Action:     action,
		Params:     params,
		RawContent: rawContent,
	}, true
}

func unescapeQuotes(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\'`, `'`)
	return s
}

// Tag re-serializes the invocation into tag syntax. Plain string params
// become attributes; everything else rides in a data blob. The safety
// reviewer forwards this form for execution on allow.
func (inv Invocation) Tag() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<capability name=%q action=%q`, inv.Name, inv.Action)

	keys := make([]string, 0, len(inv.Params))
	for k := range inv.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	blob := make(map[string]any)
	for _, k := range keys {
		if s, ok := inv.Params[k].(string); ok && !strings.ContainsAny(s, `"'<>`) {
			fmt.Fprintf(&sb, ` %s=%q`, k, s)
			continue
		}
		blob[k] = inv.Params[k]
	}
	if len(blob) > 0 {
		data, err := json.Marshal(blob)
		if err == nil {
			fmt.Fprintf(&sb, ` data='%s'`, string(data))
		}
	}

	if inv.RawContent == "" {
		sb.WriteString(" />")
	} else {
		sb.WriteString(">")
		sb.WriteString(sanitizeContent(inv.RawContent))
		sb.WriteString(closeTag)
	}
	return sb.String()
}

// sanitizeContent strips embedded closing tags so the serialized form always
// re-parses to a single invocation with the full body. The loop handles
// content that reassembles a closing tag after one removal pass.
func sanitizeContent(content string) string {
	for strings.Contains(content, closeTag) {
		content = strings.ReplaceAll(content, closeTag, "")
	}
	return content
}
