package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/room302studio/coachartie2-sub006/internal/capability"
)

const maxFetchBytes = 256 << 10 // pages beyond this are truncated

var tagStripper = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]*>`)

// Web returns the page-fetch capability. Fetched text is treated as data by
// the orchestrator's output guard; this handler only retrieves and trims it.
func Web(client *http.Client) capability.Descriptor {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return capability.Descriptor{
		Name:             "web",
		Description:      "Fetch a web page and return its readable text",
		SupportedActions: []string{"fetch", "get"},
		RequiredParams:   []string{"url"},
		Examples: []string{
			`<capability name="web" action="fetch" url="https://example.com" />`,
		},
		Handler: func(ctx context.Context, params map[string]any, _ string) (string, error) {
			raw, _ := params["url"].(string)
			target, err := url.Parse(raw)
			if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
				return "", fmt.Errorf("invalid url %q", raw)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("User-Agent", "coachartie/1.0")

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("fetching %s: %w", target, err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return "", fmt.Errorf("fetching %s: status %d", target, resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
			if err != nil {
				return "", fmt.Errorf("reading %s: %w", target, err)
			}
			return condenseText(string(body)), nil
		},
	}
}

// condenseText strips markup and collapses whitespace so the model gets
// readable text instead of raw HTML.
func condenseText(s string) string {
	s = tagStripper.ReplaceAllString(s, " ")
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
