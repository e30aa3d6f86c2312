package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/room302studio/coachartie2-sub006/internal/actor"
	"github.com/room302studio/coachartie2-sub006/internal/capability"
	"github.com/room302studio/coachartie2-sub006/internal/state"
)

// Memory returns the persistent-memory capability backed by the state store.
// Memories are scoped to the sending user; the sender id rides in on the
// execution context.
func Memory(store *state.Store) capability.Descriptor {
	return capability.Descriptor{
		Name:             "memory",
		Description:      "Remember facts for later and recall them by keyword",
		SupportedActions: []string{"remember", "recall", "search"},
		Examples: []string{
			`<capability name="memory" action="remember">User prefers Celsius</capability>`,
			`<capability name="memory" action="recall" query="temperature" />`,
		},
		Handler: func(ctx context.Context, params map[string]any, content string) (string, error) {
			userID := actor.UserID(ctx)
			if userID == "" {
				return "", fmt.Errorf("no sender identity on this request")
			}

			action, _ := params["action"].(string)
			switch action {
			case "remember":
				text := strings.TrimSpace(content)
				if text == "" {
					text, _ = params["content"].(string)
				}
				if text == "" {
					return "", fmt.Errorf("nothing to remember")
				}
				if _, err := store.SaveMemory(ctx, userID, text); err != nil {
					return "", err
				}
				return "Remembered.", nil

			case "recall", "search":
				query, _ := params["query"].(string)
				if query == "" {
					query = strings.TrimSpace(content)
				}
				limit := 10
				if raw, ok := params["limit"].(string); ok {
					if n, err := strconv.Atoi(raw); err == nil {
						limit = n
					}
				}
				memories, err := store.SearchMemories(ctx, userID, query, limit)
				if err != nil {
					return "", err
				}
				if len(memories) == 0 {
					return "No matching memories.", nil
				}
				var b strings.Builder
				for i, m := range memories {
					fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, m.Content, m.CreatedAt.Format("2006-01-02"))
				}
				return strings.TrimRight(b.String(), "\n"), nil

			default:
				return "", fmt.Errorf("unsupported memory action %q", action)
			}
		},
	}
}
