package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/room302studio/coachartie2-sub006/internal/actor"
	"github.com/room302studio/coachartie2-sub006/internal/capability"
)

// Capability exposes the scheduler to the model as the "scheduler"
// capability. The acting user rides in on the context; governance is
// enforced by the scheduler itself, not by the handler.
func Capability(s *Scheduler) capability.Descriptor {
	return capability.Descriptor{
		Name:             "scheduler",
		Description:      "Create, list, pause, resume, and remove scheduled reminders",
		SupportedActions: []string{"add", "remove", "pause", "resume", "list"},
		Examples: []string{
			`<capability name="scheduler" action="add" job="standup" spec="0 9 * * 1-5">Time for standup!</capability>`,
			`<capability name="scheduler" action="list" />`,
		},
		Handler: func(ctx context.Context, params map[string]any, content string) (string, error) {
			userID := actor.UserID(ctx)
			action, _ := params["action"].(string)
			name, _ := params["job"].(string)

			switch action {
			case "add":
				spec, _ := params["spec"].(string)
				message := strings.TrimSpace(content)
				if message == "" {
					message, _ = params["message"].(string)
				}
				respondTo, _ := params["respond_to"].(string)
				err := s.AddJob(Job{
					Name:      name,
					Spec:      spec,
					Message:   message,
					RespondTo: respondTo,
				}, userID)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Scheduled %q (%s).", name, spec), nil

			case "remove":
				if err := s.RemoveJob(name, userID); err != nil {
					return "", err
				}
				return fmt.Sprintf("Removed %q.", name), nil

			case "pause":
				if err := s.PauseJob(name, userID); err != nil {
					return "", err
				}
				return fmt.Sprintf("Paused %q.", name), nil

			case "resume":
				if err := s.ResumeJob(name, userID); err != nil {
					return "", err
				}
				return fmt.Sprintf("Resumed %q.", name), nil

			case "list":
				jobs := s.ListJobs()
				if len(jobs) == 0 {
					return "No scheduled jobs.", nil
				}
				var b strings.Builder
				for _, j := range jobs {
					state := "active"
					if j.Paused {
						state = "paused"
					}
					fmt.Fprintf(&b, "%s [%s] %s: %s\n", j.Name, state, j.Spec, j.Message)
				}
				return strings.TrimRight(b.String(), "\n"), nil

			default:
				return "", fmt.Errorf("unsupported scheduler action %q", action)
			}
		},
	}
}
