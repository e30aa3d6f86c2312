// Package actor carries the identity of the message sender through a
// capability execution. Handlers that scope their effects per user (memory,
// scheduler) read it from the context instead of taking it as a parameter.
package actor

import "context"

type userKey struct{}

// WithSender returns a context carrying the sending user's id. When the
// message has no sender, the context passes through unchanged.
func WithSender(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID returns the sender's id from the context, or "" if not set.
func UserID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(userKey{}).(string)
	return s
}
