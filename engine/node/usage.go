package node

import "context"

// Usage accumulates token accounting for one effector invocation. The
// executor plants a recorder in the invocation context; effectors that
// talk to a chat model add their provider-reported counts to it. Not safe
// for concurrent writes — each invocation gets its own recorder.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Add accumulates one call's token counts.
func (u *Usage) Add(prompt, completion int) {
	u.PromptTokens += prompt
	u.CompletionTokens += completion
}

// Total returns the sum of the recorded prompt and completion tokens.
func (u *Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

type usageCtxKey struct{}

// ContextWithUsage returns a context carrying u as the invocation's token
// usage recorder.
func ContextWithUsage(ctx context.Context, u *Usage) context.Context {
	return context.WithValue(ctx, usageCtxKey{}, u)
}

// UsageFromContext returns the context's usage recorder, or nil when the
// caller did not plant one.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageCtxKey{}).(*Usage)
	return u
}
