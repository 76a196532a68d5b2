package executor

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/nodemeta"
)

const (
	retryBase       = 250 * time.Millisecond
	retryCapFactor  = 4
	retryMaxRetries = 2 // plus the initial attempt, this caps a node at 3 attempts total
)

// DefaultTimeouts is the per-kind effector timeout table (spec §5).
var DefaultTimeouts = map[nodemeta.Kind]time.Duration{
	nodemeta.KindAILLM:        60 * time.Second,
	nodemeta.KindToolREST:     30 * time.Second,
	nodemeta.KindToolVectorDB: 15 * time.Second,
}

func timeoutFor(kind nodemeta.Kind, timeouts map[nodemeta.Kind]time.Duration) time.Duration {
	if d, ok := timeouts[kind]; ok {
		return d
	}
	if d, ok := DefaultTimeouts[kind]; ok {
		return d
	}
	return 0
}

// isRetryableKind reports whether kind retries transient errors: LLM and
// REST nodes do; embeddings, vector-db and gateway nodes do not.
func isRetryableKind(kind nodemeta.Kind) bool {
	return kind == nodemeta.KindAILLM || kind == nodemeta.KindToolREST
}

func newBackoff() (retry.Backoff, error) {
	b := retry.NewExponential(retryBase)
	b = retry.WithCappedDuration(retryCapFactor*retryBase, b)
	b = retry.WithMaxRetries(retryMaxRetries, b)
	return b, nil
}

// invokeWithRetry runs fn, retrying on a transient *core.Error when kind is
// retryable. Timeouts and non-transient errors are never retried.
func invokeWithRetry(ctx context.Context, kind nodemeta.Kind, fn func(context.Context) error) error {
	if !isRetryableKind(kind) {
		return fn(ctx)
	}
	b, err := newBackoff()
	if err != nil {
		return fn(ctx)
	}
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if core.ErrorCode(err) == core.CodeEffectorTransient {
			return retry.RetryableError(err)
		}
		return err
	})
}
