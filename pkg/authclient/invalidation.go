package authclient

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// InvalidateFunc hands control to the host's unauthenticated entry point.
type InvalidateFunc func(ctx context.Context, cause error)

// Invalidator clears the credential and calls the host hook. Repeated calls
// with no Set in between are no-ops, so the hook fires once per session. An
// empty holder has no session to end and never fires the hook.
type Invalidator struct {
	holder  *CredentialHolder
	hook    InvalidateFunc
	logger  *zap.SugaredLogger
	metrics *Metrics

	mu    sync.Mutex
	fired bool
	last  uint64
}

func NewInvalidator(holder *CredentialHolder, hook InvalidateFunc, logger *zap.SugaredLogger, metrics *Metrics) *Invalidator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Invalidator{holder: holder, hook: hook, logger: logger, metrics: metrics}
}

// Invalidate clears the current session. It reports whether the hook ran.
func (i *Invalidator) Invalidate(ctx context.Context, cause error) bool {
	return i.invalidate(ctx, i.holder.Epoch(), cause)
}

// invalidate clears the session only if the holder is still at epoch.
func (i *Invalidator) invalidate(ctx context.Context, epoch uint64, cause error) bool {
	i.mu.Lock()
	if i.fired && epoch == i.last {
		i.mu.Unlock()
		return false
	}
	next, ok := i.holder.clearIf(epoch)
	if !ok {
		i.mu.Unlock()
		return false
	}
	i.fired, i.last = true, next
	i.mu.Unlock()

	i.metrics.invalidation()
	i.logger.Infow("session invalidated", "cause", cause)
	if i.hook != nil {
		i.hook(ctx, cause)
	}
	return true
}
