package authclient

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ovaphlow/pitchfork/service-health-go/pkg/utilities"
)

const refreshKey = "refresh"

// Coordinator serializes credential renewal. The first request to report an
// invalid credential starts the one renewal call; every request reporting the
// same expiry while it runs waits for it and receives the same outcome.
type Coordinator struct {
	holder      *CredentialHolder
	renewer     Renewer
	invalidator *Invalidator
	timeout     time.Duration
	logger      *zap.SugaredLogger
	metrics     *Metrics

	group singleflight.Group
}

func NewCoordinator(holder *CredentialHolder, renewer Renewer, invalidator *Invalidator, timeout time.Duration, logger *zap.SugaredLogger, metrics *Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Coordinator{
		holder:      holder,
		renewer:     renewer,
		invalidator: invalidator,
		timeout:     timeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// Renew returns a credential newer than the one issued at epoch stale.
//
// If ctx ends first, Renew returns ctx.Err() while the shared renewal keeps
// running for the other waiters.
func (c *Coordinator) Renew(ctx context.Context, stale uint64) (Credential, error) {
	led := false
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		led = true
		return c.renew(ctx, stale)
	})
	select {
	case res := <-ch:
		// led is written before the result is delivered.
		if !led {
			c.metrics.waiter()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Credential), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) renew(ctx context.Context, stale uint64) (Credential, error) {
	if cur, epoch := c.holder.snapshot(); epoch != stale {
		// Renewed or invalidated after this request was sent.
		c.metrics.refresh("skipped")
		if cur.IsZero() {
			return "", ErrSessionInvalidated
		}
		return cur, nil
	}

	op := utilities.NewSnowflakeID()
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	start := time.Now()
	c.logger.Debugw("renewing credential", "op", op, "epoch", stale)
	cred, err := c.renewer.Renew(rctx)
	if err == nil && cred.IsZero() {
		err = errors.New("renewer returned an empty credential")
	}
	if err != nil {
		rerr := &RenewalError{Cause: err}
		c.metrics.refresh("failure")
		c.logger.Warnw("credential renewal failed", "op", op, "err", err, "duration_ms", time.Since(start).Milliseconds())
		if cur, epoch := c.holder.snapshot(); epoch != stale && !cur.IsZero() {
			// A new login landed while renewing; let waiters use it.
			return cur, nil
		}
		c.invalidator.invalidate(context.WithoutCancel(ctx), stale, rerr)
		return "", rerr
	}

	if !c.holder.setIf(stale, cred) {
		c.metrics.refresh("skipped")
		if cur := c.holder.Get(); !cur.IsZero() {
			return cur, nil
		}
		return "", ErrSessionInvalidated
	}
	c.metrics.refresh("success")
	c.logger.Debugw("credential renewed", "op", op, "duration_ms", time.Since(start).Milliseconds())
	return cred, nil
}
