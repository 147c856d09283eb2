package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/auth"
)

const purgeInterval = time.Hour

// purgeExpiredSessions deletes expired refresh sessions until ctx ends.
func purgeExpiredSessions(ctx context.Context, tokens *auth.TokenService, logger *zap.SugaredLogger) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := tokens.PurgeExpired(ctx)
			if err != nil {
				logger.Warnw("purge expired refresh sessions", "err", err)
				continue
			}
			if n > 0 {
				logger.Infow("purged expired refresh sessions", "count", n)
			}
		}
	}
}
