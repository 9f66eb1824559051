// Package jobs runs background work inside the server process.
package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// StartSyncJob calls run every interval until ctx is cancelled. run reports
// whether the cycle fully succeeded.
func StartSyncJob(ctx context.Context, interval time.Duration, run func(ctx context.Context) bool) {
	if interval <= 0 {
		return
	}
	logger := logrus.WithFields(logrus.Fields{"job": "periodic_sync", "interval": interval.String()})
	logger.Info("Periodic sync scheduled")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Periodic sync stopped")
			return
		case <-ticker.C:
			logger.Info("Starting periodic sync")
			started := time.Now()
			ok := run(ctx)
			entry := logger.WithFields(logrus.Fields{"duration": time.Since(started).String(), "success": ok})
			if ok {
				entry.Info("Periodic sync finished")
			} else {
				entry.Warn("Periodic sync finished with errors")
			}
		}
	}
}
