package loop

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/firstsignal/signalbot/pkg/logger"
)

// runSweeper evicts pending interactions older than the configured age on
// the configured cron schedule. Eviction retracts the leftover image and
// prompt messages best-effort; an already-gone message is not an error
// worth reporting.
func (l *Loop) runSweeper(ctx context.Context) {
	gron := gronx.New()
	if !gron.IsValid(l.sweepCron) {
		logger.WarnCF("loop", "Invalid sweep cron expression, sweeper disabled", map[string]interface{}{
			"expr": l.sweepCron,
		})
		return
	}

	logger.InfoCF("loop", "Sweeper scheduled", map[string]interface{}{
		"expr":    l.sweepCron,
		"max_age": l.sweepMaxAge.String(),
	})

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := gron.IsDue(l.sweepCron, now)
			if err != nil || !due {
				continue
			}
			l.sweepOnce(ctx, now)
		}
	}
}

func (l *Loop) sweepOnce(ctx context.Context, now time.Time) {
	cutoff := now.Add(-l.sweepMaxAge)
	evicted := l.store.Sweep(cutoff)
	if len(evicted) == 0 {
		return
	}

	for _, entry := range evicted {
		if entry.Pending.ImageMessageID != 0 {
			_ = l.transport.DeleteMessage(ctx, entry.Key.Address, entry.Pending.ImageMessageID)
		}
		if entry.Pending.PromptMessageID != 0 {
			_ = l.transport.DeleteMessage(ctx, entry.Key.Address, entry.Pending.PromptMessageID)
		}
	}

	logger.InfoCF("loop", "Swept expired interactions", map[string]interface{}{
		"count":  len(evicted),
		"cutoff": cutoff.Format(time.RFC3339),
	})
}
