package bolsync

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oakerp/bolsync/config"
	"github.com/oakerp/bolsync/models"
	"github.com/oakerp/bolsync/utils"
)

const (
	// processSafetyMargin is subtracted from the cron interval to bound
	// queue processing so a run finishes before the next tick fires.
	processSafetyMargin = 60 * time.Second
	// shippedSafetyMargin bounds the shipped order import the same way.
	shippedSafetyMargin = 100 * time.Second
)

func SchedulerInterval() time.Duration {
	seconds := 600
	if v := strings.TrimSpace(os.Getenv("BOL_SYNC_INTERVAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			seconds = n
		}
	}
	return time.Duration(seconds) * time.Second
}

// ProcessBudget is the time available for queue processing within one tick.
func ProcessBudget(interval time.Duration) time.Duration {
	budget := interval - processSafetyMargin
	if budget <= 0 {
		budget = interval / 2
	}
	return budget
}

// ShippedImportBudget is the time available for shipped order import within
// one tick.
func ShippedImportBudget(interval time.Duration) time.Duration {
	budget := interval - shippedSafetyMargin
	if budget <= 0 {
		budget = interval / 2
	}
	return budget
}

// StartScheduler runs the periodic sync loop until the context is
// cancelled. Each connected instance is synced under a redis lock so
// overlapping service replicas never work the same instance twice.
func (s *Service) StartScheduler(ctx context.Context) {
	interval := SchedulerInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runScheduledSync(ctx, interval)
		}
	}
}

func (s *Service) runScheduledSync(ctx context.Context, interval time.Duration) {
	instances, err := models.ListConnectedInstances(ctx)
	if err != nil {
		config.LogError(s.logger, "bolsync", "runScheduledSync", "failed to list instances", nil, err)
		return
	}

	for _, instance := range instances {
		release, err := utils.InstanceLock(ctx, instance.ID, "bolsync", "scheduler.go", "runScheduledSync")
		if err != nil {
			// another replica owns this instance this tick
			continue
		}
		s.syncInstance(ctx, instance, interval)
		release()
	}
}

func (s *Service) syncInstance(ctx context.Context, instance *models.Instance, interval time.Duration) {
	runCtx := utils.SetCorrelationIdInContext(ctx, models.CorrelationIdFromContextOrNew(nil))
	runCtx = utils.SetInstanceIdInContext(runCtx, instance.ID)

	if _, err := s.ImportOrders(runCtx, instance); err != nil {
		config.LogError(s.logger, "bolsync", "syncInstance", "order import failed", instance.ID, err)
	}
	if err := s.ProcessQueues(runCtx, instance, ProcessBudget(interval)); err != nil {
		config.LogError(s.logger, "bolsync", "syncInstance", "queue processing failed", instance.ID, err)
	}
	if _, err := s.ImportShippedOrders(runCtx, instance, ShippedImportBudget(interval)); err != nil {
		config.LogError(s.logger, "bolsync", "syncInstance", "shipped order import failed", instance.ID, err)
	}
	if _, err := s.UpdateOrderStatus(runCtx, instance); err != nil {
		config.LogError(s.logger, "bolsync", "syncInstance", "order status export failed", instance.ID, err)
	}
}
