package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	defaultPruneSchedule = "@every 1h"
	pruneTimeout         = 30 * time.Second
)

type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// RetentionScheduler runs the signal prune on a cron schedule.
type RetentionScheduler struct {
	cron   *cron.Cron
	pruner Pruner
}

// NewRetentionScheduler accepts standard five field expressions and
// descriptors such as "@every 1h".
func NewRetentionScheduler(pruner Pruner, schedule string) (*RetentionScheduler, error) {
	if schedule == "" {
		schedule = defaultPruneSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	r := &RetentionScheduler{cron: c, pruner: pruner}
	if _, err := c.AddFunc(schedule, r.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	return r, nil
}

func (r *RetentionScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	removed, err := r.pruner.Prune(ctx)
	if err != nil {
		logrus.Errorf("signal retention prune failed: %v", err)
		return
	}
	logrus.WithField("removed", removed).Info("signal retention prune done")
}

func (r *RetentionScheduler) Start() {
	r.cron.Start()
}

// Stop waits for a running prune to finish or ctx to expire.
func (r *RetentionScheduler) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
