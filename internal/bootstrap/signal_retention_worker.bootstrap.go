package bootstrap

import (
	"context"

	"github.com/krobus00/trading-dashboard/internal/config"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/krobus00/trading-dashboard/internal/service/signal"
	"github.com/krobus00/trading-dashboard/internal/util"
	"github.com/spf13/cobra"
)

// StartSignalRetentionWorker runs only the scheduled signal prune.
func StartSignalRetentionWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDashboardDatabase(ctx)
	util.ContinueOrFatal(err)

	signalService := signal.NewSignalService(repository.NewSignalRepository(db), nil, nil, nil, nil, config.Env.Signals.PruneDays)

	retention, err := signal.NewRetentionScheduler(signalService, config.Env.Signals.PruneSchedule)
	util.ContinueOrFatal(err)

	runNow, _ := cmd.Flags().GetBool("run-now")
	if runNow {
		retention.RunOnce()
	}
	retention.Start()

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"signal retention": func(ctx context.Context) error {
			return retention.Stop(ctx)
		},
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
	})

	<-wait
}
