package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/trading-dashboard/internal/config"
	"github.com/krobus00/trading-dashboard/internal/infrastructure"
	"github.com/krobus00/trading-dashboard/migration"
	"github.com/sirupsen/logrus"
)

const dashboardDatabase = "dashboard"

type operation func(ctx context.Context) error

// gracefulShutdown waits for termination syscalls and doing clean up operations after received it.
func gracefulShutdown(ctx context.Context, timeout time.Duration, ops map[string]operation) <-chan struct{} {
	wait := make(chan struct{})
	go func() {
		s := make(chan os.Signal, 1)

		// add any other syscalls that you want to be notified with
		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		<-s

		logrus.Info("shutting down")

		// set timeout for the ops to be done to prevent system hang
		timeoutFunc := time.AfterFunc(timeout, func() {
			logrus.Error(fmt.Sprintf("timeout %d ms has been elapsed, force exit", timeout.Milliseconds()))
			os.Exit(0)
		})

		defer timeoutFunc.Stop()

		var wg sync.WaitGroup

		for key, op := range ops {
			wg.Add(1)
			go func(key string, op operation) {
				defer wg.Done()

				logrus.Info(fmt.Sprintf("cleaning up: %s", key))
				if err := op(ctx); err != nil {
					logrus.Error(fmt.Sprintf("%s: clean up failed: %s", key, err.Error()))
					return
				}

				logrus.Info(fmt.Sprintf("%s was shutdown gracefully", key))
			}(key, op)
		}

		wg.Wait()

		close(wait)
	}()

	return wait
}

// openDashboardDatabase connects, starts the background ping and applies the
// embedded migrations when auto_migrate is set.
func openDashboardDatabase(ctx context.Context) (*sqlx.DB, error) {
	cfg := config.Env.Database[dashboardDatabase]

	db, err := infrastructure.NewPostgresConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	infrastructure.StartPostgresHealthCheck(ctx, db, cfg.PingInterval)

	if cfg.AutoMigrate {
		if err := infrastructure.MigrateUp(db, migration.Dashboard, migration.DashboardDir); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return db, nil
}
