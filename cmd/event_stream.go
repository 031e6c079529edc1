/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"context"
	"time"

	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/infrastructure"
	"github.com/krobus00/trading-dashboard/internal/service/realtime"
	"github.com/krobus00/trading-dashboard/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// eventStreamCmd represents the event-stream command
var eventStreamCmd = &cobra.Command{
	Use:   "event-stream",
	Short: "Create or update the dashboard event stream",
	Long:  `Creates the JetStream stream that carries dashboard notifications, or updates it when it already exists.`,
	Run: func(cmd *cobra.Command, args []string) {
		nc, js, err := infrastructure.NewJetstream()
		util.ContinueOrFatal(err)
		defer func() {
			_ = infrastructure.CloseJetstream(nc)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		util.ContinueOrFatal(realtime.JetstreamEventInit(ctx, js))
		logrus.WithField("stream", constant.DashboardEventStreamName).Info("dashboard event stream ready")
	},
}

func init() {
	rootCmd.AddCommand(eventStreamCmd)
}
