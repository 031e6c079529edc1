/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/trading-dashboard/internal/bootstrap"
	"github.com/spf13/cobra"
)

// signalRetentionWorkerCmd represents the signal-retention-worker command
var signalRetentionWorkerCmd = &cobra.Command{
	Use:   "signal-retention-worker",
	Short: "Prune expired signals on a schedule",
	Long:  `Runs only the cron driven signal prune, for deployments that split it out of the gateway.`,
	Run:   bootstrap.StartSignalRetentionWorker,
}

func init() {
	rootCmd.AddCommand(signalRetentionWorkerCmd)
	signalRetentionWorkerCmd.Flags().Bool("run-now", false, "prune once before waiting for the schedule")
}
