/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/trading-dashboard/internal/bootstrap"
	"github.com/spf13/cobra"
)

// dashboardGatewayCmd represents the dashboard-gateway command
var dashboardGatewayCmd = &cobra.Command{
	Use:   "dashboard-gateway",
	Short: "Dashboard HTTP and WebSocket gateway",
	Long: `Dashboard Gateway serves the JSON API and the /ws price stream used by the dashboard.

This service:
- Proxies and caches market data, news and sentiment providers
- Stores signals, watchlists, alerts, portfolio positions and mentor history
- Shares one upstream ticker connection per symbol across browser sessions
- Relays dashboard notifications through NATS JetStream when configured
- Prunes expired signals on a cron schedule`,
	Run: bootstrap.StartDashboardGateway,
}

func init() {
	rootCmd.AddCommand(dashboardGatewayCmd)
}
