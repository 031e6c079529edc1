package constant

const (
	DashboardEventStreamName       = "dashboard_events"
	DashboardEventStreamSubjectAll = "dashboard.events.*"

	DashboardEventSignalAdded      = "signal_added"
	DashboardEventAlertTriggered   = "alert_triggered"
	DashboardEventAccountDeleted   = "account_deleted"
	DashboardEventUserNotification = "user_notification"
)

func GetDashboardEventSubject(eventType string) string {
	return "dashboard.events." + eventType
}
