package migration

import "embed"

// Dashboard holds the goose migrations for the dashboard database.
//
//go:embed postgresql/dashboard/*.sql
var Dashboard embed.FS

const DashboardDir = "postgresql/dashboard"
