package constant

const (
	ProductionEnvironment  = "production"
	DevelopmentEnvironment = "development"
)

const DashboardDatabase = "dashboard"
