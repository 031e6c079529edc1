package constant

const (
	PlanFree  = "Free"
	PlanCore  = "Core"
	PlanPro   = "Pro"
	PlanElite = "Elite"
)

const (
	AssetTypeCrypto = "crypto"
	AssetTypeEquity = "equity"
)

// IsPaidPlan reports whether plan grants a subscription tier.
func IsPaidPlan(plan string) bool {
	switch plan {
	case PlanCore, PlanPro, PlanElite:
		return true
	}
	return false
}
