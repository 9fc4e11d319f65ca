package plan

import "strings"

// Plan is the internal subscription tier.
type Plan string

const (
	PlanNone    Plan = "none"
	PlanTrial   Plan = "trial"
	PlanWeekly  Plan = "weekly"
	PlanMonthly Plan = "monthly"
	PlanAnnual  Plan = "annual"
)

// Parse normalizes a plan name. Unknown names map to PlanNone.
func Parse(s string) Plan {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trial":
		return PlanTrial
	case "weekly":
		return PlanWeekly
	case "monthly":
		return PlanMonthly
	case "annual":
		return PlanAnnual
	default:
		return PlanNone
	}
}

func (p Plan) String() string {
	return string(p)
}
