package plan

import (
	"github.com/platewise/platewise/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Resolver maps billing-provider price identifiers to internal plans.
//
// Resolve is total: every input yields a usable plan. An unrecognized or
// empty price identifier resolves to PlanMonthly so a paying subscriber is
// never downgraded by a stale price mapping.
type Resolver struct {
	holder *config.PlanConfigHolder
}

func NewResolver(holder *config.PlanConfigHolder) *Resolver {
	return &Resolver{holder: holder}
}

// Resolve returns the plan for a price identifier.
func (r *Resolver) Resolve(priceID string) Plan {
	if r == nil || r.holder == nil {
		return PlanMonthly
	}

	mapping := r.holder.Get().PriceMap()
	name, ok := mapping[priceID]
	if !ok {
		if priceID != "" {
			zap.L().Warn("unmapped price id, defaulting plan",
				zap.String("price_id", priceID),
				zap.String("plan", PlanMonthly.String()),
			)
		}
		return PlanMonthly
	}

	resolved := Parse(name)
	if resolved == PlanNone {
		return PlanMonthly
	}
	return resolved
}

var Module = fx.Module("plan",
	fx.Provide(NewResolver),
)
