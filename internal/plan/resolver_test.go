package plan

import (
	"testing"

	"github.com/platewise/platewise/internal/config"
	"github.com/stretchr/testify/assert"
)

func newTestResolver() *Resolver {
	holder := config.NewStaticPlanConfigHolder(config.PlanConfig{
		Prices: []config.PlanPrice{
			{PriceID: "price_trial_001", Plan: "trial"},
			{PriceID: "price_weekly_001", Plan: "weekly"},
			{PriceID: "price_monthly_001", Plan: "monthly"},
			{PriceID: "price_annual_001", Plan: "annual"},
		},
	})
	return NewResolver(holder)
}

func TestResolveMappedPrices(t *testing.T) {
	r := newTestResolver()

	assert.Equal(t, PlanTrial, r.Resolve("price_trial_001"))
	assert.Equal(t, PlanWeekly, r.Resolve("price_weekly_001"))
	assert.Equal(t, PlanMonthly, r.Resolve("price_monthly_001"))
	assert.Equal(t, PlanAnnual, r.Resolve("price_annual_001"))
}

func TestResolveUnknownPriceDefaultsToMonthly(t *testing.T) {
	r := newTestResolver()

	assert.Equal(t, PlanMonthly, r.Resolve("price_retired_2019"))
	assert.Equal(t, PlanMonthly, r.Resolve(""))
}

func TestResolveEmptyMapping(t *testing.T) {
	r := NewResolver(config.NewStaticPlanConfigHolder(config.PlanConfig{}))

	assert.Equal(t, PlanMonthly, r.Resolve("price_monthly_001"))
}

func TestResolveMappedToUnknownName(t *testing.T) {
	r := NewResolver(config.NewStaticPlanConfigHolder(config.PlanConfig{
		Prices: []config.PlanPrice{{PriceID: "price_x", Plan: "platinum"}},
	}))

	assert.Equal(t, PlanMonthly, r.Resolve("price_x"))
}

func TestParse(t *testing.T) {
	assert.Equal(t, PlanAnnual, Parse(" Annual "))
	assert.Equal(t, PlanNone, Parse("gold"))
	assert.Equal(t, PlanNone, Parse(""))
}
