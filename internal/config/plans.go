package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanPrice binds a billing-provider price identifier to an internal plan name.
type PlanPrice struct {
	PriceID string `mapstructure:"priceId"`
	Plan    string `mapstructure:"plan"`
}

// PlanConfig holds the configured price-to-plan mapping.
type PlanConfig struct {
	Prices []PlanPrice `mapstructure:"prices"`
}

// PriceMap returns the mapping keyed by price identifier.
func (c PlanConfig) PriceMap() map[string]string {
	out := make(map[string]string, len(c.Prices))
	for _, p := range c.Prices {
		id := strings.TrimSpace(p.PriceID)
		if id == "" {
			continue
		}
		out[id] = strings.ToLower(strings.TrimSpace(p.Plan))
	}
	return out
}

// DefaultPlanConfig builds the mapping from STRIPE_PRICE_* environment
// variables so a plans.yml file is optional for single-tenant deployments.
func DefaultPlanConfig() PlanConfig {
	var prices []PlanPrice
	for _, tier := range []string{"trial", "weekly", "monthly", "annual"} {
		id := strings.TrimSpace(os.Getenv("STRIPE_PRICE_" + strings.ToUpper(tier)))
		if id == "" {
			continue
		}
		prices = append(prices, PlanPrice{PriceID: id, Plan: tier})
	}
	return PlanConfig{Prices: prices}
}

// PlanConfigHolder exposes the current plan mapping with hot reload.
type PlanConfigHolder struct {
	current atomic.Value // holds PlanConfig
}

func NewPlanConfigHolder() (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/platewise/config") // Volume-mounted config
	v.AddConfigPath("/etc/platewise")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("PLATEWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPlanConfig()
		v.SetDefault("plans.prices", defaults.Prices)
	}

	var cfg PlanConfig
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlanConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanConfig
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			log.Printf("[plan-config] reload failed: %v", err)
			return
		}
		if err := validatePlanConfig(updated); err != nil {
			log.Printf("[plan-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPlanConfigHolder builds a holder with a fixed mapping, for tests.
func NewStaticPlanConfigHolder(cfg PlanConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PlanConfigHolder) Get() PlanConfig {
	return h.current.Load().(PlanConfig)
}

func validatePlanConfig(cfg PlanConfig) error {
	for _, p := range cfg.Prices {
		switch strings.ToLower(strings.TrimSpace(p.Plan)) {
		case "none", "trial", "weekly", "monthly", "annual":
		default:
			return errors.New("plans.prices contains an unknown plan name")
		}
	}
	return nil
}
