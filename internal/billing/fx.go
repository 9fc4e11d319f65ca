package billing

import (
	"github.com/platewise/platewise/internal/billing/domain"
	"github.com/platewise/platewise/internal/billing/stripe"
	"github.com/platewise/platewise/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(
		func(cfg config.Config) (domain.WebhookDecoder, error) {
			return stripe.NewDecoder(cfg.StripeWebhookSecret)
		},
		func(cfg config.Config) (domain.Provider, error) {
			return stripe.NewClient(cfg.StripeAPIKey)
		},
	),
)
