package billing

import (
	"context"
	"fmt"

	"github.com/driftlabs/storefront-backend/pkg/config"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	"github.com/driftlabs/storefront-backend/pkg/logger"
	"github.com/driftlabs/storefront-backend/pkg/polar"
	pkgstripe "github.com/driftlabs/storefront-backend/pkg/stripe"
)

// NewProvider builds the billing provider selected by configuration. Exactly
// one provider is active per deployment.
func NewProvider(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Provider, error) {
	if cfg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "config required")
	}

	switch kind := cfg.Billing.ProviderKind(); kind {
	case "stripe":
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, err
		}
		return NewStripeProvider(client, cfg.Billing)
	case "polar":
		opts := []polar.Option{polar.WithWebhookSecret(cfg.Polar.Secret)}
		if cfg.Polar.BaseURL != "" {
			opts = append(opts, polar.WithBaseURL(cfg.Polar.BaseURL))
		}
		client, err := polar.NewClient(cfg.Polar.AccessToken, opts...)
		if err != nil {
			return nil, err
		}
		return NewPolarProvider(client, cfg.Billing)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown billing provider %q", kind))
	}
}
