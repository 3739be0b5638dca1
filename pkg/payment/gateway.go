package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"

	"github.com/goliatone/go-formengine/pkg/backend"
)

// Checkout is what a gateway hands back to the respondent: either a hosted
// page to visit or the raw order for an embedded widget.
type Checkout struct {
	Gateway     string
	OrderID     string
	Amount      float64
	Currency    string
	RedirectURL string
	SessionID   string
}

// Gateway starts the external payment step for an order.
type Gateway interface {
	Name() string
	Start(ctx context.Context, submissionID string, order backend.Order) (Checkout, error)
}

// ManualGateway returns the order untouched for an external embed.
type ManualGateway struct{}

func (ManualGateway) Name() string { return "manual" }

func (ManualGateway) Start(_ context.Context, _ string, order backend.Order) (Checkout, error) {
	return Checkout{
		Gateway:  "manual",
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
	}, nil
}

// SessionCreator creates Stripe checkout sessions.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeConfig configures the hosted checkout gateway.
type StripeConfig struct {
	SecretKey   string
	SuccessURL  string
	CancelURL   string
	ProductName string
}

// StripeGateway opens a hosted Stripe checkout session for the order.
// Order amounts are in minor currency units.
type StripeGateway struct {
	cfg      StripeConfig
	sessions SessionCreator
}

// NewStripeGateway builds a gateway using the Stripe API backend. A nil
// creator uses the live checkout session client with cfg.SecretKey.
func NewStripeGateway(cfg StripeConfig, creator SessionCreator) (*StripeGateway, error) {
	if creator == nil {
		if strings.TrimSpace(cfg.SecretKey) == "" {
			return nil, fmt.Errorf("payment: stripe secret key is required")
		}
		creator = session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey}
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, fmt.Errorf("payment: stripe success and cancel urls are required")
	}
	if cfg.ProductName == "" {
		cfg.ProductName = "Registration fee"
	}
	return &StripeGateway{cfg: cfg, sessions: creator}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) Start(_ context.Context, submissionID string, order backend.Order) (Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(expandURL(g.cfg.SuccessURL, submissionID)),
		CancelURL:         stripe.String(expandURL(g.cfg.CancelURL, submissionID)),
		ClientReferenceID: stripe.String(submissionID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(order.Currency)),
				UnitAmount: stripe.Int64(int64(order.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(g.cfg.ProductName),
				},
			},
		}},
	}
	params.AddMetadata("order_id", order.ID)
	params.AddMetadata("submission_id", submissionID)

	sess, err := g.sessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("payment: stripe checkout: %w", err)
	}
	return Checkout{
		Gateway:     "stripe",
		OrderID:     order.ID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		RedirectURL: sess.URL,
		SessionID:   sess.ID,
	}, nil
}

// expandURL substitutes {submissionId} so the confirmation view knows which
// submission to poll.
func expandURL(raw, submissionID string) string {
	return strings.ReplaceAll(raw, "{submissionId}", submissionID)
}
