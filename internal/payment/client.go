package payment

import (
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"

	"github.com/atelierhq/atelier/internal/idgen"
)

// NewStripeClient returns an IntentsClient backed by the Stripe API.
func NewStripeClient(secretKey string) IntentsClient {
	return &paymentintent.Client{
		B:   stripe.GetBackend(stripe.APIBackend),
		Key: secretKey,
	}
}

// StubIntents fabricates payment intents locally. Used in development mode
// when no PSP key is configured, so the full finalize/retry flow stays
// exercisable without charging anything.
type StubIntents struct{}

func (StubIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	id := "pi_stub_" + idgen.Hex(8)
	var amount int64
	if params.Amount != nil {
		amount = *params.Amount
	}
	return &stripe.PaymentIntent{
		ID:           id,
		Amount:       amount,
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, idgen.Hex(12)),
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}, nil
}
