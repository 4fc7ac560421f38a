// Package payment bridges contract finalization to the external payment
// widget.
//
// The bridge issues order descriptors backed by PSP payment intents and
// validates them before the widget is ever invoked. It never observes the
// payment outcome synchronously: the widget redirects to success/fail routes
// handled elsewhere, and the engine learns the result from the server of
// record. Abandoned orders are recovered by requesting a fresh descriptor,
// never by re-signing.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v81"

	"github.com/atelierhq/atelier/internal/circuitbreaker"
	"github.com/atelierhq/atelier/internal/idgen"
	"github.com/atelierhq/atelier/internal/metrics"
)

var (
	// ErrNoOrder is returned when Invoke is called without a descriptor.
	ErrNoOrder = errors.New("payment: no order descriptor")
	// ErrStaleOrder is returned when the descriptor has expired.
	ErrStaleOrder = errors.New("payment: order descriptor expired, request a new one")
	// ErrProcessorUnavailable is returned when the PSP circuit is open.
	ErrProcessorUnavailable = errors.New("payment: payment processor unavailable, try again shortly")
)

// breakerKey is the circuit breaker key for the PSP.
const breakerKey = "psp"

// OrderDescriptor is the tuple handed to the payment widget.
type OrderDescriptor struct {
	Amount       int64     `json:"amount"`
	OrderID      string    `json:"orderId"`
	ProductName  string    `json:"productName"`
	CustomerName string    `json:"customerName"`
	ClientSecret string    `json:"clientSecret"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the descriptor is no longer usable.
func (o *OrderDescriptor) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// WidgetInvocation is the validated payload the UI hands to the widget.
type WidgetInvocation struct {
	OrderID      string `json:"orderId"`
	Amount       int64  `json:"amount"`
	ProductName  string `json:"productName"`
	CustomerName string `json:"customerName"`
	ClientSecret string `json:"clientSecret"`
	SuccessURL   string `json:"successUrl"`
	FailURL      string `json:"failUrl"`
}

// IntentsClient creates payment intents at the PSP.
// Satisfied by stripe-go's paymentintent client; faked in tests.
type IntentsClient interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Bridge issues and validates order descriptors.
type Bridge struct {
	intents  IntentsClient
	breaker  *circuitbreaker.Breaker
	currency string
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the bridge.
type Option func(*Bridge)

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// New creates a payment bridge. intents may be a stub in development mode.
func New(intents IntentsClient, currency string, ttl time.Duration, opts ...Option) *Bridge {
	b := &Bridge{
		intents:  intents,
		breaker:  circuitbreaker.New(5, 30*time.Second),
		currency: currency,
		ttl:      ttl,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RequestOrder asks the PSP for a fresh payment intent and returns the order
// descriptor for it. Safe to call repeatedly for the same contract: each call
// supersedes any prior descriptor with a new OrderID, which is how abandoned
// widget sessions are recovered.
func (b *Bridge) RequestOrder(ctx context.Context, contractID string, amount int64, productName, customerName string) (*OrderDescriptor, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payment: invalid amount %d", amount)
	}
	if !b.breaker.Allow(breakerKey) {
		metrics.PaymentOrdersTotal.WithLabelValues("rejected").Inc()
		return nil, ErrProcessorUnavailable
	}

	orderID := idgen.WithPrefix("ord_")

	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(b.currency),
		Description: stripe.String(productName),
	}
	params.AddMetadata("contractId", contractID)
	params.AddMetadata("orderId", orderID)

	intent, err := b.intents.New(params)
	if err != nil {
		b.breaker.RecordFailure(breakerKey)
		metrics.PaymentOrdersTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("payment: failed to create payment intent: %w", err)
	}
	b.breaker.RecordSuccess(breakerKey)

	now := b.now()
	desc := &OrderDescriptor{
		Amount:       amount,
		OrderID:      orderID,
		ProductName:  productName,
		CustomerName: customerName,
		ClientSecret: intent.ClientSecret,
		IssuedAt:     now,
		ExpiresAt:    now.Add(b.ttl),
	}

	metrics.PaymentOrdersTotal.WithLabelValues("issued").Inc()
	b.logger.Info("payment order issued",
		"contractId", contractID,
		"orderId", orderID,
		"amount", amount,
	)
	return desc, nil
}

// Invoke validates a descriptor and produces the widget invocation payload.
// A stale or missing descriptor is rejected with a descriptive error rather
// than invoking the widget with undefined behavior.
func (b *Bridge) Invoke(desc *OrderDescriptor, successURL, failURL string) (*WidgetInvocation, error) {
	if desc == nil || desc.OrderID == "" {
		return nil, ErrNoOrder
	}
	if desc.Expired(b.now()) {
		return nil, ErrStaleOrder
	}
	if desc.Amount <= 0 {
		return nil, fmt.Errorf("payment: descriptor has invalid amount %d", desc.Amount)
	}
	if successURL == "" || failURL == "" {
		return nil, fmt.Errorf("payment: success and fail redirect targets are required")
	}

	return &WidgetInvocation{
		OrderID:      desc.OrderID,
		Amount:       desc.Amount,
		ProductName:  desc.ProductName,
		CustomerName: desc.CustomerName,
		ClientSecret: desc.ClientSecret,
		SuccessURL:   successURL,
		FailURL:      failURL,
	}, nil
}
