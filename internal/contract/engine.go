package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atelierhq/atelier/internal/idgen"
	"github.com/atelierhq/atelier/internal/metrics"
	"github.com/atelierhq/atelier/internal/nft"
	"github.com/atelierhq/atelier/internal/payment"
	"github.com/atelierhq/atelier/internal/signing"
	"github.com/atelierhq/atelier/internal/syncutil"
	"github.com/atelierhq/atelier/internal/traces"
	"github.com/atelierhq/atelier/internal/validation"
)

// Lifecycle event names emitted after confirmed transitions.
const (
	EventOffered               = "contract.offered"
	EventDeclined              = "contract.declined"
	EventRedrafted             = "contract.redrafted"
	EventWithdrawn             = "contract.withdrawn"
	EventArtistSigned          = "contract.artist_signed"
	EventFinalized             = "contract.finalized"
	EventPaymentCompleted      = "contract.payment_completed"
	EventSettled               = "contract.settled"
	EventCancellationRequested = "contract.cancellation_requested"
	EventCancellationResolved  = "contract.cancellation_resolved"
	EventMintObserved          = "contract.mint_observed"
)

// TermsVerifier verifies typed-data signatures over contract terms.
// Implemented by signing.Service.
type TermsVerifier interface {
	Hash(terms signing.Terms) (string, error)
	Verify(terms signing.Terms, signature, expectedSigner, issuedHash string) error
}

// OrderIssuer obtains payment order descriptors. Implemented by payment.Bridge.
type OrderIssuer interface {
	RequestOrder(ctx context.Context, contractID string, amount int64, productName, customerName string) (*payment.OrderDescriptor, error)
}

// Minter submits the proof-of-contract mint transaction once payment clears.
type Minter interface {
	Mint(ctx context.Context, contractID, bundleURL string) (txHash string, err error)
}

// EventSink receives lifecycle events after a confirmed transition. The
// server wires this to the realtime hub and the webhook emitter.
type EventSink interface {
	ContractEvent(ctx context.Context, event string, c *Contract)
}

type noopSink struct{}

func (noopSink) ContractEvent(context.Context, string, *Contract) {}

// Service implements the contract lifecycle engine.
type Service struct {
	store    Store
	verifier TermsVerifier
	orders   OrderIssuer
	bundles  nft.BundleStore
	minter   Minter
	events   EventSink
	inflight *syncutil.InFlight
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithMinter sets the mint submitter invoked after payment confirmation.
func WithMinter(m Minter) Option { return func(s *Service) { s.minter = m } }

// WithEvents sets the lifecycle event sink.
func WithEvents(e EventSink) Option { return func(s *Service) { s.events = e } }

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a contract lifecycle engine.
func NewService(store Store, verifier TermsVerifier, orders OrderIssuer, bundles nft.BundleStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		verifier: verifier,
		orders:   orders,
		bundles:  bundles,
		events:   noopSink{},
		inflight: syncutil.NewInFlight(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin acquires the per-contract in-flight guard. A second operation on the
// same contract fails fast instead of queueing.
func (s *Service) begin(contractID string) (func(), error) {
	release, err := s.inflight.Begin(contractID)
	if err != nil {
		return nil, ErrOperationInFlight
	}
	metrics.InFlightOperations.Inc()
	return func() {
		metrics.InFlightOperations.Dec()
		release()
	}, nil
}

// requireStatus checks the stored status against what the operation needs.
func requireStatus(c *Contract, op string, allowed ...Status) error {
	for _, a := range allowed {
		if c.Status == a {
			return nil
		}
	}
	metrics.StaleStateTotal.WithLabelValues(op).Inc()
	return &StaleStateError{ContractID: c.ID, Expected: allowed[0], Actual: c.Status}
}

// transition records a confirmed status change. Persisting it is the caller's job.
func (s *Service) transition(c *Contract, to Status) {
	metrics.ContractTransitionsTotal.WithLabelValues(string(c.Status), string(to)).Inc()
	c.Status = to
	c.UpdatedAt = s.now()
}

func termsOf(c *Contract) signing.Terms {
	return signing.Terms{
		ContractID:  c.ID,
		Title:       c.Title,
		Leader:      c.Leader.WalletAddress,
		Artist:      c.Artist.WalletAddress,
		StartAt:     c.StartAt,
		EndAt:       c.EndAt,
		TotalAmount: c.TotalAmount,
	}
}

func parseWindow(startAt, endAt string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid startAt: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid endAt: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("endAt must be after startAt")
	}
	return start, end, nil
}

func validAmount(amount int64) error {
	if amount <= 0 || amount > validation.MaxAmount {
		return fmt.Errorf("totalAmount must be in (0, %d]", validation.MaxAmount)
	}
	return nil
}

// Offer creates a new contract at PENDING against an application. The caller
// must be the leader party of the request.
func (s *Service) Offer(ctx context.Context, callerUserID string, req OfferRequest) (*Contract, error) {
	ctx, span := traces.StartSpan(ctx, "contract.Offer", traces.Caller(callerUserID))
	defer span.End()

	if callerUserID != req.Leader.UserID {
		return nil, ErrUnauthorized
	}
	if req.Leader.UserID == req.Artist.UserID ||
		strings.EqualFold(req.Leader.WalletAddress, req.Artist.WalletAddress) {
		return nil, errors.New("leader and artist must be distinct parties")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.New("title is required")
	}
	if err := validAmount(req.TotalAmount); err != nil {
		return nil, err
	}
	start, end, err := parseWindow(req.StartAt, req.EndAt)
	if err != nil {
		return nil, err
	}

	// One contract per application; a second offer means the application
	// was already acted upon.
	if existing, err := s.store.GetByApplication(ctx, req.ApplicationID); err == nil && existing != nil {
		return nil, ErrApplicationTaken
	} else if err != nil && !errors.Is(err, ErrContractNotFound) {
		return nil, fmt.Errorf("failed to check application: %w", err)
	}

	now := s.now()
	c := &Contract{
		ID:            idgen.WithPrefix("ct_"),
		ApplicationID: req.ApplicationID,
		Leader:        req.Leader,
		Artist:        req.Artist,
		Title:         strings.TrimSpace(req.Title),
		Description:   validation.SanitizeString(req.Description, validation.MaxReasonLength),
		StartAt:       start.UTC(),
		EndAt:         end.UTC(),
		TotalAmount:   req.TotalAmount,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}
	metrics.ContractTransitionsTotal.WithLabelValues("", string(StatusPending)).Inc()

	s.logger.Info("contract offered",
		"contractId", c.ID,
		"leader", c.Leader.UserID,
		"artist", c.Artist.UserID,
		"amount", c.TotalAmount,
	)
	s.events.ContractEvent(ctx, EventOffered, c)
	return c, nil
}

// Decline rejects a pending offer. Artist only; no signature involved.
func (s *Service) Decline(ctx context.Context, id, callerUserID string) (*Contract, error) {
	ctx, span := traces.StartSpan(ctx, "contract.Decline", traces.ContractID(id), traces.Caller(callerUserID))
	defer span.End()

	release, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.RoleOf(callerUserID) != RoleArtist {
		return nil, ErrUnauthorized
	}
	if c.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if err := requireStatus(c, "decline", StatusPending); err != nil {
		return nil, err
	}

	s.transition(c, StatusDeclined)
	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}

	s.events.ContractEvent(ctx, EventDeclined, c)
	return c, nil
}

// Redraft replaces the negotiable terms of a declined contract and re-enters
// PENDING. Title and parties never change.
func (s *Service) Redraft(ctx context.Context, id, callerUserID string, req RedraftRequest) (*Contract, error) {
	ctx, span := traces.StartSpan(ctx, "contract.Redraft", traces.ContractID(id), traces.Caller(callerUserID))
	defer span.End()

	release, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.RoleOf(callerUserID) != RoleLeader {
		return nil, ErrUnauthorized
	}
	if c.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if err := requireStatus(c, "redraft", StatusDeclined); err != nil {
		return nil, err
	}
	if err := validAmount(req.TotalAmount); err != nil {
		return nil, err
	}
	start, end, err := parseWindow(req.StartAt, req.EndAt)
	if err != nil {
		return nil, err
	}

	c.Description = validation.SanitizeString(req.Description, validation.MaxReasonLength)
	c.StartAt = start.UTC()
	c.EndAt = end.UTC()
	c.TotalAmount = req.TotalAmount
	s.transition(c, StatusPending)

	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}

	s.events.ContractEvent(ctx, EventRedrafted, c)
	return c, nil
}

// Withdraw irreversibly retracts the offer. Leader only; legal until payment
// has completed.
func (s *Service) Withdraw(ctx context.Context, id, callerUserID string) (*Contract, error) {
	ctx, span := traces.StartSpan(ctx, "contract.Withdraw", traces.ContractID(id), traces.Caller(callerUserID))
	defer span.End()

	release, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.RoleOf(callerUserID) != RoleLeader {
		return nil, ErrUnauthorized
	}
	if c.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if err := requireStatus(c, "withdraw",
		StatusPending, StatusDeclined, StatusArtistSigned, StatusPaymentPending); err != nil {
		return nil, err
	}

	// A withdrawn contract carries no signatures and no payment order.
	// Whatever was collected on the way to ARTIST_SIGNED or
	// PAYMENT_PENDING is void once the leader pulls the offer.
	c.ArtistSignature = nil
	c.LeaderSignature = nil
	c.OrderID = ""

	s.transition(c, StatusWithdrawn)
	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}

	s.logger.Info("contract withdrawn", "contractId", c.ID, "leader", callerUserID)
	s.events.ContractEvent(ctx, EventWithdrawn, c)
	return c, nil
}

// SignAsArtist attaches the artist's verified signature and moves the
// contract to ARTIST_SIGNED. Refuses if any signature already exists, which
// guards against double submission from rapid repeat calls.
func (s *Service) SignAsArtist(ctx context.Context, id, callerUserID string, req SignRequest) (*Contract, error) {
	ctx, span := traces.StartSpan(ctx, "contract.SignAsArtist", traces.ContractID(id), traces.Caller(callerUserID))
	defer span.End()

	release, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.RoleOf(callerUserID) != RoleArtist {
		return nil, ErrUnauthorized
	}
	if c.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if c.HasAnySignature() {
		return nil, ErrSignatureExists
	}
	if err := requireStatus(c, "sign_as_artist", StatusPending); err != nil {
		return nil, err
	}

	if err := s.verifier.Verify(termsOf(c), req.Signature, c.Artist.WalletAddress, req.TypedHash); err != nil {
		metrics.SignaturesTotal.WithLabelValues("artist", "rejected").Inc()
		return nil, err
	}
	metrics.SignaturesTotal.WithLabelValues("artist", "verified").Inc()

	c.ArtistSignature = &SignedPayload{
		Signer:    c.Artist.WalletAddress,
		Signature: req.Signature,
		TypedHash: req.TypedHash,
		SignedAt:  s.now(),
	}
	s.transition(c, StatusArtistSigned)

	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}

	s.events.ContractEvent(ctx, EventArtistSigned, c)
	return c, nil
}

// FinalizeAsLeader verifies the leader's signature, re-verifies the artist's
// signature from stored proof, and issues the first payment order. The NFT
// image bundle must already be uploaded; the mint request issued after
// payment clears embeds the bundle URL.
//
// The artist signature is re-verified against the store rather than trusting
// any cached "artist has signed" flag a caller might hold.
func (s *Service) FinalizeAsLeader(ctx context.Context, id, callerUserID string, req SignRequest) (*Contract, *payment.OrderDescriptor, error) {
	ctx, span := traces.StartSpan(ctx, "contract.FinalizeAsLeader", traces.ContractID(id), traces.Caller(callerUserID))
	defer span.End()

	release, err := s.begin(id)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c.RoleOf(callerUserID) != RoleLeader {
		return nil, nil, ErrUnauthorized
	}
	if c.IsTerminal() {
		return nil, nil, ErrAlreadyResolved
	}
	if err := requireStatus(c, "finalize", StatusArtistSigned); err != nil {
		return nil, nil, err
	}

	if c.ArtistSignature == nil {
		return nil, nil, ErrSignatureMissing
	}
	if err := s.verifier.Verify(termsOf(c), c.ArtistSignature.Signature, c.Artist.WalletAddress, c.ArtistSignature.TypedHash); err != nil {
		metrics.SignaturesTotal.WithLabelValues("artist", "reverify_failed").Inc()
		return nil, nil, fmt.Errorf("stored artist signature failed re-verification: %w", err)
	}

	if _, err := s.bundles.Get(ctx, c.ID); err != nil {
		if errors.Is(err, nft.ErrBundleNotFound) {
			return nil, nil, ErrBundleMissing
		}
		return nil, nil, fmt.Errorf("failed to check nft bundle: %w", err)
	}

	if err := s.verifier.Verify(termsOf(c), req.Signature, c.Leader.WalletAddress, req.TypedHash); err != nil {
		metrics.SignaturesTotal.WithLabelValues("leader", "rejected").Inc()
		return nil, nil, err
	}
	metrics.SignaturesTotal.WithLabelValues("leader", "verified").Inc()

	desc, err := s.orders.RequestOrder(ctx, c.ID, c.TotalAmount, c.Title, c.Leader.Nickname)
	if err != nil {
		// No order means no advance; the leader retries the whole operation.
		metrics.PaymentOrdersTotal.WithLabelValues("rejected").Inc()
		return nil, nil, fmt.Errorf("failed to request payment order: %w", err)
	}
	metrics.PaymentOrdersTotal.WithLabelValues("issued").Inc()

	c.LeaderSignature = &SignedPayload{
		Signer:    c.Leader.WalletAddress,
		Signature: req.Signature,
		TypedHash: req.TypedHash,
		SignedAt:  s.now(),
	}
	c.OrderID = desc.OrderID
	s.transition(c, StatusPaymentPending)

	if err := s.store.Update(ctx, c); err != nil {
		return nil, nil, fmt.Errorf("failed to update contract: %w", err)
	}

	s.logger.Info("contract finalized",
		"contractId", c.ID,
		"orderId", desc.OrderID,
		"amount", c.TotalAmount,
	)
	s.events.ContractEvent(ctx, EventFinalized, c)
	return c, desc, nil
}

// RetryPayment issues a fresh order descriptor after an abandoned payment
// attempt. The leader signature already on file is reused, never re-produced.
func (s *Service) RetryPayment(ctx context.Context, id, callerUserID string) (*Contract, *payment.OrderDescriptor, error) {
	ctx, span := traces.StartSpan(ctx, "contract.RetryPayment", traces.ContractID(id), traces.Caller(callerUserID))
	defer span.End()

	release, err := s.begin(id)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c.RoleOf(callerUserID) != RoleLeader {
		return nil, nil, ErrUnauthorized
	}
	if c.IsTerminal() {
		return nil, nil, ErrAlreadyResolved
	}
	if err := requireStatus(c, "retry_payment", StatusPaymentPending); err != nil {
		return nil, nil, err
	}
	if c.LeaderSignature == nil {
		return nil, nil, ErrSignatureMissing
	}

	desc, err := s.orders.RequestOrder(ctx, c.ID, c.TotalAmount, c.Title, c.Leader.Nickname)
	if err != nil {
		metrics.PaymentOrdersTotal.WithLabelValues("rejected").Inc()
		return nil, nil, fmt.Errorf("failed to request payment order: %w", err)
	}
	metrics.PaymentOrdersTotal.WithLabelValues("reissued").Inc()

	// The prior order is superseded, not canceled; its confirmation would
	// no longer match OrderID and is rejected by ConfirmPayment.
	c.OrderID = desc.OrderID
	c.UpdatedAt = s.now()

	if err := s.store.Update(ctx, c); err != nil {
		return nil, nil, fmt.Errorf("failed to update contract: %w", err)
	}

	s.logger.Info("payment order reissued", "contractId", c.ID, "orderId", desc.OrderID)
	return c, desc, nil
}

// ConfirmPayment applies the processor's success signal for an order. Called
// by the payment confirmation route, which is the server of record for the
// outcome. On success the proof-of-contract mint is requested.
func (s *Service) ConfirmPayment(ctx context.Context, id, orderID string) (*Contract, error) {
	ctx, span := traces.StartSpan(ctx, "contract.ConfirmPayment", traces.ContractID(id), traces.OrderID(orderID))
	defer span.End()

	release, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if err := requireStatus(c, "confirm_payment", StatusPaymentPending); err != nil {
		return nil, err
	}
	if orderID == "" || orderID != c.OrderID {
		return nil, ErrOrderMismatch
	}

	s.transition(c, StatusPaymentCompleted)

	if s.minter != nil {
		bundle, err := s.bundles.Get(ctx, c.ID)
		if err != nil {
			s.logger.Error("mint skipped, bundle missing", "contractId", c.ID, "error", err)
		} else if txHash, err := s.minter.Mint(ctx, c.ID, bundle.URL); err != nil {
			// Payment completion stands; the mint can be re-requested
			// operationally. The contract carries no NFT info until then.
			s.logger.Error("mint request failed", "contractId", c.ID, "error", err)
		} else {
			c.NFT = &NFTInfo{
				MintTxHash:    txHash,
				OnchainStatus: MintPending,
				BundleURL:     bundle.URL,
			}
		}
	}

	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}

	s.logger.Info("payment completed", "contractId", c.ID, "orderId", orderID)
	s.events.ContractEvent(ctx, EventPaymentCompleted, c)
	return c, nil
}

// ConfirmSettlement releases funds and closes the contract. Leader only,
// one-way.
func (s *Service) ConfirmSettlement(ctx context.Context, id, callerUserID string) (*Contract, error) {
	ctx, span := traces.StartSpan(ctx, "contract.ConfirmSettlement", traces.ContractID(id), traces.Caller(callerUserID))
	defer span.End()

	release, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.RoleOf(callerUserID) != RoleLeader {
		return nil, ErrUnauthorized
	}
	if c.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if err := requireStatus(c, "confirm_settlement", StatusPaymentCompleted); err != nil {
		return nil, err
	}

	now := s.now()
	c.SettledAt = &now
	s.transition(c, StatusSettled)

	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}

	metrics.ContractSettlementDuration.Observe(now.Sub(c.CreatedAt).Seconds())
	s.logger.Info("contract settled", "contractId", c.ID)
	s.events.ContractEvent(ctx, EventSettled, c)
	return c, nil
}

// RequestCancellation opens the early-termination sub-protocol. Either party
// may request; a mandatory reason is recorded. Only one request can be
// outstanding, enforced by the status check.
func (s *Service) RequestCancellation(ctx context.Context, id, callerUserID, reason string) (*Contract, error) {
	ctx, span := traces.StartSpan(ctx, "contract.RequestCancellation", traces.ContractID(id), traces.Caller(callerUserID))
	defer span.End()

	release, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.RoleOf(callerUserID) == "" {
		return nil, ErrUnauthorized
	}
	if c.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if err := requireStatus(c, "request_cancellation", StatusPaymentCompleted); err != nil {
		return nil, err
	}
	reason = validation.SanitizeString(reason, validation.MaxReasonLength)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	c.Cancellation = &CancellationRequest{
		RequestedBy: callerUserID,
		Reason:      reason,
		Resolution:  ResolutionPending,
		RequestedAt: s.now(),
	}
	s.transition(c, StatusCancellationRequested)

	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}

	s.logger.Info("cancellation requested", "contractId", c.ID, "requestedBy", callerUserID)
	s.events.ContractEvent(ctx, EventCancellationRequested, c)
	return c, nil
}

// ResolveCancellation applies the administrative adjudication. APPROVED
// cancels the contract; REJECTED returns it to PAYMENT_COMPLETED, where a
// new request cycle may begin. The request substructure is kept either way
// as an audit trail.
func (s *Service) ResolveCancellation(ctx context.Context, id string, approve bool) (*Contract, error) {
	ctx, span := traces.StartSpan(ctx, "contract.ResolveCancellation", traces.ContractID(id))
	defer span.End()

	release, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	if err := requireStatus(c, "resolve_cancellation", StatusCancellationRequested); err != nil {
		return nil, err
	}
	if c.Cancellation == nil || c.Cancellation.Resolution != ResolutionPending {
		return nil, ErrNoCancellationPending
	}

	now := s.now()
	c.Cancellation.ResolvedAt = &now
	if approve {
		c.Cancellation.Resolution = ResolutionApproved
		s.transition(c, StatusCanceled)
	} else {
		c.Cancellation.Resolution = ResolutionRejected
		s.transition(c, StatusPaymentCompleted)
	}

	if err := s.store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}

	s.logger.Info("cancellation resolved", "contractId", c.ID, "approved", approve)
	s.events.ContractEvent(ctx, EventCancellationResolved, c)
	return c, nil
}

// Get returns a contract by ID.
func (s *Service) Get(ctx context.Context, id string) (*Contract, error) {
	return s.store.Get(ctx, id)
}

// SignatureData returns the canonical terms and typed-data digest a party's
// wallet must sign. Always computed from the stored contract, never from
// caller-supplied terms.
func (s *Service) SignatureData(ctx context.Context, id string) (signing.Terms, string, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return signing.Terms{}, "", err
	}
	terms := termsOf(c)
	hash, err := s.verifier.Hash(terms)
	if err != nil {
		return signing.Terms{}, "", err
	}
	return terms, hash, nil
}

// ListByUser returns contracts where the user is a party.
func (s *Service) ListByUser(ctx context.Context, userID, status string, limit int) ([]*Contract, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, status, limit)
}

// Refresh re-fetches a contract from the store of record and re-broadcasts
// it. Push events, the poll timer, and transition returns all converge here;
// repeated calls are idempotent because nothing is mutated locally.
func (s *Service) Refresh(ctx context.Context, id, trigger string) error {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	metrics.RefreshTotal.WithLabelValues(trigger).Inc()
	s.events.ContractEvent(ctx, "contract.refreshed", c)
	return nil
}

// ListPendingMints reports contracts whose mint transaction still awaits a
// receipt. Part of the nft.MintRegistry implementation.
func (s *Service) ListPendingMints(ctx context.Context) ([]nft.PendingMint, error) {
	cs, err := s.store.ListMintPending(ctx, 100)
	if err != nil {
		return nil, err
	}
	pending := make([]nft.PendingMint, 0, len(cs))
	for _, c := range cs {
		if c.NFT == nil || c.NFT.MintTxHash == "" {
			continue
		}
		pending = append(pending, nft.PendingMint{ContractID: c.ID, TxHash: c.NFT.MintTxHash})
	}
	return pending, nil
}

// ApplyMintResult records the observed mint outcome and broadcasts a full
// refresh. Part of the nft.MintRegistry implementation.
func (s *Service) ApplyMintResult(ctx context.Context, contractID string, succeeded bool, explorerURL string) error {
	release, err := s.begin(contractID)
	if err != nil {
		return err
	}
	defer release()

	c, err := s.store.Get(ctx, contractID)
	if err != nil {
		return err
	}
	if c.NFT == nil || c.NFT.OnchainStatus != MintPending {
		return nil
	}

	if succeeded {
		c.NFT.OnchainStatus = MintSucceeded
	} else {
		c.NFT.OnchainStatus = MintFailed
	}
	c.NFT.ExplorerURL = explorerURL
	c.UpdatedAt = s.now()

	if err := s.store.Update(ctx, c); err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}

	s.events.ContractEvent(ctx, EventMintObserved, c)
	return nil
}

// StubMinter fabricates mint transactions for development mode. The dev
// watcher will never find a receipt for them, so OnchainStatus stays
// PENDING until a real chain is configured.
type StubMinter struct{}

func (StubMinter) Mint(ctx context.Context, contractID, bundleURL string) (string, error) {
	return "0x" + idgen.Hex(32), nil
}
