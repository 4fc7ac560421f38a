// Package contract implements the contract lifecycle engine: the
// authoritative state machine for blockchain-backed agreements between a
// project leader and an artist.
//
// Flow:
//  1. Leader offers a contract against an application → status: PENDING
//  2. Artist declines (leader may redraft) or signs → ARTIST_SIGNED
//  3. Leader re-verifies the artist signature, signs, receives a payment
//     order descriptor → PAYMENT_PENDING
//  4. Payment confirmation arrives from the processor → PAYMENT_COMPLETED,
//     and the proof-of-contract NFT mint is requested
//  5. Leader confirms settlement → SETTLED, or either party requests
//     cancellation → CANCELLATION_REQUESTED → admin resolves
//
// Status only advances after the external effect (signature verification,
// order issuance, payment confirmation) is confirmed. The store is the
// single source of truth; callers holding stale state get a
// *StaleStateError and must re-fetch, never retry blindly.
package contract

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrContractNotFound      = errors.New("contract not found")
	ErrUnauthorized          = errors.New("not authorized for this contract operation")
	ErrAlreadyResolved       = errors.New("contract is in a terminal state")
	ErrOperationInFlight     = errors.New("another operation on this contract is in flight")
	ErrSignatureExists       = errors.New("a signature already exists for this contract")
	ErrSignatureMissing      = errors.New("required signature is not on file")
	ErrBundleMissing         = errors.New("nft image bundle must be uploaded before finalizing")
	ErrApplicationTaken      = errors.New("application was already acted upon")
	ErrReasonRequired        = errors.New("cancellation reason is required")
	ErrNoCancellationPending = errors.New("no pending cancellation request")
	ErrOrderMismatch         = errors.New("payment confirmation references a superseded order")
)

// StaleStateError reports that the contract's stored status does not permit
// the attempted operation. Callers must re-fetch and re-render; retrying the
// same intent against the same stale view is never correct.
type StaleStateError struct {
	ContractID string
	Expected   Status
	Actual     Status
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("contract %s is %s, operation requires %s", e.ContractID, e.Actual, e.Expected)
}

// Status represents the lifecycle state of a contract.
type Status string

const (
	StatusPending               Status = "PENDING"
	StatusDeclined              Status = "DECLINED"
	StatusWithdrawn             Status = "WITHDRAWN"
	StatusArtistSigned          Status = "ARTIST_SIGNED"
	StatusPaymentPending        Status = "PAYMENT_PENDING"
	StatusPaymentCompleted      Status = "PAYMENT_COMPLETED"
	StatusCancellationRequested Status = "CANCELLATION_REQUESTED"
	StatusCanceled              Status = "CANCELED"
	StatusSettled               Status = "SETTLED"

	// StatusRejected is a recognized terminal status reserved by the system
	// of record. No operation here produces it, but stored contracts may
	// carry it and it must parse and terminate cleanly.
	StatusRejected Status = "REJECTED"
)

// IsTerminal returns true if the contract is in a final state.
// DECLINED is not terminal: the leader may still redraft or withdraw.
func (c *Contract) IsTerminal() bool {
	switch c.Status {
	case StatusWithdrawn, StatusCanceled, StatusSettled, StatusRejected:
		return true
	}
	return false
}

// Role identifies which party a caller is acting as.
type Role string

const (
	RoleLeader Role = "leader"
	RoleArtist Role = "artist"
)

// Party is one side of a contract, immutable once the contract exists.
type Party struct {
	UserID        string `json:"userId"`
	Nickname      string `json:"nickname"`
	WalletAddress string `json:"walletAddress"`
}

// SignedPayload records a confirmed typed-data signature.
type SignedPayload struct {
	Signer    string    `json:"signer"` // wallet address recovered from the signature
	Signature string    `json:"signature"`
	TypedHash string    `json:"typedHash"` // digest the server issued for signing
	SignedAt  time.Time `json:"signedAt"`
}

// OnchainStatus tracks the proof-of-contract NFT mint.
type OnchainStatus string

const (
	MintPending   OnchainStatus = "PENDING"
	MintSucceeded OnchainStatus = "SUCCEEDED"
	MintFailed    OnchainStatus = "FAILED"
)

// NFTInfo is present once a mint has been requested, after PAYMENT_COMPLETED.
type NFTInfo struct {
	TokenID       string        `json:"tokenId,omitempty"`
	MintTxHash    string        `json:"mintTxHash"`
	OnchainStatus OnchainStatus `json:"onchainStatus"`
	ExplorerURL   string        `json:"explorerUrl,omitempty"`
	BundleURL     string        `json:"bundleUrl,omitempty"`
}

// Resolution is the adjudication state of a cancellation request.
type Resolution string

const (
	ResolutionPending  Resolution = "PENDING"
	ResolutionApproved Resolution = "APPROVED"
	ResolutionRejected Resolution = "REJECTED"
)

// CancellationRequest is the nested early-termination negotiation. It is
// never cleared after resolution; it remains as an audit trail.
type CancellationRequest struct {
	RequestedBy string     `json:"requestedBy"` // user ID of the requesting party
	Reason      string     `json:"reason"`
	Resolution  Resolution `json:"resolution"`
	RequestedAt time.Time  `json:"requestedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// Contract is the central entity. Parties and title are immutable for the
// contract's whole life; amount and dates freeze once the artist has signed.
type Contract struct {
	ID            string `json:"id"`
	ApplicationID string `json:"applicationId"`
	Leader        Party  `json:"leader"`
	Artist        Party  `json:"artist"`

	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartAt     time.Time `json:"startAt"`
	EndAt       time.Time `json:"endAt"`
	TotalAmount int64     `json:"totalAmount"` // whole currency units

	Status Status `json:"status"`

	LeaderSignature *SignedPayload       `json:"leaderSignature,omitempty"`
	ArtistSignature *SignedPayload       `json:"artistSignature,omitempty"`
	NFT             *NFTInfo             `json:"nftInfo,omitempty"`
	Cancellation    *CancellationRequest `json:"cancellationRequest,omitempty"`

	// OrderID is the most recently issued payment order. Superseded orders
	// are abandoned, never reused.
	OrderID string `json:"orderId,omitempty"`

	SettledAt *time.Time `json:"settledAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// RoleOf returns the role the given user holds on the contract, or "" if
// the user is not a party.
func (c *Contract) RoleOf(userID string) Role {
	switch userID {
	case c.Leader.UserID:
		return RoleLeader
	case c.Artist.UserID:
		return RoleArtist
	}
	return ""
}

// HasAnySignature reports whether either party's signature is on file.
func (c *Contract) HasAnySignature() bool {
	return c.ArtistSignature != nil || c.LeaderSignature != nil
}

// Store persists contract data.
type Store interface {
	Create(ctx context.Context, contract *Contract) error
	Get(ctx context.Context, id string) (*Contract, error)
	GetByApplication(ctx context.Context, applicationID string) (*Contract, error)
	Update(ctx context.Context, contract *Contract) error
	ListByUser(ctx context.Context, userID string, status string, limit int) ([]*Contract, error)
	ListMintPending(ctx context.Context, limit int) ([]*Contract, error)
	ListCancellationPending(ctx context.Context, limit int) ([]*Contract, error)
}

// OfferRequest contains the parameters for offering a contract.
type OfferRequest struct {
	ApplicationID string `json:"applicationId" binding:"required"`
	Leader        Party  `json:"leader" binding:"required"`
	Artist        Party  `json:"artist" binding:"required"`
	Title         string `json:"title" binding:"required"`
	Description   string `json:"description"`
	StartAt       string `json:"startAt" binding:"required"` // RFC 3339
	EndAt         string `json:"endAt" binding:"required"`
	TotalAmount   int64  `json:"totalAmount" binding:"required"`
}

// RedraftRequest contains the replaceable terms. Title and parties are
// deliberately absent; they cannot change.
type RedraftRequest struct {
	Description string `json:"description"`
	StartAt     string `json:"startAt" binding:"required"`
	EndAt       string `json:"endAt" binding:"required"`
	TotalAmount int64  `json:"totalAmount" binding:"required"`
}

// SignRequest carries a wallet signature produced over the terms digest the
// server issued via the signature-data endpoint.
type SignRequest struct {
	Signature string `json:"signature" binding:"required"`
	TypedHash string `json:"typedHash" binding:"required"`
}

// CancelRequest contains the parameters for requesting cancellation.
type CancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ResolveRequest contains the admin adjudication of a cancellation.
type ResolveRequest struct {
	Approve bool `json:"approve"`
}
