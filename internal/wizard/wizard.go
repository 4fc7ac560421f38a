// Package wizard drives the per-signer signing flow as a strictly ordered
// state machine.
//
// Steps: AwaitingWalletConnection → WalletConnected → DataPrepared →
// SignatureRequested → SignatureVerified → Complete. Each transition is
// driven by exactly one external event and steps are never skipped, even
// when the underlying wallet could answer synchronously. Aborting at any
// point returns the controller to AwaitingWalletConnection without touching
// contract state.
//
// Controllers are plain per-flow values: the artist flow and the leader flow
// each get their own instance and share nothing.
package wizard

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrStepOrder is returned when an event arrives out of sequence.
	ErrStepOrder = errors.New("wizard: event does not match current step")
	// ErrWalletMismatch is returned when the connected wallet is not the
	// expected signer's wallet.
	ErrWalletMismatch = errors.New("wizard: connected wallet does not match expected signer")
	// ErrVerificationFailed is returned when local signature verification
	// fails; the flow resets and nothing is submitted.
	ErrVerificationFailed = errors.New("wizard: signature failed local verification")
)

// Step identifies a position in the signing flow.
type Step int

const (
	AwaitingWalletConnection Step = iota
	WalletConnected
	DataPrepared
	SignatureRequested
	SignatureVerified
	Complete
)

// String returns the step name for logs and API payloads.
func (s Step) String() string {
	switch s {
	case AwaitingWalletConnection:
		return "AWAITING_WALLET_CONNECTION"
	case WalletConnected:
		return "WALLET_CONNECTED"
	case DataPrepared:
		return "DATA_PREPARED"
	case SignatureRequested:
		return "SIGNATURE_REQUESTED"
	case SignatureVerified:
		return "SIGNATURE_VERIFIED"
	case Complete:
		return "COMPLETE"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// Role identifies which party the controller is signing for.
type Role string

const (
	RoleArtist Role = "artist"
	RoleLeader Role = "leader"
)

// Verifier runs local two-phase verification of a produced signature.
// Implemented by the signing service; faked in tests.
type Verifier interface {
	VerifyLocal(signature string) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(signature string) error

func (f VerifierFunc) VerifyLocal(signature string) error { return f(signature) }

// Controller is the per-signer flow state machine. Safe for use from the
// single goroutine driving a flow; the mutex only protects snapshot reads
// from other goroutines (UI polling).
type Controller struct {
	mu             sync.Mutex
	role           Role
	expectedWallet string
	verifier       Verifier

	step      Step
	wallet    string
	typedHash string
	signature string
}

// New creates a controller for one signer. expectedWallet is the wallet
// address the connected wallet must match.
func New(role Role, expectedWallet string, verifier Verifier) *Controller {
	return &Controller{
		role:           role,
		expectedWallet: expectedWallet,
		verifier:       verifier,
		step:           AwaitingWalletConnection,
	}
}

// Step returns the current step.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Role returns the signer role this controller drives.
func (c *Controller) Role() Role { return c.role }

// Signature returns the verified signature, valid only once the flow
// reached SignatureVerified or Complete.
func (c *Controller) Signature() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signature
}

// TypedHash returns the digest prepared for signing, set from DataPrepared on.
func (c *Controller) TypedHash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typedHash
}

// OnWalletConnected handles the wallet-connect callback.
func (c *Controller) OnWalletConnected(wallet string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != AwaitingWalletConnection {
		return fmt.Errorf("%w: got wallet connection at %s", ErrStepOrder, c.step)
	}
	if !strings.EqualFold(wallet, c.expectedWallet) {
		return ErrWalletMismatch
	}
	c.wallet = wallet
	c.step = WalletConnected
	return nil
}

// OnDataPrepared handles completion of typed-data preparation. typedHash is
// the digest the server issued for this signer.
func (c *Controller) OnDataPrepared(typedHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != WalletConnected {
		return fmt.Errorf("%w: got prepared data at %s", ErrStepOrder, c.step)
	}
	if typedHash == "" {
		return fmt.Errorf("wizard: empty typed-data hash")
	}
	c.typedHash = typedHash
	c.step = DataPrepared
	return nil
}

// RequestSignature marks the signing prompt as shown to the user. The flow
// now suspends until OnSignerResponse or Abort; there is no timeout because
// a human may take arbitrarily long.
func (c *Controller) RequestSignature() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != DataPrepared {
		return fmt.Errorf("%w: signature requested at %s", ErrStepOrder, c.step)
	}
	c.step = SignatureRequested
	return nil
}

// OnSignerResponse handles the wallet's signing response and runs local
// verification. A verification failure resets the flow; the signature is
// never retained or submitted.
func (c *Controller) OnSignerResponse(signature string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != SignatureRequested {
		return fmt.Errorf("%w: got signer response at %s", ErrStepOrder, c.step)
	}

	if err := c.verifier.VerifyLocal(signature); err != nil {
		c.resetLocked()
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	c.signature = signature
	c.step = SignatureVerified
	return nil
}

// Finish marks the flow complete after the server acknowledged the signature.
func (c *Controller) Finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != SignatureVerified {
		return fmt.Errorf("%w: finish at %s", ErrStepOrder, c.step)
	}
	c.step = Complete
	return nil
}

// Abort handles the user closing the wallet prompt or navigating away.
// The controller returns to its initial step with partial state cleared;
// aborting a Complete flow is a no-op.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == Complete {
		return
	}
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.step = AwaitingWalletConnection
	c.wallet = ""
	c.typedHash = ""
	c.signature = ""
}
