package wizard

import (
	"errors"
	"testing"
)

const (
	artistWallet = "0x2222222222222222222222222222222222222222"
	leaderWallet = "0x1111111111111111111111111111111111111111"
)

func passVerifier() Verifier {
	return VerifierFunc(func(string) error { return nil })
}

func runToVerified(t *testing.T, c *Controller, wallet string) {
	t.Helper()
	if err := c.OnWalletConnected(wallet); err != nil {
		t.Fatalf("OnWalletConnected failed: %v", err)
	}
	if err := c.OnDataPrepared("0xabc123"); err != nil {
		t.Fatalf("OnDataPrepared failed: %v", err)
	}
	if err := c.RequestSignature(); err != nil {
		t.Fatalf("RequestSignature failed: %v", err)
	}
	if err := c.OnSignerResponse("0xsig"); err != nil {
		t.Fatalf("OnSignerResponse failed: %v", err)
	}
}

func TestWizard_HappyPath(t *testing.T) {
	c := New(RoleArtist, artistWallet, passVerifier())

	if c.Step() != AwaitingWalletConnection {
		t.Fatalf("Expected initial step, got %s", c.Step())
	}

	runToVerified(t, c, artistWallet)
	if c.Step() != SignatureVerified {
		t.Errorf("Expected SIGNATURE_VERIFIED, got %s", c.Step())
	}
	if c.Signature() != "0xsig" {
		t.Errorf("Expected retained signature, got %q", c.Signature())
	}

	if err := c.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if c.Step() != Complete {
		t.Errorf("Expected COMPLETE, got %s", c.Step())
	}
}

func TestWizard_NoStepSkipping(t *testing.T) {
	c := New(RoleArtist, artistWallet, passVerifier())

	// Every event except wallet connection must be rejected at the start,
	// even though the wallet library could answer synchronously.
	if err := c.OnDataPrepared("0xabc"); !errors.Is(err, ErrStepOrder) {
		t.Errorf("Expected ErrStepOrder for early data, got %v", err)
	}
	if err := c.RequestSignature(); !errors.Is(err, ErrStepOrder) {
		t.Errorf("Expected ErrStepOrder for early request, got %v", err)
	}
	if err := c.OnSignerResponse("0xsig"); !errors.Is(err, ErrStepOrder) {
		t.Errorf("Expected ErrStepOrder for early response, got %v", err)
	}
	if err := c.Finish(); !errors.Is(err, ErrStepOrder) {
		t.Errorf("Expected ErrStepOrder for early finish, got %v", err)
	}

	// A repeated event is also out of order.
	if err := c.OnWalletConnected(artistWallet); err != nil {
		t.Fatalf("OnWalletConnected failed: %v", err)
	}
	if err := c.OnWalletConnected(artistWallet); !errors.Is(err, ErrStepOrder) {
		t.Errorf("Expected ErrStepOrder for duplicate connection, got %v", err)
	}
}

func TestWizard_WrongWallet(t *testing.T) {
	c := New(RoleArtist, artistWallet, passVerifier())

	err := c.OnWalletConnected(leaderWallet)
	if !errors.Is(err, ErrWalletMismatch) {
		t.Errorf("Expected ErrWalletMismatch, got %v", err)
	}
	if c.Step() != AwaitingWalletConnection {
		t.Errorf("Expected to stay at initial step, got %s", c.Step())
	}
}

func TestWizard_AbortResets(t *testing.T) {
	c := New(RoleLeader, leaderWallet, passVerifier())

	if err := c.OnWalletConnected(leaderWallet); err != nil {
		t.Fatalf("OnWalletConnected failed: %v", err)
	}
	if err := c.OnDataPrepared("0xabc"); err != nil {
		t.Fatalf("OnDataPrepared failed: %v", err)
	}
	if err := c.RequestSignature(); err != nil {
		t.Fatalf("RequestSignature failed: %v", err)
	}

	// User closes the wallet prompt.
	c.Abort()

	if c.Step() != AwaitingWalletConnection {
		t.Errorf("Expected reset to initial step, got %s", c.Step())
	}
	if c.Signature() != "" || c.TypedHash() != "" {
		t.Error("Expected partial state cleared on abort")
	}

	// The flow is resumable from the start.
	runToVerified(t, c, leaderWallet)
	if c.Step() != SignatureVerified {
		t.Errorf("Expected SIGNATURE_VERIFIED after resume, got %s", c.Step())
	}
}

func TestWizard_VerificationFailureResetsAndDiscards(t *testing.T) {
	verifier := VerifierFunc(func(string) error { return errors.New("hash mismatch") })
	c := New(RoleArtist, artistWallet, verifier)

	if err := c.OnWalletConnected(artistWallet); err != nil {
		t.Fatalf("OnWalletConnected failed: %v", err)
	}
	if err := c.OnDataPrepared("0xabc"); err != nil {
		t.Fatalf("OnDataPrepared failed: %v", err)
	}
	if err := c.RequestSignature(); err != nil {
		t.Fatalf("RequestSignature failed: %v", err)
	}

	err := c.OnSignerResponse("0xbadsig")
	if !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("Expected ErrVerificationFailed, got %v", err)
	}
	if c.Signature() != "" {
		t.Error("Failed signature must never be retained")
	}
	if c.Step() != AwaitingWalletConnection {
		t.Errorf("Expected reset after failed verification, got %s", c.Step())
	}
}

func TestWizard_IndependentControllers(t *testing.T) {
	artist := New(RoleArtist, artistWallet, passVerifier())
	leader := New(RoleLeader, leaderWallet, passVerifier())

	runToVerified(t, artist, artistWallet)

	// The leader flow is untouched by the artist flow's progress.
	if leader.Step() != AwaitingWalletConnection {
		t.Errorf("Expected independent leader flow, got %s", leader.Step())
	}

	runToVerified(t, leader, leaderWallet)
	if artist.Signature() == "" || leader.Signature() == "" {
		t.Error("Expected both flows to retain their own signatures")
	}
}

func TestWizard_AbortAfterCompleteIsNoop(t *testing.T) {
	c := New(RoleArtist, artistWallet, passVerifier())
	runToVerified(t, c, artistWallet)
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	c.Abort()
	if c.Step() != Complete {
		t.Errorf("Expected COMPLETE after abort, got %s", c.Step())
	}
}
