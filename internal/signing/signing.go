// Package signing produces and verifies EIP-712 typed-data signatures over
// canonical contract terms.
//
// Verification is two-phase and both phases are mandatory:
//  1. The typed-data hash recomputed from the terms must match the hash the
//     server issued for signing (defends against terms tampering between
//     display and signature).
//  2. The address recovered from the signature must equal the expected
//     party's wallet address (defends against wrong-wallet signing).
//
// A signature that fails either phase is never submitted to the server.
package signing

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var (
	ErrMalformedSignature = errors.New("signing: malformed signature")
	ErrHashMismatch       = errors.New("signing: typed-data hash does not match issued hash")
	ErrSignerMismatch     = errors.New("signing: recovered address does not match expected signer")
)

// Terms is the canonical payload both parties sign. Field values must come
// from the server of record, never from a locally cached contract.
type Terms struct {
	ContractID  string    `json:"contractId"`
	Title       string    `json:"title"`
	Leader      string    `json:"leader"` // leader wallet address
	Artist      string    `json:"artist"` // artist wallet address
	StartAt     time.Time `json:"startAt"`
	EndAt       time.Time `json:"endAt"`
	TotalAmount int64     `json:"totalAmount"`
}

// Service builds typed data for a fixed EIP-712 domain.
type Service struct {
	domain apitypes.TypedDataDomain
}

// NewService creates a signature service for the given chain and verifying contract.
func NewService(chainID int64, verifyingContract string) *Service {
	return &Service{
		domain: apitypes.TypedDataDomain{
			Name:              "Atelier Contract",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: verifyingContract,
		},
	}
}

// typedDataTypes is the EIP-712 type dictionary for contract terms.
var typedDataTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"ContractTerms": {
		{Name: "contractId", Type: "string"},
		{Name: "title", Type: "string"},
		{Name: "leader", Type: "address"},
		{Name: "artist", Type: "address"},
		{Name: "startAt", Type: "string"},
		{Name: "endAt", Type: "string"},
		{Name: "totalAmount", Type: "uint256"},
	},
}

// TypedData returns the full EIP-712 structure for terms, suitable for
// handing to a wallet's signTypedData call.
func (s *Service) TypedData(terms Terms) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: "ContractTerms",
		Domain:      s.domain,
		Message: apitypes.TypedDataMessage{
			"contractId":  terms.ContractID,
			"title":       terms.Title,
			"leader":      terms.Leader,
			"artist":      terms.Artist,
			"startAt":     terms.StartAt.UTC().Format(time.RFC3339),
			"endAt":       terms.EndAt.UTC().Format(time.RFC3339),
			"totalAmount": fmt.Sprintf("%d", terms.TotalAmount),
		},
	}
}

// Hash returns the EIP-712 digest of terms as 0x-prefixed hex.
func (s *Service) Hash(terms Terms) (string, error) {
	digest, _, err := apitypes.TypedDataAndHash(s.TypedData(terms))
	if err != nil {
		return "", fmt.Errorf("signing: failed to hash typed data: %w", err)
	}
	return "0x" + hex.EncodeToString(digest), nil
}

// Recover recomputes the signer address from terms and a 65-byte signature.
// Both the canonical 0/1 and the legacy 27/28 recovery IDs are accepted.
func (s *Service) Recover(terms Terms, signature string) (common.Address, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return common.Address{}, err
	}

	digest, _, err := apitypes.TypedDataAndHash(s.TypedData(terms))
	if err != nil {
		return common.Address{}, fmt.Errorf("signing: failed to hash typed data: %w", err)
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify runs both verification phases against a signature produced for terms.
// issuedHash is the digest the server handed out for signing; expectedSigner
// is the wallet address of the party who was supposed to sign.
func (s *Service) Verify(terms Terms, signature, expectedSigner, issuedHash string) error {
	// Phase 1: the terms in hand must hash to the digest that was issued.
	hash, err := s.Hash(terms)
	if err != nil {
		return err
	}
	if !strings.EqualFold(hash, issuedHash) {
		return ErrHashMismatch
	}

	// Phase 2: the recovered address must be the expected party.
	recovered, err := s.Recover(terms, signature)
	if err != nil {
		return err
	}
	if !strings.EqualFold(recovered.Hex(), expectedSigner) {
		return ErrSignerMismatch
	}
	return nil
}

// decodeSignature parses a hex signature and normalizes the recovery ID.
func decodeSignature(signature string) ([]byte, error) {
	raw := strings.TrimPrefix(signature, "0x")
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, crypto.SignatureLength, len(sig))
	}
	// Wallets commonly emit V as 27/28; go-ethereum expects 0/1.
	cp := make([]byte, len(sig))
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}
	return cp, nil
}

// LocalSigner signs terms with an in-process private key. Used by the dev
// signing endpoint and tests; production signatures come from user wallets.
type LocalSigner struct {
	key *ecdsa.PrivateKey
}

// NewLocalSigner creates a signer from a hex private key (0x prefix optional).
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("signing: invalid private key: %w", err)
	}
	return &LocalSigner{key: key}, nil
}

// NewRandomSigner creates a signer with a freshly generated key.
func NewRandomSigner() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &LocalSigner{key: key}, nil
}

// Address returns the signer's wallet address.
func (l *LocalSigner) Address() string {
	return crypto.PubkeyToAddress(l.key.PublicKey).Hex()
}

// Sign produces a 65-byte EIP-712 signature over terms as 0x-prefixed hex.
func (l *LocalSigner) Sign(svc *Service, terms Terms) (string, error) {
	digest, _, err := apitypes.TypedDataAndHash(svc.TypedData(terms))
	if err != nil {
		return "", fmt.Errorf("signing: failed to hash typed data: %w", err)
	}
	sig, err := crypto.Sign(digest, l.key)
	if err != nil {
		return "", fmt.Errorf("signing: sign failed: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}
