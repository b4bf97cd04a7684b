// Package signer holds the attestor key and produces EVM-recoverable ECDSA
// signatures over claim message hashes, plus the envelope that drives the
// full validate→execute→encode→sign pipeline.
package signer

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/Mindburn-Labs/claimvm/core/pkg/evmabi"
)

// Convention selects whether the Ethereum personal-message prefix is applied
// before signing. Attestor and verifying contract must agree; deployments pin
// one value in configuration.
type Convention string

const (
	// ConventionRaw signs the message hash directly.
	ConventionRaw Convention = "raw"
	// ConventionEIP191 signs keccak256("\x19Ethereum Signed Message:\n32" || hash).
	ConventionEIP191 Convention = "eip191"
)

const personalPrefix = "\x19Ethereum Signed Message:\n32"

// Valid reports whether c names a supported convention.
func (c Convention) Valid() bool {
	return c == ConventionRaw || c == ConventionEIP191
}

// Digest returns the bytes actually signed for a 32-byte message hash.
func (c Convention) Digest(messageHash []byte) []byte {
	if c == ConventionEIP191 {
		return evmabi.Keccak256([]byte(personalPrefix), messageHash)
	}
	return messageHash
}

// Signer produces 65-byte r‖s‖v signatures recoverable by ecrecover.
// Implementations hold the process-wide attestor key, read-only after boot.
type Signer interface {
	Sign(messageHash []byte, convention Convention) ([]byte, error)
	Address() string
}

// Secp256k1Signer signs with an in-memory secp256k1 key using deterministic
// RFC 6979 nonces.
type Secp256k1Signer struct {
	priv *btcec.PrivateKey
}

// NewSecp256k1Signer wraps an existing private key.
func NewSecp256k1Signer(priv *btcec.PrivateKey) *Secp256k1Signer {
	return &Secp256k1Signer{priv: priv}
}

// NewSecp256k1SignerFromHex loads a key from its 32-byte hex form.
func NewSecp256k1SignerFromHex(keyHex string) (*Secp256k1Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("attestor key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("attestor key must be 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &Secp256k1Signer{priv: priv}, nil
}

// GenerateSigner creates a signer with a fresh random key, for tests and
// ephemeral deployments.
func GenerateSigner() (*Secp256k1Signer, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate attestor key: %w", err)
	}
	return &Secp256k1Signer{priv: priv}, nil
}

// Sign produces the 65-byte r‖s‖v signature with v in {27, 28}.
func (s *Secp256k1Signer) Sign(messageHash []byte, convention Convention) ([]byte, error) {
	if len(messageHash) != 32 {
		return nil, fmt.Errorf("message hash must be 32 bytes, got %d", len(messageHash))
	}
	if !convention.Valid() {
		return nil, fmt.Errorf("unknown signature convention %q", convention)
	}

	// SignCompact returns header-first [v, r, s]; EVM expects r||s||v.
	compact := btcecdsa.SignCompact(s.priv, convention.Digest(messageHash), false)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig, nil
}

// Address returns the attestor's EVM address: the low 20 bytes of
// keccak256 over the uncompressed public key.
func (s *Secp256k1Signer) Address() string {
	return pubKeyAddress(s.priv.PubKey())
}

// RecoverAttestor recovers the signing address from a 65-byte r‖s‖v
// signature over messageHash under the given convention.
func RecoverAttestor(messageHash, sig []byte, convention Convention) (string, error) {
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	compact := make([]byte, 65)
	compact[0] = sig[64]
	copy(compact[1:], sig[:64])

	pub, _, err := btcecdsa.RecoverCompact(compact, convention.Digest(messageHash))
	if err != nil {
		return "", fmt.Errorf("signature recovery failed: %w", err)
	}
	return pubKeyAddress(pub), nil
}

func pubKeyAddress(pub *btcec.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	sum := evmabi.Keccak256(uncompressed[1:])
	return "0x" + hex.EncodeToString(sum[12:])
}
