package evmabi

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/Mindburn-Labs/claimvm/core/pkg/canonicalize"
	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
)

// Keccak256 hashes the concatenation of the given byte slices.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// HexHash renders a hash as lowercase 0x hex.
func HexHash(sum []byte) string {
	return "0x" + hex.EncodeToString(sum)
}

// ProcessorHash is keccak256 over the canonical JSON form of the processor
// document (including its version tag when present).
func ProcessorHash(p *contracts.Processor) (string, error) {
	canonical, err := canonicalize.Raw(p.Raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize processor: %w", err)
	}
	return HexHash(Keccak256(canonical)), nil
}

// ProcessorProviderHash binds a processor to a provider template:
// keccak256 over the UTF-8 bytes of lowerhex(providerHash) ‖ "\n" ‖
// lowerhex(processorHash). The result is the on-chain whitelist key.
func ProcessorProviderHash(providerHash string, p *contracts.Processor) (string, error) {
	processorHash, err := ProcessorHash(p)
	if err != nil {
		return "", err
	}
	bound := strings.ToLower(providerHash) + "\n" + processorHash
	return HexHash(Keccak256([]byte(bound))), nil
}

// MessageHash is keccak256 of the ABI-encoded tuple
// (processorProviderHash, ...values) with types (bytes32, ...outputs.type).
func MessageHash(processorProviderHash string, outputs []contracts.OutputSpec, vals []string) ([]byte, error) {
	if len(outputs) != len(vals) {
		return nil, fmt.Errorf("outputs/values arity mismatch: %d outputs, %d values", len(outputs), len(vals))
	}
	typeTags := make([]string, 0, len(outputs)+1)
	typeTags = append(typeTags, "bytes32")
	encVals := make([]string, 0, len(vals)+1)
	encVals = append(encVals, processorProviderHash)
	for i, out := range outputs {
		typeTags = append(typeTags, out.Type)
		encVals = append(encVals, vals[i])
	}
	encoded, err := Encode(typeTags, encVals)
	if err != nil {
		return nil, err
	}
	return Keccak256(encoded), nil
}
