package transforms

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"github.com/Mindburn-Labs/claimvm/core/pkg/values"
)

// hashInput returns the bytes an op hashes: the raw slice when the subject is
// already bytes, otherwise the UTF-8 encoding of its string form.
func hashInput(v any) []byte {
	if b, ok := v.([]byte); ok {
		return b
	}
	return []byte(values.SafeToString(v))
}

func hashKeccak256(v any) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(hashInput(v))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func hashSha256(v any) string {
	sum := sha256.Sum256(hashInput(v))
	return "0x" + hex.EncodeToString(sum[:])
}
