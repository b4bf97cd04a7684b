package evmabi

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

const wordSize = 32

// Encode ABI-encodes a tuple of string-form values under the given type
// tags, using standard Solidity head/tail encoding. It is the byte-exact
// counterpart of abi.decode on the verifying contract.
func Encode(typeTags []string, vals []string) ([]byte, error) {
	if len(typeTags) != len(vals) {
		return nil, fmt.Errorf("type/value arity mismatch: %d types, %d values", len(typeTags), len(vals))
	}
	types := make([]Type, len(typeTags))
	for i, tag := range typeTags {
		t, err := ParseType(tag)
		if err != nil {
			return nil, err
		}
		types[i] = t
	}

	parts := make([]encoded, len(vals))
	for i, v := range vals {
		enc, err := encodeValue(types[i], v)
		if err != nil {
			return nil, fmt.Errorf("value %d (%s): %w", i, types[i], err)
		}
		parts[i] = enc
	}
	return assembleTuple(parts), nil
}

// encoded is one encoded tuple slot: a 32-byte head word for static types, or
// a self-contained tail for dynamic types.
type encoded struct {
	dynamic bool
	data    []byte
}

// assembleTuple lays out heads then tails; dynamic heads hold byte offsets
// relative to the start of the tuple encoding.
func assembleTuple(parts []encoded) []byte {
	headSize := len(parts) * wordSize
	tailSize := 0
	for _, p := range parts {
		if p.dynamic {
			tailSize += len(p.data)
		}
	}

	out := make([]byte, 0, headSize+tailSize)
	offset := headSize
	var tails []byte
	for _, p := range parts {
		if p.dynamic {
			out = append(out, uintWord(uint64(offset))...)
			tails = append(tails, p.data...)
			offset += len(p.data)
		} else {
			out = append(out, p.data...)
		}
	}
	return append(out, tails...)
}

func encodeValue(t Type, v string) (encoded, error) {
	switch t.Kind {
	case KindAddress:
		word, err := addressWord(v)
		if err != nil {
			return encoded{}, err
		}
		return encoded{data: word}, nil

	case KindBool:
		switch v {
		case "true":
			return encoded{data: uintWord(1)}, nil
		case "false":
			return encoded{data: uintWord(0)}, nil
		}
		return encoded{}, fmt.Errorf("bool value must be \"true\" or \"false\", got %q", v)

	case KindUint, KindInt:
		word, err := integerWord(t, v)
		if err != nil {
			return encoded{}, err
		}
		return encoded{data: word}, nil

	case KindFixedBytes:
		b, err := hexBytes(v)
		if err != nil {
			return encoded{}, err
		}
		if len(b) != t.Size {
			return encoded{}, fmt.Errorf("bytes%d value has %d bytes", t.Size, len(b))
		}
		word := make([]byte, wordSize)
		copy(word, b)
		return encoded{data: word}, nil

	case KindBytes:
		b, err := hexBytes(v)
		if err != nil {
			return encoded{}, err
		}
		return encoded{dynamic: true, data: lengthPrefixed(b)}, nil

	case KindString:
		return encoded{dynamic: true, data: lengthPrefixed([]byte(v))}, nil

	case KindArray:
		return encodeArray(t, v)
	}
	return encoded{}, fmt.Errorf("unsupported type %s", t)
}

// encodeArray parses the string form as a JSON array and encodes each
// element recursively; the tail is the length word followed by an inner
// tuple encoding of the elements.
func encodeArray(t Type, v string) (encoded, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(v), &raw); err != nil {
		return encoded{}, fmt.Errorf("array value must be JSON array text: %w", err)
	}
	parts := make([]encoded, len(raw))
	for i, elem := range raw {
		s, err := elementString(elem)
		if err != nil {
			return encoded{}, fmt.Errorf("element %d: %w", i, err)
		}
		enc, err := encodeValue(*t.Elem, s)
		if err != nil {
			return encoded{}, fmt.Errorf("element %d: %w", i, err)
		}
		parts[i] = enc
	}
	body := assembleTuple(parts)
	data := append(uintWord(uint64(len(raw))), body...)
	return encoded{dynamic: true, data: data}, nil
}

// elementString reduces a JSON array element to the string form the scalar
// coercions expect.
func elementString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "true", nil
		}
		return "false", nil
	}
	return "", fmt.Errorf("unsupported array element %s", string(raw))
}

func uintWord(n uint64) []byte {
	word := make([]byte, wordSize)
	big.NewInt(0).SetUint64(n).FillBytes(word)
	return word
}

func lengthPrefixed(b []byte) []byte {
	padded := (len(b) + wordSize - 1) / wordSize * wordSize
	out := make([]byte, wordSize+padded)
	copy(out, uintWord(uint64(len(b))))
	copy(out[wordSize:], b)
	return out
}

func addressWord(v string) ([]byte, error) {
	b, err := hexBytes(v)
	if err != nil {
		return nil, err
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("address must be 20 bytes, got %d", len(b))
	}
	word := make([]byte, wordSize)
	copy(word[wordSize-20:], b)
	return word, nil
}

func integerWord(t Type, v string) ([]byte, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(v), 10)
	if !ok {
		return nil, fmt.Errorf("%s value %q is not a decimal integer", t, v)
	}
	if t.Kind == KindUint {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("%s value %q is negative", t, v)
		}
		if n.BitLen() > t.Bits {
			return nil, fmt.Errorf("%s value %q out of range", t, v)
		}
		word := make([]byte, wordSize)
		n.FillBytes(word)
		return word, nil
	}

	// Signed range check, then two's complement over 256 bits.
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Bits-1))
	if n.Cmp(new(big.Int).Neg(limit)) < 0 || n.Cmp(limit) >= 0 {
		return nil, fmt.Errorf("%s value %q out of range", t, v)
	}
	if n.Sign() >= 0 {
		word := make([]byte, wordSize)
		n.FillBytes(word)
		return word, nil
	}
	twos := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), n)
	word := make([]byte, wordSize)
	twos.FillBytes(word)
	return word, nil
}

func hexBytes(v string) ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex value %q has odd length", v)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q: %w", v, err)
	}
	return b, nil
}
