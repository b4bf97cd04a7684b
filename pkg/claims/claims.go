// Package claims prepares ProviderClaimData for JSONPath querying. The
// context and parameters JSON texts are parsed into subtrees; a claim whose
// text fails to parse keeps the raw string so paths like $.context still
// resolve to something queryable.
package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"

	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
)

// pathLang is the JSONPath dialect used for extraction, shared and read-only.
var pathLang = gval.Full(jsonpath.PlaceholderExtension())

var providerHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Root is the queryable form of a claim.
type Root map[string]any

// NewRoot builds the JSONPath query root for a claim.
func NewRoot(claim *contracts.ProviderClaimData) Root {
	return Root{
		"provider":   claim.Provider,
		"parameters": parseLenient(claim.Parameters),
		"owner":      claim.Owner,
		"timestampS": float64(claim.TimestampS),
		"context":    parseLenient(claim.Context),
		"identifier": claim.Identifier,
		"epoch":      float64(claim.Epoch),
	}
}

// parseLenient parses JSON text, retaining the raw string on failure.
func parseLenient(text string) any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text
	}
	return v
}

// ProviderHash reads the mandatory providerHash field from the claim context.
func ProviderHash(claim *contracts.ProviderClaimData) (string, error) {
	ctx, ok := parseLenient(claim.Context).(map[string]any)
	if !ok {
		return "", fmt.Errorf("claim context is not a JSON object")
	}
	raw, ok := ctx["providerHash"]
	if !ok {
		return "", fmt.Errorf("claim context is missing providerHash")
	}
	hash, ok := raw.(string)
	if !ok || !providerHashRe.MatchString(hash) {
		return "", fmt.Errorf("providerHash must be 0x-prefixed 32-byte hex")
	}
	return strings.ToLower(hash), nil
}

// indefiniteMarkers flag JSONPath expressions that can match more than one
// node: wildcards, recursive descent, and filters. Unions and slices (a comma
// or colon inside a bracket selector) are caught separately by bracketMultiRe.
var indefiniteMarkers = []string{"*", "..", "?("}

var bracketMultiRe = regexp.MustCompile(`\[[^\]]*[,:]`)

// Query evaluates a JSONPath against the root and returns the matched result
// set. A definite path yields at most one result; an indefinite path yields
// every match in document order. A path that matches nothing yields an empty
// set, not an error.
func Query(root Root, path string) ([]any, error) {
	eval, err := pathLang.NewEvaluable(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}

	res, err := eval(context.Background(), map[string]any(root))
	if err != nil {
		// The evaluator reports unknown keys as errors; for extraction
		// semantics that is an empty result set.
		return nil, nil
	}

	if isIndefinite(path) {
		if seq, ok := res.([]any); ok {
			return seq, nil
		}
	}
	return []any{res}, nil
}

func isIndefinite(path string) bool {
	for _, marker := range indefiniteMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return bracketMultiRe.MatchString(path)
}
