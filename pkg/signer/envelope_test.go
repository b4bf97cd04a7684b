package signer

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/claimvm/core/pkg/budget"
	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/evmabi"
	"github.com/Mindburn-Labs/claimvm/core/pkg/faults"
	"github.com/Mindburn-Labs/claimvm/core/pkg/observability"
	"github.com/Mindburn-Labs/claimvm/core/pkg/processor"
)

const envProviderHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

const receiverAddr = "0xc70e0d4bd4c67dbefbc20a4ea6334e2e5ba63bfa"

func envClaim(params string) *contracts.ProviderClaimData {
	return &contracts.ProviderClaimData{
		Provider:   "http",
		Parameters: `{}`,
		Owner:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		TimestampS: 1741286205,
		Context:    `{"providerHash":"` + envProviderHash + `","extractedParameters":` + params + `}`,
		Identifier: "0xbead",
		Epoch:      1,
	}
}

func newTestEnvelope(t *testing.T) (*Envelope, *Secp256k1Signer) {
	t.Helper()
	s, err := GenerateSigner()
	require.NoError(t, err)
	return NewEnvelope(s), s
}

// Venmo-style payment: extract, scale to cents, parse the payment date.
func TestProcessClaim_Payment(t *testing.T) {
	doc := []byte(`{
		"extract": {
			"amount": "$.context.extractedParameters.amount",
			"date": "$.context.extractedParameters.date",
			"receiverId": "$.context.extractedParameters.receiverId"
		},
		"transform": {
			"amountInCents": {"input": "amount", "ops": [{"type": "math", "expression": "* 100"}]},
			"timestamp": {"input": "date", "ops": ["parseTimestamp"]}
		},
		"outputs": [
			{"name": "receiverId", "type": "address"},
			{"name": "amountInCents", "type": "uint256"},
			{"name": "timestamp", "type": "uint256"}
		]
	}`)
	claim := envClaim(`{"amount":"1.00","date":"2025-03-06T18:36:45","receiverId":"` + receiverAddr + `"}`)

	env, s := newTestEnvelope(t)
	result, err := env.ProcessClaim(context.Background(), claim, doc, ConventionEIP191)
	require.NoError(t, err)

	assert.Equal(t, []string{receiverAddr, "100", "1741286205000"}, result.Values)
	assert.Len(t, result.Outputs, 3)
	assert.Len(t, result.Values, len(result.Outputs))

	// The signature recovers to the attestor.
	sig, err := hex.DecodeString(strings.TrimPrefix(result.Signature, "0x"))
	require.NoError(t, err)
	messageHash, err := evmabi.MessageHash(result.ProcessorProviderHash, result.Outputs, result.Values)
	require.NoError(t, err)
	recovered, err := RecoverAttestor(messageHash, sig, ConventionEIP191)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

// Split-amount concat: two extracted fragments joined into one value.
func TestProcessClaim_ConcatAmount(t *testing.T) {
	doc := []byte(`{
		"extract": {
			"amt": "$.context.extractedParameters.amt",
			"cents": "$.context.extractedParameters.cents"
		},
		"transform": {
			"scaledAmount": {"inputs": ["amt", "cents"], "ops": ["concat"]},
			"timestamp": {"ops": [
				{"type": "constant", "value": "2025-03-21T19:54:05.000Z"},
				"parseTimestamp"
			]}
		},
		"outputs": [
			{"name": "scaledAmount", "type": "uint256"},
			{"name": "timestamp", "type": "uint256"}
		]
	}`)
	claim := envClaim(`{"amt":"1","cents":"00"}`)

	env, _ := newTestEnvelope(t)
	result, err := env.ProcessClaim(context.Background(), claim, doc, ConventionEIP191)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "1742586845000"}, result.Values)
}

// Currency-aware scaling via conditionalOn.
func TestProcessClaim_CurrencyScaling(t *testing.T) {
	doc := []byte(`{
		"extract": {
			"amount": "$.context.extractedParameters.amount",
			"currency": "$.context.extractedParameters.currency"
		},
		"transform": {
			"scaledAmount": {"input": "amount", "ops": [
				{"type": "conditionalOn",
				 "checkField": "currency",
				 "if": {"or": [{"eq": "JPY"}, {"eq": "KRW"}]},
				 "then": [],
				 "else": [{"type": "math", "expression": "/ 100"}]}
			]}
		},
		"outputs": [{"name": "scaledAmount", "type": "uint256"}]
	}`)

	env, _ := newTestEnvelope(t)

	result, err := env.ProcessClaim(context.Background(), envClaim(`{"amount":"1000","currency":"JPY"}`), doc, ConventionEIP191)
	require.NoError(t, err)
	assert.Equal(t, []string{"1000"}, result.Values)

	result, err = env.ProcessClaim(context.Background(), envClaim(`{"amount":"1000","currency":"USD"}`), doc, ConventionEIP191)
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, result.Values)
}

// A failed assertion aborts with no artifact.
func TestProcessClaim_AssertionFailure(t *testing.T) {
	doc := []byte(`{
		"extract": {"status": "$.context.extractedParameters.status"},
		"transform": {
			"checked": {"input": "status", "ops": [{"type": "assertEquals", "expected": "approved"}]}
		},
		"outputs": [{"name": "checked", "type": "string"}]
	}`)

	env, _ := newTestEnvelope(t)
	result, err := env.ProcessClaim(context.Background(), envClaim(`{"status":"pending"}`), doc, ConventionEIP191)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, faults.KindOpFailure, faults.KindOf(err))
}

// Tampering with a signed value breaks recovery.
func TestProcessClaim_TamperDetection(t *testing.T) {
	doc := []byte(`{
		"extract": {
			"receiverId": "$.context.extractedParameters.receiverId",
			"amount": "$.context.extractedParameters.amount"
		},
		"outputs": [
			{"name": "receiverId", "type": "address"},
			{"name": "amount", "type": "uint256"}
		]
	}`)
	claim := envClaim(`{"receiverId":"` + receiverAddr + `","amount":"100"}`)

	env, s := newTestEnvelope(t)
	result, err := env.ProcessClaim(context.Background(), claim, doc, ConventionEIP191)
	require.NoError(t, err)

	tampered := append([]string(nil), result.Values...)
	tampered[1] = "101"

	sig, err := hex.DecodeString(strings.TrimPrefix(result.Signature, "0x"))
	require.NoError(t, err)
	tamperedHash, err := evmabi.MessageHash(result.ProcessorProviderHash, result.Outputs, tampered)
	require.NoError(t, err)

	recovered, err := RecoverAttestor(tamperedHash, sig, ConventionEIP191)
	if err == nil {
		assert.NotEqual(t, s.Address(), recovered)
	}
}

// Processor identity is stable across key order and sensitive to content.
func TestProcessClaim_ProcessorIdentity(t *testing.T) {
	docA := []byte(`{
		"extract": {"amount": "$.context.extractedParameters.amount", "currency": "$.context.extractedParameters.currency"},
		"outputs": [{"name": "amount", "type": "string"}]
	}`)
	docB := []byte(`{
		"outputs": [{"name": "amount", "type": "string"}],
		"extract": {"currency": "$.context.extractedParameters.currency", "amount": "$.context.extractedParameters.amount"}
	}`)
	docC := []byte(`{
		"extract": {"amount": "$.context.extractedParameters.amt", "currency": "$.context.extractedParameters.currency"},
		"outputs": [{"name": "amount", "type": "string"}]
	}`)

	env, _ := newTestEnvelope(t)
	claim := envClaim(`{"amount":"1","currency":"USD","amt":"1"}`)

	ra, err := env.ProcessClaim(context.Background(), claim, docA, ConventionEIP191)
	require.NoError(t, err)
	rb, err := env.ProcessClaim(context.Background(), claim, docB, ConventionEIP191)
	require.NoError(t, err)
	rc, err := env.ProcessClaim(context.Background(), claim, docC, ConventionEIP191)
	require.NoError(t, err)

	assert.Equal(t, ra.ProcessorProviderHash, rb.ProcessorProviderHash,
		"key order must not change processor identity")
	assert.NotEqual(t, ra.ProcessorProviderHash, rc.ProcessorProviderHash,
		"a different JSONPath must change processor identity")
}

func TestProcessClaim_InvalidProcessor(t *testing.T) {
	env, _ := newTestEnvelope(t)
	result, err := env.ProcessClaim(context.Background(), envClaim(`{}`), []byte(`{"extract":{}}`), ConventionEIP191)
	require.Error(t, err)
	assert.Nil(t, result)

	var f *faults.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, faults.KindProcessorInvalid, f.Kind)
	assert.NotEmpty(t, f.Issues)
}

func TestProcessClaim_MissingProviderHash(t *testing.T) {
	doc := []byte(`{
		"extract": {"amount": "$.context.extractedParameters.amount"},
		"outputs": [{"name": "amount", "type": "string"}]
	}`)
	claim := envClaim(`{"amount":"1"}`)
	claim.Context = `{"extractedParameters":{"amount":"1"}}`

	env, _ := newTestEnvelope(t)
	_, err := env.ProcessClaim(context.Background(), claim, doc, ConventionEIP191)
	require.Error(t, err)
}

func TestProcessClaim_ServerVersionInjection(t *testing.T) {
	doc := []byte(`{
		"extract": {"amount": "$.context.extractedParameters.amount"},
		"outputs": [{"name": "amount", "type": "string"}]
	}`)
	claim := envClaim(`{"amount":"1"}`)

	s, err := GenerateSigner()
	require.NoError(t, err)

	plain := NewEnvelope(s)
	versioned := NewEnvelope(s, WithServerVersion("3.1.0"))

	rp, err := plain.ProcessClaim(context.Background(), claim, doc, ConventionEIP191)
	require.NoError(t, err)
	rv, err := versioned.ProcessClaim(context.Background(), claim, doc, ConventionEIP191)
	require.NoError(t, err)

	assert.NotEqual(t, rp.ProcessorProviderHash, rv.ProcessorProviderHash,
		"injected version participates in identity hashing")
}

func TestProcessClaim_WithTelemetry(t *testing.T) {
	doc := []byte(`{
		"extract": {"amount": "$.context.extractedParameters.amount"},
		"outputs": [{"name": "amount", "type": "string"}]
	}`)

	s, err := GenerateSigner()
	require.NoError(t, err)
	tel, err := observability.New(nil)
	require.NoError(t, err)
	env := NewEnvelope(s, WithTelemetry(tel))

	result, err := env.ProcessClaim(context.Background(), envClaim(`{"amount":"1"}`), doc, ConventionEIP191)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, result.Values)
}

func TestProcessClaim_BudgetOverride(t *testing.T) {
	doc := []byte(`{
		"extract": {"amount": "$.context.extractedParameters.amount"},
		"transform": {
			"padded": {"input": "amount", "ops": [{"type": "template", "pattern": "${value}${value}${value}${value}"}]}
		},
		"outputs": [{"name": "padded", "type": "string"}]
	}`)

	s, err := GenerateSigner()
	require.NoError(t, err)
	tight := budget.Default()
	tight.MaxStringLength = 8
	env := NewEnvelope(s, WithBudget(tight))

	_, err = env.ProcessClaim(context.Background(), envClaim(`{"amount":"123"}`), doc, ConventionEIP191)
	require.Error(t, err)
	assert.Equal(t, faults.KindResourceExceeded, faults.KindOf(err))
}

func TestProcessClaim_UnknownConvention(t *testing.T) {
	env, _ := newTestEnvelope(t)
	_, err := env.ProcessClaim(context.Background(), envClaim(`{}`),
		[]byte(`{"extract":{"a":"$.context"},"outputs":[{"name":"a","type":"string"}]}`),
		Convention("sideways"))
	require.Error(t, err)
	assert.Equal(t, faults.KindSignerFailure, faults.KindOf(err))
}

func TestProcessClaim_EncodingFailure(t *testing.T) {
	// A value that cannot coerce to its ABI type fails as EncodingFailure.
	doc := []byte(`{
		"extract": {"amount": "$.context.extractedParameters.amount"},
		"outputs": [{"name": "amount", "type": "uint256"}]
	}`)
	env, _ := newTestEnvelope(t)
	_, err := env.ProcessClaim(context.Background(), envClaim(`{"amount":"not-a-number"}`), doc, ConventionEIP191)
	require.Error(t, err)
	assert.Equal(t, faults.KindEncodingFailure, faults.KindOf(err))
}

func TestValidatorAgreesWithEnvelope(t *testing.T) {
	// Anything the validator rejects, the envelope rejects identically.
	doc := []byte(`{"extract":{"a":"$.x"},"outputs":[{"name":"ghost","type":"string"}]}`)
	_, res := processor.Validate(doc)
	require.False(t, res.Valid)

	env, _ := newTestEnvelope(t)
	_, err := env.ProcessClaim(context.Background(), envClaim(`{}`), doc, ConventionEIP191)
	require.Error(t, err)
	assert.Equal(t, faults.KindProcessorInvalid, faults.KindOf(err))
}
