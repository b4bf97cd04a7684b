package transforms

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/claimvm/core/pkg/budget"
	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/faults"
)

func testEnv() *Env {
	return &Env{Vars: map[string]any{}, Budget: budget.Default()}
}

func mustOp(t *testing.T, doc string) contracts.Op {
	t.Helper()
	op, err := contracts.DecodeOp([]byte(doc))
	require.NoError(t, err)
	return op
}

func apply(t *testing.T, doc string, v any) (any, error) {
	t.Helper()
	return Apply(mustOp(t, doc), v, testEnv())
}

func TestStringOps(t *testing.T) {
	tests := []struct {
		name string
		op   string
		in   any
		want string
	}{
		{"toLowerCase", `"toLowerCase"`, "HeLLo", "hello"},
		{"toUpperCase", `"toUpperCase"`, "HeLLo", "HELLO"},
		{"trim", `"trim"`, "  x \t", "x"},
		{"toLowerCase of number", `"toLowerCase"`, float64(12), "12"},
		{"trim of null", `"trim"`, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := apply(t, tt.op, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubstring(t *testing.T) {
	tests := []struct {
		name string
		op   string
		in   string
		want string
	}{
		{"basic", `{"type":"substring","start":1,"end":3}`, "abcdef", "bc"},
		{"to end", `{"type":"substring","start":2}`, "abcdef", "cdef"},
		{"swap when end < start", `{"type":"substring","start":3,"end":1}`, "abcdef", "bc"},
		{"start past end of string", `{"type":"substring","start":10}`, "abc", ""},
		{"end clamped", `{"type":"substring","start":1,"end":99}`, "abc", "bc"},
		{"runes not bytes", `{"type":"substring","start":0,"end":2}`, "héllo", "hé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := apply(t, tt.op, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubstring_NegativeStart(t *testing.T) {
	_, err := apply(t, `{"type":"substring","start":-1}`, "abc")
	require.Error(t, err)
	assert.Equal(t, faults.KindOpFailure, faults.KindOf(err))
}

func TestReplace(t *testing.T) {
	tests := []struct {
		name string
		op   string
		in   string
		want string
	}{
		{"literal first only", `{"type":"replace","pattern":"a","replacement":"X"}`, "banana", "bXnana"},
		{"literal global", `{"type":"replace","pattern":"a","replacement":"X","global":true}`, "banana", "bXnXnX"},
		{"slash-wrapped regex", `{"type":"replace","pattern":"/[0-9]+/","replacement":"#"}`, "a1b22c", "a#b#c"},
		{"leading metachar heuristic", `{"type":"replace","pattern":"\\d+","replacement":"#"}`, "a1b22c", "a#b#c"},
		{"explicit literal kind beats heuristic", `{"type":"replace","pattern":"$","replacement":"USD ","kind":"literal","global":true}`, "$5", "USD 5"},
		{"explicit regex kind", `{"type":"replace","pattern":"na","replacement":"X","kind":"regex"}`, "banana", "baXX"},
		{"strip currency symbols", `{"type":"replace","pattern":"[$,]","replacement":""}`, "$1,234", "1234"},
		{"default replacement empty", `{"type":"replace","pattern":"a","global":true}`, "banana", "bnn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := apply(t, tt.op, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReplace_FixedPoint(t *testing.T) {
	// replace(s, p -> p) is the identity when p occurs in s.
	got, err := apply(t, `{"type":"replace","pattern":"ana","replacement":"ana","global":true}`, "banana")
	require.NoError(t, err)
	assert.Equal(t, "banana", got)
}

func TestReplace_Failures(t *testing.T) {
	_, err := apply(t, `{"type":"replace","pattern":"","replacement":"x"}`, "abc")
	require.Error(t, err)

	_, err = apply(t, `{"type":"replace","pattern":"(unclosed","replacement":"x"}`, "abc")
	require.Error(t, err)
	assert.Equal(t, faults.KindOpFailure, faults.KindOf(err))
}

func TestMath(t *testing.T) {
	tests := []struct {
		name string
		expr string
		in   any
		want string
	}{
		{"multiply", "* 100", "1.00", "100"},
		{"divide", "/ 100", "1000", "10"},
		{"add", "+ 5", "10", "15"},
		{"subtract", "- 0.5", "2", "1.5"},
		{"numeric subject", "* 2", float64(21), "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := apply(t, `{"type":"math","expression":"`+tt.expr+`"}`, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMath_Failures(t *testing.T) {
	cases := []struct {
		name string
		expr string
		in   any
	}{
		{"non-numeric subject", "* 2", "abc"},
		{"division by zero", "/ 0", "10"},
		{"bad operator", "% 2", "10"},
		{"bad operand", "* x", "10"},
		{"too many tokens", "* 2 3", "10"},
		{"overflow", "* 1e300", "1e300"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := apply(t, `{"type":"math","expression":"`+tt.expr+`"}`, tt.in)
			require.Error(t, err)
			assert.Equal(t, faults.KindOpFailure, faults.KindOf(err))
		})
	}
}

func TestHashes(t *testing.T) {
	got, err := apply(t, `"keccak256"`, "")
	require.NoError(t, err)
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", got)

	got, err = apply(t, `"keccak256"`, "abc")
	require.NoError(t, err)
	assert.Equal(t, "0x4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45", got)

	got, err = apply(t, `"sha256"`, "abc")
	require.NoError(t, err)
	assert.Equal(t, "0xba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)

	// Raw byte subjects hash as-is, not via string form.
	got, err = apply(t, `"sha256"`, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "0xba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"iso no zone", "2025-03-06T18:36:45", "1741286205000"},
		{"iso with fractional and zone", "2025-03-21T19:54:05.000Z", "1742586845000"},
		{"iso zulu", "2025-03-06T18:36:45Z", "1741286205000"},
		{"space separator", "2025-03-06 18:36:45", "1741286205000"},
		{"date only", "2025-03-06", "1741219200000"},
		{"us date", "03/06/2025", "1741219200000"},
		{"epoch seconds", "1741286205", "1741286205000"},
		{"epoch millis", "1741286205000", "1741286205000"},
		{"numeric subject", float64(1741286205), "1741286205000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := apply(t, `"parseTimestamp"`, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimestamp_Idempotent(t *testing.T) {
	first, err := apply(t, `"parseTimestamp"`, "2025-03-06T18:36:45")
	require.NoError(t, err)
	second, err := apply(t, `"parseTimestamp"`, first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseTimestamp_Format(t *testing.T) {
	got, err := apply(t, `{"type":"parseTimestamp","format":"^\\d{4}-\\d{2}-\\d{2}$"}`, "2025-03-06")
	require.NoError(t, err)
	assert.Equal(t, "1741219200000", got)

	_, err = apply(t, `{"type":"parseTimestamp","format":"^\\d{4}-\\d{2}-\\d{2}$"}`, "03/06/2025")
	require.Error(t, err)
}

func TestParseTimestamp_Failures(t *testing.T) {
	for _, in := range []any{nil, "", "not a date"} {
		_, err := apply(t, `"parseTimestamp"`, in)
		require.Error(t, err, "input %v", in)
		assert.Equal(t, faults.KindOpFailure, faults.KindOf(err))
	}
}

func TestAssertEquals(t *testing.T) {
	got, err := apply(t, `{"type":"assertEquals","expected":"approved"}`, "approved")
	require.NoError(t, err)
	assert.Equal(t, "approved", got)

	_, err = apply(t, `{"type":"assertEquals","expected":"approved","message":"payment not approved"}`, "pending")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment not approved")
}

func TestAssertOneOf(t *testing.T) {
	got, err := apply(t, `{"type":"assertOneOf","values":["USD","EUR"]}`, "EUR")
	require.NoError(t, err)
	assert.Equal(t, "EUR", got)

	_, err = apply(t, `{"type":"assertOneOf","values":["USD","EUR"]}`, "JPY")
	require.Error(t, err)

	// Missing values list is a structural failure.
	_, err = apply(t, `{"type":"assertOneOf"}`, "JPY")
	require.Error(t, err)
}

func TestValidateOp(t *testing.T) {
	got, err := apply(t, `{"type":"validate","condition":{"gt":0}}`, "5")
	require.NoError(t, err)
	assert.Equal(t, "5", got)

	_, err = apply(t, `{"type":"validate","condition":{"gt":10},"message":"amount too small"}`, "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount too small")
}

func TestConcat(t *testing.T) {
	got, err := apply(t, `"concat"`, []any{"1", "00"})
	require.NoError(t, err)
	assert.Equal(t, "100", got)

	got, err = apply(t, `"concat"`, []any{"a", float64(2), nil, true})
	require.NoError(t, err)
	assert.Equal(t, "a2true", got)

	_, err = apply(t, `"concat"`, "not a sequence")
	require.Error(t, err)
}

func TestTemplate(t *testing.T) {
	got, err := apply(t, `{"type":"template","pattern":"amount=${value} (${value})"}`, "5")
	require.NoError(t, err)
	assert.Equal(t, "amount=5 (5)", got)

	// No other substitutions happen.
	got, err = apply(t, `{"type":"template","pattern":"${other} ${value}"}`, "x")
	require.NoError(t, err)
	assert.Equal(t, "${other} x", got)
}

func TestConstant(t *testing.T) {
	got, err := apply(t, `{"type":"constant","value":"fixed"}`, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "fixed", got)

	got, err = apply(t, `{"type":"constant","value":null}`, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = apply(t, `{"type":"constant"}`, "ignored")
	require.Error(t, err)
}

func TestResolveBranch(t *testing.T) {
	env := testEnv()
	env.Vars["currency"] = "JPY"

	var op contracts.Op
	op = mustOp(t, `{"type":"conditionalOn","checkField":"currency","if":{"or":[{"eq":"JPY"},{"eq":"KRW"}]},"then":[],"else":[{"type":"math","expression":"/ 100"}]}`)
	branch, err := ResolveBranch(op.(contracts.ConditionalOp), env)
	require.NoError(t, err)
	assert.Empty(t, branch)

	env.Vars["currency"] = "USD"
	branch, err = ResolveBranch(op.(contracts.ConditionalOp), env)
	require.NoError(t, err)
	require.Len(t, branch, 1)
	assert.Equal(t, contracts.OpMath, branch[0].OpName())
}

func TestResolveBranch_UnknownField(t *testing.T) {
	op := mustOp(t, `{"type":"conditionalOn","checkField":"missing","if":{"eq":"x"},"then":[]}`)
	_, err := ResolveBranch(op.(contracts.ConditionalOp), testEnv())
	require.Error(t, err)
	assert.Equal(t, faults.KindOpFailure, faults.KindOf(err))
}

func TestApply_StringBudget(t *testing.T) {
	env := testEnv()
	env.Budget.MaxStringLength = 8

	op := mustOp(t, `{"type":"template","pattern":"${value}${value}${value}"}`)
	_, err := Apply(op, "abcd", env)
	require.Error(t, err)
	assert.Equal(t, faults.KindResourceExceeded, faults.KindOf(err))
}

func TestApply_ConditionalRejectedDirectly(t *testing.T) {
	op := mustOp(t, `{"type":"conditionalOn","checkField":"c","if":{"eq":1},"then":[]}`)
	_, err := Apply(op, "x", testEnv())
	require.Error(t, err)
}

func TestSafeToStringOfJSONTree(t *testing.T) {
	// Objects flowing into string ops serialize compactly.
	var tree any
	require.NoError(t, json.Unmarshal([]byte(`{"b":1,"a":"x"}`), &tree))
	got, err := apply(t, `"toUpperCase"`, tree)
	require.NoError(t, err)
	assert.True(t, strings.Contains(got.(string), `"A":"X"`) || strings.Contains(got.(string), `"B":1`))
}
