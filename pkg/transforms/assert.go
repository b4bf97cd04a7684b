package transforms

import (
	"github.com/Mindburn-Labs/claimvm/core/pkg/conditions"
	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/faults"
	"github.com/Mindburn-Labs/claimvm/core/pkg/values"
)

// Assertion ops pass the subject through unchanged on success.

func applyAssertEquals(op contracts.AssertEqualsOp, v any) (any, error) {
	if !op.HasExpected {
		return nil, faults.OpFailure(contracts.OpAssertEquals, "assertEquals requires an expected value")
	}
	if !values.Equal(v, op.Expected) {
		msg := op.Message
		if msg == "" {
			msg = "expected " + values.SafeToString(op.Expected) + ", got " + values.SafeToString(v)
		}
		return nil, faults.OpFailure(contracts.OpAssertEquals, "%s", msg)
	}
	return v, nil
}

func applyAssertOneOf(op contracts.AssertOneOfOp, v any) (any, error) {
	if !op.HasValues {
		return nil, faults.OpFailure(contracts.OpAssertOneOf, "assertOneOf requires a values list")
	}
	for _, candidate := range op.Values {
		if values.Equal(v, candidate) {
			return v, nil
		}
	}
	msg := op.Message
	if msg == "" {
		msg = values.SafeToString(v) + " is not one of the allowed values"
	}
	return nil, faults.OpFailure(contracts.OpAssertOneOf, "%s", msg)
}

func applyValidate(op contracts.ValidateOp, v any) (any, error) {
	if !op.HasCondition {
		return nil, faults.OpFailure(contracts.OpValidate, "validate requires a condition")
	}
	ok, err := conditions.Eval(v, &op.Condition)
	if err != nil {
		return nil, faults.Wrap(faults.KindOpFailure, err, "validate condition")
	}
	if !ok {
		msg := op.Message
		if msg == "" {
			msg = "validation failed for value " + values.SafeToString(v)
		}
		return nil, faults.OpFailure(contracts.OpValidate, "%s", msg)
	}
	return v, nil
}
