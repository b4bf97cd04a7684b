// Package transforms implements the closed catalogue of pure operators a
// processor pipeline may apply. Operators take a value and an environment and
// return a value; they perform no I/O and hold no state. Any rejection is a
// typed OpFailure; string results are bounded by the execution budget.
package transforms

import (
	"github.com/Mindburn-Labs/claimvm/core/pkg/budget"
	"github.com/Mindburn-Labs/claimvm/core/pkg/conditions"
	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/faults"
	"github.com/Mindburn-Labs/claimvm/core/pkg/values"
)

// Env is the evaluation environment threaded through a pipeline: the
// variables bound so far (extracted plus transformed) and the execution
// budget for string-length enforcement.
type Env struct {
	Vars   map[string]any
	Budget budget.Budget
}

// Apply runs a single operator against v. ConditionalOp is not applicable
// here; the executor resolves it to a branch via ResolveBranch and splices
// the result into the pipeline.
func Apply(op contracts.Op, v any, env *Env) (any, error) {
	var out any
	var err error

	switch o := op.(type) {
	case contracts.BareOp:
		out, err = applyBare(string(o), v)
	case contracts.SubstringOp:
		out, err = applySubstring(o, v)
	case contracts.ReplaceOp:
		out, err = applyReplace(o, v)
	case contracts.MathOp:
		out, err = applyMath(o, v)
	case contracts.TimestampOp:
		out, err = applyTimestamp(o, v)
	case contracts.AssertEqualsOp:
		out, err = applyAssertEquals(o, v)
	case contracts.AssertOneOfOp:
		out, err = applyAssertOneOf(o, v)
	case contracts.ValidateOp:
		out, err = applyValidate(o, v)
	case contracts.TemplateOp:
		out, err = applyTemplate(o, v)
	case contracts.ConstantOp:
		out, err = applyConstant(o)
	case contracts.ConditionalOp:
		return nil, faults.OpFailure(contracts.OpConditionalOn, "conditionalOn must be resolved by the executor")
	default:
		return nil, faults.OpFailure(op.OpName(), "operator not in registry")
	}
	if err != nil {
		return nil, err
	}

	if s, ok := out.(string); ok {
		if verr := env.Budget.CheckString(s); verr != nil {
			return nil, faults.Wrap(faults.KindResourceExceeded, verr, "%s result too large", op.OpName())
		}
	}
	return out, nil
}

// ResolveBranch evaluates a conditionalOn op against its named context
// variable and returns the branch op list to splice into the pipeline. The
// chosen branch never contains another conditionalOn (validated statically
// and re-checked here).
func ResolveBranch(op contracts.ConditionalOp, env *Env) ([]contracts.Op, error) {
	subject, ok := env.Vars[op.CheckField]
	if !ok {
		return nil, faults.OpFailure(contracts.OpConditionalOn, "unknown context field %q", op.CheckField)
	}

	match, err := conditions.Eval(subject, &op.If)
	if err != nil {
		return nil, faults.Wrap(faults.KindOpFailure, err, "conditionalOn condition on %q", op.CheckField)
	}

	branch := op.Then
	if !match {
		branch = op.Else
	}
	for _, sub := range branch {
		if sub.OpName() == contracts.OpConditionalOn {
			return nil, faults.OpFailure(contracts.OpConditionalOn, "nested conditionalOn is not allowed")
		}
	}
	return branch, nil
}

// applyConstant ignores the subject entirely.
func applyConstant(op contracts.ConstantOp) (any, error) {
	if !op.HasValue {
		return nil, faults.OpFailure(contracts.OpConstant, "constant requires a value")
	}
	return values.SafeToString(op.Value), nil
}
