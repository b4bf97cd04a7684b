package transforms

import (
	"math"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/faults"
	"github.com/Mindburn-Labs/claimvm/core/pkg/values"
)

const maxSafeInteger = float64(1<<53 - 1)

// applyMath evaluates "<op> <number>" against the numeric subject. The
// grammar is deliberately this small: the sandbox does not evaluate
// expressions.
func applyMath(op contracts.MathOp, v any) (any, error) {
	fields := strings.Fields(op.Expression)
	if len(fields) != 2 {
		return nil, faults.OpFailure(contracts.OpMath, "expression must be \"<op> <number>\", got %q", op.Expression)
	}
	operator := fields[0]
	operand, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, faults.OpFailure(contracts.OpMath, "operand %q is not a number", fields[1])
	}

	subject, ok := values.ToNumber(v)
	if !ok {
		return nil, faults.OpFailure(contracts.OpMath, "subject %q is not numeric", values.SafeToString(v))
	}

	var result float64
	switch operator {
	case "+":
		result = subject + operand
	case "-":
		result = subject - operand
	case "*":
		result = subject * operand
	case "/":
		if operand == 0 {
			return nil, faults.OpFailure(contracts.OpMath, "division by zero")
		}
		result = subject / operand
	default:
		return nil, faults.OpFailure(contracts.OpMath, "operator must be one of + - * /, got %q", operator)
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, faults.OpFailure(contracts.OpMath, "result is not finite")
	}
	if math.Abs(result) > maxSafeInteger {
		return nil, faults.OpFailure(contracts.OpMath, "result exceeds the safe integer range")
	}

	return values.FormatNumber(result), nil
}
