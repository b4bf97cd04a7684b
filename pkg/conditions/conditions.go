// Package conditions evaluates the Boolean condition expressions used by the
// validate and conditionalOn operators.
package conditions

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/values"
)

// Eval evaluates cond against subject. An empty condition is false. The only
// error path is an invalid regex in a matches tag; every other mismatch is
// simply a false result.
func Eval(subject any, cond *contracts.Condition) (bool, error) {
	switch {
	case cond == nil:
		return false, nil
	case cond.HasEq:
		return values.Equal(subject, cond.Eq), nil
	case cond.HasNe:
		return !values.Equal(subject, cond.Ne), nil
	case cond.HasGt:
		return compare(subject, cond.Gt, func(a, b float64) bool { return a > b }), nil
	case cond.HasLt:
		return compare(subject, cond.Lt, func(a, b float64) bool { return a < b }), nil
	case cond.HasGte:
		return compare(subject, cond.Gte, func(a, b float64) bool { return a >= b }), nil
	case cond.HasLte:
		return compare(subject, cond.Lte, func(a, b float64) bool { return a <= b }), nil
	case cond.Contains != nil:
		return strings.Contains(values.SafeToString(subject), *cond.Contains), nil
	case cond.StartsWith != nil:
		return strings.HasPrefix(values.SafeToString(subject), *cond.StartsWith), nil
	case cond.EndsWith != nil:
		return strings.HasSuffix(values.SafeToString(subject), *cond.EndsWith), nil
	case cond.Matches != nil:
		re, err := regexp.Compile(*cond.Matches)
		if err != nil {
			return false, fmt.Errorf("invalid matches pattern %q: %w", *cond.Matches, err)
		}
		return re.MatchString(values.SafeToString(subject)), nil
	case cond.And != nil:
		for i := range cond.And {
			ok, err := Eval(subject, &cond.And[i])
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case cond.Or != nil:
		for i := range cond.Or {
			ok, err := Eval(subject, &cond.Or[i])
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case cond.Not != nil:
		ok, err := Eval(subject, cond.Not)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
	return false, nil
}

// compare numerically coerces both sides; an unparseable subject or operand
// yields false rather than an error.
func compare(subject, operand any, cmp func(a, b float64) bool) bool {
	a, ok := values.ToNumber(subject)
	if !ok {
		return false
	}
	b, ok := values.ToNumber(operand)
	if !ok {
		return false
	}
	return cmp(a, b)
}
