package transforms

import (
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/faults"
	"github.com/Mindburn-Labs/claimvm/core/pkg/values"
)

func applyBare(name string, v any) (any, error) {
	switch name {
	case contracts.OpToLowerCase:
		return strings.ToLower(values.SafeToString(v)), nil
	case contracts.OpToUpperCase:
		return strings.ToUpper(values.SafeToString(v)), nil
	case contracts.OpTrim:
		return strings.TrimSpace(values.SafeToString(v)), nil
	case contracts.OpKeccak256:
		return hashKeccak256(v), nil
	case contracts.OpSha256:
		return hashSha256(v), nil
	case contracts.OpConcat:
		return applyConcat(v)
	}
	return nil, faults.OpFailure(name, "operator not in registry")
}

// applySubstring slices by rune index. When end < start the bounds are
// swapped (legacy compatibility); out-of-range bounds clamp, a start past the
// end of the string yields the empty string.
func applySubstring(op contracts.SubstringOp, v any) (any, error) {
	if op.Start < 0 {
		return nil, faults.OpFailure(contracts.OpSubstring, "start must be non-negative, got %d", op.Start)
	}
	runes := []rune(values.SafeToString(v))
	start := op.Start
	end := len(runes)
	if op.End != nil {
		end = *op.End
	}
	if end < 0 {
		end = 0
	}
	if end < start {
		start, end = end, start
	}
	if start >= len(runes) {
		return "", nil
	}
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end]), nil
}

// regexLeadin lists the metacharacters that trigger the legacy regex
// heuristic when they open a replace pattern.
const regexLeadin = `[\^$.|?*+()`

func applyReplace(op contracts.ReplaceOp, v any) (any, error) {
	if op.Pattern == "" {
		return nil, faults.OpFailure(contracts.OpReplace, "pattern must not be empty")
	}
	subject := values.SafeToString(v)

	pattern := op.Pattern
	isRegex := false
	switch op.Kind {
	case "regex":
		isRegex = true
		if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
			pattern = pattern[1 : len(pattern)-1]
		}
	case "literal":
	case "":
		// Legacy heuristic: a /…/ wrapper, or a leading metacharacter,
		// selects regex mode.
		if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
			isRegex = true
			pattern = pattern[1 : len(pattern)-1]
		} else if strings.ContainsRune(regexLeadin, rune(pattern[0])) {
			isRegex = true
		}
	default:
		return nil, faults.OpFailure(contracts.OpReplace, "kind must be \"regex\" or \"literal\", got %q", op.Kind)
	}

	if isRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, faults.Wrap(faults.KindOpFailure, err, "invalid replace pattern %q", op.Pattern)
		}
		return re.ReplaceAllString(subject, op.Replacement), nil
	}

	if op.Global {
		return strings.ReplaceAll(subject, pattern, op.Replacement), nil
	}
	return strings.Replace(subject, pattern, op.Replacement, 1), nil
}

// applyTemplate substitutes every literal ${value} occurrence; nothing else
// in the pattern is interpreted.
func applyTemplate(op contracts.TemplateOp, v any) (any, error) {
	if !op.HasPattern {
		return nil, faults.OpFailure(contracts.OpTemplate, "template requires a pattern")
	}
	return strings.ReplaceAll(op.Pattern, "${value}", values.SafeToString(v)), nil
}

// applyConcat requires a sequence subject (the tuple form of a transform
// rule) and joins the SafeToString of each element.
func applyConcat(v any) (any, error) {
	var sb strings.Builder
	switch seq := v.(type) {
	case []any:
		for _, elem := range seq {
			sb.WriteString(values.SafeToString(elem))
		}
	case []string:
		for _, elem := range seq {
			sb.WriteString(elem)
		}
	default:
		return nil, faults.OpFailure(contracts.OpConcat, "concat requires a sequence, got %s", values.Describe(v))
	}
	return sb.String(), nil
}
