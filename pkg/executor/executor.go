// Package executor runs validated processors against claims: JSONPath
// extraction, dependency-ordered transform evaluation with conditional
// splicing, and output assembly. Each execution is single-threaded and gated
// by a wall-clock deadline checked between extract entries, between transform
// entries, and at every op boundary.
package executor

import (
	"time"

	"github.com/Mindburn-Labs/claimvm/core/pkg/budget"
	"github.com/Mindburn-Labs/claimvm/core/pkg/claims"
	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/faults"
	"github.com/Mindburn-Labs/claimvm/core/pkg/transforms"
	"github.com/Mindburn-Labs/claimvm/core/pkg/values"
)

// Executor evaluates processors under a fixed budget. It holds no mutable
// state across executions and is safe for concurrent use.
type Executor struct {
	budget budget.Budget
	clock  func() time.Time
}

// New creates an executor with the given budget.
func New(b budget.Budget) *Executor {
	return &Executor{budget: b, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (e *Executor) WithClock(clock func() time.Time) *Executor {
	e.clock = clock
	return e
}

// Execute runs the processor against the claim and returns the output value
// vector, one string per outputs entry. Every failure aborts the whole
// execution; no partial vector is returned.
func (e *Executor) Execute(p *contracts.Processor, claim *contracts.ProviderClaimData) ([]string, error) {
	start := e.clock()
	root := claims.NewRoot(claim)

	// vars holds extracted values, overwritten by transforms as they commit.
	vars := make(map[string]any, len(p.Extract)+len(p.Transforms))

	for _, entry := range p.Extract {
		if err := e.checkDeadline(start); err != nil {
			return nil, err
		}
		results, err := claims.Query(root, entry.Path)
		if err != nil {
			return nil, faults.Wrap(faults.KindExtractMissing, err,
				"Value extraction failed for '%s' using JSONPath '%s'", entry.Name, entry.Path)
		}
		if verr := e.budget.CheckJSONPathResults(len(results)); verr != nil {
			return nil, faults.Wrap(faults.KindExtractOverflow, verr,
				"JSONPath '%s' for '%s' matched too many nodes", entry.Path, entry.Name)
		}
		if len(results) == 0 {
			return nil, faults.New(faults.KindExtractMissing,
				"Value extraction failed for '%s' using JSONPath '%s'", entry.Name, entry.Path)
		}
		value := results[0]
		if s, ok := value.(string); ok {
			if verr := e.budget.CheckString(s); verr != nil {
				return nil, faults.Wrap(faults.KindResourceExceeded, verr,
					"extracted value for '%s' too large", entry.Name)
			}
		}
		vars[entry.Name] = value
	}

	env := &transforms.Env{Vars: vars, Budget: e.budget}

	for _, entry := range p.Transforms {
		if err := e.checkDeadline(start); err != nil {
			return nil, err
		}
		current, err := resolveSource(entry, vars)
		if err != nil {
			return nil, err
		}

		// Ops run left to right off a queue; a conditionalOn resolves to a
		// branch spliced onto the front, ahead of the remaining ops.
		queue := append([]contracts.Op(nil), entry.Rule.Ops...)
		for len(queue) > 0 {
			if err := e.checkDeadline(start); err != nil {
				return nil, err
			}
			op := queue[0]
			queue = queue[1:]

			if cond, ok := op.(contracts.ConditionalOp); ok {
				branch, err := transforms.ResolveBranch(cond, env)
				if err != nil {
					return nil, err
				}
				queue = append(append([]contracts.Op(nil), branch...), queue...)
				continue
			}

			current, err = transforms.Apply(op, current, env)
			if err != nil {
				return nil, err
			}
		}
		vars[entry.Name] = current
	}

	if err := e.checkDeadline(start); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(p.Outputs))
	for _, spec := range p.Outputs {
		value, ok := vars[spec.Name]
		if !ok || value == nil {
			return nil, faults.New(faults.KindOutputUndefined,
				"output '%s' did not resolve to a defined value", spec.Name)
		}
		out = append(out, values.SafeToString(value))
	}
	if verr := e.budget.CheckOutputCount(len(out)); verr != nil {
		return nil, faults.Wrap(faults.KindResourceExceeded, verr, "output vector too long")
	}
	return out, nil
}

// resolveSource materialises a rule's subject: a single prior value, an
// ordered tuple, or nil for a source-less constant rule.
func resolveSource(entry contracts.TransformEntry, vars map[string]any) (any, error) {
	rule := entry.Rule
	switch {
	case rule.HasInput:
		value, ok := vars[rule.Input]
		if !ok {
			return nil, faults.New(faults.KindTransformInputUndefined,
				"transform '%s' input '%s' is undefined", entry.Name, rule.Input)
		}
		return value, nil
	case rule.HasInputs:
		tuple := make([]any, len(rule.Inputs))
		for i, name := range rule.Inputs {
			value, ok := vars[name]
			if !ok {
				return nil, faults.New(faults.KindTransformInputUndefined,
					"transform '%s' input '%s' is undefined", entry.Name, name)
			}
			tuple[i] = value
		}
		return tuple, nil
	}
	return nil, nil
}

func (e *Executor) checkDeadline(start time.Time) error {
	if verr := e.budget.CheckDeadline(start, e.clock()); verr != nil {
		return faults.Wrap(faults.KindResourceExceeded, verr, "execution deadline exceeded")
	}
	return nil
}
