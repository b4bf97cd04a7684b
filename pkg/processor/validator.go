// Package processor statically validates untrusted processor documents
// before execution. Validation is strict enough that the only runtime
// resolution failures left are input-value shape issues: every name
// reference, operator, and operator parameter is checked here.
package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/evmabi"
	"github.com/Mindburn-Labs/claimvm/core/pkg/faults"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Result reports the outcome of static validation.
type Result struct {
	Valid  bool           `json:"valid"`
	Issues []faults.Issue `json:"errors"`
}

// Validate checks a processor document. On success it returns the decoded
// processor; on failure the Result carries every issue found.
func Validate(data []byte) (*contracts.Processor, *Result) {
	var issues []faults.Issue

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		issues = append(issues, faults.Issue{Path: "", Message: fmt.Sprintf("document is not valid JSON: %v", err)})
		return nil, &Result{Valid: false, Issues: issues}
	}

	if err := compiledSchema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			issues = append(issues, flattenSchemaError(ve)...)
		} else {
			issues = append(issues, faults.Issue{Path: "", Message: err.Error()})
		}
	}

	p, err := contracts.ParseProcessor(data)
	if err != nil {
		issues = append(issues, faults.Issue{Path: "", Message: err.Error()})
		return nil, &Result{Valid: false, Issues: issues}
	}

	issues = append(issues, semanticIssues(p)...)

	if len(issues) > 0 {
		return nil, &Result{Valid: false, Issues: issues}
	}
	return p, &Result{Valid: true}
}

// ValidateProcessor re-runs the semantic checks on an already-decoded
// processor, for callers that hold a *contracts.Processor rather than raw
// bytes.
func ValidateProcessor(p *contracts.Processor) *Result {
	issues := semanticIssues(p)
	return &Result{Valid: len(issues) == 0, Issues: issues}
}

func semanticIssues(p *contracts.Processor) []faults.Issue {
	var issues []faults.Issue
	add := func(path, format string, args ...any) {
		issues = append(issues, faults.Issue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if len(p.Extract) == 0 {
		add("extract", "extract must define at least one variable")
	}

	if p.Version != "" {
		if _, err := semver.NewVersion(p.Version); err != nil {
			add("version", "version %q is not valid semver", p.Version)
		}
	}

	// Extract names: identifier shape, no duplicates.
	scope := map[string]bool{}
	for _, e := range p.Extract {
		path := "extract." + e.Name
		if !identRe.MatchString(e.Name) {
			add(path, "variable name %q is not a valid identifier", e.Name)
		}
		if scope[e.Name] {
			add(path, "duplicate extract variable %q", e.Name)
		}
		if e.Path == "" {
			add(path, "JSONPath must not be empty")
		}
		scope[e.Name] = true
	}

	// Transforms: declaration-order scope, rule shape, op parameters.
	declared := map[string]bool{}
	for _, t := range p.Transforms {
		path := "transform." + t.Name
		if !identRe.MatchString(t.Name) {
			add(path, "variable name %q is not a valid identifier", t.Name)
		}
		if declared[t.Name] {
			add(path, "duplicate transform variable %q", t.Name)
		}

		rule := t.Rule
		switch {
		case rule.HasInput && rule.HasInputs:
			add(path, "rule must not set both input and inputs")
		case !rule.HasInput && !rule.HasInputs:
			if len(rule.Ops) == 0 || rule.Ops[0].OpName() != contracts.OpConstant {
				add(path, "source-less rule must begin with a constant op")
			}
		case rule.HasInput:
			if !scope[rule.Input] {
				add(path+".input", "unknown variable %q", rule.Input)
			}
		case rule.HasInputs:
			if len(rule.Inputs) == 0 {
				add(path+".inputs", "inputs must not be empty")
			}
			for i, name := range rule.Inputs {
				if !scope[name] {
					add(fmt.Sprintf("%s.inputs[%d]", path, i), "unknown variable %q", name)
				}
			}
		}

		if len(rule.Ops) == 0 {
			add(path+".ops", "ops must not be empty")
		}
		issues = append(issues, opIssues(rule.Ops, path+".ops", scope, 0)...)

		declared[t.Name] = true
		scope[t.Name] = true
	}

	// Outputs: resolution, duplicate names, type tags.
	if len(p.Outputs) == 0 {
		add("outputs", "outputs must define at least one entry")
	}
	seen := map[string]bool{}
	for i, out := range p.Outputs {
		path := fmt.Sprintf("outputs[%d]", i)
		if out.Name == "" {
			add(path, "output entry is missing name")
			continue
		}
		if out.Type == "" {
			add(path, "output entry is missing type")
		}
		if !scope[out.Name] {
			add(path, "output %q does not resolve to an extracted or transformed variable", out.Name)
		}
		if seen[out.Name] {
			add(path, "duplicate output name %q", out.Name)
		}
		seen[out.Name] = true
		if out.Type != "" && !evmabi.ValidTypeTag(out.Type) {
			add(path, "unrecognised ABI type %q", out.Type)
		}
	}

	return issues
}

// opIssues checks operator parameters, recursing into conditional branches.
// depth tracks conditionalOn nesting; at most one level is permitted.
func opIssues(ops []contracts.Op, path string, scope map[string]bool, depth int) []faults.Issue {
	var issues []faults.Issue
	add := func(p, format string, args ...any) {
		issues = append(issues, faults.Issue{Path: p, Message: fmt.Sprintf(format, args...)})
	}

	for i, op := range ops {
		opPath := fmt.Sprintf("%s[%d]", path, i)
		switch o := op.(type) {
		case contracts.SubstringOp:
			if !o.StartSet {
				add(opPath, "substring requires start")
			} else if o.Start < 0 {
				add(opPath, "substring start must be non-negative, got %d", o.Start)
			}
		case contracts.ReplaceOp:
			if o.Pattern == "" {
				add(opPath, "replace pattern must not be empty")
			}
			if o.Kind != "" && o.Kind != "regex" && o.Kind != "literal" {
				add(opPath, "replace kind must be \"regex\" or \"literal\"")
			}
		case contracts.MathOp:
			if o.Expression == "" {
				add(opPath, "math requires an expression")
			}
		case contracts.TemplateOp:
			if !o.HasPattern {
				add(opPath, "template requires a pattern")
			}
		case contracts.ConstantOp:
			if !o.HasValue {
				add(opPath, "constant requires a value")
			}
		case contracts.AssertEqualsOp:
			if !o.HasExpected {
				add(opPath, "assertEquals requires an expected value")
			}
		case contracts.AssertOneOfOp:
			if !o.HasValues {
				add(opPath, "assertOneOf requires a values list")
			}
		case contracts.ValidateOp:
			if !o.HasCondition {
				add(opPath, "validate requires a condition")
			}
		case contracts.ConditionalOp:
			if depth > 0 {
				add(opPath, "conditionalOn must not nest inside another conditionalOn branch")
				continue
			}
			if o.CheckField == "" {
				add(opPath, "conditionalOn requires checkField")
			} else if !scope[o.CheckField] {
				add(opPath, "conditionalOn checkField %q is not a known variable", o.CheckField)
			}
			if !o.HasIf {
				add(opPath, "conditionalOn requires if")
			}
			if !o.HasThen {
				add(opPath, "conditionalOn requires then")
			}
			issues = append(issues, opIssues(o.Then, opPath+".then", scope, depth+1)...)
			issues = append(issues, opIssues(o.Else, opPath+".else", scope, depth+1)...)
		}
	}
	return issues
}

// flattenSchemaError reduces a jsonschema validation tree to leaf issues.
func flattenSchemaError(ve *jsonschema.ValidationError) []faults.Issue {
	if len(ve.Causes) == 0 {
		return []faults.Issue{{Path: ve.InstanceLocation, Message: ve.Message}}
	}
	var issues []faults.Issue
	for _, cause := range ve.Causes {
		issues = append(issues, flattenSchemaError(cause)...)
	}
	return issues
}
