package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ExtractEntry binds a variable name to a JSONPath, in declaration order.
type ExtractEntry struct {
	Name string
	Path string
}

// TransformRule derives one variable from prior values. Input and Inputs are
// mutually exclusive; a source-less rule is only valid when its first op is
// constant (enforced by the validator).
type TransformRule struct {
	Input     string `json:"input,omitempty"`
	Inputs    []string
	HasInput  bool
	HasInputs bool
	Ops       OpList `json:"ops"`
}

func (r *TransformRule) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("transform rule must be an object: %w", err)
	}
	if raw, ok := m["input"]; ok && string(raw) != "null" {
		r.HasInput = true
		if err := json.Unmarshal(raw, &r.Input); err != nil {
			return fmt.Errorf("input: %w", err)
		}
	}
	if raw, ok := m["inputs"]; ok && string(raw) != "null" {
		r.HasInputs = true
		if err := json.Unmarshal(raw, &r.Inputs); err != nil {
			return fmt.Errorf("inputs: %w", err)
		}
	}
	raw, ok := m["ops"]
	if !ok {
		return fmt.Errorf("transform rule missing ops")
	}
	if err := json.Unmarshal(raw, &r.Ops); err != nil {
		return err
	}
	return nil
}

// TransformEntry is one named transform rule, in declaration order.
type TransformEntry struct {
	Name string
	Rule TransformRule
}

// Processor is an untrusted, declarative claim-processing program. Extract
// and Transforms preserve the declaration order of the source document; a
// later transform may read any earlier variable.
type Processor struct {
	Version    string
	Extract    []ExtractEntry
	Transforms []TransformEntry
	Outputs    []OutputSpec

	// Raw is the document as received, retained for identity hashing.
	Raw json.RawMessage
}

// ParseProcessor decodes a processor document, preserving key order of the
// extract and transform maps. Unknown operator names fail the decode.
func ParseProcessor(data []byte) (*Processor, error) {
	p := &Processor{Raw: append(json.RawMessage(nil), data...)}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("processor must be a JSON object: %w", err)
	}

	if raw, ok := top["version"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &p.Version); err != nil {
			return nil, fmt.Errorf("version: %w", err)
		}
	}

	if raw, ok := top["extract"]; ok {
		entries, err := orderedEntries(raw, "extract")
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			var path string
			if err := json.Unmarshal(e.raw, &path); err != nil {
				return nil, fmt.Errorf("extract.%s: JSONPath must be a string: %w", e.name, err)
			}
			p.Extract = append(p.Extract, ExtractEntry{Name: e.name, Path: path})
		}
	}

	if raw, ok := top["transform"]; ok {
		entries, err := orderedEntries(raw, "transform")
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			var rule TransformRule
			if err := json.Unmarshal(e.raw, &rule); err != nil {
				return nil, fmt.Errorf("transform.%s: %w", e.name, err)
			}
			p.Transforms = append(p.Transforms, TransformEntry{Name: e.name, Rule: rule})
		}
	}

	if raw, ok := top["outputs"]; ok {
		if err := json.Unmarshal(raw, &p.Outputs); err != nil {
			return nil, fmt.Errorf("outputs: %w", err)
		}
	}

	return p, nil
}

// WithVersion returns a copy of the processor with the given version tag,
// applied both to the decoded form and to the raw document used for identity
// hashing. Embedders use this to inject a server-side version before hashing.
func (p *Processor) WithVersion(version string) (*Processor, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(p.Raw, &top); err != nil {
		return nil, fmt.Errorf("processor raw form: %w", err)
	}
	vb, err := json.Marshal(version)
	if err != nil {
		return nil, err
	}
	top["version"] = vb
	raw, err := json.Marshal(top)
	if err != nil {
		return nil, err
	}
	clone := *p
	clone.Version = version
	clone.Raw = raw
	return &clone, nil
}

// Variable lookup order at execution time is transforms-over-extracts; these
// helpers serve the validator.

// ExtractNames returns the extract variable names in declaration order.
func (p *Processor) ExtractNames() []string {
	names := make([]string, len(p.Extract))
	for i, e := range p.Extract {
		names[i] = e.Name
	}
	return names
}

type rawEntry struct {
	name string
	raw  json.RawMessage
}

// orderedEntries walks a JSON object token by token, keeping key order.
func orderedEntries(data json.RawMessage, field string) ([]rawEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%s must be a JSON object", field)
	}

	var entries []rawEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected key token %v", field, keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", field, key, err)
		}
		entries = append(entries, rawEntry{name: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return entries, nil
}
