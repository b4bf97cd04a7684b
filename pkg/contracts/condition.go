package contracts

import (
	"encoding/json"
	"fmt"
)

// Condition is a Boolean expression over a subject value. Exactly one tag is
// set on a well-formed condition; an empty condition evaluates to false.
type Condition struct {
	Eq  any
	Ne  any
	Gt  any
	Lt  any
	Gte any
	Lte any

	Contains   *string
	StartsWith *string
	EndsWith   *string
	Matches    *string

	And []Condition
	Or  []Condition
	Not *Condition

	// presence flags for tags whose zero value is meaningful
	HasEq, HasNe, HasGt, HasLt, HasGte, HasLte bool
}

// Tag returns the single tag set on the condition, or "" when empty.
func (c *Condition) Tag() string {
	switch {
	case c.HasEq:
		return "eq"
	case c.HasNe:
		return "ne"
	case c.HasGt:
		return "gt"
	case c.HasLt:
		return "lt"
	case c.HasGte:
		return "gte"
	case c.HasLte:
		return "lte"
	case c.Contains != nil:
		return "contains"
	case c.StartsWith != nil:
		return "startsWith"
	case c.EndsWith != nil:
		return "endsWith"
	case c.Matches != nil:
		return "matches"
	case c.And != nil:
		return "and"
	case c.Or != nil:
		return "or"
	case c.Not != nil:
		return "not"
	}
	return ""
}

// UnmarshalJSON decodes the tagged wire form. Multiple tags on one condition
// object are rejected.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("condition must be an object: %w", err)
	}

	seen := 0
	for key, raw := range m {
		seen++
		switch key {
		case "eq":
			c.HasEq = true
			if err := json.Unmarshal(raw, &c.Eq); err != nil {
				return fmt.Errorf("condition eq: %w", err)
			}
		case "ne":
			c.HasNe = true
			if err := json.Unmarshal(raw, &c.Ne); err != nil {
				return fmt.Errorf("condition ne: %w", err)
			}
		case "gt":
			c.HasGt = true
			if err := json.Unmarshal(raw, &c.Gt); err != nil {
				return fmt.Errorf("condition gt: %w", err)
			}
		case "lt":
			c.HasLt = true
			if err := json.Unmarshal(raw, &c.Lt); err != nil {
				return fmt.Errorf("condition lt: %w", err)
			}
		case "gte":
			c.HasGte = true
			if err := json.Unmarshal(raw, &c.Gte); err != nil {
				return fmt.Errorf("condition gte: %w", err)
			}
		case "lte":
			c.HasLte = true
			if err := json.Unmarshal(raw, &c.Lte); err != nil {
				return fmt.Errorf("condition lte: %w", err)
			}
		case "contains":
			if err := decodeStringTag(raw, key, &c.Contains); err != nil {
				return err
			}
		case "startsWith":
			if err := decodeStringTag(raw, key, &c.StartsWith); err != nil {
				return err
			}
		case "endsWith":
			if err := decodeStringTag(raw, key, &c.EndsWith); err != nil {
				return err
			}
		case "matches":
			if err := decodeStringTag(raw, key, &c.Matches); err != nil {
				return err
			}
		case "and":
			if err := json.Unmarshal(raw, &c.And); err != nil {
				return fmt.Errorf("condition and: %w", err)
			}
			if c.And == nil {
				c.And = []Condition{}
			}
		case "or":
			if err := json.Unmarshal(raw, &c.Or); err != nil {
				return fmt.Errorf("condition or: %w", err)
			}
			if c.Or == nil {
				c.Or = []Condition{}
			}
		case "not":
			c.Not = &Condition{}
			if err := json.Unmarshal(raw, c.Not); err != nil {
				return fmt.Errorf("condition not: %w", err)
			}
		default:
			return fmt.Errorf("condition has unknown tag %q", key)
		}
	}
	if seen > 1 {
		return fmt.Errorf("condition must carry exactly one tag, got %d", seen)
	}
	return nil
}

func decodeStringTag(raw json.RawMessage, key string, dst **string) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("condition %s must be a string: %w", key, err)
	}
	*dst = &s
	return nil
}
