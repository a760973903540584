package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"trialqc/internal/records"
)

// Condition is one predicate in a rule's gate. The JSON form is either a
// scalar (equality), a list (membership), or an object with equals,
// not_equals, in and not_in keys.
type Condition struct {
	Literal   *string  `yaml:"literal,omitempty"`
	OneOf     []string `yaml:"one_of,omitempty"`
	Equals    *string  `yaml:"equals,omitempty"`
	NotEquals *string  `yaml:"not_equals,omitempty"`
	In        []string `yaml:"in,omitempty"`
	NotIn     []string `yaml:"not_in,omitempty"`
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		return nil
	case string, json.Number, bool:
		lit := scalarString(v)
		c.Literal = &lit
		return nil
	case []any:
		list, err := scalarList(v)
		if err != nil {
			return err
		}
		c.OneOf = list
		return nil
	case map[string]any:
		for key, val := range v {
			switch key {
			case "equals":
				s := scalarString(val)
				c.Equals = &s
			case "not_equals":
				s := scalarString(val)
				c.NotEquals = &s
			case "in":
				items, ok := val.([]any)
				if !ok {
					return fmt.Errorf("condition %q expects a list", key)
				}
				list, err := scalarList(items)
				if err != nil {
					return err
				}
				c.In = list
			case "not_in":
				items, ok := val.([]any)
				if !ok {
					return fmt.Errorf("condition %q expects a list", key)
				}
				list, err := scalarList(items)
				if err != nil {
					return err
				}
				c.NotIn = list
			default:
				return fmt.Errorf("unknown condition key %q", key)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported condition value %T", raw)
	}
}

func (c Condition) MarshalJSON() ([]byte, error) {
	switch {
	case c.Literal != nil:
		return json.Marshal(*c.Literal)
	case c.OneOf != nil:
		return json.Marshal(c.OneOf)
	default:
		obj := map[string]any{}
		if c.Equals != nil {
			obj["equals"] = *c.Equals
		}
		if c.NotEquals != nil {
			obj["not_equals"] = *c.NotEquals
		}
		if c.In != nil {
			obj["in"] = c.In
		}
		if c.NotIn != nil {
			obj["not_in"] = c.NotIn
		}
		return json.Marshal(obj)
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func scalarList(items []any) ([]string, error) {
	list := make([]string, 0, len(items))
	for _, item := range items {
		switch item.(type) {
		case string, json.Number, bool, float64:
			list = append(list, scalarString(item))
		default:
			return nil, fmt.Errorf("unsupported condition list item %T", item)
		}
	}
	return list, nil
}

// Matches reports whether the record satisfies every condition. Empty
// conditions always match. A field missing from the record fails closed so
// rules never apply to records that lack the gating field.
func Matches(rec records.Record, conds map[string]Condition) bool {
	for field, cond := range conds {
		if !rec.Has(field) {
			return false
		}
		value := rec.Get(field)
		if cond.Literal != nil && value != *cond.Literal {
			return false
		}
		if cond.OneOf != nil && !contains(cond.OneOf, value) {
			return false
		}
		if cond.Equals != nil && value != *cond.Equals {
			return false
		}
		if cond.NotEquals != nil && value == *cond.NotEquals {
			return false
		}
		if cond.In != nil && !contains(cond.In, value) {
			return false
		}
		if cond.NotIn != nil && contains(cond.NotIn, value) {
			return false
		}
	}
	return true
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
