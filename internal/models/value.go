package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// DateLayouts are the accepted encodings of a date property value.
var DateLayouts = []string{time.RFC3339, "2006-01-02"}

// ValidateValue checks v against the property's type, options and Required flag.
// A nil or empty value is accepted for optional properties.
func (p PropertyDefinition) ValidateValue(v any) error {
	if isEmptyValue(v) {
		if p.Required {
			return errors.New("value is required")
		}
		return nil
	}

	switch p.Type {
	case PropText, PropPhone, PropFile, PropImage:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s value must be a string", p.Type)
		}
	case PropURL:
		return validateString(v, is.URL)
	case PropEmail:
		return validateString(v, is.EmailFormat)
	case PropDate:
		s, ok := v.(string)
		if !ok {
			return errors.New("date value must be a string")
		}
		for _, layout := range DateLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return nil
			}
		}
		return fmt.Errorf("date value %q is not RFC 3339 or YYYY-MM-DD", s)
	case PropCheckbox:
		if _, ok := v.(bool); !ok {
			return errors.New("checkbox value must be a boolean")
		}
	case PropNumber:
		if _, ok := toFloat(v); !ok {
			return errors.New("number value must be numeric")
		}
	case PropRating, PropSlider:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("%s value must be numeric", p.Type)
		}
		if lo, hi, _, ranged := p.Range(); ranged && (f < lo || f > hi) {
			return fmt.Errorf("%s value %v outside [%v, %v]", p.Type, f, lo, hi)
		}
	case PropSelect:
		s, ok := v.(string)
		if !ok {
			return errors.New("select value must be a string")
		}
		return p.checkChoice(s)
	case PropMultiselect:
		values, ok := stringList(v)
		if !ok {
			return errors.New("multiselect value must be a list of strings")
		}
		for _, s := range values {
			if err := p.checkChoice(s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p PropertyDefinition) checkChoice(s string) error {
	choices := p.Choices()
	if len(choices) == 0 || slices.Contains(choices, s) {
		return nil
	}
	return fmt.Errorf("%q is not one of %s", s, strings.Join(choices, ", "))
}

func validateString(v any, rule validation.Rule) error {
	s, ok := v.(string)
	if !ok {
		return errors.New("value must be a string")
	}
	return validation.Validate(s, rule)
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}

func stringList(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// ValueText renders a data value as plain text for search and display.
func ValueText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []any, []string:
		list, ok := stringList(x)
		if !ok {
			return fmt.Sprint(x)
		}
		return strings.Join(list, ", ")
	}
	return fmt.Sprint(v)
}

// NormalizeValue returns v as it reads back from storage: numbers become
// float64, string lists become []any, maps become map[string]any.
func NormalizeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
