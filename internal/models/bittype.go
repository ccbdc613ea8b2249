package models

import (
	"fmt"
	"slices"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Origin tells built-in bit types apart from user-defined ones.
type Origin string

const (
	OriginBuiltin Origin = "builtin"
	OriginUser    Origin = "user"
)

// PropertyType is the value kind of a property.
type PropertyType string

const (
	PropText        PropertyType = "text"
	PropNumber      PropertyType = "number"
	PropSelect      PropertyType = "select"
	PropMultiselect PropertyType = "multiselect"
	PropDate        PropertyType = "date"
	PropFile        PropertyType = "file"
	PropCheckbox    PropertyType = "checkbox"
	PropURL         PropertyType = "url"
	PropEmail       PropertyType = "email"
	PropPhone       PropertyType = "phone"
	PropImage       PropertyType = "image"
	PropRating      PropertyType = "rating"
	PropSlider      PropertyType = "slider"
)

// PropertyTypes lists every supported property type.
var PropertyTypes = []PropertyType{
	PropText, PropNumber, PropSelect, PropMultiselect, PropDate, PropFile,
	PropCheckbox, PropURL, PropEmail, PropPhone, PropImage, PropRating, PropSlider,
}

// Ranged reports whether options for t carry a [min, max, step] triple.
func (t PropertyType) Ranged() bool {
	return t == PropRating || t == PropSlider
}

// Choice reports whether options for t carry a list of allowed strings.
func (t PropertyType) Choice() bool {
	return t == PropSelect || t == PropMultiselect
}

// PropertyDefinition is one typed field of a bit type.
type PropertyDefinition struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Type         PropertyType `json:"type" yaml:"type"`
	Required     bool         `json:"required" yaml:"required"`
	DefaultValue any          `json:"defaultValue,omitempty" yaml:"default,omitempty"`
	Options      []any        `json:"options,omitempty" yaml:"options,omitempty"`
	Order        int          `json:"order" yaml:"-"`
}

// Choices returns the allowed values of a select or multiselect property.
func (p PropertyDefinition) Choices() []string {
	out := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		if s, ok := o.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Range returns the [min, max, step] triple of a ranged property.
func (p PropertyDefinition) Range() (lo, hi, step float64, ok bool) {
	if len(p.Options) != 3 {
		return 0, 0, 0, false
	}
	var vals [3]float64
	for i, o := range p.Options {
		f, isNum := toFloat(o)
		if !isNum {
			return 0, 0, 0, false
		}
		vals[i] = f
	}
	return vals[0], vals[1], vals[2], true
}

// Validate checks the property definition itself, not a value for it.
func (p PropertyDefinition) Validate() error {
	types := make([]any, len(PropertyTypes))
	for i, t := range PropertyTypes {
		types[i] = t
	}
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Type, validation.Required, validation.In(types...)),
	); err != nil {
		return err
	}
	if p.Type.Ranged() && len(p.Options) > 0 {
		if _, _, _, ok := p.Range(); !ok {
			return fmt.Errorf("options: %s property needs [min, max, step]", p.Type)
		}
	}
	return nil
}

// BitTypeDefinition is the schema a bit conforms to.
type BitTypeDefinition struct {
	ID          string               `json:"id"`
	Origin      Origin               `json:"origin"`
	Name        string               `json:"name"`
	IconName    string               `json:"iconName"`
	Description string               `json:"description"`
	Properties  []PropertyDefinition `json:"properties"`
}

// Validate checks required fields, property definitions and id uniqueness.
func (d BitTypeDefinition) Validate() error {
	if err := validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.IconName, validation.Required),
		validation.Field(&d.Origin, validation.In(OriginBuiltin, OriginUser)),
		validation.Field(&d.Properties),
	); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(d.Properties))
	for _, p := range d.Properties {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("properties: duplicate property id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// Property returns the property with the given id.
func (d BitTypeDefinition) Property(id string) (PropertyDefinition, bool) {
	for _, p := range d.Properties {
		if p.ID == id {
			return p, true
		}
	}
	return PropertyDefinition{}, false
}

// NormalizeOrder sorts properties by their submitted order (stable, so ties
// keep list position) and rewrites Order as the dense sequence 0..n-1.
func (d *BitTypeDefinition) NormalizeOrder() {
	sort.SliceStable(d.Properties, func(i, j int) bool {
		return d.Properties[i].Order < d.Properties[j].Order
	})
	for i := range d.Properties {
		d.Properties[i].Order = i
	}
}

// Clone returns a copy that shares no slices with d.
func (d BitTypeDefinition) Clone() BitTypeDefinition {
	out := d
	out.Properties = make([]PropertyDefinition, len(d.Properties))
	for i, p := range d.Properties {
		p.Options = slices.Clone(p.Options)
		out.Properties[i] = p
	}
	return out
}
