package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// BitData is one property value of a bit.
type BitData struct {
	BitID      string `json:"bitId"`
	PropertyID string `json:"propertyId"`
	Value      any    `json:"value"`
}

// Note is a free-text note attached to a bit.
type Note struct {
	ID        string    `json:"id"`
	BitID     string    `json:"bitId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Content   string    `json:"content"`
}

// Validate checks the note's identifiers.
func (n Note) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required),
		validation.Field(&n.BitID, validation.Required),
	)
}

// Bit is a structured bit: its type is resolved and its data and notes are nested.
type Bit struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Pinned    bool              `json:"pinned"`
	Type      BitTypeDefinition `json:"type"`
	Data      []BitData         `json:"data"`
	Notes     []Note            `json:"notes"`
}

// Value returns the value stored for propertyID.
func (b Bit) Value(propertyID string) (any, bool) {
	for _, d := range b.Data {
		if d.PropertyID == propertyID {
			return d.Value, true
		}
	}
	return nil, false
}

// Title is the value of the first text property that has one, or the id.
func (b Bit) Title() string {
	for _, p := range b.Type.Properties {
		if p.Type != PropText {
			continue
		}
		if v, ok := b.Value(p.ID); ok {
			if s := ValueText(v); s != "" {
				return s
			}
		}
	}
	return b.ID
}

// Matches reports whether query occurs, case-insensitively, in the bit's type
// name, any of its values, or any of its notes. An empty query matches.
func (b Bit) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(b.Type.Name), q) {
		return true
	}
	for _, d := range b.Data {
		if strings.Contains(strings.ToLower(ValueText(d.Value)), q) {
			return true
		}
	}
	for _, n := range b.Notes {
		if strings.Contains(strings.ToLower(n.Content), q) {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with b.
func (b Bit) Clone() Bit {
	out := b
	out.Type = b.Type.Clone()
	out.Data = slices.Clone(b.Data)
	out.Notes = slices.Clone(b.Notes)
	return out
}

// BitInput is the write shape of a bit: the type is referenced by id.
type BitInput struct {
	ID        string    `json:"id"`
	TypeID    string    `json:"typeId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Pinned    bool      `json:"pinned"`
	Data      []BitData `json:"data"`
}

// Validate checks identifiers only; values are checked against the type with
// ValidateData.
func (in BitInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ID, validation.Required),
		validation.Field(&in.TypeID, validation.Required),
	)
}

// ValidateData checks that every entry references a property of def, that no
// property is given twice, that each value fits its property and that every
// required property is present.
func ValidateData(def BitTypeDefinition, data []BitData) error {
	seen := make(map[string]struct{}, len(data))
	for _, d := range data {
		p, ok := def.Property(d.PropertyID)
		if !ok {
			return fmt.Errorf("data: property %q is not defined on type %q", d.PropertyID, def.ID)
		}
		if _, dup := seen[d.PropertyID]; dup {
			return fmt.Errorf("data: property %q given more than once", d.PropertyID)
		}
		seen[d.PropertyID] = struct{}{}
		if err := p.ValidateValue(d.Value); err != nil {
			return fmt.Errorf("data: %s: %w", p.ID, err)
		}
	}
	for _, p := range def.Properties {
		if _, ok := seen[p.ID]; !ok && p.Required {
			return fmt.Errorf("data: %s: value is required", p.ID)
		}
	}
	return nil
}

// Ref identifies the entity a mutation touched.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}
