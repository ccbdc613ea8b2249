package models

import (
	"fmt"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CollectionItem places a bit in a collection. The bit is referenced, not owned.
type CollectionItem struct {
	ID         string `json:"id"`
	BitID      string `json:"bitId"`
	OrderIndex int    `json:"orderIndex"`
}

// Validate checks the item's identifiers.
func (it CollectionItem) Validate() error {
	return validation.ValidateStruct(&it,
		validation.Field(&it.ID, validation.Required),
		validation.Field(&it.BitID, validation.Required),
	)
}

// Collection is an ordered, named group of bits.
type Collection struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	IconName  string           `json:"iconName"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Items     []CollectionItem `json:"items"`
}

// Validate checks required fields and item id uniqueness.
func (c Collection) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.IconName, validation.Required),
		validation.Field(&c.Items),
	); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Items))
	for _, it := range c.Items {
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("items: duplicate item id %q", it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// NormalizeOrder rewrites OrderIndex as the item's position in the list.
func (c *Collection) NormalizeOrder() {
	for i := range c.Items {
		c.Items[i].OrderIndex = i
	}
}

// Contains reports whether the collection holds bitID.
func (c Collection) Contains(bitID string) bool {
	return slices.ContainsFunc(c.Items, func(it CollectionItem) bool { return it.BitID == bitID })
}

// Clone returns a copy that shares no slices with c.
func (c Collection) Clone() Collection {
	out := c
	out.Items = slices.Clone(c.Items)
	return out
}
