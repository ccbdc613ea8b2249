package replica

import (
	"context"
	"slices"
	"strings"

	"github.com/starford/bitkeep/internal/apperr"
	"github.com/starford/bitkeep/internal/models"
)

// CollectionStore is the window-local copy of every collection, ordered by name.
type CollectionStore struct {
	*Replica[models.Collection]
	remote CollectionRemote
}

// NewCollectionStore creates an empty collection replica.
func NewCollectionStore(remote CollectionRemote, opts ...Option) *CollectionStore {
	return &CollectionStore{
		Replica: newReplica("collections", models.Collection.Clone, newSettings(opts)),
		remote:  remote,
	}
}

// Load fetches every collection from the manager.
func (s *CollectionStore) Load(ctx context.Context) error {
	return s.load(ctx, s.remote.StructuredCollections)
}

// GetByID returns the collection with the given id.
func (s *CollectionStore) GetByID(id string) (models.Collection, bool) {
	for _, c := range s.Items() {
		if c.ID == id {
			return c, true
		}
	}
	return models.Collection{}, false
}

// Containing returns the collections that hold bitID.
func (s *CollectionStore) Containing(bitID string) []models.Collection {
	var out []models.Collection
	for _, c := range s.Items() {
		if c.Contains(bitID) {
			out = append(out, c)
		}
	}
	return out
}

func byName(a, b models.Collection) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func prepareCollection(c models.Collection) (models.Collection, error) {
	c = c.Clone()
	for i := range c.Items {
		if c.Items[i].ID == "" {
			c.Items[i].ID = newID()
		}
	}
	if err := c.Validate(); err != nil {
		return c, apperr.Invalid(err)
	}
	c.NormalizeOrder()
	return c, nil
}

func (s *CollectionStore) put(ctx context.Context, c models.Collection, remote func(context.Context, models.Collection) (models.Ref, error)) error {
	return s.mutate(ctx,
		func(items []models.Collection) []models.Collection {
			items = slices.DeleteFunc(items, func(x models.Collection) bool { return x.ID == c.ID })
			i, _ := slices.BinarySearchFunc(items, c, byName)
			return slices.Insert(items, i, c)
		},
		func(ctx context.Context) error {
			_, err := remote(ctx, c)
			return err
		})
}

// Add creates a collection. Empty ids and timestamps are filled in; the
// collection id is returned.
func (s *CollectionStore) Add(ctx context.Context, c models.Collection) (string, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	c, err := prepareCollection(c)
	if err != nil {
		return "", s.fail(err)
	}
	return c.ID, s.put(ctx, c, s.remote.AddCollection)
}

// Update replaces a known collection's fields and items. Items are kept in the
// order given.
func (s *CollectionStore) Update(ctx context.Context, c models.Collection) error {
	cur, ok := s.GetByID(c.ID)
	if !ok {
		return s.fail(notFound("collection", c.ID))
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = cur.CreatedAt
	}
	c.UpdatedAt = now()
	c, err := prepareCollection(c)
	if err != nil {
		return s.fail(err)
	}
	return s.put(ctx, c, s.remote.UpdateCollection)
}

// modify applies change to a copy of the collection and saves the result.
func (s *CollectionStore) modify(ctx context.Context, id string, change func(*models.Collection) error) error {
	c, ok := s.GetByID(id)
	if !ok {
		return s.fail(notFound("collection", id))
	}
	if err := change(&c); err != nil {
		return s.fail(err)
	}
	return s.Update(ctx, c)
}

// Rename sets a collection's name.
func (s *CollectionStore) Rename(ctx context.Context, id, name string) error {
	return s.modify(ctx, id, func(c *models.Collection) error {
		c.Name = name
		return nil
	})
}

// AddBit appends bitID to the collection and returns the new item id.
func (s *CollectionStore) AddBit(ctx context.Context, id, bitID string) (string, error) {
	itemID := newID()
	err := s.modify(ctx, id, func(c *models.Collection) error {
		c.Items = append(c.Items, models.CollectionItem{ID: itemID, BitID: bitID})
		return nil
	})
	return itemID, err
}

// RemoveItem drops one item from the collection.
func (s *CollectionStore) RemoveItem(ctx context.Context, id, itemID string) error {
	return s.modify(ctx, id, func(c *models.Collection) error {
		n := len(c.Items)
		c.Items = slices.DeleteFunc(c.Items, func(it models.CollectionItem) bool { return it.ID == itemID })
		if len(c.Items) == n {
			return notFound("collection item", itemID)
		}
		return nil
	})
}

// Reorder puts the items in the order of itemIDs, which must name every item
// of the collection exactly once.
func (s *CollectionStore) Reorder(ctx context.Context, id string, itemIDs []string) error {
	return s.modify(ctx, id, func(c *models.Collection) error {
		if len(itemIDs) != len(c.Items) {
			return apperr.Invalidf("reorder: got %d items, collection has %d", len(itemIDs), len(c.Items))
		}
		byID := make(map[string]models.CollectionItem, len(c.Items))
		for _, it := range c.Items {
			byID[it.ID] = it
		}
		next := make([]models.CollectionItem, 0, len(itemIDs))
		for _, itemID := range itemIDs {
			it, ok := byID[itemID]
			if !ok {
				return apperr.Invalidf("reorder: item %q is not in the collection or given twice", itemID)
			}
			delete(byID, itemID)
			next = append(next, it)
		}
		c.Items = next
		return nil
	})
}

// Delete removes a collection. Its bits are kept.
func (s *CollectionStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.GetByID(id); !ok {
		return s.fail(notFound("collection", id))
	}
	return s.mutate(ctx,
		func(items []models.Collection) []models.Collection {
			return slices.DeleteFunc(items, func(c models.Collection) bool { return c.ID == id })
		},
		func(ctx context.Context) error {
			_, err := s.remote.DeleteCollection(ctx, id)
			return err
		})
}
