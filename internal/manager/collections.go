package manager

import (
	"context"
	"fmt"

	"github.com/starford/bitkeep/internal/apperr"
	"github.com/starford/bitkeep/internal/models"
	"github.com/starford/bitkeep/internal/store"
)

// StructuredCollections returns every collection with its items in order.
func (m *Manager) StructuredCollections(ctx context.Context) ([]models.Collection, error) {
	var (
		cols  []store.CollectionRow
		items []store.CollectionItemRow
	)
	err := m.db.View(ctx, func(tx *store.Tx) error {
		var err error
		if cols, err = tx.Collections(ctx); err != nil {
			return err
		}
		items, err = tx.CollectionItems(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("manager: read collections: %w", err)
	}
	return assembleCollections(cols, items), nil
}

// Collection returns one structured collection.
func (m *Manager) Collection(ctx context.Context, id string) (models.Collection, error) {
	cols, err := m.StructuredCollections(ctx)
	if err != nil {
		return models.Collection{}, err
	}
	for _, c := range cols {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Collection{}, fmt.Errorf("manager: collection %s: %w", id, apperr.ErrNotFound)
}

// AddCollection saves a collection and its items. Saving an id that already
// exists updates it.
func (m *Manager) AddCollection(ctx context.Context, c models.Collection) (models.Ref, error) {
	ref, err := m.saveCollection(ctx, c)
	if err != nil {
		return models.Ref{}, fmt.Errorf("manager: add collection: %w", err)
	}
	return ref, nil
}

// UpdateCollection replaces a collection's fields and item list. Item order is
// the order items are given in.
func (m *Manager) UpdateCollection(ctx context.Context, c models.Collection) (models.Ref, error) {
	ref, err := m.saveCollection(ctx, c)
	if err != nil {
		return models.Ref{}, fmt.Errorf("manager: update collection: %w", err)
	}
	return ref, nil
}

func (m *Manager) saveCollection(ctx context.Context, c models.Collection) (models.Ref, error) {
	if err := c.Validate(); err != nil {
		return models.Ref{}, apperr.Invalid(err)
	}
	c = c.Clone()
	c.NormalizeOrder()
	created, updated := stamp(c.CreatedAt, c.UpdatedAt)

	keep := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		keep = append(keep, it.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.Update(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertCollection(ctx, store.CollectionRow{
			ID:        c.ID,
			Name:      c.Name,
			IconName:  c.IconName,
			CreatedAt: millis(created),
			UpdatedAt: millis(updated),
		}); err != nil {
			return err
		}
		for _, it := range c.Items {
			if err := tx.UpsertCollectionItem(ctx, store.CollectionItemRow{
				ID:           it.ID,
				CollectionID: c.ID,
				BitID:        it.BitID,
				OrderIndex:   it.OrderIndex,
			}); err != nil {
				return err
			}
		}
		_, err := tx.PruneCollectionItems(ctx, c.ID, keep)
		return err
	})
	if err != nil {
		return models.Ref{}, err
	}

	m.broadcast(ctx, familyCollections)
	return models.Ref{ID: c.ID, Name: c.Name}, nil
}

// DeleteCollection removes a collection and its items. Member bits are kept.
func (m *Manager) DeleteCollection(ctx context.Context, id string) (models.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.Update(ctx, func(tx *store.Tx) error {
		return tx.DeleteCollection(ctx, id)
	})
	if err != nil {
		return models.Ref{}, fmt.Errorf("manager: delete collection: %w", err)
	}

	m.broadcast(ctx, familyCollections)
	return models.Ref{ID: id}, nil
}
