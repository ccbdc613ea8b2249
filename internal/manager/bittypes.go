package manager

import (
	"context"
	"fmt"

	"github.com/starford/bitkeep/internal/apperr"
	"github.com/starford/bitkeep/internal/models"
	"github.com/starford/bitkeep/internal/store"
)

// StructuredBitTypes returns every type with its properties nested in order,
// and refreshes the type cache. A result read across a concurrent type write
// is returned but not cached.
func (m *Manager) StructuredBitTypes(ctx context.Context) ([]models.BitTypeDefinition, error) {
	if defs, ok := m.cache.All(); ok {
		return defs, nil
	}
	gen := m.cache.Generation()

	var (
		types []store.BitTypeRow
		props []store.PropertyRow
	)
	err := m.db.View(ctx, func(tx *store.Tx) error {
		var err error
		if types, err = tx.BitTypes(ctx); err != nil {
			return err
		}
		props, err = tx.Properties(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("manager: read bit types: %w", err)
	}

	defs := assembleBitTypes(types, props)
	if !m.cache.Populate(gen, defs) {
		m.logger.Debug("manager: stale type read not cached")
	}
	return defs, nil
}

// BitType returns one structured type.
func (m *Manager) BitType(ctx context.Context, id string) (models.BitTypeDefinition, error) {
	if def, ok := m.cache.Lookup(id); ok {
		return def, nil
	}
	defs, err := m.StructuredBitTypes(ctx)
	if err != nil {
		return models.BitTypeDefinition{}, err
	}
	for _, d := range defs {
		if d.ID == id {
			return d, nil
		}
	}
	return models.BitTypeDefinition{}, fmt.Errorf("manager: bit type %s: %w", id, apperr.ErrNotFound)
}

// AddBitType saves a type and its properties. Saving an id that already
// exists updates it.
func (m *Manager) AddBitType(ctx context.Context, def models.BitTypeDefinition) (models.Ref, error) {
	ref, err := m.saveBitType(ctx, def)
	if err != nil {
		return models.Ref{}, fmt.Errorf("manager: add bit type: %w", err)
	}
	return ref, nil
}

// UpdateBitType replaces a type's fields and property set. Properties not in
// def are removed together with the bit data that referenced them.
func (m *Manager) UpdateBitType(ctx context.Context, def models.BitTypeDefinition) (models.Ref, error) {
	ref, err := m.saveBitType(ctx, def)
	if err != nil {
		return models.Ref{}, fmt.Errorf("manager: update bit type: %w", err)
	}
	return ref, nil
}

func (m *Manager) saveBitType(ctx context.Context, def models.BitTypeDefinition) (models.Ref, error) {
	def = def.Clone()
	if def.Origin == "" {
		def.Origin = models.OriginUser
	}
	if err := def.Validate(); err != nil {
		return models.Ref{}, apperr.Invalid(err)
	}
	def.NormalizeOrder()

	row, props, err := bitTypeRows(def)
	if err != nil {
		return models.Ref{}, apperr.Invalid(err)
	}
	keep := make([]string, 0, len(props))
	for _, p := range props {
		keep = append(keep, p.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err = m.db.Update(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertBitType(ctx, row); err != nil {
			return err
		}
		for _, p := range props {
			if err := tx.UpsertProperty(ctx, p); err != nil {
				return err
			}
		}
		if _, err := tx.PruneProperties(ctx, def.ID, keep); err != nil {
			return err
		}
		_, err := tx.PruneOrphanData(ctx, def.ID)
		return err
	})
	// Readers may have refilled the cache while the transaction ran.
	m.cache.Invalidate()
	if err != nil {
		return models.Ref{}, err
	}

	m.broadcast(ctx, familyBitTypes, familyBits)
	return models.Ref{ID: def.ID, Name: def.Name}, nil
}

// DeleteBitType removes a type with its properties and every bit of that type.
func (m *Manager) DeleteBitType(ctx context.Context, id string) (models.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var name string
	err := m.db.Update(ctx, func(tx *store.Tx) error {
		row, err := tx.BitType(ctx, id)
		if err != nil {
			return err
		}
		name = row.Name
		if _, err := tx.DeleteBitsByType(ctx, id); err != nil {
			return err
		}
		return tx.DeleteBitType(ctx, id)
	})
	m.cache.Invalidate()
	if err != nil {
		return models.Ref{}, fmt.Errorf("manager: delete bit type: %w", err)
	}

	m.broadcast(ctx, familyBitTypes, familyBits, familyCollections)
	return models.Ref{ID: id, Name: name}, nil
}
