package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/bitkeep/internal/apperr"
	"github.com/starford/bitkeep/internal/models"
	"github.com/starford/bitkeep/internal/store"
)

// StructuredBits returns every bit with its type resolved and its data and
// notes nested. Bits whose type does not resolve are left out; this is never
// an error.
func (m *Manager) StructuredBits(ctx context.Context) ([]models.Bit, error) {
	return m.structuredBits(ctx, false)
}

// StructuredPinnedBits is StructuredBits restricted to pinned bits.
func (m *Manager) StructuredPinnedBits(ctx context.Context) ([]models.Bit, error) {
	return m.structuredBits(ctx, true)
}

// Bit returns one structured bit.
func (m *Manager) Bit(ctx context.Context, id string) (models.Bit, error) {
	bits, err := m.structuredBits(ctx, false)
	if err != nil {
		return models.Bit{}, err
	}
	for _, b := range bits {
		if b.ID == id {
			return b, nil
		}
	}
	return models.Bit{}, fmt.Errorf("manager: bit %s: %w", id, apperr.ErrNotFound)
}

func (m *Manager) structuredBits(ctx context.Context, pinnedOnly bool) ([]models.Bit, error) {
	types, err := m.typeIndex(ctx)
	if err != nil {
		return nil, err
	}

	var (
		bits  []store.BitRow
		data  []store.BitDataRow
		notes []store.NoteRow
	)
	err = m.db.View(ctx, func(tx *store.Tx) error {
		var err error
		if bits, err = tx.Bits(ctx, pinnedOnly); err != nil {
			return err
		}
		if data, err = tx.BitData(ctx); err != nil {
			return err
		}
		notes, err = tx.Notes(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("manager: read bits: %w", err)
	}
	return assembleBits(bits, data, notes, types, m.logger), nil
}

// encodeData validates data against def and renders the store rows for bitID.
func encodeData(def models.BitTypeDefinition, bitID string, data []models.BitData) ([]store.BitDataRow, error) {
	if err := models.ValidateData(def, data); err != nil {
		return nil, apperr.Invalid(err)
	}
	rows := make([]store.BitDataRow, 0, len(data))
	for _, d := range data {
		v, err := encodeJSON(d.Value)
		if err != nil {
			return nil, apperr.Invalidf("data: %s: %v", d.PropertyID, err)
		}
		rows = append(rows, store.BitDataRow{BitID: bitID, PropertyID: d.PropertyID, Value: v})
	}
	return rows, nil
}

// AddBit inserts a bit and all its data rows in one transaction.
func (m *Manager) AddBit(ctx context.Context, in models.BitInput) (models.Ref, error) {
	if err := in.Validate(); err != nil {
		return models.Ref{}, apperr.Invalid(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	types, err := m.typeIndex(ctx)
	if err != nil {
		return models.Ref{}, err
	}
	def, ok := types[in.TypeID]
	if !ok {
		return models.Ref{}, apperr.Invalidf("unknown bit type %q", in.TypeID)
	}
	rows, err := encodeData(def, in.ID, in.Data)
	if err != nil {
		return models.Ref{}, err
	}
	created, updated := stamp(in.CreatedAt, in.UpdatedAt)

	err = m.db.Update(ctx, func(tx *store.Tx) error {
		if err := tx.InsertBit(ctx, store.BitRow{
			ID:        in.ID,
			TypeID:    in.TypeID,
			CreatedAt: millis(created),
			UpdatedAt: millis(updated),
			Pinned:    in.Pinned,
		}); err != nil {
			return err
		}
		for _, r := range rows {
			if err := tx.InsertBitData(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Ref{}, fmt.Errorf("manager: add bit: %w", err)
	}

	m.broadcast(ctx, familyBits, familyCollections)
	return models.Ref{ID: in.ID}, nil
}

// UpdateBit replaces the bit's whole data set and sets its updated time.
func (m *Manager) UpdateBit(ctx context.Context, id string, data []models.BitData, ts time.Time) (models.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	types, err := m.typeIndex(ctx)
	if err != nil {
		return models.Ref{}, err
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	err = m.db.Update(ctx, func(tx *store.Tx) error {
		row, err := tx.Bit(ctx, id)
		if err != nil {
			return err
		}
		def, ok := types[row.TypeID]
		if !ok {
			return apperr.Invalidf("bit %s has unknown type %q", id, row.TypeID)
		}
		rows, err := encodeData(def, id, data)
		if err != nil {
			return err
		}
		if err := tx.DeleteBitData(ctx, id); err != nil {
			return err
		}
		for _, r := range rows {
			if err := tx.InsertBitData(ctx, r); err != nil {
				return err
			}
		}
		return tx.TouchBit(ctx, id, millis(ts))
	})
	if err != nil {
		return models.Ref{}, fmt.Errorf("manager: update bit: %w", err)
	}

	m.broadcast(ctx, familyBits)
	return models.Ref{ID: id}, nil
}

// TogglePin sets the bit's pinned flag.
func (m *Manager) TogglePin(ctx context.Context, id string, pinned bool, ts time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts.IsZero() {
		ts = time.Now()
	}
	err := m.db.Update(ctx, func(tx *store.Tx) error {
		return tx.SetPinned(ctx, id, pinned, millis(ts))
	})
	if err != nil {
		return "", fmt.Errorf("manager: toggle pin: %w", err)
	}

	m.broadcast(ctx, familyBits)
	return id, nil
}

// DeleteBit removes a bit with its data, notes and collection memberships.
func (m *Manager) DeleteBit(ctx context.Context, id string) (models.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.Update(ctx, func(tx *store.Tx) error {
		return tx.DeleteBit(ctx, id)
	})
	if err != nil {
		return models.Ref{}, fmt.Errorf("manager: delete bit: %w", err)
	}

	m.broadcast(ctx, familyBits, familyCollections)
	return models.Ref{ID: id}, nil
}

// AddBitNote attaches a note to an existing bit.
func (m *Manager) AddBitNote(ctx context.Context, n models.Note) (string, error) {
	if err := n.Validate(); err != nil {
		return "", apperr.Invalid(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	created, updated := stamp(n.CreatedAt, n.UpdatedAt)
	err := m.db.Update(ctx, func(tx *store.Tx) error {
		return tx.InsertNote(ctx, store.NoteRow{
			ID:        n.ID,
			BitID:     n.BitID,
			CreatedAt: millis(created),
			UpdatedAt: millis(updated),
			Content:   n.Content,
		})
	})
	if err != nil {
		return "", fmt.Errorf("manager: add note: %w", err)
	}

	m.broadcast(ctx, familyBits)
	return n.ID, nil
}

// UpdateBitNote replaces a note's content.
func (m *Manager) UpdateBitNote(ctx context.Context, id, content string, ts time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts.IsZero() {
		ts = time.Now()
	}
	err := m.db.Update(ctx, func(tx *store.Tx) error {
		return tx.UpdateNote(ctx, id, content, millis(ts))
	})
	if err != nil {
		return "", fmt.Errorf("manager: update note: %w", err)
	}

	m.broadcast(ctx, familyBits)
	return id, nil
}

// DeleteBitNote removes a note.
func (m *Manager) DeleteBitNote(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.Update(ctx, func(tx *store.Tx) error {
		return tx.DeleteNote(ctx, id)
	})
	if err != nil {
		return "", fmt.Errorf("manager: delete note: %w", err)
	}

	m.broadcast(ctx, familyBits)
	return id, nil
}
