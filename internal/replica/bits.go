package replica

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/starford/bitkeep/internal/apperr"
	"github.com/starford/bitkeep/internal/models"
)

// TypeLookup resolves bit types for optimistic bits. *BitTypeStore satisfies it.
type TypeLookup interface {
	GetByID(id string) (models.BitTypeDefinition, bool)
}

// BitStore is the window-local copy of every structured bit, newest first.
type BitStore struct {
	*Replica[models.Bit]
	remote BitRemote
	types  TypeLookup
}

// NewBitStore creates an empty bit replica that resolves types through types.
func NewBitStore(remote BitRemote, types TypeLookup, opts ...Option) *BitStore {
	return &BitStore{
		Replica: newReplica("bits", models.Bit.Clone, newSettings(opts)),
		remote:  remote,
		types:   types,
	}
}

// Load fetches every bit from the manager.
func (s *BitStore) Load(ctx context.Context) error {
	return s.load(ctx, s.remote.StructuredBits)
}

// GetByID returns the bit with the given id.
func (s *BitStore) GetByID(id string) (models.Bit, bool) {
	for _, b := range s.Items() {
		if b.ID == id {
			return b, true
		}
	}
	return models.Bit{}, false
}

// Search returns the bits matching query in type name, values or notes.
func (s *BitStore) Search(query string) []models.Bit {
	var out []models.Bit
	for _, b := range s.Items() {
		if b.Matches(query) {
			out = append(out, b)
		}
	}
	return out
}

// Pinned returns the pinned bits.
func (s *BitStore) Pinned() []models.Bit {
	var out []models.Bit
	for _, b := range s.Items() {
		if b.Pinned {
			out = append(out, b)
		}
	}
	return out
}

func notFound(kind, id string) error {
	return fmt.Errorf("replica: %s %s: %w", kind, id, apperr.ErrNotFound)
}

// orderedData validates data against def and returns it in property order,
// with values in their stored form
// with the bit id filled in.
func orderedData(def models.BitTypeDefinition, bitID string, data []models.BitData) ([]models.BitData, error) {
	if err := models.ValidateData(def, data); err != nil {
		return nil, apperr.Invalid(err)
	}
	out := make([]models.BitData, len(data))
	for i, d := range data {
		v, err := models.NormalizeValue(d.Value)
		if err != nil {
			return nil, apperr.Invalidf("data: %s: %v", d.PropertyID, err)
		}
		d.BitID = bitID
		d.Value = v
		out[i] = d
	}
	order := make(map[string]int, len(def.Properties))
	for _, p := range def.Properties {
		order[p.ID] = p.Order
	}
	sort.SliceStable(out, func(i, j int) bool { return order[out[i].PropertyID] < order[out[j].PropertyID] })
	return out, nil
}

func newestFirst(a, b models.Bit) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (s *BitStore) edit(ctx context.Context, id string, change func(*models.Bit), remote func(context.Context) error) error {
	return s.mutate(ctx,
		func(items []models.Bit) []models.Bit {
			if i := slices.IndexFunc(items, func(b models.Bit) bool { return b.ID == id }); i >= 0 {
				change(&items[i])
			}
			return items
		},
		remote)
}

// Add creates a bit. Empty id and timestamps are filled in; the id is returned.
func (s *BitStore) Add(ctx context.Context, in models.BitInput) (string, error) {
	if in.ID == "" {
		in.ID = newID()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now()
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = in.CreatedAt
	}
	if err := in.Validate(); err != nil {
		return "", s.fail(apperr.Invalid(err))
	}
	def, ok := s.types.GetByID(in.TypeID)
	if !ok {
		return "", s.fail(apperr.Invalidf("unknown bit type %q", in.TypeID))
	}
	data, err := orderedData(def, in.ID, in.Data)
	if err != nil {
		return "", s.fail(err)
	}
	in.Data = data

	bit := models.Bit{
		ID:        in.ID,
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.UpdatedAt,
		Pinned:    in.Pinned,
		Type:      def,
		Data:      data,
		Notes:     []models.Note{},
	}
	err = s.mutate(ctx,
		func(items []models.Bit) []models.Bit {
			i, _ := slices.BinarySearchFunc(items, bit, newestFirst)
			return slices.Insert(items, i, bit)
		},
		func(ctx context.Context) error {
			_, err := s.remote.AddBit(ctx, in)
			return err
		})
	return in.ID, err
}

// Update replaces the bit's data.
func (s *BitStore) Update(ctx context.Context, id string, data []models.BitData) error {
	bit, ok := s.GetByID(id)
	if !ok {
		return s.fail(notFound("bit", id))
	}
	ordered, err := orderedData(bit.Type, id, data)
	if err != nil {
		return s.fail(err)
	}
	ts := now()
	return s.edit(ctx, id,
		func(b *models.Bit) {
			b.Data = ordered
			b.UpdatedAt = ts
		},
		func(ctx context.Context) error {
			_, err := s.remote.UpdateBit(ctx, id, ordered, ts)
			return err
		})
}

// TogglePin flips the bit's pinned flag and returns the new value.
func (s *BitStore) TogglePin(ctx context.Context, id string) (bool, error) {
	bit, ok := s.GetByID(id)
	if !ok {
		return false, s.fail(notFound("bit", id))
	}
	pinned := !bit.Pinned
	ts := now()
	err := s.edit(ctx, id,
		func(b *models.Bit) {
			b.Pinned = pinned
			b.UpdatedAt = ts
		},
		func(ctx context.Context) error {
			_, err := s.remote.TogglePin(ctx, id, pinned, ts)
			return err
		})
	return pinned, err
}

// Delete removes a bit.
func (s *BitStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.GetByID(id); !ok {
		return s.fail(notFound("bit", id))
	}
	return s.mutate(ctx,
		func(items []models.Bit) []models.Bit {
			return slices.DeleteFunc(items, func(b models.Bit) bool { return b.ID == id })
		},
		func(ctx context.Context) error {
			_, err := s.remote.DeleteBit(ctx, id)
			return err
		})
}

// AddNote attaches a note to a bit and returns the note id.
func (s *BitStore) AddNote(ctx context.Context, bitID, content string) (string, error) {
	if _, ok := s.GetByID(bitID); !ok {
		return "", s.fail(notFound("bit", bitID))
	}
	ts := now()
	note := models.Note{ID: newID(), BitID: bitID, CreatedAt: ts, UpdatedAt: ts, Content: content}
	err := s.edit(ctx, bitID,
		func(b *models.Bit) { b.Notes = append(b.Notes, note) },
		func(ctx context.Context) error {
			_, err := s.remote.AddBitNote(ctx, note)
			return err
		})
	return note.ID, err
}

func (s *BitStore) noteOwner(noteID string) (string, bool) {
	for _, b := range s.Items() {
		for _, n := range b.Notes {
			if n.ID == noteID {
				return b.ID, true
			}
		}
	}
	return "", false
}

// UpdateNote replaces a note's content.
func (s *BitStore) UpdateNote(ctx context.Context, noteID, content string) error {
	bitID, ok := s.noteOwner(noteID)
	if !ok {
		return s.fail(notFound("note", noteID))
	}
	ts := now()
	return s.edit(ctx, bitID,
		func(b *models.Bit) {
			for i := range b.Notes {
				if b.Notes[i].ID == noteID {
					b.Notes[i].Content = content
					b.Notes[i].UpdatedAt = ts
				}
			}
		},
		func(ctx context.Context) error {
			_, err := s.remote.UpdateBitNote(ctx, noteID, content, ts)
			return err
		})
}

// DeleteNote removes a note.
func (s *BitStore) DeleteNote(ctx context.Context, noteID string) error {
	bitID, ok := s.noteOwner(noteID)
	if !ok {
		return s.fail(notFound("note", noteID))
	}
	return s.edit(ctx, bitID,
		func(b *models.Bit) {
			b.Notes = slices.DeleteFunc(b.Notes, func(n models.Note) bool { return n.ID == noteID })
		},
		func(ctx context.Context) error {
			_, err := s.remote.DeleteBitNote(ctx, noteID)
			return err
		})
}
