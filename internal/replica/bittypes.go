package replica

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/bitkeep/internal/apperr"
	"github.com/starford/bitkeep/internal/models"
)

// BitTypeStore is the window-local copy of every bit type.
type BitTypeStore struct {
	*Replica[models.BitTypeDefinition]
	remote BitTypeRemote
}

// NewBitTypeStore creates an empty bit type replica.
func NewBitTypeStore(remote BitTypeRemote, opts ...Option) *BitTypeStore {
	return &BitTypeStore{
		Replica: newReplica("bittypes", models.BitTypeDefinition.Clone, newSettings(opts)),
		remote:  remote,
	}
}

// Load fetches every type from the manager.
func (s *BitTypeStore) Load(ctx context.Context) error {
	return s.load(ctx, s.remote.StructuredBitTypes)
}

// All returns every type, ordered by name.
func (s *BitTypeStore) All() []models.BitTypeDefinition {
	return s.Items()
}

// GetByID returns the type with the given id.
func (s *BitTypeStore) GetByID(id string) (models.BitTypeDefinition, bool) {
	for _, d := range s.Items() {
		if d.ID == id {
			return d, true
		}
	}
	return models.BitTypeDefinition{}, false
}

func prepareType(def models.BitTypeDefinition) (models.BitTypeDefinition, error) {
	def = def.Clone()
	if def.Origin == "" {
		def.Origin = models.OriginUser
	}
	if err := def.Validate(); err != nil {
		return def, apperr.Invalid(err)
	}
	def.NormalizeOrder()
	return def, nil
}

func insertByName(items []models.BitTypeDefinition, def models.BitTypeDefinition) []models.BitTypeDefinition {
	i, _ := slices.BinarySearchFunc(items, def, func(a, b models.BitTypeDefinition) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return slices.Insert(items, i, def)
}

// Add creates a type. An empty id is replaced by a new ULID, which is returned.
func (s *BitTypeStore) Add(ctx context.Context, def models.BitTypeDefinition) (string, error) {
	if def.ID == "" {
		def.ID = newID()
	}
	def, err := prepareType(def)
	if err != nil {
		return "", s.fail(err)
	}
	err = s.mutate(ctx,
		func(items []models.BitTypeDefinition) []models.BitTypeDefinition {
			return insertByName(items, def)
		},
		func(ctx context.Context) error {
			_, err := s.remote.AddBitType(ctx, def)
			return err
		})
	return def.ID, err
}

// Update replaces a known type's fields and properties.
func (s *BitTypeStore) Update(ctx context.Context, def models.BitTypeDefinition) error {
	def, err := prepareType(def)
	if err != nil {
		return s.fail(err)
	}
	if _, ok := s.GetByID(def.ID); !ok {
		return s.fail(fmt.Errorf("replica: bit type %s: %w", def.ID, apperr.ErrNotFound))
	}
	return s.mutate(ctx,
		func(items []models.BitTypeDefinition) []models.BitTypeDefinition {
			items = slices.DeleteFunc(items, func(d models.BitTypeDefinition) bool { return d.ID == def.ID })
			return insertByName(items, def)
		},
		func(ctx context.Context) error {
			_, err := s.remote.UpdateBitType(ctx, def)
			return err
		})
}

// Delete removes a type. The manager also removes its bits; the bit replica
// learns about that from the next broadcast.
func (s *BitTypeStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.GetByID(id); !ok {
		return s.fail(fmt.Errorf("replica: bit type %s: %w", id, apperr.ErrNotFound))
	}
	return s.mutate(ctx,
		func(items []models.BitTypeDefinition) []models.BitTypeDefinition {
			return slices.DeleteFunc(items, func(d models.BitTypeDefinition) bool { return d.ID == id })
		},
		func(ctx context.Context) error {
			_, err := s.remote.DeleteBitType(ctx, id)
			return err
		})
}
