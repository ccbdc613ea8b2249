package replica

import (
	"context"
	"time"

	"github.com/starford/bitkeep/internal/models"
)

// BitRemote is the store manager surface the bit replica calls.
type BitRemote interface {
	StructuredBits(ctx context.Context) ([]models.Bit, error)
	AddBit(ctx context.Context, in models.BitInput) (models.Ref, error)
	UpdateBit(ctx context.Context, id string, data []models.BitData, ts time.Time) (models.Ref, error)
	TogglePin(ctx context.Context, id string, pinned bool, ts time.Time) (string, error)
	DeleteBit(ctx context.Context, id string) (models.Ref, error)
	AddBitNote(ctx context.Context, n models.Note) (string, error)
	UpdateBitNote(ctx context.Context, id, content string, ts time.Time) (string, error)
	DeleteBitNote(ctx context.Context, id string) (string, error)
}

// BitTypeRemote is the store manager surface the bit type replica calls.
type BitTypeRemote interface {
	StructuredBitTypes(ctx context.Context) ([]models.BitTypeDefinition, error)
	AddBitType(ctx context.Context, def models.BitTypeDefinition) (models.Ref, error)
	UpdateBitType(ctx context.Context, def models.BitTypeDefinition) (models.Ref, error)
	DeleteBitType(ctx context.Context, id string) (models.Ref, error)
}

// CollectionRemote is the store manager surface the collection replica calls.
type CollectionRemote interface {
	StructuredCollections(ctx context.Context) ([]models.Collection, error)
	AddCollection(ctx context.Context, c models.Collection) (models.Ref, error)
	UpdateCollection(ctx context.Context, c models.Collection) (models.Ref, error)
	DeleteCollection(ctx context.Context, id string) (models.Ref, error)
}

// Remote is the whole store manager contract. Both *manager.Manager and
// *client.Client satisfy it.
type Remote interface {
	BitRemote
	BitTypeRemote
	CollectionRemote
}
