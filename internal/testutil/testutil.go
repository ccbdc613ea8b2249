// Package testutil provides shared test helpers for setting up stores and managers.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/starford/bitkeep/internal/manager"
	"github.com/starford/bitkeep/internal/models"
	"github.com/starford/bitkeep/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "bitkeep-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestManager creates a manager over a fresh temporary database.
func TestManager(t *testing.T, opts ...manager.Option) (*manager.Manager, *store.DB) {
	t.Helper()
	db := TestDB(t)
	return manager.New(db, opts...), db
}

// NoteType is a small bit type with a required title, a body and a rating.
func NoteType() models.BitTypeDefinition {
	return models.BitTypeDefinition{
		ID:       "note",
		Origin:   models.OriginUser,
		Name:     "Note",
		IconName: "file-text",
		Properties: []models.PropertyDefinition{
			{ID: "title", Name: "Title", Type: models.PropText, Required: true, Order: 0},
			{ID: "body", Name: "Body", Type: models.PropText, Order: 1},
			{ID: "stars", Name: "Stars", Type: models.PropRating, Options: []any{1.0, 5.0, 1.0}, Order: 2},
		},
	}
}

// Millis returns a time at millisecond precision, the precision the store keeps.
func Millis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// SeedBit adds a note bit with the given title through m.
func SeedBit(t *testing.T, m *manager.Manager, id, title string) {
	t.Helper()
	_, err := m.AddBit(context.Background(), models.BitInput{
		ID:        id,
		TypeID:    "note",
		CreatedAt: Millis(1_700_000_000_000),
		Data:      []models.BitData{{BitID: id, PropertyID: "title", Value: title}},
	})
	if err != nil {
		t.Fatalf("seed bit %s: %v", id, err)
	}
}
