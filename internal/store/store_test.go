package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/starford/bitkeep/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "bitkeep-store-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedType(t *testing.T, db *DB, id string, props ...string) {
	t.Helper()
	err := db.Update(context.Background(), func(tx *Tx) error {
		if err := tx.UpsertBitType(context.Background(), BitTypeRow{ID: id, Origin: "user", Name: id, IconName: "box"}); err != nil {
			return err
		}
		for i, p := range props {
			if err := tx.UpsertProperty(context.Background(), PropertyRow{ID: p, TypeID: id, Name: p, Type: "text", DefaultValue: "null", Options: "null", OrderIndex: i}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed type: %v", err)
	}
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"bit_types", "bit_type_properties", "bits", "bit_data", "bit_notes", "collections", "collection_items"} {
		countRows(t, db, table)
	}
}

func TestUpdateRollsBackEveryRowOnFailure(t *testing.T) {
	db := testDB(t)
	seedType(t, db, "task", "title")
	ctx := context.Background()

	err := db.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertBit(ctx, BitRow{ID: "b1", TypeID: "task", CreatedAt: 1, UpdatedAt: 1}); err != nil {
			return err
		}
		if err := tx.InsertBitData(ctx, BitDataRow{BitID: "b1", PropertyID: "title", Value: `"a"`}); err != nil {
			return err
		}
		// Same (bit_id, property_id) violates the primary key.
		return tx.InsertBitData(ctx, BitDataRow{BitID: "b1", PropertyID: "title", Value: `"b"`})
	})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	if n := countRows(t, db, "bits"); n != 0 {
		t.Errorf("bits = %d after failed write, want 0", n)
	}
	if n := countRows(t, db, "bit_data"); n != 0 {
		t.Errorf("bit_data = %d after failed write, want 0", n)
	}
}

func TestForeignKeyMapsToNotFound(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	err := db.Update(ctx, func(tx *Tx) error {
		return tx.InsertNote(ctx, NoteRow{ID: "n1", BitID: "missing", CreatedAt: 1, UpdatedAt: 1})
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPrunePropertiesAndOrphanData(t *testing.T) {
	db := testDB(t)
	seedType(t, db, "contact", "name", "email", "phone")
	ctx := context.Background()

	err := db.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertBit(ctx, BitRow{ID: "b1", TypeID: "contact", CreatedAt: 1, UpdatedAt: 1}); err != nil {
			return err
		}
		for _, p := range []string{"name", "email", "phone"} {
			if err := tx.InsertBitData(ctx, BitDataRow{BitID: "b1", PropertyID: p, Value: `"x"`}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.Update(ctx, func(tx *Tx) error {
		n, err := tx.PruneProperties(ctx, "contact", []string{"name"})
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("pruned %d properties, want 2", n)
		}
		n, err = tx.PruneOrphanData(ctx, "contact")
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("pruned %d data rows, want 2", n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, db, "bit_type_properties"); n != 1 {
		t.Errorf("properties = %d, want 1", n)
	}
}

func TestPruneWithEmptyKeepDeletesAll(t *testing.T) {
	db := testDB(t)
	seedType(t, db, "note", "a", "b")
	ctx := context.Background()
	err := db.Update(ctx, func(tx *Tx) error {
		_, err := tx.PruneProperties(ctx, "note", nil)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, db, "bit_type_properties"); n != 0 {
		t.Errorf("properties = %d, want 0", n)
	}
}

func TestDeleteBitsByTypeCascades(t *testing.T) {
	db := testDB(t)
	seedType(t, db, "task", "title")
	seedType(t, db, "contact", "name")
	ctx := context.Background()

	err := db.Update(ctx, func(tx *Tx) error {
		for _, b := range []BitRow{{ID: "t1", TypeID: "task"}, {ID: "t2", TypeID: "task"}, {ID: "c1", TypeID: "contact"}} {
			if err := tx.InsertBit(ctx, b); err != nil {
				return err
			}
		}
		if err := tx.InsertBitData(ctx, BitDataRow{BitID: "t1", PropertyID: "title", Value: `"x"`}); err != nil {
			return err
		}
		if err := tx.InsertNote(ctx, NoteRow{ID: "n1", BitID: "t2"}); err != nil {
			return err
		}
		if err := tx.UpsertCollection(ctx, CollectionRow{ID: "col", Name: "All"}); err != nil {
			return err
		}
		if err := tx.UpsertCollectionItem(ctx, CollectionItemRow{ID: "i1", CollectionID: "col", BitID: "t1"}); err != nil {
			return err
		}
		return tx.UpsertCollectionItem(ctx, CollectionItemRow{ID: "i2", CollectionID: "col", BitID: "c1", OrderIndex: 1})
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.Update(ctx, func(tx *Tx) error {
		n, err := tx.DeleteBitsByType(ctx, "task")
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("deleted %d bits, want 2", n)
		}
		return tx.DeleteBitType(ctx, "task")
	})
	if err != nil {
		t.Fatal(err)
	}

	if n := countRows(t, db, "bits"); n != 1 {
		t.Errorf("bits = %d, want 1", n)
	}
	if n := countRows(t, db, "bit_data") + countRows(t, db, "bit_notes"); n != 0 {
		t.Errorf("dependent rows = %d, want 0", n)
	}
	if n := countRows(t, db, "collection_items"); n != 1 {
		t.Errorf("collection items = %d, want 1", n)
	}
	if n := countRows(t, db, "bit_types"); n != 1 {
		t.Errorf("bit types = %d, want 1", n)
	}
}

func TestMissingRowsAreNotFound(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	cases := map[string]func(tx *Tx) error{
		"set pinned":        func(tx *Tx) error { return tx.SetPinned(ctx, "nope", true, 1) },
		"delete bit":        func(tx *Tx) error { return tx.DeleteBit(ctx, "nope") },
		"update note":       func(tx *Tx) error { return tx.UpdateNote(ctx, "nope", "x", 1) },
		"delete collection": func(tx *Tx) error { return tx.DeleteCollection(ctx, "nope") },
		"get bit type":      func(tx *Tx) error { _, err := tx.BitType(ctx, "nope"); return err },
	}
	for name, fn := range cases {
		if err := db.Update(ctx, fn); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s: err = %v, want ErrNotFound", name, err)
		}
	}
}

func TestUpsertCollectionKeepsCreatedAt(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, r := range []CollectionRow{
		{ID: "c", Name: "Old", CreatedAt: 10, UpdatedAt: 10},
		{ID: "c", Name: "New", CreatedAt: 99, UpdatedAt: 20},
	} {
		if err := db.Update(ctx, func(tx *Tx) error { return tx.UpsertCollection(ctx, r) }); err != nil {
			t.Fatal(err)
		}
	}
	var rows []CollectionRow
	err := db.View(ctx, func(tx *Tx) error {
		var err error
		rows, err = tx.Collections(ctx)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Name != "New" || rows[0].CreatedAt != 10 || rows[0].UpdatedAt != 20 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestCollectionItemIDIsScopedToOneCollection(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedType(t, db, "task")
	err := db.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertBit(ctx, BitRow{ID: "b1", TypeID: "task"}); err != nil {
			return err
		}
		for _, id := range []string{"a", "b"} {
			if err := tx.UpsertCollection(ctx, CollectionRow{ID: id, Name: id}); err != nil {
				return err
			}
		}
		return tx.UpsertCollectionItem(ctx, CollectionItemRow{ID: "i1", CollectionID: "a", BitID: "b1"})
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.Update(ctx, func(tx *Tx) error {
		return tx.UpsertCollectionItem(ctx, CollectionItemRow{ID: "i1", CollectionID: "a", BitID: "b1", OrderIndex: 3})
	})
	if err != nil {
		t.Fatalf("same-collection upsert: %v", err)
	}

	err = db.Update(ctx, func(tx *Tx) error {
		return tx.UpsertCollectionItem(ctx, CollectionItemRow{ID: "i1", CollectionID: "b", BitID: "b1"})
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("cross-collection upsert: err = %v, want ErrConflict", err)
	}

	var items []CollectionItemRow
	err = db.View(ctx, func(tx *Tx) error {
		var err error
		items, err = tx.CollectionItems(ctx)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].CollectionID != "a" || items[0].OrderIndex != 3 {
		t.Errorf("items = %+v", items)
	}
}
