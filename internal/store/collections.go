package store

import (
	"context"
	"fmt"

	"github.com/starford/bitkeep/internal/apperr"
)

// CollectionRow is a row of collections.
type CollectionRow struct {
	ID        string
	Name      string
	IconName  string
	CreatedAt int64
	UpdatedAt int64
}

// CollectionItemRow is a row of collection_items.
type CollectionItemRow struct {
	ID           string
	CollectionID string
	BitID        string
	OrderIndex   int
}

// UpsertCollection inserts the collection row or updates it in place.
// created_at is kept from the first insert.
func (t *Tx) UpsertCollection(ctx context.Context, r CollectionRow) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO collections (id, name, icon_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			icon_name  = excluded.icon_name,
			updated_at = excluded.updated_at
	`, r.ID, r.Name, r.IconName, r.CreatedAt, r.UpdatedAt)
	return wrap("upsert collection", err)
}

// UpsertCollectionItem inserts an item or updates the one with the same id in
// the same collection. An item id held by another collection is
// apperr.ErrConflict.
func (t *Tx) UpsertCollectionItem(ctx context.Context, r CollectionItemRow) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO collection_items (id, collection_id, bit_id, order_index)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bit_id      = excluded.bit_id,
			order_index = excluded.order_index
		WHERE collection_items.collection_id = excluded.collection_id
	`, r.ID, r.CollectionID, r.BitID, r.OrderIndex)
	if err != nil {
		return wrap("upsert collection item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("upsert collection item", err)
	}
	if n == 0 {
		return fmt.Errorf("store: upsert collection item: item %s belongs to another collection: %w", r.ID, apperr.ErrConflict)
	}
	return nil
}

// PruneCollectionItems deletes every item of collectionID whose id is not in keep.
func (t *Tx) PruneCollectionItems(ctx context.Context, collectionID string, keep []string) (int64, error) {
	clause, args := notIn("id", keep)
	res, err := t.tx.ExecContext(ctx, `DELETE FROM collection_items WHERE collection_id = ?`+clause,
		append([]any{collectionID}, args...)...)
	if err != nil {
		return 0, wrap("prune collection items", err)
	}
	return res.RowsAffected()
}

// DeleteCollection removes a collection and its items.
func (t *Tx) DeleteCollection(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM collection_items WHERE collection_id = ?`, id); err != nil {
		return wrap("delete collection items", err)
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	return mustAffect("delete collection", res, err)
}

// Collections returns every collection row ordered by name.
func (t *Tx) Collections(ctx context.Context) ([]CollectionRow, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, name, icon_name, created_at, updated_at FROM collections ORDER BY name, id`)
	if err != nil {
		return nil, wrap("list collections", err)
	}
	defer rows.Close()

	var out []CollectionRow
	for rows.Next() {
		var r CollectionRow
		if err := rows.Scan(&r.ID, &r.Name, &r.IconName, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CollectionItems returns every item row ordered by collection and order_index.
func (t *Tx) CollectionItems(ctx context.Context) ([]CollectionItemRow, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, collection_id, bit_id, order_index
		FROM collection_items
		ORDER BY collection_id, order_index, id
	`)
	if err != nil {
		return nil, wrap("list collection items", err)
	}
	defer rows.Close()

	var out []CollectionItemRow
	for rows.Next() {
		var r CollectionItemRow
		if err := rows.Scan(&r.ID, &r.CollectionID, &r.BitID, &r.OrderIndex); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
