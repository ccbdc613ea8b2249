package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/bitkeep/internal/apperr"
)

// BitTypeRow is a row of bit_types.
type BitTypeRow struct {
	ID          string
	Origin      string
	Name        string
	Description string
	IconName    string
}

// PropertyRow is a row of bit_type_properties. DefaultValue and Options hold JSON.
type PropertyRow struct {
	ID           string
	TypeID       string
	Name         string
	Type         string
	Required     bool
	DefaultValue string
	Options      string
	OrderIndex   int
}

// UpsertBitType inserts the type row or updates it in place.
func (t *Tx) UpsertBitType(ctx context.Context, r BitTypeRow) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bit_types (id, origin, name, description, icon_name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			origin      = excluded.origin,
			name        = excluded.name,
			description = excluded.description,
			icon_name   = excluded.icon_name
	`, r.ID, r.Origin, r.Name, r.Description, r.IconName)
	return wrap("upsert bit type", err)
}

// UpsertProperty inserts a property or updates the one with the same (type_id, id).
func (t *Tx) UpsertProperty(ctx context.Context, r PropertyRow) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bit_type_properties (id, type_id, name, type, required, default_value, options, order_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type_id, id) DO UPDATE SET
			name          = excluded.name,
			type          = excluded.type,
			required      = excluded.required,
			default_value = excluded.default_value,
			options       = excluded.options,
			order_index   = excluded.order_index
	`, r.ID, r.TypeID, r.Name, r.Type, boolInt(r.Required), r.DefaultValue, r.Options, r.OrderIndex)
	return wrap("upsert property", err)
}

// PruneProperties deletes every property of typeID whose id is not in keep.
func (t *Tx) PruneProperties(ctx context.Context, typeID string, keep []string) (int64, error) {
	clause, args := notIn("id", keep)
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bit_type_properties WHERE type_id = ?`+clause,
		append([]any{typeID}, args...)...)
	if err != nil {
		return 0, wrap("prune properties", err)
	}
	return res.RowsAffected()
}

// PruneOrphanData deletes data rows of typeID's bits whose property no longer
// exists on the type.
func (t *Tx) PruneOrphanData(ctx context.Context, typeID string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM bit_data
		WHERE bit_id IN (SELECT id FROM bits WHERE type_id = ?)
		  AND property_id NOT IN (SELECT id FROM bit_type_properties WHERE type_id = ?)
	`, typeID, typeID)
	if err != nil {
		return 0, wrap("prune orphan data", err)
	}
	return res.RowsAffected()
}

// DeleteBitType removes a type and its properties. Bits of the type must be
// removed first with DeleteBitsByType.
func (t *Tx) DeleteBitType(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM bit_type_properties WHERE type_id = ?`, id); err != nil {
		return wrap("delete properties", err)
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bit_types WHERE id = ?`, id)
	return mustAffect("delete bit type", res, err)
}

// BitType returns one type row.
func (t *Tx) BitType(ctx context.Context, id string) (BitTypeRow, error) {
	var r BitTypeRow
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, origin, name, description, icon_name FROM bit_types WHERE id = ?`, id,
	).Scan(&r.ID, &r.Origin, &r.Name, &r.Description, &r.IconName)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("store: bit type %s: %w", id, apperr.ErrNotFound)
	}
	return r, wrap("get bit type", err)
}

// BitTypes returns every type row ordered by name.
func (t *Tx) BitTypes(ctx context.Context) ([]BitTypeRow, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, origin, name, description, icon_name FROM bit_types ORDER BY name, id`)
	if err != nil {
		return nil, wrap("list bit types", err)
	}
	defer rows.Close()

	var out []BitTypeRow
	for rows.Next() {
		var r BitTypeRow
		if err := rows.Scan(&r.ID, &r.Origin, &r.Name, &r.Description, &r.IconName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Properties returns every property row ordered by type and order_index.
func (t *Tx) Properties(ctx context.Context) ([]PropertyRow, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, type_id, name, type, required, default_value, options, order_index
		FROM bit_type_properties
		ORDER BY type_id, order_index, id
	`)
	if err != nil {
		return nil, wrap("list properties", err)
	}
	defer rows.Close()

	var out []PropertyRow
	for rows.Next() {
		var r PropertyRow
		var required int
		if err := rows.Scan(&r.ID, &r.TypeID, &r.Name, &r.Type, &required, &r.DefaultValue, &r.Options, &r.OrderIndex); err != nil {
			return nil, err
		}
		r.Required = required != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
