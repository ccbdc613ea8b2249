package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/bitkeep/internal/apperr"
)

// BitRow is a row of bits. Timestamps are Unix milliseconds.
type BitRow struct {
	ID        string
	TypeID    string
	CreatedAt int64
	UpdatedAt int64
	Pinned    bool
}

// BitDataRow is a row of bit_data. Value holds JSON.
type BitDataRow struct {
	BitID      string
	PropertyID string
	Value      string
}

// NoteRow is a row of bit_notes.
type NoteRow struct {
	ID        string
	BitID     string
	CreatedAt int64
	UpdatedAt int64
	Content   string
}

// InsertBit inserts a bit row.
func (t *Tx) InsertBit(ctx context.Context, r BitRow) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bits (id, type_id, created_at, updated_at, pinned) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.TypeID, r.CreatedAt, r.UpdatedAt, boolInt(r.Pinned))
	return wrap("insert bit", err)
}

// InsertBitData inserts one data row.
func (t *Tx) InsertBitData(ctx context.Context, r BitDataRow) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bit_data (bit_id, property_id, value) VALUES (?, ?, ?)`,
		r.BitID, r.PropertyID, r.Value)
	return wrap("insert bit data", err)
}

// DeleteBitData removes every data row of a bit.
func (t *Tx) DeleteBitData(ctx context.Context, bitID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM bit_data WHERE bit_id = ?`, bitID)
	return wrap("delete bit data", err)
}

// TouchBit sets a bit's updated_at.
func (t *Tx) TouchBit(ctx context.Context, id string, updatedAt int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE bits SET updated_at = ? WHERE id = ?`, updatedAt, id)
	return mustAffect("touch bit", res, err)
}

// SetPinned sets a bit's pinned flag and updated_at.
func (t *Tx) SetPinned(ctx context.Context, id string, pinned bool, updatedAt int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bits SET pinned = ?, updated_at = ? WHERE id = ?`, boolInt(pinned), updatedAt, id)
	return mustAffect("set pinned", res, err)
}

// DeleteBit removes a bit together with its data, notes and collection items.
func (t *Tx) DeleteBit(ctx context.Context, id string) error {
	for _, q := range []string{
		`DELETE FROM bit_data WHERE bit_id = ?`,
		`DELETE FROM bit_notes WHERE bit_id = ?`,
		`DELETE FROM collection_items WHERE bit_id = ?`,
	} {
		if _, err := t.tx.ExecContext(ctx, q, id); err != nil {
			return wrap("delete bit dependents", err)
		}
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bits WHERE id = ?`, id)
	return mustAffect("delete bit", res, err)
}

// DeleteBitsByType removes every bit of typeID with its data, notes and
// collection items, and returns how many bits went.
func (t *Tx) DeleteBitsByType(ctx context.Context, typeID string) (int64, error) {
	const owned = `(SELECT id FROM bits WHERE type_id = ?)`
	for _, q := range []string{
		`DELETE FROM bit_data WHERE bit_id IN ` + owned,
		`DELETE FROM bit_notes WHERE bit_id IN ` + owned,
		`DELETE FROM collection_items WHERE bit_id IN ` + owned,
	} {
		if _, err := t.tx.ExecContext(ctx, q, typeID); err != nil {
			return 0, wrap("delete bits by type", err)
		}
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bits WHERE type_id = ?`, typeID)
	if err != nil {
		return 0, wrap("delete bits by type", err)
	}
	return res.RowsAffected()
}

// Bit returns one bit row.
func (t *Tx) Bit(ctx context.Context, id string) (BitRow, error) {
	var r BitRow
	var pinned int
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, type_id, created_at, updated_at, pinned FROM bits WHERE id = ?`, id,
	).Scan(&r.ID, &r.TypeID, &r.CreatedAt, &r.UpdatedAt, &pinned)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("store: bit %s: %w", id, apperr.ErrNotFound)
	}
	r.Pinned = pinned != 0
	return r, wrap("get bit", err)
}

// Bits returns bit rows, newest first. With pinnedOnly only pinned bits are returned.
func (t *Tx) Bits(ctx context.Context, pinnedOnly bool) ([]BitRow, error) {
	q := `SELECT id, type_id, created_at, updated_at, pinned FROM bits`
	if pinnedOnly {
		q += ` WHERE pinned = 1`
	}
	q += ` ORDER BY created_at DESC, id`

	rows, err := t.tx.QueryContext(ctx, q)
	if err != nil {
		return nil, wrap("list bits", err)
	}
	defer rows.Close()

	var out []BitRow
	for rows.Next() {
		var r BitRow
		var pinned int
		if err := rows.Scan(&r.ID, &r.TypeID, &r.CreatedAt, &r.UpdatedAt, &pinned); err != nil {
			return nil, err
		}
		r.Pinned = pinned != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// BitData returns every data row.
func (t *Tx) BitData(ctx context.Context) ([]BitDataRow, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT bit_id, property_id, value FROM bit_data ORDER BY bit_id, property_id`)
	if err != nil {
		return nil, wrap("list bit data", err)
	}
	defer rows.Close()

	var out []BitDataRow
	for rows.Next() {
		var r BitDataRow
		if err := rows.Scan(&r.BitID, &r.PropertyID, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertNote inserts a note row.
func (t *Tx) InsertNote(ctx context.Context, r NoteRow) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bit_notes (id, bit_id, created_at, updated_at, content) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.BitID, r.CreatedAt, r.UpdatedAt, r.Content)
	return wrap("insert note", err)
}

// UpdateNote replaces a note's content.
func (t *Tx) UpdateNote(ctx context.Context, id, content string, updatedAt int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bit_notes SET content = ?, updated_at = ? WHERE id = ?`, content, updatedAt, id)
	return mustAffect("update note", res, err)
}

// DeleteNote removes a note row.
func (t *Tx) DeleteNote(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bit_notes WHERE id = ?`, id)
	return mustAffect("delete note", res, err)
}

// Notes returns every note row, oldest first.
func (t *Tx) Notes(ctx context.Context) ([]NoteRow, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, bit_id, created_at, updated_at, content FROM bit_notes ORDER BY created_at, id`)
	if err != nil {
		return nil, wrap("list notes", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		var r NoteRow
		if err := rows.Scan(&r.ID, &r.BitID, &r.CreatedAt, &r.UpdatedAt, &r.Content); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
