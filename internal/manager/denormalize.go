package manager

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/starford/bitkeep/internal/models"
	"github.com/starford/bitkeep/internal/store"
)

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeValue parses a stored JSON value. Text that is not JSON is returned as
// a plain string.
func decodeValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func decodeOptions(s string) []any {
	var opts []any
	if err := json.Unmarshal([]byte(s), &opts); err != nil {
		return nil
	}
	return opts
}

// bitTypeRows flattens a definition whose properties are already in dense order.
func bitTypeRows(def models.BitTypeDefinition) (store.BitTypeRow, []store.PropertyRow, error) {
	row := store.BitTypeRow{
		ID:          def.ID,
		Origin:      string(def.Origin),
		Name:        def.Name,
		Description: def.Description,
		IconName:    def.IconName,
	}
	props := make([]store.PropertyRow, 0, len(def.Properties))
	for _, p := range def.Properties {
		dv, err := encodeJSON(p.DefaultValue)
		if err != nil {
			return row, nil, fmt.Errorf("property %s: default value: %w", p.ID, err)
		}
		opts, err := encodeJSON(p.Options)
		if err != nil {
			return row, nil, fmt.Errorf("property %s: options: %w", p.ID, err)
		}
		props = append(props, store.PropertyRow{
			ID:           p.ID,
			TypeID:       def.ID,
			Name:         p.Name,
			Type:         string(p.Type),
			Required:     p.Required,
			DefaultValue: dv,
			Options:      opts,
			OrderIndex:   p.Order,
		})
	}
	return row, props, nil
}

// assembleBitTypes nests property rows (ordered by type, order_index) under
// their type rows.
func assembleBitTypes(types []store.BitTypeRow, props []store.PropertyRow) []models.BitTypeDefinition {
	byType := make(map[string][]models.PropertyDefinition, len(types))
	for _, p := range props {
		byType[p.TypeID] = append(byType[p.TypeID], models.PropertyDefinition{
			ID:           p.ID,
			Name:         p.Name,
			Type:         models.PropertyType(p.Type),
			Required:     p.Required,
			DefaultValue: decodeValue(p.DefaultValue),
			Options:      decodeOptions(p.Options),
			Order:        p.OrderIndex,
		})
	}

	out := make([]models.BitTypeDefinition, 0, len(types))
	for _, t := range types {
		properties := byType[t.ID]
		if properties == nil {
			properties = []models.PropertyDefinition{}
		}
		out = append(out, models.BitTypeDefinition{
			ID:          t.ID,
			Origin:      models.Origin(t.Origin),
			Name:        t.Name,
			IconName:    t.IconName,
			Description: t.Description,
			Properties:  properties,
		})
	}
	return out
}

// assembleBits resolves each bit's type against types and nests its data and
// notes. Bits whose type does not resolve are dropped, as are data rows whose
// property is not on the type.
func assembleBits(bits []store.BitRow, data []store.BitDataRow, notes []store.NoteRow,
	types map[string]models.BitTypeDefinition, logger *slog.Logger,
) []models.Bit {
	dataByBit := make(map[string][]store.BitDataRow)
	for _, d := range data {
		dataByBit[d.BitID] = append(dataByBit[d.BitID], d)
	}
	notesByBit := make(map[string][]models.Note)
	for _, n := range notes {
		notesByBit[n.BitID] = append(notesByBit[n.BitID], models.Note{
			ID:        n.ID,
			BitID:     n.BitID,
			CreatedAt: fromMillis(n.CreatedAt),
			UpdatedAt: fromMillis(n.UpdatedAt),
			Content:   n.Content,
		})
	}

	out := make([]models.Bit, 0, len(bits))
	for _, b := range bits {
		def, ok := types[b.TypeID]
		if !ok {
			logger.Debug("manager: dropping bit with unresolved type",
				slog.String("bit", b.ID), slog.String("type", b.TypeID))
			continue
		}
		def = def.Clone()

		order := make(map[string]int, len(def.Properties))
		for _, p := range def.Properties {
			order[p.ID] = p.Order
		}
		values := make([]models.BitData, 0, len(dataByBit[b.ID]))
		for _, d := range dataByBit[b.ID] {
			if _, known := order[d.PropertyID]; !known {
				continue
			}
			values = append(values, models.BitData{BitID: b.ID, PropertyID: d.PropertyID, Value: decodeValue(d.Value)})
		}
		sort.SliceStable(values, func(i, j int) bool {
			return order[values[i].PropertyID] < order[values[j].PropertyID]
		})

		bitNotes := notesByBit[b.ID]
		if bitNotes == nil {
			bitNotes = []models.Note{}
		}
		out = append(out, models.Bit{
			ID:        b.ID,
			CreatedAt: fromMillis(b.CreatedAt),
			UpdatedAt: fromMillis(b.UpdatedAt),
			Pinned:    b.Pinned,
			Type:      def,
			Data:      values,
			Notes:     bitNotes,
		})
	}
	return out
}

// assembleCollections nests item rows (ordered by collection, order_index)
// under their collections.
func assembleCollections(cols []store.CollectionRow, items []store.CollectionItemRow) []models.Collection {
	byCol := make(map[string][]models.CollectionItem, len(cols))
	for _, it := range items {
		byCol[it.CollectionID] = append(byCol[it.CollectionID], models.CollectionItem{
			ID:         it.ID,
			BitID:      it.BitID,
			OrderIndex: it.OrderIndex,
		})
	}
	out := make([]models.Collection, 0, len(cols))
	for _, c := range cols {
		colItems := byCol[c.ID]
		if colItems == nil {
			colItems = []models.CollectionItem{}
		}
		out = append(out, models.Collection{
			ID:        c.ID,
			Name:      c.Name,
			IconName:  c.IconName,
			CreatedAt: fromMillis(c.CreatedAt),
			UpdatedAt: fromMillis(c.UpdatedAt),
			Items:     colItems,
		})
	}
	return out
}

// stamp fills zero timestamps: created defaults to now, updated to created.
func stamp(created, updated time.Time) (time.Time, time.Time) {
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = created
	}
	return created, updated
}
