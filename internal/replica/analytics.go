package replica

import (
	"sort"
	"time"
)

// TypeCount is the number of bits of one type.
type TypeCount struct {
	TypeID string `json:"typeId"`
	Name   string `json:"name"`
	Count  int    `json:"count"`
}

// DayActivity counts bits created and bits last edited on one calendar day.
type DayActivity struct {
	Day     string `json:"day"` // 2006-01-02
	Created int    `json:"created"`
	Updated int    `json:"updated"`
}

// CountByType groups the local bits by type, largest group first.
func (s *BitStore) CountByType() []TypeCount {
	byType := make(map[string]*TypeCount)
	for _, b := range s.Items() {
		tc, ok := byType[b.Type.ID]
		if !ok {
			tc = &TypeCount{TypeID: b.Type.ID, Name: b.Type.Name}
			byType[b.Type.ID] = tc
		}
		tc.Count++
	}
	out := make([]TypeCount, 0, len(byType))
	for _, tc := range byType {
		out = append(out, *tc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].TypeID < out[j].TypeID
	})
	return out
}

// ActivityByDay buckets the local bits by calendar day in since's location,
// counting only activity at or after since. Days without activity are left
// out; the result is in date order.
func (s *BitStore) ActivityByDay(since time.Time) []DayActivity {
	loc := since.Location()
	days := make(map[string]*DayActivity)
	bump := func(t time.Time) *DayActivity {
		key := t.In(loc).Format(time.DateOnly)
		d, ok := days[key]
		if !ok {
			d = &DayActivity{Day: key}
			days[key] = d
		}
		return d
	}
	for _, b := range s.Items() {
		if !b.CreatedAt.Before(since) {
			bump(b.CreatedAt).Created++
		}
		if b.UpdatedAt.After(b.CreatedAt) && !b.UpdatedAt.Before(since) {
			bump(b.UpdatedAt).Updated++
		}
	}
	out := make([]DayActivity, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
