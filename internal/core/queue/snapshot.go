package queue

import (
	"slices"
	"time"
)

// Snapshot is an ordered, deduplicated set of pending items accepted as
// authoritative at one point in time. Snapshots are replaced atomically,
// never mutated in place; callers receive copies.
type Snapshot struct {
	Items []PendingItem
	Seq   int64
	Taken time.Time
}

// NewSnapshot builds a snapshot from a candidate list, deduplicating by id
// while preserving first-occurrence order.
func NewSnapshot(items []PendingItem, seq int64, taken time.Time) Snapshot {
	seen := make(map[ItemID]struct{}, len(items))
	out := make([]PendingItem, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return Snapshot{Items: out, Seq: seq, Taken: taken}
}

// IDs returns the item ids in snapshot order.
func (s Snapshot) IDs() []ItemID {
	ids := make([]ItemID, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.ID
	}
	return ids
}

// Contains reports whether the snapshot holds the given id.
func (s Snapshot) Contains(id ItemID) bool {
	return slices.ContainsFunc(s.Items, func(it PendingItem) bool { return it.ID == id })
}

// Get returns the item with the given id.
func (s Snapshot) Get(id ItemID) (PendingItem, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return PendingItem{}, false
}

// Without returns a copy of the snapshot with the given ids removed.
func (s Snapshot) Without(ids map[ItemID]struct{}) Snapshot {
	if len(ids) == 0 {
		return s.Clone()
	}
	out := make([]PendingItem, 0, len(s.Items))
	for _, it := range s.Items {
		if _, drop := ids[it.ID]; drop {
			continue
		}
		out = append(out, it)
	}
	return Snapshot{Items: out, Seq: s.Seq, Taken: s.Taken}
}

// Clone returns a deep copy; the items slice is owned by the caller.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{Items: slices.Clone(s.Items), Seq: s.Seq, Taken: s.Taken}
}

// CountByCategory tallies items per category.
func (s Snapshot) CountByCategory() map[Category]int {
	counts := make(map[Category]int)
	for _, it := range s.Items {
		counts[it.Category]++
	}
	return counts
}
