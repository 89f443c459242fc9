package solaris

import (
	"math"
	"strconv"

	"github.com/tidwall/btree"

	"github.com/sanonone/solarisdb/pkg/core/filter"
)

// numericItem is one entry of a per-key numeric metadata index.
type numericItem struct {
	Value float64
	ID    uint32
}

// numericLess orders items by value, internal ID as tie-breaker so distinct
// nodes with equal values stay distinct in the tree.
func numericLess(a, b numericItem) bool {
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	return a.ID < b.ID
}

// metaIndex accelerates metadata filters. Every key/value pair goes into the
// inverted index; values that parse as numbers additionally go into a per-key
// B-Tree so range conditions avoid a full scan. Not safe for concurrent use;
// the owning collection's lock covers it.
type metaIndex struct {
	// inverted: key -> value -> set of internal IDs.
	inverted map[string]map[string]map[uint32]struct{}
	// numeric: key -> ordered (value, ID) tree.
	numeric map[string]*btree.BTreeG[numericItem]
}

// orderableNumber reports whether a metadata value belongs in the numeric
// tree. NaN parses but cannot be ordered, so the tree's range scans would
// never stop at it; numeric conditions on NaN never match anyway, so it
// stays out of the tree entirely.
func orderableNumber(value string) (float64, bool) {
	num, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(num) {
		return 0, false
	}
	return num, true
}

func newMetaIndex() *metaIndex {
	return &metaIndex{
		inverted: make(map[string]map[string]map[uint32]struct{}),
		numeric:  make(map[string]*btree.BTreeG[numericItem]),
	}
}

func (m *metaIndex) add(id uint32, metadata map[string]string) {
	for key, value := range metadata {
		byValue, ok := m.inverted[key]
		if !ok {
			byValue = make(map[string]map[uint32]struct{})
			m.inverted[key] = byValue
		}
		ids, ok := byValue[value]
		if !ok {
			ids = make(map[uint32]struct{})
			byValue[value] = ids
		}
		ids[id] = struct{}{}

		if num, ok := orderableNumber(value); ok {
			tree, ok := m.numeric[key]
			if !ok {
				tree = btree.NewBTreeG[numericItem](numericLess)
				m.numeric[key] = tree
			}
			tree.Set(numericItem{Value: num, ID: id})
		}
	}
}

func (m *metaIndex) remove(id uint32, metadata map[string]string) {
	for key, value := range metadata {
		if byValue, ok := m.inverted[key]; ok {
			if ids, ok := byValue[value]; ok {
				delete(ids, id)
				if len(ids) == 0 {
					delete(byValue, value)
				}
			}
			if len(byValue) == 0 {
				delete(m.inverted, key)
			}
		}
		if num, ok := orderableNumber(value); ok {
			if tree, ok := m.numeric[key]; ok {
				tree.Delete(numericItem{Value: num, ID: id})
				if tree.Len() == 0 {
					delete(m.numeric, key)
				}
			}
		}
	}
}

// allowlistFor plans a filter. When every condition resolves through an index
// (equality via the inverted index, numeric ranges via the B-Tree) it returns
// the combined ID set and true; the caller pushes that set down into the
// vector index. Any condition the indexes cannot answer returns false and the
// caller falls back to over-fetch plus post-filtering.
func (m *metaIndex) allowlistFor(spec filter.Spec) (map[uint32]struct{}, bool) {
	if len(spec.Conditions) == 0 {
		return nil, false
	}

	var result map[uint32]struct{}
	for i, cond := range spec.Conditions {
		ids, ok := m.conditionIDs(cond)
		if !ok {
			return nil, false
		}
		if i == 0 {
			result = ids
			continue
		}
		if spec.Operator == filter.Or {
			result = unionSets(result, ids)
		} else {
			result = intersectSets(result, ids)
			if len(result) == 0 {
				return result, true
			}
		}
	}
	return result, true
}

func (m *metaIndex) conditionIDs(cond filter.Condition) (map[uint32]struct{}, bool) {
	switch cond.Operation {
	case filter.Equals:
		ids := make(map[uint32]struct{})
		if byValue, ok := m.inverted[cond.Key]; ok {
			for id := range byValue[cond.Value] {
				ids[id] = struct{}{}
			}
		}
		return ids, true

	case filter.GreaterThan, filter.LessThan:
		pivot, ok := orderableNumber(cond.Value)
		if !ok {
			// Matches treats an unparsable or NaN bound as matching nothing.
			return make(map[uint32]struct{}), true
		}
		ids := make(map[uint32]struct{})
		tree, ok := m.numeric[cond.Key]
		if !ok {
			return ids, true
		}
		if cond.Operation == filter.GreaterThan {
			tree.Descend(numericItem{Value: math.Inf(1), ID: ^uint32(0)}, func(item numericItem) bool {
				if item.Value <= pivot {
					return false
				}
				ids[item.ID] = struct{}{}
				return true
			})
		} else {
			tree.Ascend(numericItem{Value: math.Inf(-1)}, func(item numericItem) bool {
				if item.Value >= pivot {
					return false
				}
				ids[item.ID] = struct{}{}
				return true
			})
		}
		return ids, true

	default:
		// NotEquals and the substring operations need the full metadata.
		return nil, false
	}
}

func intersectSets(a, b map[uint32]struct{}) map[uint32]struct{} {
	if len(a) > len(b) {
		a, b = b, a
	}
	res := make(map[uint32]struct{}, len(a))
	for id := range a {
		if _, ok := b[id]; ok {
			res[id] = struct{}{}
		}
	}
	return res
}

func unionSets(a, b map[uint32]struct{}) map[uint32]struct{} {
	res := make(map[uint32]struct{}, len(a)+len(b))
	for id := range a {
		res[id] = struct{}{}
	}
	for id := range b {
		res[id] = struct{}{}
	}
	return res
}
