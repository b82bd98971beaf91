package facet

import (
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/tinytelemetry/cohortlens/internal/model"
)

// column is the per-dimension index over one snapshot: a dictionary of raw
// keys, a posting bitmap of row ids per raw key, and the grouping of raw keys
// into histogram keys.
//
// A published column is read-only. Appends fork it: slices are re-sliced to
// full capacity so the next append reallocates, maps are cloned before their
// first write, and every touched posting is cloned before Add.
type column struct {
	keys     []Key
	keyIDs   map[string]uint32
	postings []*roaring.Bitmap
	groupOf  []uint32 // raw key id -> group id

	groups   []Key
	groupIDs map[string]uint32
	order    []uint32 // group ids in ascending key order

	group   func(Key) Key
	forked  bool
	ownMaps bool
	dirty   bool
}

func newColumn(group func(Key) Key) *column {
	return &column{
		keyIDs:   make(map[string]uint32),
		groupIDs: make(map[string]uint32),
		group:    group,
		ownMaps:  true,
	}
}

func (c *column) fork() *column {
	return &column{
		keys:     c.keys[:len(c.keys):len(c.keys)],
		keyIDs:   c.keyIDs,
		postings: slices.Clone(c.postings),
		groupOf:  c.groupOf[:len(c.groupOf):len(c.groupOf)],
		groups:   c.groups[:len(c.groups):len(c.groups)],
		groupIDs: c.groupIDs,
		order:    c.order,
		group:    c.group,
		forked:   true,
	}
}

func (c *column) add(k Key, row uint32) {
	id, ok := c.keyIDs[k.id()]
	if !ok {
		id = c.insertKey(k)
	} else if c.forked {
		c.postings[id] = c.postings[id].Clone()
	}
	c.postings[id].Add(row)
}

func (c *column) insertKey(k Key) uint32 {
	if !c.ownMaps {
		c.keyIDs = maps.Clone(c.keyIDs)
		c.groupIDs = maps.Clone(c.groupIDs)
		c.ownMaps = true
	}
	id := uint32(len(c.keys))
	c.keys = append(c.keys, k)
	c.keyIDs[k.id()] = id
	c.postings = append(c.postings, roaring.New())

	gk := k
	if c.group != nil {
		gk = c.group(k)
	}
	gid, ok := c.groupIDs[gk.id()]
	if !ok {
		gid = uint32(len(c.groups))
		c.groups = append(c.groups, gk)
		c.groupIDs[gk.id()] = gid
		c.dirty = true
	}
	c.groupOf = append(c.groupOf, gid)
	return id
}

// seal finalises a column before it is published. Only a freshly built
// column owns all of its postings, so only that path optimises them.
func (c *column) seal() {
	if c.dirty || c.order == nil {
		order := make([]uint32, len(c.groups))
		for i := range order {
			order[i] = uint32(i)
		}
		slices.SortFunc(order, func(a, b uint32) int {
			return CompareKeys(c.groups[a], c.groups[b])
		})
		c.order = order
	}
	if !c.forked {
		for _, p := range c.postings {
			p.RunOptimize()
		}
	}
	c.forked = false
	c.dirty = false
}

// indexRecord adds row r to every column.
func indexRecord(cols *[numDimensions]*column, row uint32, r *model.Record, buf []Key) []Key {
	for d := range numDimensions {
		buf = registry[d].extract(r, buf[:0])
		for _, k := range buf {
			cols[d].add(k, row)
		}
	}
	return buf
}
