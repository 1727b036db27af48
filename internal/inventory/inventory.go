// Package inventory holds the device inventory a controller builds from its
// sources and hands to the chunker and manager.
package inventory

import (
	"sort"

	"github.com/mohae/deepcopy"
)

// Entry is the opaque description of one device. Its content is defined by
// the source that produced it and only interpreted by the manager.
type Entry map[string]interface{}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	if e == nil {
		return nil
	}
	return deepcopy.Copy(e).(Entry)
}

// Device is an inventory entry together with its unique key.
type Device struct {
	ID    string
	Entry Entry
}

// Chunk is the slice of the inventory one worker polls.
type Chunk []Device

// IDs returns the keys of the devices in the chunk, in order.
func (c Chunk) IDs() []string {
	ids := make([]string, len(c))
	for i, d := range c {
		ids[i] = d.ID
	}
	return ids
}

// Inventory maps device keys to entries and remembers insertion order.
// The zero value is ready to use.
type Inventory struct {
	keys    []string
	entries map[string]Entry
}

// New returns an empty inventory.
func New() *Inventory {
	return &Inventory{entries: map[string]Entry{}}
}

// Len returns the number of devices.
func (inv *Inventory) Len() int {
	return len(inv.keys)
}

// Has reports whether key is present.
func (inv *Inventory) Has(key string) bool {
	_, ok := inv.entries[key]
	return ok
}

// Get returns the entry stored under key.
func (inv *Inventory) Get(key string) (Entry, bool) {
	e, ok := inv.entries[key]
	return e, ok
}

// Set stores an entry. A new key is appended to the order, an existing one
// keeps its position.
func (inv *Inventory) Set(key string, e Entry) {
	if inv.entries == nil {
		inv.entries = map[string]Entry{}
	}
	if _, ok := inv.entries[key]; !ok {
		inv.keys = append(inv.keys, key)
	}
	inv.entries[key] = e
}

// Keys returns the device keys in insertion order.
func (inv *Inventory) Keys() []string {
	return append([]string(nil), inv.keys...)
}

// Devices returns every device in insertion order.
func (inv *Inventory) Devices() []Device {
	out := make([]Device, len(inv.keys))
	for i, k := range inv.keys {
		out[i] = Device{ID: k, Entry: inv.entries[k]}
	}
	return out
}

// Clone returns a deep copy of the inventory.
func (inv *Inventory) Clone() *Inventory {
	out := &Inventory{
		keys:    inv.Keys(),
		entries: make(map[string]Entry, len(inv.entries)),
	}
	for k, e := range inv.entries {
		out.entries[k] = e.Clone()
	}
	return out
}

// MergeResult reports what Merge did with a batch.
type MergeResult struct {
	Added      int
	Duplicates []string
}

// Merge adds every entry of batch whose key is not yet present. Entries are
// visited in key order so the resulting inventory order does not depend on
// map iteration. Keys already present are kept unchanged and reported as
// duplicates.
func (inv *Inventory) Merge(batch map[string]Entry) MergeResult {
	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var res MergeResult
	for _, k := range keys {
		if inv.Has(k) {
			res.Duplicates = append(res.Duplicates, k)
			continue
		}
		inv.Set(k, batch[k])
		res.Added++
	}
	return res
}

// CloneBatch deep-copies a batch returned by a source so later changes made
// by the source do not leak into the inventory.
func CloneBatch(batch map[string]Entry) map[string]Entry {
	if batch == nil {
		return nil
	}
	out := make(map[string]Entry, len(batch))
	for k, e := range batch {
		out[k] = e.Clone()
	}
	return out
}
