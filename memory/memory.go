// Package memory implements the blackboard: an open-addressed mapping from
// interned string keys to value.Value, shared by script expressions and
// behavior-tree nodes.
package memory

import (
	"github.com/aledsdavies/scriptvm/internal/invariant"
	"github.com/aledsdavies/scriptvm/value"
)

const (
	initialCapacity = 8
	maxLoadNum      = 3
	maxLoadDen      = 4 // grow when load factor exceeds 3/4
)

type slot struct {
	key  uint32
	used bool
	val  value.Value
}

// Memory is a blackboard: key 0 is reserved and is never stored.
// Store of Null is equivalent to Unset. Iteration is insertion-stable across
// any interval with no intervening mutation.
type Memory struct {
	slots []slot
	count int
	order []uint32 // insertion order, kept in sync with live keys
}

// New returns an empty Memory.
func New() *Memory {
	return &Memory{slots: make([]slot, initialCapacity)}
}

func (m *Memory) index(key uint32) int {
	return int(key) & (len(m.slots) - 1)
}

// find returns the slot index holding key, or -1 if absent.
func (m *Memory) find(key uint32) int {
	if len(m.slots) == 0 {
		return -1
	}
	i := m.index(key)
	for probed := 0; probed < len(m.slots); probed++ {
		s := &m.slots[i]
		if !s.used {
			return -1
		}
		if s.key == key {
			return i
		}
		i = (i + 1) & (len(m.slots) - 1)
	}
	return -1
}

// Load returns the value stored at key, or Null if absent.
func (m *Memory) Load(key uint32) value.Value {
	if key == 0 {
		return value.Null
	}
	i := m.find(key)
	if i < 0 {
		return value.Null
	}
	return m.slots[i].val
}

// Store writes v at key. Storing Null is equivalent to Unset.
// Key 0 is a no-op sentinel and is never stored.
func (m *Memory) Store(key uint32, v value.Value) {
	if key == 0 {
		return
	}
	if v.IsNull() {
		m.Unset(key)
		return
	}
	if i := m.find(key); i >= 0 {
		m.slots[i].val = v
		return
	}
	if (m.count+1)*maxLoadDen > len(m.slots)*maxLoadNum {
		m.grow()
	}
	i := m.insertSlot(key)
	m.slots[i] = slot{key: key, used: true, val: v}
	m.count++
	m.order = append(m.order, key)
}

// insertSlot finds the first open slot for key via linear probing. Caller
// guarantees key is not already present and capacity has headroom.
func (m *Memory) insertSlot(key uint32) int {
	i := m.index(key)
	for {
		if !m.slots[i].used {
			return i
		}
		i = (i + 1) & (len(m.slots) - 1)
	}
}

// Unset removes key, if present, using backward-shift deletion so no
// tombstones are needed to keep subsequent probe chains intact.
func (m *Memory) Unset(key uint32) {
	if key == 0 {
		return
	}
	i := m.find(key)
	if i < 0 {
		return
	}
	m.slots[i] = slot{}
	m.count--
	m.removeFromOrder(key)

	// Backward-shift: pull forward any entry in the same probe cluster that
	// can now move into the hole, repeating until the chain is exhausted.
	cap := len(m.slots)
	j := (i + 1) & (cap - 1)
	for m.slots[j].used {
		k := m.slots[j]
		ideal := m.index(k.key)
		// Distance from ideal to the hole (i) must be <= distance from ideal to j
		// for the move to preserve correctness of future probes.
		if probeDistance(ideal, i, cap) <= probeDistance(ideal, j, cap) {
			m.slots[i] = k
			m.slots[j] = slot{}
			i = j
		}
		j = (j + 1) & (cap - 1)
	}
}

func probeDistance(ideal, at, cap int) int {
	d := at - ideal
	if d < 0 {
		d += cap
	}
	return d
}

func (m *Memory) removeFromOrder(key uint32) {
	for idx, k := range m.order {
		if k == key {
			m.order = append(m.order[:idx], m.order[idx+1:]...)
			return
		}
	}
}

func (m *Memory) grow() {
	newCap := len(m.slots) * 2
	if newCap == 0 {
		newCap = initialCapacity
	}
	old := m.slots
	m.slots = make([]slot, newCap)
	for _, s := range old {
		if !s.used {
			continue
		}
		i := m.insertSlot(s.key)
		m.slots[i] = s
	}
	invariant.Invariant(newCap&(newCap-1) == 0, "memory capacity must stay a power of two, got %d", newCap)
}

// Iter is a snapshot-based iterator: it walks the keys that were live at
// Begin(), in insertion order. Any structural mutation (Store of a new key,
// or Unset) after Begin() invalidates the iterator.
type Iter struct {
	keys []uint32
	pos  int
}

// Begin starts a new iteration over the currently-live keys.
func (m *Memory) Begin() *Iter {
	snapshot := make([]uint32, len(m.order))
	copy(snapshot, m.order)
	return &Iter{keys: snapshot}
}

// Next advances it and returns the next live (key, value) pair. ok is false
// once the snapshot is exhausted.
func (m *Memory) Next(it *Iter) (key uint32, v value.Value, ok bool) {
	for it.pos < len(it.keys) {
		k := it.keys[it.pos]
		it.pos++
		if i := m.find(k); i >= 0 {
			return k, m.slots[i].val, true
		}
		// Key was removed since Begin(); skip it rather than surface garbage.
	}
	return 0, value.Null, false
}

// Len returns the number of live keys.
func (m *Memory) Len() int { return m.count }
