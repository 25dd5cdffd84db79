// Package binder implements the native-function table scripts call
// through: a finalize-once, sorted-by-name-hash table of natives,
// each with a signature used by the compiler and parser for arity/type
// checking, and a stable hash used to check Program/Binder compatibility.
package binder

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/aledsdavies/scriptvm/value"
)

// TypeMask is a bitmask over value.Type, used to describe which types a
// parameter or return value may hold.
type TypeMask uint16

// Bit returns the mask bit for t.
func Bit(t value.Type) TypeMask { return TypeMask(1) << TypeMask(t) }

// Any accepts every Value type.
const Any TypeMask = 0xFF // all 8 concrete types

// Accepts reports whether v's type is permitted by m.
func (m TypeMask) Accepts(v value.Value) bool {
	return m&Bit(v.Type()) != 0
}

func (m TypeMask) String() string {
	if m == Any {
		return "any"
	}
	s := ""
	for t := value.TypeNull; t <= value.TypeColor; t++ {
		if m&Bit(t) != 0 {
			if s != "" {
				s += "|"
			}
			s += t.String()
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// ParamFlags annotates a single parameter.
type ParamFlags uint8

const (
	// ParamReadonly marks a parameter the native promises not to treat as
	// an out-param (informational; surfaces in ReadonlyParam panics when a
	// caller tries to bind it by reference in a future extension).
	ParamReadonly ParamFlags = 1 << iota
)

// ParamSpec describes one native function parameter.
type ParamSpec struct {
	Name  string
	Mask  TypeMask
	Flags ParamFlags
}

// Signature is a native function's arity and type contract.
type Signature struct {
	Params     []ParamSpec
	ReturnMask TypeMask
}

// MinArgs/MaxArgs bound how many arguments a call may supply. All declared
// Params are currently required (no variadic natives in this module).
func (s Signature) MinArgs() int { return len(s.Params) }
func (s Signature) MaxArgs() int { return len(s.Params) }

// Call is the argument bundle passed to a native at VM call time.
type Call struct {
	Args   []value.Value
	CallID uint32
}

// NativeFunc is a registered native implementation. Rather than the source
// engine's panic-handler-function-pointer plumbing, natives return an
// explicit (Value, *ScriptPanic) pair that the VM threads through with an
// early return.
type NativeFunc func(call *Call) (value.Value, *ScriptPanic)

// Flags configures a Table as a whole.
type Flags uint16

const (
	// DisallowMemoryAccess forbids memory-touching intrinsics when
	// compiling against this binder.
	DisallowMemoryAccess Flags = 1 << 0
)

// entry is one declared slot, pre-finalization.
type entry struct {
	name     string
	nameHash uint64
	doc      string
	sig      Signature
	fn       NativeFunc
}

// Builder declares native functions before Finalize locks them into a Table.
type Builder struct {
	name    string
	flags   Flags
	filter  string
	entries []entry
}

// NewBuilder starts declaring a binder named name (used only for
// diagnostics/serialization, not lookup).
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// SetFlags sets the binder-wide flags.
func (b *Builder) SetFlags(f Flags) *Builder { b.flags = f; return b }

// SetFilter sets a glob pattern (`*`, `?`) constraining which source files
// may use this binder.
func (b *Builder) SetFilter(pattern string) *Builder { b.filter = pattern; return b }

// Declare registers a native function under name with doc and signature.
func (b *Builder) Declare(name, doc string, sig Signature, fn NativeFunc) *Builder {
	b.entries = append(b.entries, entry{name: name, nameHash: nameHash(name), doc: doc, sig: sig, fn: fn})
	return b
}

func nameHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// Table is a finalized, immutable binder: safe for concurrent read from
// many entity evaluations sharing the same compiled Program.
type Table struct {
	name    string
	flags   Flags
	filter  string
	entries []entry // sorted by nameHash
	hash    uint64
}

// Finalize sorts declarations by name-hash for binary-search lookup and
// computes the stable binder_hash.
func (b *Builder) Finalize() *Table {
	entries := make([]entry, len(b.entries))
	copy(entries, b.entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].nameHash < entries[j].nameHash })

	t := &Table{name: b.name, flags: b.flags, filter: b.filter, entries: entries}
	t.hash = computeHash(t)
	return t
}

// computeHash is a BLAKE2b-256 digest of the finalized signatures truncated
// to 64 bits to fit the serialized binder_hash field.
func computeHash(t *Table) uint64 {
	h, _ := blake2b.New256(nil)
	for _, e := range t.entries {
		fmt.Fprintf(h, "%s\x00", e.name)
		for _, p := range e.sig.Params {
			fmt.Fprintf(h, "%s:%04x:%02x\x00", p.Name, uint16(p.Mask), uint8(p.Flags))
		}
		fmt.Fprintf(h, "->%04x\x00", uint16(e.sig.ReturnMask))
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// Hash returns the binder_hash used to check Program/Binder compatibility.
func (t *Table) Hash() uint64 { return t.hash }

// Flags returns the binder-wide flags.
func (t *Table) Flags() Flags { return t.flags }

// Name returns the binder's declared name.
func (t *Table) Name() string { return t.name }

// Slot identifies a resolved native by its position in the finalized table.
type Slot uint16

// Lookup resolves name to its slot by binary search over name-hash. ok is
// false if no native is registered under that name.
func (t *Table) Lookup(name string) (Slot, bool) {
	h := nameHash(name)
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].nameHash >= h })
	if i < len(t.entries) && t.entries[i].nameHash == h {
		return Slot(i), true
	}
	return 0, false
}

// Signature returns the signature of the native at slot.
func (t *Table) Signature(slot Slot) Signature { return t.entries[slot].sig }

// SlotName returns the declared name of the native at slot.
func (t *Table) SlotName(slot Slot) string { return t.entries[slot].name }

// Doc returns the doc string of the native at slot.
func (t *Table) Doc(slot Slot) string { return t.entries[slot].doc }

// Len returns the number of registered natives.
func (t *Table) Len() int { return len(t.entries) }

// Names returns every registered native name, for fuzzy-suggestion on an
// unresolved call.
func (t *Table) Names() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.name
	}
	return out
}

// Exec calls the native at slot with call, catching nothing: any panic
// raised is the caller's (the VM's) to catch and attribute.
func (t *Table) Exec(slot Slot, call *Call) (value.Value, *ScriptPanic) {
	return t.entries[slot].fn(call)
}

// AllowsSource reports whether a source file path is permitted to use this
// binder under its Filter glob. An empty filter allows anything.
func (t *Table) AllowsSource(path string) bool {
	if t.filter == "" {
		return true
	}
	ok, err := filepath.Match(t.filter, path)
	return err == nil && ok
}
