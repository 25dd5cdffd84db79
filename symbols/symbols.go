package symbols

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/aledsdavies/scriptvm/doc"
)

// Kind classifies a symbol.
type Kind uint8

const (
	KindKeyword Kind = iota
	KindBuiltinConstant
	KindBuiltinFunction
	KindExternFunction
	KindVariable
	KindMemoryKey
)

// RefKind classifies one reference to a symbol.
type RefKind uint8

const (
	RefRead RefKind = iota
	RefWrite
	RefCall
)

// Ref is one (kind, location) reference to a Symbol.
type Ref struct {
	Kind  RefKind
	Range doc.Range
}

// Signature is an optional human-readable call signature attached to a
// symbol (functions, externs).
type Signature struct {
	Params []string
	Return string
}

// Symbol is one entry in a SymBag: an identifier/key/keyword the parser
// resolved, together with where it is valid and how it was used.
type Symbol struct {
	Label      string
	Doc        string
	Signature  *Signature
	Kind       Kind
	ValidRange doc.Range
	Refs       []Ref
}

// SymBag is a per-parse symbol index for editor tooling. parser.Read always
// builds and returns one; execution never reads it.
type SymBag struct {
	symbols []*Symbol
	sorted  bool
}

// NewSymBag returns an empty SymBag.
func NewSymBag() *SymBag { return &SymBag{} }

// Declare records a new symbol and returns it for the caller to attach
// references to.
func (b *SymBag) Declare(s Symbol) *Symbol {
	sym := &Symbol{
		Label: s.Label, Doc: s.Doc, Signature: s.Signature,
		Kind: s.Kind, ValidRange: s.ValidRange,
	}
	b.symbols = append(b.symbols, sym)
	b.sorted = false
	return sym
}

// AddRef records a reference against sym.
func AddRef(sym *Symbol, kind RefKind, rng doc.Range) {
	sym.Refs = append(sym.Refs, Ref{Kind: kind, Range: rng})
}

func (b *SymBag) ensureSorted() {
	if b.sorted {
		return
	}
	sort.Slice(b.symbols, func(i, j int) bool {
		return b.symbols[i].ValidRange.Start < b.symbols[j].ValidRange.Start
	})
	b.sorted = true
}

// First returns the first symbol (by ValidRange.Start) whose range contains
// pos, or nil. Used by editors to seek hover/completion info at a cursor.
func (b *SymBag) First(pos uint32) *Symbol {
	b.ensureSorted()
	// Symbols are sorted by Start; the first one whose Start is beyond pos
	// bounds how far we ever need to scan.
	limit := sort.Search(len(b.symbols), func(i int) bool {
		return b.symbols[i].ValidRange.Start > pos
	})
	for i := 0; i < limit; i++ {
		s := b.symbols[i]
		if s.ValidRange.Start <= pos && pos < s.ValidRange.End {
			return s
		}
	}
	return nil
}

// Next returns the next symbol after `after` whose range also contains pos,
// allowing an editor to enumerate shadowed symbols valid at the same
// position (e.g. an outer and an inner `var` with the same name).
func (b *SymBag) Next(pos uint32, after *Symbol) *Symbol {
	b.ensureSorted()
	found := false
	for _, s := range b.symbols {
		if !found {
			if s == after {
				found = true
			}
			continue
		}
		if s.ValidRange.Start <= pos && pos < s.ValidRange.End {
			return s
		}
	}
	return nil
}

// Refs returns sym's references sorted by source range start.
func Refs(sym *Symbol) []Ref {
	out := make([]Ref, len(sym.Refs))
	copy(out, sym.Refs)
	sort.Slice(out, func(i, j int) bool { return out[i].Range.Start < out[j].Range.Start })
	return out
}

// All returns every symbol declared in this bag.
func (b *SymBag) All() []*Symbol { return b.symbols }

// Suggest returns the closest known label to name by fuzzy match, or "" if
// nothing is close enough. Used to enrich DiagUnresolvedIdentifier
// diagnostics with a did-you-mean candidate.
func Suggest(name string, candidates []string) string {
	best := ""
	bestRank := -1
	for _, c := range candidates {
		r := fuzzy.RankMatch(name, c)
		if r < 0 {
			continue
		}
		if bestRank == -1 || r < bestRank {
			bestRank = r
			best = c
		}
	}
	return best
}
