// Package format re-emits a Doc expression as canonical source text that
// parses back to the same Doc up to source ranges.
// The emitted style is fully parenthesized for binary operators and
// brace-blocked for control flow, so the round-trip never depends on
// precedence reconstruction.
package format

import (
	"fmt"
	"strings"

	"github.com/aledsdavies/scriptvm/binder"
	"github.com/aledsdavies/scriptvm/doc"
	"github.com/aledsdavies/scriptvm/intern"
	"github.com/aledsdavies/scriptvm/value"
)

// Format renders the expression rooted at root. interner resolves memory
// keys and string literals back to text; tbl (optional) resolves extern
// slots back to native names. Variables are renamed canonically, since the
// Doc keeps only (scope, id) pairs, not source names.
func Format(d *doc.Doc, root doc.ExprId, interner *intern.Table, tbl *binder.Table) string {
	f := &formatter{d: d, interner: interner, tbl: tbl, declared: map[uint64]bool{}}
	if root == doc.Invalid || root == doc.None {
		return ""
	}
	// The top level is statements, not a braced block.
	if e := d.Expr(root); e.Kind == doc.KindBlock {
		var lines []string
		for _, stmt := range e.Args {
			lines = append(lines, terminate(f.stmt(stmt)))
		}
		return strings.Join(lines, "\n")
	}
	return f.expr(root)
}

// terminate appends the statement separator unless the statement already
// ends in a block, where a trailing `;` is redundant (the parser skips it
// as an empty statement).
func terminate(s string) string {
	if strings.HasSuffix(s, "}") {
		return s
	}
	return s + ";"
}

type formatter struct {
	d        *doc.Doc
	interner *intern.Table
	tbl      *binder.Table
	declared map[uint64]bool
}

var infix = map[doc.Intrinsic]string{
	doc.IntAdd: "+", doc.IntSub: "-", doc.IntMul: "*", doc.IntDiv: "/", doc.IntMod: "%",
	doc.IntEq: "==", doc.IntNotEq: "!=", doc.IntLt: "<", doc.IntLtEq: "<=",
	doc.IntGt: ">", doc.IntGtEq: ">=",
	doc.IntAnd: "&&", doc.IntOr: "||", doc.IntCoalesce: "??",
}

// callName is KeywordIntrinsics inverted, for intrinsics that print as
// plain calls.
var callName = func() map[doc.Intrinsic]string {
	out := map[doc.Intrinsic]string{}
	for name, spec := range doc.KeywordIntrinsics {
		out[spec.Intrinsic] = name
	}
	return out
}()

func varName(scope uint32, id uint8) string { return fmt.Sprintf("v%d_%d", scope, id) }

func (f *formatter) keyName(hash uint32) string {
	if s, ok := f.interner.Lookup(hash); ok {
		return s
	}
	return fmt.Sprintf("k%08x", hash)
}

// stmt renders id in statement position: the first store to a variable
// becomes a `var` declaration; anything else renders as expr does.
func (f *formatter) stmt(id doc.ExprId) string {
	e := f.d.Expr(id)
	if e.Kind == doc.KindVarStore {
		key := uint64(e.ScopeID)<<8 | uint64(e.VarID)
		if !f.declared[key] {
			f.declared[key] = true
			return "var " + varName(e.ScopeID, e.VarID) + " = " + f.expr(e.Store)
		}
	}
	return f.expr(id)
}

func (f *formatter) expr(id doc.ExprId) string {
	if id == doc.None || id == doc.Invalid {
		return ""
	}
	e := f.d.Expr(id)
	switch e.Kind {
	case doc.KindValue:
		return f.literal(f.d.Literals[e.LiteralIdx])
	case doc.KindVarLoad:
		return varName(e.ScopeID, e.VarID)
	case doc.KindVarStore:
		return varName(e.ScopeID, e.VarID) + " = " + f.expr(e.Store)
	case doc.KindMemLoad:
		return "$" + f.keyName(e.Key)
	case doc.KindMemStore:
		return "$" + f.keyName(e.Key) + " = " + f.expr(e.Store)
	case doc.KindBlock:
		return f.block(e)
	case doc.KindExtern:
		return f.externCall(e)
	case doc.KindIntrinsic:
		return f.intrinsic(e)
	default:
		return "null"
	}
}

func (f *formatter) literal(v value.Value) string {
	switch v.Type() {
	case value.TypeStr:
		if s, ok := f.interner.Lookup(v.Str()); ok {
			return quote(s)
		}
		return value.ToScratch(v)
	case value.TypeVec3:
		x, y, z := v.Vec3()
		return fmt.Sprintf("vec3(%g, %g, %g)", x, y, z)
	default:
		return value.ToScratch(v)
	}
}

func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func (f *formatter) block(e doc.Expr) string {
	if len(e.Args) == 0 {
		return "{ }"
	}
	var lines []string
	for _, stmt := range e.Args {
		lines = append(lines, terminate(f.stmt(stmt)))
	}
	return "{ " + strings.Join(lines, " ") + " }"
}

func (f *formatter) externCall(e doc.Expr) string {
	name := fmt.Sprintf("extern_%d", e.Slot)
	if f.tbl != nil {
		name = f.tbl.SlotName(binder.Slot(e.Slot))
	}
	return name + f.argList(e.Args)
}

func (f *formatter) argList(args []doc.ExprId) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = f.expr(a)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (f *formatter) intrinsic(e doc.Expr) string {
	if op, ok := infix[e.Intrinsic]; ok {
		return "(" + f.expr(e.Args[0]) + " " + op + " " + f.expr(e.Args[1]) + ")"
	}
	switch e.Intrinsic {
	case doc.IntNeg:
		return "-" + f.expr(e.Args[0])
	case doc.IntNot:
		return "!" + f.expr(e.Args[0])
	case doc.IntIf:
		s := "if (" + f.expr(e.Args[0]) + ") " + f.bodyOf(e.Args[1])
		if e.Args[2] != doc.None {
			s += " else " + f.bodyOf(e.Args[2])
		}
		return s
	case doc.IntWhile:
		return "while (" + f.expr(e.Args[0]) + ") " + f.bodyOf(e.Args[1])
	case doc.IntFor:
		return "for (" + f.forClause(e.Args[0]) + "; " + f.expr(e.Args[1]) + "; " +
			f.expr(e.Args[2]) + ") " + f.bodyOf(e.Args[3])
	case doc.IntBreak:
		return "break"
	case doc.IntContinue:
		return "continue"
	case doc.IntReturn:
		if e.Args[0] == doc.None {
			return "return"
		}
		return "return " + f.expr(e.Args[0])
	default:
		name, ok := callName[e.Intrinsic]
		if !ok {
			name = e.Intrinsic.String()
		}
		return name + f.argList(e.Args)
	}
}

// forClause renders a for-loop init clause, which may be a declaration.
func (f *formatter) forClause(id doc.ExprId) string {
	if id == doc.None {
		return ""
	}
	return f.stmt(id)
}

// bodyOf always renders a braced block, wrapping a bare statement body.
func (f *formatter) bodyOf(id doc.ExprId) string {
	e := f.d.Expr(id)
	if e.Kind == doc.KindBlock {
		return f.block(e)
	}
	return "{ " + f.stmt(id) + " }"
}
