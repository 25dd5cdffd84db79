// Package parser implements the recursive-descent, Pratt-precedence reader
// that turns a token stream into a Doc tree. Parsing never
// throws: unresolved names, arity mismatches, and syntax errors all produce
// a best-effort expression plus a recorded diagnostic, so a single pass can
// surface every problem in a source file.
package parser

import (
	"github.com/aledsdavies/scriptvm/binder"
	"github.com/aledsdavies/scriptvm/doc"
	"github.com/aledsdavies/scriptvm/intern"
	"github.com/aledsdavies/scriptvm/lexer"
	"github.com/aledsdavies/scriptvm/symbols"
	"github.com/aledsdavies/scriptvm/value"
)

// maxRecursionDepth bounds expression nesting: a source file
// that nests parens/calls deeper than this gets a DiagRecursionLimit
// diagnostic instead of a stack overflow.
const maxRecursionDepth = 25

// maxVarsPerScope is the var_id address space per block scope.
const maxVarsPerScope = 16

type varInfo struct {
	id  uint8
	sym *symbols.Symbol
}

type blockScope struct {
	id        uint32
	vars      map[string]varInfo
	nextVarID uint8
}

// Reader parses one source file into a Doc.
type Reader struct {
	lex      *lexer.Lexer
	interner *intern.Table
	bindTbl  *binder.Table
	d        *doc.Doc
	diags    *symbols.DiagBag
	syms     *symbols.SymBag

	cur     lexer.Token
	prevEnd lexer.Position

	depth       int
	nextScopeID uint32
	scopes      []*blockScope
	loopDepth   int

	memSyms map[uint32]*symbols.Symbol
}

// Read parses src into a new Doc and returns its root expression alongside
// the diagnostics and symbol index collected along the way. interner may be
// nil (a private table is created); bindTbl may be nil, in which case every
// function-call-shaped expression not matching a keyword intrinsic is
// reported unresolved.
func Read(src string, interner *intern.Table, bindTbl *binder.Table) (*doc.Doc, doc.ExprId, *symbols.DiagBag, *symbols.SymBag) {
	if interner == nil {
		interner = intern.New()
	}
	r := &Reader{
		lex:      lexer.New(src, interner, 0),
		interner: interner,
		bindTbl:  bindTbl,
		d:        doc.New(),
		diags:    symbols.NewDiagBag(),
		syms:     symbols.NewSymBag(),
		memSyms:  map[uint32]*symbols.Symbol{},
	}
	if bindTbl != nil {
		r.d.BinderHash = bindTbl.Hash()
	}
	r.advance()

	start := r.cur.Start
	r.pushScope()
	stmts := r.parseStatements(lexer.End)
	r.popScope(uint32(r.prevEnd.Offset))
	root := r.d.AddBlock(stmts, r.rng(start))
	return r.d, root, r.diags, r.syms
}

// --- token plumbing ---

func (r *Reader) advance() {
	r.prevEnd = r.cur.End
	r.cur = r.lex.Next()
}

func (r *Reader) rng(start lexer.Position) doc.Range {
	return doc.Range{Start: uint32(start.Offset), End: uint32(r.prevEnd.Offset)}
}

func (r *Reader) pos(tok lexer.Token) doc.Range {
	return doc.Range{Start: uint32(tok.Start.Offset), End: uint32(tok.End.Offset)}
}

func (r *Reader) addDiag(sev symbols.Severity, kind symbols.DiagKind, rng doc.Range, detail string) {
	r.diags.Add(symbols.ScriptDiag{Severity: sev, Kind: kind, Range: rng, Detail: detail})
}

func (r *Reader) expect(k lexer.Kind) bool {
	if r.cur.Kind == k {
		r.advance()
		return true
	}
	r.addDiag(symbols.Error, symbols.DiagUnexpectedToken, r.pos(r.cur), "expected "+k.String())
	return false
}

// --- scopes ---

func (r *Reader) pushScope() *blockScope {
	s := &blockScope{id: r.nextScopeID, vars: map[string]varInfo{}}
	r.nextScopeID++
	r.scopes = append(r.scopes, s)
	return s
}

func (r *Reader) popScope(endOffset uint32) {
	s := r.scopes[len(r.scopes)-1]
	for _, vi := range s.vars {
		vi.sym.ValidRange.End = endOffset
	}
	r.scopes = r.scopes[:len(r.scopes)-1]
}

func (r *Reader) currentScope() *blockScope { return r.scopes[len(r.scopes)-1] }

func (r *Reader) declareVar(name string, rng doc.Range) (scopeID uint32, varID uint8) {
	s := r.currentScope()
	id := s.nextVarID
	if int(s.nextVarID) >= maxVarsPerScope {
		r.addDiag(symbols.Error, symbols.DiagTooManyVariables, rng, name)
		id = maxVarsPerScope - 1
	} else {
		s.nextVarID++
	}
	sym := r.syms.Declare(symbols.Symbol{Label: name, Kind: symbols.KindVariable, ValidRange: doc.Range{Start: rng.Start}})
	s.vars[name] = varInfo{id: id, sym: sym}
	return s.id, id
}

func (r *Reader) lookupVar(name string) (scopeID uint32, varID uint8, sym *symbols.Symbol, ok bool) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if vi, found := r.scopes[i].vars[name]; found {
			return r.scopes[i].id, vi.id, vi.sym, true
		}
	}
	return 0, 0, nil, false
}

func (r *Reader) memSymbol(name string, hash uint32) *symbols.Symbol {
	if sym, ok := r.memSyms[hash]; ok {
		return sym
	}
	sym := r.syms.Declare(symbols.Symbol{Label: "$" + name, Kind: symbols.KindMemoryKey, ValidRange: doc.Range{Start: 0, End: ^uint32(0)}})
	r.memSyms[hash] = sym
	return sym
}

// --- recursion guard ---

func (r *Reader) enter(rng doc.Range) bool {
	r.depth++
	if r.depth > maxRecursionDepth {
		r.addDiag(symbols.Error, symbols.DiagRecursionLimit, rng, "")
		r.depth-- // caller bails out without a matching exit()
		return false
	}
	return true
}

func (r *Reader) exit() { r.depth-- }

func (r *Reader) bailout(rng doc.Range) doc.ExprId {
	return r.d.AddValue(value.Null, rng)
}

// --- statements ---

func (r *Reader) parseStatements(end lexer.Kind) []doc.ExprId {
	var stmts []doc.ExprId
	for r.cur.Kind != end && r.cur.Kind != lexer.End {
		if r.cur.Kind == lexer.Semicolon {
			r.advance() // empty statement, e.g. the `;` after a loop body
			continue
		}
		stmts = append(stmts, r.parseStatement())
	}
	return stmts
}

func (r *Reader) parseStatement() doc.ExprId {
	switch r.cur.Kind {
	case lexer.KwVar:
		return r.parseVarDecl()
	case lexer.KwIf:
		return r.parseIf()
	case lexer.KwWhile:
		return r.parseWhile()
	case lexer.KwFor:
		return r.parseFor()
	case lexer.KwBreak:
		return r.parseBreak()
	case lexer.KwContinue:
		return r.parseContinue()
	case lexer.KwReturn:
		return r.parseReturn()
	case lexer.LBrace:
		return r.parseBlock()
	default:
		return r.parseExprStatement()
	}
}

func (r *Reader) parseBlock() doc.ExprId {
	start := r.cur.Start
	r.expect(lexer.LBrace)
	r.pushScope()
	stmts := r.parseStatements(lexer.RBrace)
	endOffset := uint32(r.cur.Start.Offset)
	r.expect(lexer.RBrace)
	r.popScope(endOffset)
	return r.d.AddBlock(stmts, r.rng(start))
}

// stmtOrBlock parses either a brace-delimited block or a single statement,
// for `if`/`while`/`for` bodies that don't require braces.
func (r *Reader) stmtOrBlock() doc.ExprId {
	if r.cur.Kind == lexer.LBrace {
		return r.parseBlock()
	}
	return r.parseStatement()
}

func (r *Reader) parseVarDecl() doc.ExprId {
	start := r.cur.Start
	r.advance() // 'var'
	name := r.cur.Text
	nameRng := r.pos(r.cur)
	if !r.expect(lexer.Ident) {
		return r.bailout(r.rng(start))
	}
	r.expect(lexer.Assign)
	val := r.parseExpr()
	r.consumeSemicolon()
	scopeID, varID := r.declareVar(name, nameRng)
	sym := r.currentScope().vars[name].sym
	symbols.AddRef(sym, symbols.RefWrite, nameRng)
	return r.d.AddVarStore(scopeID, varID, val, r.rng(start))
}

func (r *Reader) consumeSemicolon() {
	if r.cur.Kind == lexer.Semicolon {
		r.advance()
	}
}

func (r *Reader) parseIf() doc.ExprId {
	start := r.cur.Start
	r.advance() // 'if'
	r.expect(lexer.LParen)
	cond := r.parseExpr()
	r.expect(lexer.RParen)
	thenBranch := r.stmtOrBlock()
	elseBranch := doc.None
	if r.cur.Kind == lexer.KwElse {
		r.advance()
		elseBranch = r.stmtOrBlock()
	}
	return r.d.AddIntrinsic(doc.IntIf, []doc.ExprId{cond, thenBranch, elseBranch}, r.rng(start))
}

func (r *Reader) parseWhile() doc.ExprId {
	start := r.cur.Start
	r.advance() // 'while'
	r.expect(lexer.LParen)
	cond := r.parseExpr()
	r.expect(lexer.RParen)
	r.loopDepth++
	body := r.stmtOrBlock()
	r.loopDepth--
	return r.d.AddIntrinsic(doc.IntWhile, []doc.ExprId{cond, body}, r.rng(start))
}

func (r *Reader) parseFor() doc.ExprId {
	start := r.cur.Start
	r.advance() // 'for'
	r.expect(lexer.LParen)
	r.pushScope()

	init := doc.None
	if r.cur.Kind != lexer.Semicolon {
		if r.cur.Kind == lexer.KwVar {
			init = r.parseVarDecl()
		} else {
			init = r.parseExpr()
			r.consumeSemicolon()
		}
	} else {
		r.advance()
	}

	cond := doc.None
	if r.cur.Kind != lexer.Semicolon {
		cond = r.parseExpr()
	}
	r.expect(lexer.Semicolon)

	post := doc.None
	if r.cur.Kind != lexer.RParen {
		post = r.parseExpr()
	}
	r.expect(lexer.RParen)

	r.loopDepth++
	body := r.stmtOrBlock()
	r.loopDepth--

	r.popScope(uint32(r.prevEnd.Offset))
	return r.d.AddIntrinsic(doc.IntFor, []doc.ExprId{init, cond, post, body}, r.rng(start))
}

func (r *Reader) parseBreak() doc.ExprId {
	start := r.cur.Start
	r.advance()
	if r.loopDepth == 0 {
		r.addDiag(symbols.Error, symbols.DiagBreakOutsideLoop, r.rng(start), "")
	}
	r.consumeSemicolon()
	return r.d.AddIntrinsic(doc.IntBreak, nil, r.rng(start))
}

func (r *Reader) parseContinue() doc.ExprId {
	start := r.cur.Start
	r.advance()
	if r.loopDepth == 0 {
		r.addDiag(symbols.Error, symbols.DiagContinueOutsideLoop, r.rng(start), "")
	}
	r.consumeSemicolon()
	return r.d.AddIntrinsic(doc.IntContinue, nil, r.rng(start))
}

func (r *Reader) parseReturn() doc.ExprId {
	start := r.cur.Start
	r.advance()
	val := doc.None
	if r.cur.Kind != lexer.Semicolon && r.cur.Kind != lexer.RBrace && r.cur.Kind != lexer.End {
		val = r.parseExpr()
	}
	r.consumeSemicolon()
	return r.d.AddIntrinsic(doc.IntReturn, []doc.ExprId{val}, r.rng(start))
}

func (r *Reader) parseExprStatement() doc.ExprId {
	start := r.cur.Start
	if r.cur.Kind == lexer.ErrorTok || (r.cur.Kind != lexer.LParen && r.cur.Kind != lexer.Bang && r.cur.Kind != lexer.Minus &&
		r.cur.Kind != lexer.Num && r.cur.Kind != lexer.Str && r.cur.Kind != lexer.Key && r.cur.Kind != lexer.Ident &&
		r.cur.Kind != lexer.KwNull && r.cur.Kind != lexer.KwTrue && r.cur.Kind != lexer.KwFalse) {
		r.addDiag(symbols.Error, symbols.DiagMissingPrimaryExpr, r.pos(r.cur), "")
		r.advance()
		return r.bailout(r.rng(start))
	}
	e := r.parseExpr()
	r.consumeSemicolon()
	return e
}

// --- expressions: assignment down to primary, lowest precedence first ---

func (r *Reader) parseExpr() doc.ExprId { return r.parseAssignment() }

var assignOps = map[lexer.Kind]doc.Intrinsic{
	lexer.PlusAssign:     doc.IntAdd,
	lexer.MinusAssign:    doc.IntSub,
	lexer.StarAssign:     doc.IntMul,
	lexer.SlashAssign:    doc.IntDiv,
	lexer.PercentAssign:  doc.IntMod,
	lexer.CoalesceAssign: doc.IntCoalesce,
}

func (r *Reader) parseAssignment() doc.ExprId {
	start := r.cur.Start
	rng := r.pos(r.cur)
	if !r.enter(rng) {
		return r.bailout(rng)
	}
	defer r.exit()

	lhs := r.parseOr()

	switch r.cur.Kind {
	case lexer.Assign:
		r.advance()
		rhs := r.parseAssignment()
		return r.storeTo(lhs, rhs, start)
	case lexer.PlusAssign, lexer.MinusAssign, lexer.StarAssign, lexer.SlashAssign, lexer.PercentAssign, lexer.CoalesceAssign:
		op := assignOps[r.cur.Kind]
		r.advance()
		rhs := r.parseAssignment()
		combined := r.d.AddIntrinsic(op, []doc.ExprId{lhs, rhs}, r.rng(start))
		return r.storeTo(lhs, combined, start)
	default:
		return lhs
	}
}

// storeTo rewrites lhs (which must be a bare VarLoad or MemLoad) into the
// matching Store expression carrying val. A non-lvalue left side is a
// diagnostic, not a parse failure: the value still evaluates.
func (r *Reader) storeTo(lhs doc.ExprId, val doc.ExprId, start lexer.Position) doc.ExprId {
	e := r.d.Expr(lhs)
	switch e.Kind {
	case doc.KindVarLoad:
		return r.d.AddVarStore(e.ScopeID, e.VarID, val, r.rng(start))
	case doc.KindMemLoad:
		return r.d.AddMemStore(e.Key, val, r.rng(start))
	default:
		r.addDiag(symbols.Error, symbols.DiagInvalidAssignTarget, r.rng(start), "")
		return val
	}
}

type binOp struct {
	kind lexer.Kind
	intr doc.Intrinsic
}

func (r *Reader) parseBinaryLevel(next func() doc.ExprId, ops []binOp) doc.ExprId {
	start := r.cur.Start
	left := next()
	for {
		matched := false
		for _, op := range ops {
			if r.cur.Kind == op.kind {
				r.advance()
				right := next()
				left = r.d.AddIntrinsic(op.intr, []doc.ExprId{left, right}, r.rng(start))
				matched = true
				break
			}
		}
		if !matched {
			return left
		}
	}
}

func (r *Reader) parseOr() doc.ExprId {
	return r.parseBinaryLevel(r.parseAnd, []binOp{{lexer.OrOr, doc.IntOr}})
}

func (r *Reader) parseAnd() doc.ExprId {
	return r.parseBinaryLevel(r.parseCoalesce, []binOp{{lexer.AndAnd, doc.IntAnd}})
}

func (r *Reader) parseCoalesce() doc.ExprId {
	return r.parseBinaryLevel(r.parseEquality, []binOp{{lexer.Coalesce, doc.IntCoalesce}})
}

func (r *Reader) parseEquality() doc.ExprId {
	return r.parseBinaryLevel(r.parseRelational, []binOp{{lexer.Eq, doc.IntEq}, {lexer.NotEq, doc.IntNotEq}})
}

func (r *Reader) parseRelational() doc.ExprId {
	return r.parseBinaryLevel(r.parseAdditive, []binOp{
		{lexer.Lt, doc.IntLt}, {lexer.LtEq, doc.IntLtEq},
		{lexer.Gt, doc.IntGt}, {lexer.GtEq, doc.IntGtEq},
	})
}

func (r *Reader) parseAdditive() doc.ExprId {
	return r.parseBinaryLevel(r.parseMultiplicative, []binOp{{lexer.Plus, doc.IntAdd}, {lexer.Minus, doc.IntSub}})
}

func (r *Reader) parseMultiplicative() doc.ExprId {
	return r.parseBinaryLevel(r.parseUnary, []binOp{
		{lexer.Star, doc.IntMul}, {lexer.Slash, doc.IntDiv}, {lexer.Percent, doc.IntMod},
	})
}

func (r *Reader) parseUnary() doc.ExprId {
	start := r.cur.Start
	switch r.cur.Kind {
	case lexer.Bang:
		r.advance()
		operand := r.parseUnary()
		return r.d.AddIntrinsic(doc.IntNot, []doc.ExprId{operand}, r.rng(start))
	case lexer.Minus:
		r.advance()
		operand := r.parseUnary()
		return r.d.AddIntrinsic(doc.IntNeg, []doc.ExprId{operand}, r.rng(start))
	default:
		return r.parsePostfix()
	}
}

// parsePostfix is the postfix precedence level. Call application is parsed
// by parseIdentOrCall, and the grammar has no other postfix operators (no
// field/index access on the Value union), so this level defers to the primary.
func (r *Reader) parsePostfix() doc.ExprId {
	return r.parsePrimary()
}

func (r *Reader) parsePrimary() doc.ExprId {
	tok := r.cur
	start := tok.Start
	switch tok.Kind {
	case lexer.Num:
		r.advance()
		return r.d.AddValue(value.NewNum(tok.NumVal), r.pos(tok))
	case lexer.Str:
		r.advance()
		return r.d.AddValue(value.NewStr(tok.Hash), r.pos(tok))
	case lexer.KwTrue:
		r.advance()
		return r.d.AddValue(value.NewBool(true), r.pos(tok))
	case lexer.KwFalse:
		r.advance()
		return r.d.AddValue(value.NewBool(false), r.pos(tok))
	case lexer.KwNull:
		r.advance()
		return r.d.AddValue(value.Null, r.pos(tok))
	case lexer.LParen:
		r.advance()
		inner := r.parseExpr()
		r.expect(lexer.RParen)
		return inner
	case lexer.Key:
		r.advance()
		sym := r.memSymbol(tok.Text[1:], tok.Hash)
		symbols.AddRef(sym, symbols.RefRead, r.pos(tok))
		return r.d.AddMemLoad(tok.Hash, r.pos(tok))
	case lexer.Ident:
		return r.parseIdentOrCall(tok)
	default:
		r.addDiag(symbols.Error, symbols.DiagMissingPrimaryExpr, r.pos(tok), "")
		if tok.Kind != lexer.End {
			r.advance()
		}
		return r.bailout(r.rng(start))
	}
}

func (r *Reader) parseIdentOrCall(tok lexer.Token) doc.ExprId {
	r.advance() // ident
	if r.cur.Kind != lexer.LParen {
		if scopeID, varID, sym, ok := r.lookupVar(tok.Text); ok {
			symbols.AddRef(sym, symbols.RefRead, r.pos(tok))
			return r.d.AddVarLoad(scopeID, varID, r.pos(tok))
		}
		r.addDiag(symbols.Error, symbols.DiagUnresolvedIdentifier, r.pos(tok), r.suggestFor(tok.Text))
		return r.bailout(r.pos(tok))
	}

	start := tok.Start
	args := r.parseArgList()

	if spec, ok := doc.KeywordIntrinsics[tok.Text]; ok {
		if len(args) < spec.Arity.Min || (spec.Arity.Max >= 0 && len(args) > spec.Arity.Max) {
			r.addDiag(symbols.Error, symbols.DiagArityMismatch, r.rng(start), tok.Text)
		}
		return r.d.AddIntrinsic(spec.Intrinsic, args, r.rng(start))
	}
	if r.bindTbl != nil {
		if slot, ok := r.bindTbl.Lookup(tok.Text); ok {
			sig := r.bindTbl.Signature(slot)
			if len(args) < sig.MinArgs() || len(args) > sig.MaxArgs() {
				r.addDiag(symbols.Error, symbols.DiagArityMismatch, r.rng(start), tok.Text)
			}
			return r.d.AddExtern(uint16(slot), args, r.rng(start))
		}
	}
	r.addDiag(symbols.Error, symbols.DiagUnresolvedIdentifier, r.pos(tok), r.suggestFor(tok.Text))
	return r.bailout(r.rng(start))
}

func (r *Reader) suggestFor(name string) string {
	var candidates []string
	for k := range doc.KeywordIntrinsics {
		candidates = append(candidates, k)
	}
	if r.bindTbl != nil {
		candidates = append(candidates, r.bindTbl.Names()...)
	}
	return symbols.Suggest(name, candidates)
}

func (r *Reader) parseArgList() []doc.ExprId {
	r.expect(lexer.LParen)
	var args []doc.ExprId
	for r.cur.Kind != lexer.RParen && r.cur.Kind != lexer.End {
		args = append(args, r.parseExpr())
		if r.cur.Kind == lexer.Comma {
			r.advance()
		} else {
			break
		}
	}
	r.expect(lexer.RParen)
	return args
}
