// Package symbols implements the parser-emitted symbol table and diagnostic
// collection used by editor tooling.
package symbols

import "github.com/aledsdavies/scriptvm/doc"

// Severity classifies a diagnostic.
type Severity uint8

const (
	Warning Severity = iota
	Error
)

// DiagKind enumerates compile-time diagnostic kinds.
type DiagKind uint8

const (
	DiagLexError DiagKind = iota
	DiagUnexpectedToken
	DiagMissingPrimaryExpr
	DiagUnclosedParen
	DiagRecursionLimit
	DiagUnresolvedIdentifier
	DiagTypeMismatch
	DiagArityMismatch
	DiagInvalidAssignTarget
	DiagBreakOutsideLoop
	DiagContinueOutsideLoop
	DiagTooManyVariables
)

// ScriptDiag is one compile-time diagnostic.
type ScriptDiag struct {
	Severity Severity
	Kind     DiagKind
	Range    doc.Range
	Detail   string // free-form detail, e.g. a fuzzy-matched suggestion
}

// DiagBag accumulates diagnostics during parsing. Parsing never throws: it
// records sentinel expressions and keeps going so a single pass can surface
// many problems.
type DiagBag struct {
	diags []ScriptDiag
}

// NewDiagBag returns an empty DiagBag.
func NewDiagBag() *DiagBag { return &DiagBag{} }

// Add appends a diagnostic.
func (b *DiagBag) Add(d ScriptDiag) { b.diags = append(b.diags, d) }

// All returns every diagnostic recorded, in emission order.
func (b *DiagBag) All() []ScriptDiag { return b.diags }

// HasErrors reports whether any diagnostic has Error severity.
func (b *DiagBag) HasErrors() bool {
	for _, d := range b.diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}
