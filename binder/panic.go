package binder

import (
	"fmt"

	"github.com/aledsdavies/scriptvm/doc"
	"github.com/aledsdavies/scriptvm/value"
)

// PanicKind enumerates the run-time error tier.
type PanicKind uint8

const (
	AssertionFailed PanicKind = iota
	ExecutionFailed
	ExecutionLimitExceeded
	ArgumentInvalid
	ArgumentTypeMismatch
	ArgumentMissing
	ArgumentOutOfRange
	ArgumentCountExceedsMaximum
	EnumInvalidEntry
	UnimplementedBinding
	QueryLimitExceeded
	QueryInvalid
	ReadonlyParam
	MissingCapability
)

var panicKindNames = map[PanicKind]string{
	AssertionFailed:             "AssertionFailed",
	ExecutionFailed:             "ExecutionFailed",
	ExecutionLimitExceeded:      "ExecutionLimitExceeded",
	ArgumentInvalid:             "ArgumentInvalid",
	ArgumentTypeMismatch:        "ArgumentTypeMismatch",
	ArgumentMissing:             "ArgumentMissing",
	ArgumentOutOfRange:          "ArgumentOutOfRange",
	ArgumentCountExceedsMaximum: "ArgumentCountExceedsMaximum",
	EnumInvalidEntry:            "EnumInvalidEntry",
	UnimplementedBinding:        "UnimplementedBinding",
	QueryLimitExceeded:          "QueryLimitExceeded",
	QueryInvalid:                "QueryInvalid",
	ReadonlyParam:               "ReadonlyParam",
	MissingCapability:           "MissingCapability",
}

func (k PanicKind) String() string {
	if s, ok := panicKindNames[k]; ok {
		return s
	}
	return "UnknownPanic"
}

// ScriptPanic is the single run-time error type. Range is filled
// in by the VM once it catches a panic and attributes it to the calling
// instruction's source location; natives only set Kind and the argument
// detail fields.
type ScriptPanic struct {
	Kind         PanicKind
	ArgIndex     *int
	ExpectedMask *TypeMask
	ActualType   *value.Type
	Context      string
	Range        doc.Range
}

// NewPanic constructs a bare panic of kind k (no argument detail).
func NewPanic(k PanicKind) *ScriptPanic { return &ScriptPanic{Kind: k} }

// NewArgTypeMismatch builds an ArgumentTypeMismatch panic for argument
// index argIdx.
func NewArgTypeMismatch(argIdx int, expected TypeMask, actual value.Type) *ScriptPanic {
	return &ScriptPanic{Kind: ArgumentTypeMismatch, ArgIndex: &argIdx, ExpectedMask: &expected, ActualType: &actual}
}

// Error implements error so ScriptPanic can be wrapped/compared like one in
// host-facing code paths, without claiming this is a Go error in the
// script-facing sense (panics and diagnostics stay distinct tiers).
func (p *ScriptPanic) Error() string { return p.String() }

// String renders the panic's textual form, "<start>:<end>: <kind>" with the
// range's byte offsets, then ": <context>" when Context is set, and an
// optional second line for type mismatches.
func (p *ScriptPanic) String() string {
	s := fmt.Sprintf("%d:%d: %s", p.Range.Start, p.Range.End, p.Kind.String())
	if p.Context != "" {
		s += ": " + p.Context
	}
	if p.ArgIndex != nil && p.ExpectedMask != nil && p.ActualType != nil {
		s += fmt.Sprintf("\nargument %d: expected %s, got %s", *p.ArgIndex, p.ExpectedMask.String(), p.ActualType.String())
	}
	return s
}
