// Package invariant provides contract assertions for the script runtime.
//
// Tiger Style: assertions are a force multiplier for finding bugs during
// development. Use Precondition/Postcondition to express function contracts
// and Invariant for internal consistency checks on the VM, compiler, and
// memory store.
//
// All functions panic on violation. These catch programming errors (corrupt
// bytecode that slipped past validate, out-of-range registers) — they are
// never raised in response to untrusted script input. Script-facing errors
// use ScriptPanic and ScriptDiag instead.
package invariant

import "fmt"

// Precondition checks an input contract at function entry.
func Precondition(condition bool, format string, args ...any) {
	if !condition {
		fail("PRECONDITION", format, args...)
	}
}

// Postcondition checks an output contract before function return.
func Postcondition(condition bool, format string, args ...any) {
	if !condition {
		fail("POSTCONDITION", format, args...)
	}
}

// Invariant checks internal consistency during execution, e.g. register
// stack balance in the compiler or a bounded tracer depth stack.
func Invariant(condition bool, format string, args ...any) {
	if !condition {
		fail("INVARIANT", format, args...)
	}
}

func fail(kind, format string, args ...any) {
	panic(fmt.Sprintf("%s VIOLATION: %s", kind, fmt.Sprintf(format, args...)))
}
