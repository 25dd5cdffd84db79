package behavior

import (
	"github.com/aledsdavies/scriptvm/binder"
	"github.com/aledsdavies/scriptvm/compile"
	"github.com/aledsdavies/scriptvm/memory"
	"github.com/aledsdavies/scriptvm/value"
	"github.com/aledsdavies/scriptvm/vm"
)

// Context carries everything one evaluation needs. Tree and Binder are
// read-only and safely shared across entities; Mem and Tracer belong to
// this evaluation alone. The evaluator starts no threads and
// never panics on its own — script panics become Failure results,
// noted in the tracer when it records them.
type Context struct {
	Tree   *Tree
	Mem    *memory.Memory
	Binder *binder.Table
	Tracer Tracer

	// Now supplies the current time in seconds for SourceTimeFromNow
	// resolution. The host injects its clock; nil reads as zero.
	Now func() float64
}

// Eval evaluates the node at id, depth-first, left-to-right,
// single-threaded. Every call brackets its recursion with
// tracer Begin/End.
func Eval(ctx *Context, id uint16) Result {
	if ctx.Tracer != nil {
		ctx.Tracer.Begin(id)
	}
	res := eval(ctx, id)
	// A faulted tracer poisons the whole evaluation: every frame on the way
	// out reports Failure so no decorator can flip the aborted result.
	if f, ok := ctx.Tracer.(faulted); ok && f.Fault() != nil {
		res = Failure
	}
	if ctx.Tracer != nil {
		ctx.Tracer.End(id, res)
	}
	return res
}

func eval(ctx *Context, id uint16) Result {
	if f, ok := ctx.Tracer.(faulted); ok && f.Fault() != nil {
		return Failure
	}

	n := ctx.Tree.Node(id)
	switch n.Type {
	case NodeSuccess:
		return Success
	case NodeFailure:
		return Failure
	case NodeRunning:
		return Running

	case NodeInvert:
		switch evalChild(ctx, n) {
		case Success:
			return Failure
		case Failure:
			return Success
		default:
			return Running
		}
	case NodeRepeat:
		if evalChild(ctx, n) == Failure {
			return Failure
		}
		return Running
	case NodeTry:
		if r := evalChild(ctx, n); r != Failure {
			return r
		}
		return Running

	case NodeSequence:
		for c := n.FirstChild; c != NoNode; c = ctx.Tree.Node(c).NextSibling {
			if r := Eval(ctx, c); r != Success {
				return r
			}
		}
		return Success
	case NodeSelector:
		for c := n.FirstChild; c != NoNode; c = ctx.Tree.Node(c).NextSibling {
			if r := Eval(ctx, c); r != Failure {
				return r
			}
		}
		return Failure
	case NodeParallel:
		anySuccess, anyRunning := false, false
		for c := n.FirstChild; c != NoNode; c = ctx.Tree.Node(c).NextSibling {
			switch Eval(ctx, c) {
			case Success:
				anySuccess = true
			case Running:
				anyRunning = true
			}
		}
		if anySuccess {
			return Success
		}
		if anyRunning {
			return Running
		}
		return Failure

	case NodeCondition:
		res := runScript(ctx, id, n.Script, true)
		if res.Panic != nil || res.Val.Falsy() {
			return Failure
		}
		return Success
	case NodeExecute:
		if res := runScript(ctx, id, n.Script, false); res.Panic != nil {
			return Failure
		}
		return Success

	case NodeKnowledgeCheck:
		for _, k := range n.Keys {
			if ctx.Mem.Load(k).IsNull() {
				return Failure
			}
		}
		return Success
	case NodeKnowledgeClear:
		for _, k := range n.Keys {
			ctx.Mem.Unset(k)
		}
		return Success
	case NodeKnowledgeCompare:
		have := ctx.Mem.Load(n.Key)
		want := resolveSource(ctx, n.Source)
		if compare(n.Cmp, have, want) {
			return Success
		}
		return Failure
	case NodeKnowledgeSet:
		ctx.Mem.Store(n.Key, resolveSource(ctx, n.Source))
		return Success

	default:
		return Failure
	}
}

// evalChild evaluates a decorator's single child; a childless decorator
// sees Success, the same neutral element an empty Sequence yields.
func evalChild(ctx *Context, n *Node) Result {
	if n.FirstChild == NoNode {
		return Success
	}
	return Eval(ctx, n.FirstChild)
}

// runScript runs a compiled node script against the shared blackboard,
// read-only for Condition nodes. A nil script reads as Null. A
// panic is noted in the tracer when it can record one.
func runScript(ctx *Context, node uint16, p *compile.Program, readOnly bool) vm.Result {
	if p == nil {
		return vm.Result{Val: value.Null}
	}
	m := &vm.VM{Binder: ctx.Binder, Mem: ctx.Mem, ReadOnly: readOnly}
	res := m.Eval(p)
	if res.Panic != nil {
		if sink, ok := ctx.Tracer.(panicSink); ok {
			sink.NotePanic(node, res.Panic)
		}
	}
	return res
}

func resolveSource(ctx *Context, s Source) value.Value {
	switch s.Kind {
	case SourceLiteral:
		return s.Literal
	case SourceMemoryRef:
		return ctx.Mem.Load(s.Key)
	case SourceTimeFromNow:
		now := 0.0
		if ctx.Now != nil {
			now = ctx.Now()
		}
		return value.NewNum(now + s.Seconds)
	default:
		return value.Null
	}
}

func compare(c Compare, a, b value.Value) bool {
	switch c {
	case CmpEqual:
		return value.Equal(a, b)
	case CmpNotEqual:
		return !value.Equal(a, b)
	case CmpLess:
		return value.Less(a, b)
	case CmpLessEqual:
		return value.Less(a, b) || value.Equal(a, b)
	case CmpGreater:
		return value.Greater(a, b)
	case CmpGreaterEqual:
		return value.Greater(a, b) || value.Equal(a, b)
	default:
		return false
	}
}
