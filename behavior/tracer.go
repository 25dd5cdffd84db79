package behavior

import "github.com/aledsdavies/scriptvm/binder"

// Tracer observes node entries and exits during an evaluation. Callbacks must not mutate the evaluator's state; they see node
// ids, not nodes, so a tracer cannot reach the tree except through its own
// captured reference.
type Tracer interface {
	Begin(node uint16)
	End(node uint16, r Result)
}

// panicSink is the optional extension a tracer implements to be told about
// script panics the evaluator swallowed into Failure results.
type panicSink interface {
	NotePanic(node uint16, p *binder.ScriptPanic)
}

// faulted is the optional extension a tracer implements to abort the
// evaluation it is attached to: a non-nil panic makes the evaluator stop
// descending and return Failure instead of crashing.
type faulted interface {
	Fault() *binder.ScriptPanic
}

// Counter counts calls and records nothing else. The
// zero value is ready to use.
type Counter struct {
	Begins int
	Ends   int
}

func (c *Counter) Begin(uint16)       { c.Begins++ }
func (c *Counter) End(uint16, Result) { c.Ends++ }

// maxTraceDepth bounds Record's depth stack.
const maxTraceDepth = 16

// Entry is one recorded node evaluation.
type Entry struct {
	Type   NodeType
	Name   string // optional, from the Names map given to NewRecord
	Depth  int
	Result Result
}

// Record appends an Entry per node evaluation, for debug panels and
// tests. Exceeding the depth stack does not crash: the
// recorder faults with an ExecutionFailed panic that the evaluator
// propagates as Failure.
type Record struct {
	tree  *Tree
	names map[uint16]string

	Entries []Entry
	Panics  []NotedPanic

	stack []int // Entries indices of open Begins
	fault *binder.ScriptPanic
}

// NotedPanic is one script panic observed during the traced evaluation,
// attributed to the node whose script raised it.
type NotedPanic struct {
	Node  uint16
	Panic *binder.ScriptPanic
}

// NewRecord returns a recording tracer over tree. names is optional and
// supplies the Entry.Name column.
func NewRecord(tree *Tree, names map[uint16]string) *Record {
	return &Record{tree: tree, names: names}
}

func (r *Record) Begin(node uint16) {
	if r.fault != nil {
		return
	}
	if len(r.stack) >= maxTraceDepth {
		r.fault = binder.NewPanic(binder.ExecutionFailed)
		return
	}
	r.Entries = append(r.Entries, Entry{
		Type:  r.tree.Node(node).Type,
		Name:  r.names[node],
		Depth: len(r.stack),
	})
	r.stack = append(r.stack, len(r.Entries)-1)
}

func (r *Record) End(node uint16, res Result) {
	if r.fault != nil || len(r.stack) == 0 {
		return
	}
	idx := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	r.Entries[idx].Result = res
}

func (r *Record) NotePanic(node uint16, p *binder.ScriptPanic) {
	r.Panics = append(r.Panics, NotedPanic{Node: node, Panic: p})
}

func (r *Record) Fault() *binder.ScriptPanic { return r.fault }
