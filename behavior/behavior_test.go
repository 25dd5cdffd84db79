package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/scriptvm/compile"
	"github.com/aledsdavies/scriptvm/intern"
	"github.com/aledsdavies/scriptvm/memory"
	"github.com/aledsdavies/scriptvm/optimize"
	"github.com/aledsdavies/scriptvm/parser"
	"github.com/aledsdavies/scriptvm/value"
)

func compileScript(t *testing.T, src string, interner *intern.Table) *compile.Program {
	t.Helper()
	d, root, diags, _ := parser.Read(src, interner, nil)
	require.False(t, diags.HasErrors(), "unexpected diagnostics: %v", diags.All())
	p, err := compile.Compile(d, optimize.Optimize(d, root), 0)
	require.NoError(t, err)
	return p
}

func ctx(tree *Tree, mem *memory.Memory) *Context {
	return &Context{Tree: tree, Mem: mem}
}

func leafTree(nt NodeType) *Tree {
	return &Tree{Nodes: []Node{{Type: nt, NextSibling: NoNode, FirstChild: NoNode}}}
}

func TestLeafNodesReturnTheirNamedResult(t *testing.T) {
	assert.Equal(t, Success, Eval(ctx(leafTree(NodeSuccess), memory.New()), 0))
	assert.Equal(t, Failure, Eval(ctx(leafTree(NodeFailure), memory.New()), 0))
	assert.Equal(t, Running, Eval(ctx(leafTree(NodeRunning), memory.New()), 0))
}

// composite builds a composite at index 0 with the given leaf types as its
// sibling-chained children.
func composite(nt NodeType, kids ...NodeType) *Tree {
	tree := &Tree{Nodes: []Node{{Type: nt, NextSibling: NoNode, FirstChild: 1}}}
	for i, k := range kids {
		next := uint16(i + 2)
		if i == len(kids)-1 {
			next = NoNode
		}
		tree.Nodes = append(tree.Nodes, Node{Type: k, NextSibling: next, FirstChild: NoNode})
	}
	if len(kids) == 0 {
		tree.Nodes[0].FirstChild = NoNode
	}
	return tree
}

func TestSequenceStopsAtFirstNonSuccess(t *testing.T) {
	assert.Equal(t, Failure, Eval(ctx(composite(NodeSequence, NodeSuccess, NodeFailure, NodeSuccess), memory.New()), 0))
	assert.Equal(t, Running, Eval(ctx(composite(NodeSequence, NodeSuccess, NodeRunning), memory.New()), 0))
	assert.Equal(t, Success, Eval(ctx(composite(NodeSequence, NodeSuccess, NodeSuccess), memory.New()), 0))
	assert.Equal(t, Success, Eval(ctx(composite(NodeSequence), memory.New()), 0))
}

func TestSelectorStopsAtFirstNonFailure(t *testing.T) {
	assert.Equal(t, Success, Eval(ctx(composite(NodeSelector, NodeFailure, NodeSuccess), memory.New()), 0))
	assert.Equal(t, Running, Eval(ctx(composite(NodeSelector, NodeFailure, NodeRunning, NodeSuccess), memory.New()), 0))
	assert.Equal(t, Failure, Eval(ctx(composite(NodeSelector, NodeFailure, NodeFailure), memory.New()), 0))
	assert.Equal(t, Failure, Eval(ctx(composite(NodeSelector), memory.New()), 0))
}

func TestParallelPrefersSuccessThenRunning(t *testing.T) {
	assert.Equal(t, Success, Eval(ctx(composite(NodeParallel, NodeFailure, NodeRunning, NodeSuccess), memory.New()), 0))
	assert.Equal(t, Running, Eval(ctx(composite(NodeParallel, NodeFailure, NodeRunning), memory.New()), 0))
	assert.Equal(t, Failure, Eval(ctx(composite(NodeParallel, NodeFailure, NodeFailure), memory.New()), 0))
}

func decorator(nt, child NodeType) *Tree {
	return &Tree{Nodes: []Node{
		{Type: nt, NextSibling: NoNode, FirstChild: 1},
		{Type: child, NextSibling: NoNode, FirstChild: NoNode},
	}}
}

func TestInvertSwapsSuccessAndFailure(t *testing.T) {
	assert.Equal(t, Failure, Eval(ctx(decorator(NodeInvert, NodeSuccess), memory.New()), 0))
	assert.Equal(t, Success, Eval(ctx(decorator(NodeInvert, NodeFailure), memory.New()), 0))
	assert.Equal(t, Running, Eval(ctx(decorator(NodeInvert, NodeRunning), memory.New()), 0))
}

func TestRepeatKeepsRunningUntilFailure(t *testing.T) {
	assert.Equal(t, Running, Eval(ctx(decorator(NodeRepeat, NodeSuccess), memory.New()), 0))
	assert.Equal(t, Running, Eval(ctx(decorator(NodeRepeat, NodeRunning), memory.New()), 0))
	assert.Equal(t, Failure, Eval(ctx(decorator(NodeRepeat, NodeFailure), memory.New()), 0))
}

func TestTryTurnsFailureIntoRunning(t *testing.T) {
	assert.Equal(t, Running, Eval(ctx(decorator(NodeTry, NodeFailure), memory.New()), 0))
	assert.Equal(t, Success, Eval(ctx(decorator(NodeTry, NodeSuccess), memory.New()), 0))
	assert.Equal(t, Running, Eval(ctx(decorator(NodeTry, NodeRunning), memory.New()), 0))
}

// TestSequenceWithConditionTraced: a Sequence of
// Success, Condition($alive), Failure over {alive: true} fails at the
// third child, and the Record tracer sees four entries at depths 0,1,1,1.
func TestSequenceWithConditionTraced(t *testing.T) {
	interner := intern.New()
	mem := memory.New()
	mem.Store(interner.Intern("alive"), value.NewBool(true))

	cond := compileScript(t, "$alive;", interner)
	tree := &Tree{Nodes: []Node{
		{Type: NodeSequence, NextSibling: NoNode, FirstChild: 1},
		{Type: NodeSuccess, NextSibling: 2, FirstChild: NoNode},
		{Type: NodeCondition, NextSibling: 3, FirstChild: NoNode, Script: cond},
		{Type: NodeFailure, NextSibling: NoNode, FirstChild: NoNode},
	}}

	rec := NewRecord(tree, map[uint16]string{0: "root"})
	c := &Context{Tree: tree, Mem: mem, Tracer: rec}
	assert.Equal(t, Failure, Eval(c, 0))

	require.Len(t, rec.Entries, 4)
	depths := []int{rec.Entries[0].Depth, rec.Entries[1].Depth, rec.Entries[2].Depth, rec.Entries[3].Depth}
	assert.Equal(t, []int{0, 1, 1, 1}, depths)
	assert.Equal(t, "root", rec.Entries[0].Name)
	assert.Equal(t, Failure, rec.Entries[0].Result)
	assert.Equal(t, Success, rec.Entries[2].Result)
}

func TestConditionIsReadOnly(t *testing.T) {
	interner := intern.New()
	mem := memory.New()
	k := interner.Intern("hp")
	mem.Store(k, value.NewNum(10))

	// A Condition that tries to write must fail, and the blackboard must be
	// untouched: conditions evaluate read-only.
	cond := compileScript(t, "$hp = 0;", interner)
	tree := &Tree{Nodes: []Node{{Type: NodeCondition, NextSibling: NoNode, FirstChild: NoNode, Script: cond}}}

	rec := NewRecord(tree, nil)
	c := &Context{Tree: tree, Mem: mem, Tracer: rec}
	assert.Equal(t, Failure, Eval(c, 0))
	assert.Equal(t, 10.0, mem.Load(k).Num())
	require.Len(t, rec.Panics, 1)
}

func TestExecuteWritesAndAlwaysSucceeds(t *testing.T) {
	interner := intern.New()
	mem := memory.New()
	k := interner.Intern("steps")

	exec := compileScript(t, "$steps = ($steps ?? 0) + 1;", interner)
	tree := &Tree{Nodes: []Node{{Type: NodeExecute, NextSibling: NoNode, FirstChild: NoNode, Script: exec}}}

	c := ctx(tree, mem)
	assert.Equal(t, Success, Eval(c, 0))
	assert.Equal(t, Success, Eval(c, 0))
	assert.Equal(t, 2.0, mem.Load(k).Num())
}

func TestKnowledgeNodes(t *testing.T) {
	interner := intern.New()
	mem := memory.New()
	hp := interner.Intern("hp")
	target := interner.Intern("target")
	mem.Store(hp, value.NewNum(50))

	check := &Tree{Nodes: []Node{{Type: NodeKnowledgeCheck, NextSibling: NoNode, FirstChild: NoNode, Keys: []uint32{hp}}}}
	assert.Equal(t, Success, Eval(ctx(check, mem), 0))

	checkBoth := &Tree{Nodes: []Node{{Type: NodeKnowledgeCheck, NextSibling: NoNode, FirstChild: NoNode, Keys: []uint32{hp, target}}}}
	assert.Equal(t, Failure, Eval(ctx(checkBoth, mem), 0))

	empty := &Tree{Nodes: []Node{{Type: NodeKnowledgeCheck, NextSibling: NoNode, FirstChild: NoNode}}}
	assert.Equal(t, Success, Eval(ctx(empty, mem), 0))

	set := &Tree{Nodes: []Node{{
		Type: NodeKnowledgeSet, NextSibling: NoNode, FirstChild: NoNode,
		Key: target, Source: Source{Kind: SourceLiteral, Literal: value.NewEntity(7)},
	}}}
	assert.Equal(t, Success, Eval(ctx(set, mem), 0))
	assert.Equal(t, uint64(7), mem.Load(target).Entity())

	clear := &Tree{Nodes: []Node{{Type: NodeKnowledgeClear, NextSibling: NoNode, FirstChild: NoNode, Keys: []uint32{target}}}}
	assert.Equal(t, Success, Eval(ctx(clear, mem), 0))
	assert.True(t, mem.Load(target).IsNull())
}

func TestKnowledgeCompareAgainstMemoryRef(t *testing.T) {
	interner := intern.New()
	mem := memory.New()
	hp := interner.Intern("hp")
	limit := interner.Intern("limit")
	mem.Store(hp, value.NewNum(30))
	mem.Store(limit, value.NewNum(50))

	tree := &Tree{Nodes: []Node{{
		Type: NodeKnowledgeCompare, NextSibling: NoNode, FirstChild: NoNode,
		Key: hp, Cmp: CmpLess, Source: Source{Kind: SourceMemoryRef, Key: limit},
	}}}
	assert.Equal(t, Success, Eval(ctx(tree, mem), 0))

	tree.Nodes[0].Cmp = CmpGreaterEqual
	assert.Equal(t, Failure, Eval(ctx(tree, mem), 0))
}

func TestKnowledgeSetTimeFromNow(t *testing.T) {
	interner := intern.New()
	mem := memory.New()
	deadline := interner.Intern("deadline")

	tree := &Tree{Nodes: []Node{{
		Type: NodeKnowledgeSet, NextSibling: NoNode, FirstChild: NoNode,
		Key: deadline, Source: Source{Kind: SourceTimeFromNow, Seconds: 5},
	}}}
	c := &Context{Tree: tree, Mem: mem, Now: func() float64 { return 100 }}
	assert.Equal(t, Success, Eval(c, 0))
	assert.Equal(t, 105.0, mem.Load(deadline).Num())
}

func TestCounterTracerCountsEveryNode(t *testing.T) {
	tree := composite(NodeSequence, NodeSuccess, NodeSuccess, NodeSuccess)
	var counter Counter
	c := &Context{Tree: tree, Mem: memory.New(), Tracer: &counter}
	Eval(c, 0)
	assert.Equal(t, 4, counter.Begins)
	assert.Equal(t, 4, counter.Ends)
}

func TestRecordTracerDepthLimitFaultsInsteadOfCrashing(t *testing.T) {
	// A chain of Invert decorators deeper than the tracer's 16-entry stack.
	depth := maxTraceDepth + 4
	tree := &Tree{}
	for i := 0; i < depth; i++ {
		child := uint16(i + 1)
		tree.Nodes = append(tree.Nodes, Node{Type: NodeInvert, NextSibling: NoNode, FirstChild: child})
	}
	tree.Nodes = append(tree.Nodes, Node{Type: NodeSuccess, NextSibling: NoNode, FirstChild: NoNode})

	rec := NewRecord(tree, nil)
	c := &Context{Tree: tree, Mem: memory.New(), Tracer: rec}
	res := Eval(c, 0)

	require.NotNil(t, rec.Fault())
	assert.Equal(t, Failure, res)
	assert.LessOrEqual(t, len(rec.Entries), maxTraceDepth)
}
