// Package behavior implements the behavior-tree evaluator: a
// recursive interpreter over a dense, index-addressed node array whose
// script-backed nodes run compiled Programs against the shared blackboard.
// There are no pointers between nodes; children and siblings are uint16
// indices, matching the arena-and-handle design the Doc and Program use.
package behavior

import (
	"github.com/aledsdavies/scriptvm/compile"
	"github.com/aledsdavies/scriptvm/value"
)

// Result is what evaluating any node produces.
type Result uint8

const (
	Success Result = iota
	Failure
	Running
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Running:
		return "running"
	default:
		return "invalid"
	}
}

// NodeType enumerates the node kinds.
type NodeType uint8

const (
	NodeSuccess NodeType = iota
	NodeFailure
	NodeRunning
	NodeInvert
	NodeRepeat
	NodeTry
	NodeParallel
	NodeSelector
	NodeSequence
	NodeCondition
	NodeExecute
	NodeKnowledgeCheck
	NodeKnowledgeClear
	NodeKnowledgeCompare
	NodeKnowledgeSet
)

var nodeTypeNames = [...]string{
	NodeSuccess: "success", NodeFailure: "failure", NodeRunning: "running",
	NodeInvert: "invert", NodeRepeat: "repeat", NodeTry: "try",
	NodeParallel: "parallel", NodeSelector: "selector", NodeSequence: "sequence",
	NodeCondition: "condition", NodeExecute: "execute",
	NodeKnowledgeCheck: "knowledge_check", NodeKnowledgeClear: "knowledge_clear",
	NodeKnowledgeCompare: "knowledge_compare", NodeKnowledgeSet: "knowledge_set",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "invalid"
}

// NoNode is the sentinel terminating sibling chains and marking a childless
// decorator.
const NoNode uint16 = 0xFFFF

// SourceKind selects how a KnowledgeCompare/KnowledgeSet node resolves its
// source value at evaluation time.
type SourceKind uint8

const (
	// SourceLiteral yields the stored literal verbatim.
	SourceLiteral SourceKind = iota
	// SourceMemoryRef loads another blackboard key at evaluation time.
	SourceMemoryRef
	// SourceTimeFromNow yields now + Seconds as a Num, for deadline keys.
	SourceTimeFromNow
)

// Source is the resolved-at-evaluation value a knowledge node reads.
type Source struct {
	Kind    SourceKind
	Literal value.Value // SourceLiteral
	Key     uint32      // SourceMemoryRef
	Seconds float64     // SourceTimeFromNow
}

// Compare selects the comparison a KnowledgeCompare node applies, using
// Value's tolerance-aware Equal/Less/Greater semantics.
type Compare uint8

const (
	CmpEqual Compare = iota
	CmpNotEqual
	CmpLess
	CmpLessEqual
	CmpGreater
	CmpGreaterEqual
)

// Node is one record of the consumed behavior-tree asset.
// Only the fields relevant to Type are meaningful.
type Node struct {
	Type        NodeType
	NextSibling uint16
	FirstChild  uint16 // composites and decorators; NoNode if childless

	Script *compile.Program // NodeCondition / NodeExecute
	Keys   []uint32         // NodeKnowledgeCheck / NodeKnowledgeClear
	Key    uint32           // NodeKnowledgeCompare / NodeKnowledgeSet
	Cmp    Compare          // NodeKnowledgeCompare
	Source Source           // NodeKnowledgeCompare / NodeKnowledgeSet
}

// Tree is the node array; the root is index 0.
type Tree struct {
	Nodes []Node
}

// Node returns the node at id. Panics on an out-of-range id; tree assets
// are validated by their loader, not re-checked per evaluation.
func (t *Tree) Node(id uint16) *Node { return &t.Nodes[id] }
