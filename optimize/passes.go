package optimize

import "github.com/aledsdavies/scriptvm/doc"

// --- Pass 3: unused-variable pruning ---

// pruneUnusedVars removes the store wrapper around any variable that is
// never loaded anywhere in the tree. The wrapped value
// expression still runs in its original position — only the act of binding
// it to a variable nobody reads is eliminated, so evaluation order and any
// side effects it contains are unchanged.
func pruneUnusedVars(d *doc.Doc, root doc.ExprId) {
	loadCounts := map[uint64]int{}
	countLoads(d, root, loadCounts, map[doc.ExprId]bool{})
	unwrapUnusedStores(d, root, loadCounts, map[doc.ExprId]bool{})
}

func countLoads(d *doc.Doc, id doc.ExprId, counts map[uint64]int, visited map[doc.ExprId]bool) {
	if visited[id] {
		return
	}
	visited[id] = true
	e := d.Expr(id)
	if e.Kind == doc.KindVarLoad {
		counts[varKey(e.ScopeID, e.VarID)]++
	}
	for _, child := range doc.Children(e) {
		countLoads(d, child, counts, visited)
	}
}

func unwrapUnusedStores(d *doc.Doc, id doc.ExprId, counts map[uint64]int, visited map[doc.ExprId]bool) {
	if visited[id] {
		return
	}
	visited[id] = true
	e := d.Expr(id)
	for _, child := range doc.Children(e) {
		unwrapUnusedStores(d, child, counts, visited)
	}

	e = d.Expr(id)
	if e.Kind != doc.KindVarStore {
		return
	}
	if counts[varKey(e.ScopeID, e.VarID)] > 0 {
		return
	}
	d.Replace(id, d.Expr(e.Store))
}

// --- Pass 4: block shaking ---

// shakeBlocks drops pure, value-discarded statements from every block:
// any non-final block statement whose evaluation has no
// observable effect contributes nothing once its value is thrown away.
func shakeBlocks(d *doc.Doc, root doc.ExprId) {
	shakeRec(d, root, map[doc.ExprId]bool{})
}

func shakeRec(d *doc.Doc, id doc.ExprId, visited map[doc.ExprId]bool) {
	if visited[id] {
		return
	}
	visited[id] = true
	e := d.Expr(id)
	for _, child := range doc.Children(e) {
		shakeRec(d, child, visited)
	}

	e = d.Expr(id)
	if e.Kind != doc.KindBlock {
		return
	}
	if len(e.Args) == 0 {
		return
	}
	kept := make([]doc.ExprId, 0, len(e.Args))
	last := len(e.Args) - 1
	for i, stmt := range e.Args {
		if i != last && isPure(d, stmt) {
			continue
		}
		kept = append(kept, stmt)
	}
	if len(kept) == 0 {
		// Every statement, including the last, was pure and discardable;
		// a block must still yield a value, so keep the final one.
		kept = []doc.ExprId{e.Args[last]}
	}
	d.Replace(id, doc.Expr{Kind: doc.KindBlock, Args: kept})
}

// isPure reports whether evaluating id can have any effect observable
// outside its own result value: a variable or memory store, an extern
// call, a control-flow form, or drawing from the random source all count
// as effects and must never be dropped even when their value is unused.
func isPure(d *doc.Doc, id doc.ExprId) bool {
	e := d.Expr(id)
	switch e.Kind {
	case doc.KindValue, doc.KindVarLoad, doc.KindMemLoad:
		return true
	case doc.KindVarStore, doc.KindMemStore, doc.KindExtern:
		return false
	case doc.KindIntrinsic:
		if e.Intrinsic.IsNonDeterministic() || e.Intrinsic == doc.IntAssert || e.Intrinsic.TouchesMemory() {
			return false
		}
		if isControlFlowIntrinsic(e.Intrinsic) {
			return false
		}
		for _, a := range e.Args {
			if a == doc.None {
				continue
			}
			if !isPure(d, a) {
				return false
			}
		}
		return true
	case doc.KindBlock:
		for _, a := range e.Args {
			if !isPure(d, a) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
