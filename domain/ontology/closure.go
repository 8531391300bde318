package ontology

import (
	"math"

	"phenodx/domain/core"
)

// Ancestors returns the transitive parent set of termID, excluding the term
// itself and excluding the closure root. An unknown term yields an empty set;
// the walk carries a visited guard so a malformed (cyclic) ontology cannot
// loop forever.
func Ancestors(snap *Snapshot, termID core.TermID, rootID core.TermID) TermSet {
	ancestors := make(TermSet)
	start, ok := snap.Terms[termID]
	if !ok {
		return ancestors
	}

	visited := NewTermSet(termID)
	queue := make([]core.TermID, 0, len(start.Parents))
	queue = append(queue, start.Parents...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited.Contains(id) || id == rootID {
			continue
		}
		visited.Add(id)
		ancestors.Add(id)
		if parent, ok := snap.Terms[id]; ok {
			queue = append(queue, parent.Parents...)
		}
	}
	return ancestors
}

// ClosureOf unions the ancestor sets of every term in ids against the
// snapshot's configured root.
func ClosureOf(snap *Snapshot, ids []core.TermID) TermSet {
	closure := make(TermSet)
	for _, id := range ids {
		closure.Union(Ancestors(snap, id, snap.Root))
	}
	return closure
}

// ComputeIC fills in information-content scores from disease annotation
// frequencies: IC(t) = -log2(P(t)), where P(t) is the fraction of annotated
// diseases carrying t directly or in their ancestor closure. Counting the
// closure propagates annotations upward, so shared ancestors keep signal even
// when every disease is annotated at the leaves. Terms outside every
// annotation set keep IC 0.
func ComputeIC(snap *Snapshot) {
	total := len(snap.Diseases)
	if total == 0 {
		return
	}
	counts := make(map[core.TermID]int)
	for _, d := range snap.Diseases {
		carried := make(TermSet, len(d.Terms)+len(d.Closure))
		for id := range d.Terms {
			carried.Add(id)
		}
		for id := range d.Closure {
			carried.Add(id)
		}
		for id := range carried {
			counts[id]++
		}
	}
	for id, n := range counts {
		if t, ok := snap.Terms[id]; ok {
			t.IC = -math.Log2(float64(n) / float64(total))
		}
	}
}
