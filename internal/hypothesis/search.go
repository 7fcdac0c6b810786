package hypothesis

import (
	"container/heap"
	"fmt"
	"strings"
	"time"

	"github.com/mkarlsen/swingbot/internal/observ"
)

// Evaluator scores a candidate parameter set against a read-only historical
// snapshot. Implementations must be deterministic for a fixed snapshot.
type Evaluator interface {
	Score(p ParamSet) float64
}

type SearchConfig struct {
	MaxDepth        int
	BeamWidth       int
	Epsilon         float64 // a child must beat its parent by more than this to be expandable
	FocusCandidates []string
	Deadline        time.Time // zero means no wall-clock budget
}

// Result holds the outcome of one search run. The arena is returned for
// inspection and tests; callers persist only the selected parameters and
// rationale, then drop the tree.
type Result struct {
	Nodes      []Node
	SelectedID int
	Evaluated  int
	TimedOut   bool
}

func (r Result) Selected() Node { return r.Nodes[r.SelectedID] }

// frontier is a max-heap of arena IDs ordered by node score.
type frontier struct {
	ids   []int
	arena *[]Node
}

func (f frontier) Len() int { return len(f.ids) }
func (f frontier) Less(i, j int) bool {
	a := (*f.arena)[f.ids[i]]
	b := (*f.arena)[f.ids[j]]
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID // stable tie-break keeps runs reproducible
}
func (f frontier) Swap(i, j int) { f.ids[i], f.ids[j] = f.ids[j], f.ids[i] }
func (f *frontier) Push(x any) { f.ids = append(f.ids, x.(int)) }
func (f *frontier) Pop() any {
	old := f.ids
	n := len(old)
	id := old[n-1]
	f.ids = old[:n-1]
	return id
}

// Search runs the bounded best-first exploration. Total evaluations are
// capped at MaxDepth x BeamWidth x BranchingFactor (root excluded), so the
// search always terminates; hitting the wall-clock deadline ends the run
// early with the best node found so far.
func Search(cfg SearchConfig, root ParamSet, eval Evaluator) Result {
	maxEvals := cfg.MaxDepth * cfg.BeamWidth * BranchingFactor

	arena := []Node{{
		ID:       0,
		ParentID: -1,
		Delta:    "baseline",
		Params:   root,
		Depth:    0,
		Status:   StatusEvaluated,
	}}
	arena[0].Score = eval.Score(root)

	res := Result{SelectedID: 0}
	current := &frontier{ids: []int{0}, arena: &arena}
	heap.Init(current)

	for depth := 0; depth < cfg.MaxDepth && current.Len() > 0; depth++ {
		next := &frontier{arena: &arena}
		heap.Init(next)

		expanded := 0
		for current.Len() > 0 && expanded < cfg.BeamWidth {
			if overBudget(cfg, res.Evaluated, maxEvals) {
				res.TimedOut = res.TimedOut || pastDeadline(cfg)
				finish(&arena, &res)
				return res
			}
			parentID := heap.Pop(current).(int)
			parent := &arena[parentID]
			parent.Status = StatusExpanded
			expanded++

			for _, child := range variations(parent.Params, cfg.FocusCandidates) {
				if overBudget(cfg, res.Evaluated, maxEvals) {
					break
				}
				child.ID = len(arena)
				child.ParentID = parentID
				child.Depth = depth + 1
				child.Score = eval.Score(child.Params)
				child.Status = StatusEvaluated
				res.Evaluated++

				// No meaningful improvement over the parent: keep the score
				// but never expand this line further.
				if child.Score <= arena[parentID].Score+cfg.Epsilon {
					child.Status = StatusPruned
				}
				arena = append(arena, child)
				if child.Status == StatusEvaluated {
					heap.Push(next, child.ID)
				}
			}
		}

		// Anything left in the beam-truncated frontier was evaluated but not
		// expanded; it still competes for selection.
		if next.Len() == 0 {
			break // no node at this frontier improved on its parent
		}
		current = next
	}

	res.TimedOut = pastDeadline(cfg)
	finish(&arena, &res)
	return res
}

func overBudget(cfg SearchConfig, evaluated, maxEvals int) bool {
	return evaluated >= maxEvals || pastDeadline(cfg)
}

func pastDeadline(cfg SearchConfig) bool {
	return !cfg.Deadline.IsZero() && time.Now().After(cfg.Deadline)
}

// finish picks the best-scoring node in the arena, marks it SELECTED, and
// records run metrics.
func finish(arena *[]Node, res *Result) {
	best := 0
	for i := range *arena {
		if (*arena)[i].Score > (*arena)[best].Score {
			best = i
		}
	}
	(*arena)[best].Status = StatusSelected
	res.Nodes = *arena
	res.SelectedID = best

	observ.IncCounterBy("hypothesis_nodes_evaluated_total", nil, int64(res.Evaluated))
	observ.Log("hypothesis_search_done", map[string]any{
		"evaluated": res.Evaluated,
		"selected":  (*arena)[best].Delta,
		"score":     (*arena)[best].Score,
		"baseline":  (*arena)[0].Score,
		"timed_out": res.TimedOut,
	})
}

// Path walks deltas from the root to a node, for the rationale text.
func (r Result) Path(id int) []string {
	var rev []string
	for cur := id; cur != -1; cur = r.Nodes[cur].ParentID {
		rev = append(rev, r.Nodes[cur].Delta)
	}
	out := make([]string, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return out
}

// Rationale synthesizes the narrative stored with the selected parameters.
func (r Result) Rationale() string {
	sel := r.Selected()
	base := r.Nodes[0]
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluated %d parameter variants to depth %d. ", r.Evaluated, sel.Depth)
	if sel.ID == 0 {
		fmt.Fprintf(&b, "No variant improved on the active configuration (score %.4f); keeping %s.",
			base.Score, base.Params.describe())
		return b.String()
	}
	fmt.Fprintf(&b, "Selected %s (score %.4f vs baseline %.4f): %s.",
		strings.Join(r.Path(sel.ID)[1:], " -> "), sel.Score, base.Score, sel.Params.describe())
	if r.TimedOut {
		b.WriteString(" Run ended at the evaluation budget; best-so-far returned.")
	}
	return b.String()
}
