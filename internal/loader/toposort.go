package loader

import (
	"container/heap"
	"fmt"

	"github.com/petrijr/wireflow/pkg/api"
)

// sortNodes orders flow nodes so that every wire source precedes its
// targets. Among nodes that are ready at the same time the one that appears
// first in the export wins. Wires to ids outside the node set do not
// constrain the order; the flow reports them when it resolves wires.
func sortNodes(nodes []*record) ([]*record, error) {
	pos := make(map[api.ElementID]int, len(nodes))
	for i, n := range nodes {
		pos[n.id] = i
	}

	indegree := make([]int, len(nodes))
	edges := make([][]int, len(nodes))
	for i, n := range nodes {
		targets := make(map[int]struct{})
		for _, port := range n.wires {
			for _, t := range port {
				j, ok := pos[t]
				if !ok {
					continue
				}
				if _, dup := targets[j]; dup {
					continue
				}
				targets[j] = struct{}{}
				edges[i] = append(edges[i], j)
				indegree[j]++
			}
		}
	}

	ready := &indexHeap{}
	for i, d := range indegree {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]*record, 0, len(nodes))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		out = append(out, nodes[i])
		for _, j := range edges[i] {
			indegree[j]--
			if indegree[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}

	if len(out) != len(nodes) {
		var cyclic []*record
		for i, d := range indegree {
			if d > 0 {
				cyclic = append(cyclic, nodes[i])
			}
		}
		return nil, fmt.Errorf("%w: wiring cycle among nodes %s", api.ErrBadFlowsJSON, formatIDs(cyclic))
	}
	return out, nil
}

// indexHeap is a min-heap of positions in the export.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *indexHeap) Push(x any) { *h = append(*h, x.(int)) }

func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
