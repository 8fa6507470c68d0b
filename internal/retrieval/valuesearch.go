package retrieval

import (
	"math"
	"sort"

	"github.com/dgallion1/pagedex/internal/store"
	"github.com/dgallion1/pagedex/internal/tree"
)

// valueSearch scores every chunk of a document against the query vector by
// cosine similarity, aggregates chunk scores to their nodes, and returns the
// top-K node IDs. The 1/√(N+1) damping rewards nodes with several matching
// chunks without letting long sections win on chunk count alone.
func valueSearch(queryVec []float32, vectors []store.ChunkVector, nodeMap map[string]*tree.Node, topK int) []string {
	type agg struct {
		sum   float64
		count int
	}
	byNode := make(map[string]*agg)
	for _, cv := range vectors {
		a := byNode[cv.NodeID]
		if a == nil {
			a = &agg{}
			byNode[cv.NodeID] = a
		}
		a.sum += cosine(queryVec, cv.Embedding)
		a.count++
	}

	type scored struct {
		nodeID     string
		score      float64
		startIndex int
	}
	nodes := make([]scored, 0, len(byNode))
	for nodeID, a := range byNode {
		start := 0
		if n, ok := nodeMap[nodeID]; ok {
			start = n.StartIndex
		}
		nodes = append(nodes, scored{
			nodeID:     nodeID,
			score:      a.sum / math.Sqrt(float64(a.count)+1),
			startIndex: start,
		})
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].score != nodes[j].score {
			return nodes[i].score > nodes[j].score
		}
		return nodes[i].startIndex < nodes[j].startIndex
	})

	if topK > 0 && len(nodes) > topK {
		nodes = nodes[:topK]
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.nodeID
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
