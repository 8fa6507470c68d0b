package retrieval

import (
	"context"
	"strings"

	"github.com/dgallion1/pagedex/internal/llm"
	"github.com/dgallion1/pagedex/internal/tree"
)

type treeSearchResult struct {
	Thinking string   `json:"thinking"`
	NodeList []string `json:"node_list"`
}

// llmSearch asks the model to pick relevant nodes from the text-stripped
// tree. Unknown node IDs are dropped with a warning and duplicates deduped
// preserving order. Persistent shape failures return an empty list so value
// search alone still serves the pair.
func (o *Orchestrator) llmSearch(ctx context.Context, question string, treeNoText []byte, nodeMap map[string]*tree.Node) ([]string, error) {
	var res treeSearchResult
	if err := o.llm.CompleteJSON(ctx, buildTreeSearchPrompt(question, treeNoText), &res); err != nil {
		if llm.IsShapeError(err) {
			o.log.Warn("llm tree search returned no parsable result", "error", err)
			return nil, nil
		}
		return nil, err
	}

	var out []string
	seen := make(map[string]bool)
	for _, id := range res.NodeList {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		if _, ok := nodeMap[id]; !ok {
			o.log.Warn("llm tree search named unknown node", "node_id", id)
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
