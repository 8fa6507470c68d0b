package retrieval

import (
	"fmt"

	"github.com/dgallion1/pagedex/internal/token"
)

// packContext walks the merged node order, pulling each node's full text
// from its document's node map, and appends blocks until the token budget is
// reached. A node is included whole or skipped; partial truncation is not
// allowed.
func packContext(refs []nodeRef, docs map[string]*docData, budget int, tok token.Counter) []contextBlock {
	var blocks []contextBlock
	used := 0
	for _, ref := range refs {
		dd, ok := docs[ref.DocID]
		if !ok {
			continue
		}
		n, ok := dd.nodeMap[ref.NodeID]
		if !ok || n.Text == "" {
			continue
		}
		block := contextBlock{
			Company:    dd.doc.Company,
			Ticker:     dd.doc.Ticker,
			FiscalYear: dd.doc.FiscalYear,
			DocID:      ref.DocID,
			NodeID:     ref.NodeID,
			Title:      n.Title,
			StartPage:  n.StartIndex,
			EndPage:    n.EndIndex,
			Text:       n.Text,
		}
		cost := tok.Count(renderBlock(block))
		if used+cost > budget {
			continue
		}
		used += cost
		blocks = append(blocks, block)
	}
	return blocks
}

// renderBlock mirrors the formatting used in the answer prompt so the budget
// measures what the model actually receives.
func renderBlock(b contextBlock) string {
	return fmt.Sprintf("\n[%s, %d, pages %d-%d] %q (doc_id %s, node_id %s):\n%s\n",
		b.Company, b.FiscalYear, b.StartPage, b.EndPage, b.Title, b.DocID, b.NodeID, b.Text)
}
