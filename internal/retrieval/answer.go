package retrieval

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/pagedex/internal/tree"
)

// answerAttempts bounds regeneration when the model omits the structured
// citation block.
const answerAttempts = 3

// previewChars is the citation content preview length.
const previewChars = 200

type metaCitation struct {
	NodeID string `json:"node_id"`
	DocID  string `json:"doc_id"`
	Page   int    `json:"page"`
}

type answerMeta struct {
	Citations            []metaCitation `json:"citations"`
	AnsweredSubQuestions []int          `json:"answered_sub_questions"`
	ConflictsDetected    []string       `json:"conflicts_detected"`
}

// generateAnswer produces the cited answer text and its structured metadata.
// The answer itself is critical: an LLM failure surfaces as an operation
// failure. A missing or unparsable metadata block is retried, then
// reconstructed from the inline citations.
func (o *Orchestrator) generateAnswer(ctx context.Context, query string, subs []SubQuestion, blocks []contextBlock) (string, answerMeta, error) {
	prompt := buildAnswerPrompt(query, subs, blocks)

	var lastText string
	for attempt := 0; attempt < answerAttempts; attempt++ {
		text, err := o.llm.Complete(ctx, prompt)
		if err != nil {
			return "", answerMeta{}, err
		}
		lastText = text
		if prose, meta, ok := splitAnswerMeta(text); ok {
			return prose, meta, nil
		}
		o.log.Warn("answer missing structured citation block", "attempt", attempt)
	}

	o.log.Warn("reconstructing citations from inline references")
	return lastText, metaFromInline(lastText, blocks), nil
}

var jsonBlockRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// splitAnswerMeta separates the prose answer from the trailing fenced JSON
// block. The last block in the text wins.
func splitAnswerMeta(text string) (string, answerMeta, bool) {
	matches := jsonBlockRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return "", answerMeta{}, false
	}
	m := matches[len(matches)-1]
	raw := text[m[2]:m[3]]

	var meta answerMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return "", answerMeta{}, false
	}
	prose := strings.TrimSpace(text[:m[0]] + text[m[1]:])
	return prose, meta, true
}

var inlineCitationRe = regexp.MustCompile(`\[([^,\[\]]+),\s*(\d{4}),\s*p(\d+)(?:\s*-\s*(\d+))?\]`)

// metaFromInline rebuilds citation metadata from inline [Company, Year, pN]
// references, mapped to context blocks by company/year and page containment.
func metaFromInline(text string, blocks []contextBlock) answerMeta {
	var meta answerMeta
	seen := make(map[metaCitation]bool)
	for _, m := range inlineCitationRe.FindAllStringSubmatch(text, -1) {
		company := strings.TrimSpace(m[1])
		year, _ := strconv.Atoi(m[2])
		page, _ := strconv.Atoi(m[3])
		for _, b := range blocks {
			if b.FiscalYear != year {
				continue
			}
			if !strings.EqualFold(b.Company, company) && !strings.EqualFold(b.Ticker, company) {
				continue
			}
			if page < b.StartPage || page > b.EndPage {
				continue
			}
			c := metaCitation{NodeID: b.NodeID, DocID: b.DocID, Page: page}
			if !seen[c] {
				seen[c] = true
				meta.Citations = append(meta.Citations, c)
			}
			break
		}
	}
	return meta
}

// resolveCitations validates metadata citations against the loaded documents
// and fills in section path and content preview server-side.
func (o *Orchestrator) resolveCitations(meta answerMeta, docs map[string]*docData) []Citation {
	var out []Citation
	for _, mc := range meta.Citations {
		dd, ok := docs[mc.DocID]
		if !ok {
			o.log.Warn("citation names unknown document", "doc_id", mc.DocID)
			continue
		}
		n, ok := dd.nodeMap[mc.NodeID]
		if !ok {
			o.log.Warn("citation names unknown node", "doc_id", mc.DocID, "node_id", mc.NodeID)
			continue
		}
		page := mc.Page
		if page < n.StartIndex || page > n.EndIndex {
			page = n.StartIndex
		}
		out = append(out, Citation{
			Company:        dd.doc.Company,
			Ticker:         dd.doc.Ticker,
			FiscalYear:     dd.doc.FiscalYear,
			NodeID:         mc.NodeID,
			SectionPath:    sectionPath(dd.topology, mc.NodeID),
			Page:           page,
			ContentPreview: preview(n.Text),
		})
	}
	return out
}

// sectionPath joins the titles from root to the node, e.g.
// "Financial Statements > Notes > Revenue Recognition".
func sectionPath(roots []*tree.Node, nodeID string) string {
	var path []string
	var find func(nodes []*tree.Node, trail []string) bool
	find = func(nodes []*tree.Node, trail []string) bool {
		for _, n := range nodes {
			next := append(trail, n.Title)
			if n.NodeID == nodeID {
				path = append(path, next...)
				return true
			}
			if find(n.Nodes, next) {
				return true
			}
		}
		return false
	}
	find(roots, nil)
	return strings.Join(path, " > ")
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewChars {
		return text
	}
	return string(runes[:previewChars])
}

// labelConfidence computes the coarse retrieval-quality label.
//
//	HIGH   — every sub-question has a cited claim and ≥3 distinct source nodes.
//	MEDIUM — more than half the sub-questions cited and ≥1 distinct node.
//	LOW    — otherwise.
func labelConfidence(subCount, answered, distinctNodes int) Confidence {
	c := Confidence{
		AnsweredByFacts:  answered,
		AnsweredByChunks: distinctNodes,
		Unanswered:       subCount - answered,
	}
	switch {
	case subCount > 0 && answered == subCount && distinctNodes >= 3:
		c.Label = "HIGH"
	case 2*answered > subCount && distinctNodes >= 1:
		c.Label = "MEDIUM"
	default:
		c.Label = "LOW"
	}
	return c
}
