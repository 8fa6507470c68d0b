package retrieval

import (
	"fmt"
	"strings"
)

const decomposePrompt = `Split the user's question about financial filings into atomic sub-questions. A sub-question asks for exactly one fact or comparison leg. When a sub-question clearly concerns one company or one fiscal year, tag it.

Return ONLY a JSON object:
{"sub_questions": [{"question": "<atomic question>", "target_company": "<company or ticker, or omit>", "target_year": <year, or omit>}, ...]}

Rules:
- Preserve the original wording where possible.
- A simple question becomes a single sub-question.
- Do not invent sub-questions the user did not ask.`

const treeSearchPrompt = `You are given a question and the outline of a financial filing as a JSON tree of sections with titles and summaries. Select the nodes whose sections likely contain the answer.

Return ONLY a JSON object:
{"thinking": "<brief reasoning>", "node_list": ["<node_id>", ...]}

Rules:
- List node IDs in order of likely relevance, most relevant first.
- Prefer the most specific nodes that cover the question; include a parent only when its whole range is relevant.
- Return {"thinking": "...", "node_list": []} if nothing is relevant.`

const answerPreamble = `Answer the user's question using ONLY the context sections below. For every factual claim, include an inline citation of the form [<company>, <year>, p<start>] or [<company>, <year>, p<start>-<end>] matching the section the claim comes from. If the context does not contain the answer to some part of the question, say so explicitly instead of guessing. If two documents contradict each other on a fact, state both figures with their citations.

After the answer, append a fenced JSON block:
` + "```json\n" + `{"citations": [{"node_id": "<node_id>", "doc_id": "<doc_id>", "page": <page>}, ...],
 "answered_sub_questions": [<1-based indices of the sub-questions the answer covers with cited claims>],
 "conflicts_detected": ["<description of any contradiction between documents>", ...]}
` + "```"

func buildDecomposePrompt(query string) string {
	var sb strings.Builder
	sb.WriteString(decomposePrompt)
	sb.WriteString("\n\n---\nQuestion: ")
	sb.WriteString(query)
	return sb.String()
}

func buildTreeSearchPrompt(question string, treeNoText []byte) string {
	var sb strings.Builder
	sb.WriteString(treeSearchPrompt)
	sb.WriteString("\n\n---\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n---\nDocument outline:\n")
	sb.Write(treeNoText)
	return sb.String()
}

func buildAnswerPrompt(query string, subs []SubQuestion, blocks []contextBlock) string {
	var sb strings.Builder
	sb.WriteString(answerPreamble)
	sb.WriteString("\n\n---\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\n\nSub-questions:\n")
	for i, s := range subs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s.Question)
	}
	sb.WriteString("\n---\nContext sections:\n")
	for _, b := range blocks {
		fmt.Fprintf(&sb, "\n[%s, %d, pages %d-%d] %q (doc_id %s, node_id %s):\n%s\n",
			b.Company, b.FiscalYear, b.StartPage, b.EndPage, b.Title, b.DocID, b.NodeID, b.Text)
	}
	return sb.String()
}
