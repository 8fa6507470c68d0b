package tree

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dgallion1/pagedex/internal/llm"
	"github.com/dgallion1/pagedex/internal/token"
)

const (
	// summaryRetries bounds re-prompting when the model returns an empty or
	// boilerplate summary.
	summaryRetries = 3
	// summarySourceTokens clips how much node text a summary prompt sees.
	summarySourceTokens = 4000
)

// Enricher attaches text and summaries to a built forest and generates the
// document-level description.
type Enricher struct {
	llm llm.Completer
	tok token.Counter
	log *slog.Logger
}

func NewEnricher(completer llm.Completer, tok token.Counter, log *slog.Logger) *Enricher {
	return &Enricher{llm: completer, tok: tok, log: log}
}

// Enrich populates Text and Summary on every node and returns the document
// description. Summary failures degrade to the node title; they never fail
// the ingest.
func (e *Enricher) Enrich(ctx context.Context, roots []*Node, pages []string) string {
	attachText(roots, pages)
	e.summarize(ctx, roots)

	summaries := make([]string, 0, len(roots))
	for _, n := range roots {
		summaries = append(summaries, n.Summary)
	}
	desc, err := e.llm.Complete(ctx, buildDescriptionPrompt(summaries))
	if err != nil {
		e.log.Warn("document description failed", "error", err)
		return ""
	}
	return strings.TrimSpace(desc)
}

// attachText fills each node's text from its page range. A node with
// children keeps only its prefix span — parent pages before the first
// child — so child pages are never duplicated in the parent.
func attachText(nodes []*Node, pages []string) {
	for _, n := range nodes {
		if len(n.Nodes) == 0 {
			n.Text = PageRangeText(pages, n.StartIndex, n.EndIndex)
			continue
		}
		n.Text = PageRangeText(pages, n.StartIndex, n.Nodes[0].StartIndex-1)
		attachText(n.Nodes, pages)
	}
}

// summarize fills summaries bottom-up: leaves from their own text, internal
// nodes from their prefix text (if any) plus each child's title and summary,
// rather than the full text of the subtree, to cap cost.
func (e *Enricher) summarize(ctx context.Context, nodes []*Node) {
	for _, n := range nodes {
		e.summarize(ctx, n.Nodes)

		source := n.Text
		if len(n.Nodes) > 0 {
			var sb strings.Builder
			if n.Text != "" {
				sb.WriteString(n.Text)
				sb.WriteString("\n")
			}
			for _, c := range n.Nodes {
				sb.WriteString(c.Title)
				sb.WriteString(": ")
				sb.WriteString(c.Summary)
				sb.WriteString("\n")
			}
			source = sb.String()
		}
		n.Summary = e.summarizeOne(ctx, n.Title, source)
	}
}

func (e *Enricher) summarizeOne(ctx context.Context, title, source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return title
	}
	if toks := e.tok.Encode(source); len(toks) > summarySourceTokens {
		source = e.tok.Decode(toks[:summarySourceTokens])
	}

	prompt := buildSummaryPrompt(title, source)
	for attempt := 0; attempt < summaryRetries; attempt++ {
		out, err := e.llm.Complete(ctx, prompt)
		if err != nil {
			e.log.Warn("summary generation failed", "title", title, "error", err)
			return title
		}
		if s := strings.TrimSpace(out); contentBearing(s, title) {
			return s
		}
		e.log.Warn("rejected empty or boilerplate summary", "title", title, "attempt", attempt)
	}
	return title
}

// contentBearing rejects summaries that carry no information beyond the
// title or a refusal.
func contentBearing(s, title string) bool {
	if len(s) < 20 {
		return false
	}
	lower := strings.ToLower(s)
	if lower == strings.ToLower(title) {
		return false
	}
	for _, boilerplate := range []string{"no summary", "unable to summarize", "i cannot", "as an ai"} {
		if strings.HasPrefix(lower, boilerplate) {
			return false
		}
	}
	return true
}
