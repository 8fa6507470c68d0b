package tree

import (
	"fmt"
	"strings"
)

const tocDetectPrompt = `You are given the opening pages of a long document. Decide whether they contain a table of contents.

Return ONLY a JSON object:
- if a table of contents is present:
  {"has_toc": true, "entries": [{"title": "<section title>", "page": <printed page number>}, ...]}
- otherwise:
  {"has_toc": false}

Rules:
- List entries in the order they appear.
- "title" is the verbatim section title.
- "page" is the physical page the section starts on, taken from the <page_N> tags surrounding the text, adjusted if the printed numbers differ from the tags.
- Skip entries whose page number you cannot determine.`

const outlineWindowPrompt = `You are given a window of consecutive pages from a long document. Identify every section that STARTS within this window.

Return ONLY a JSON object:
{"sections": [{"title": "<verbatim section title>", "start_page": <page number>}, ...]}

Rules:
- "start_page" must be one of the <page_N> tags in this window.
- List sections in reading order.
- Only report genuine section headings, not running headers, footers, or table rows.
- Return {"sections": []} if no section starts here.`

const levelsPrompt = `You are given the flat, ordered outline of a document as a numbered list of section titles with their start pages. Assign each entry a hierarchy level: 1 for top-level chapters, 2 for sections inside the previous level-1 entry, 3 for subsections, and so on.

Return ONLY a JSON object:
{"levels": [<level for entry 1>, <level for entry 2>, ...]}

Rules:
- The array must have exactly one integer per outline entry, in order.
- The first entry is always level 1.
- A level may be at most one deeper than the previous entry's level.`

const subdividePrompt = `You are given the text of one oversized section of a document. Propose child sections that subdivide it.

Return ONLY a JSON object:
{"sections": [{"title": "<verbatim heading>", "start_page": <page number>}, ...]}

Rules:
- Propose at least two child sections.
- "start_page" must be one of the <page_N> tags, within the given range, in strictly increasing order.
- Use headings that actually appear in the text; do not invent titles.
- Return {"sections": []} if the section has no internal structure.`

const accuracyPrompt = `You are given the text of a document section and a proposed list of child sections subdividing it. Judge how faithfully the proposed children cover the section's actual content and structure.

Return ONLY a JSON object:
{"accuracy": <float between 0.0 and 1.0>}

Score 1.0 when every proposed child matches a real heading at the right page and nothing substantial is missed; score low when titles are invented, pages are wrong, or major content is uncovered.`

const summaryPrompt = `Write a single-paragraph summary of the following document section. State what the section covers and its key facts and figures. Do not add commentary or preamble; respond with the summary paragraph only.`

const descriptionPrompt = `Write a short description (2-3 sentences) of a document based on the ordered summaries of its top-level sections below. Respond with the description only.`

// taggedPages renders pages [start, end] wrapped in <page_N> markers so the
// model can reference physical page numbers. Each page is clipped to
// maxTokensPerPage tokens when positive.
func (b *Builder) taggedPages(pages []string, start, end, maxTokensPerPage int) string {
	var sb strings.Builder
	for i := start; i <= end && i <= len(pages); i++ {
		text := pages[i-1]
		if maxTokensPerPage > 0 {
			toks := b.tok.Encode(text)
			if len(toks) > maxTokensPerPage {
				text = b.tok.Decode(toks[:maxTokensPerPage])
			}
		}
		fmt.Fprintf(&sb, "<page_%d>\n%s\n</page_%d>\n", i, text, i)
	}
	return sb.String()
}

func buildTocDetectPrompt(taggedText string) string {
	var sb strings.Builder
	sb.WriteString(tocDetectPrompt)
	sb.WriteString("\n\n---\n")
	sb.WriteString(taggedText)
	return sb.String()
}

func buildOutlineWindowPrompt(taggedText string) string {
	var sb strings.Builder
	sb.WriteString(outlineWindowPrompt)
	sb.WriteString("\n\n---\n")
	sb.WriteString(taggedText)
	return sb.String()
}

func buildLevelsPrompt(entries []outlineEntry) string {
	var sb strings.Builder
	sb.WriteString(levelsPrompt)
	sb.WriteString("\n\n---\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. %s (page %d)\n", i+1, e.Title, e.StartPage)
	}
	return sb.String()
}

func buildSubdividePrompt(n *Node, taggedText string) string {
	var sb strings.Builder
	sb.WriteString(subdividePrompt)
	sb.WriteString("\n\n---\n")
	fmt.Fprintf(&sb, "Section: %q, pages %d-%d\n---\n", n.Title, n.StartIndex, n.EndIndex)
	sb.WriteString(taggedText)
	return sb.String()
}

func buildAccuracyPrompt(n *Node, children []*Node, taggedText string) string {
	var sb strings.Builder
	sb.WriteString(accuracyPrompt)
	sb.WriteString("\n\n---\nProposed children:\n")
	for _, c := range children {
		fmt.Fprintf(&sb, "- %s (pages %d-%d)\n", c.Title, c.StartIndex, c.EndIndex)
	}
	fmt.Fprintf(&sb, "---\nSection %q, pages %d-%d:\n", n.Title, n.StartIndex, n.EndIndex)
	sb.WriteString(taggedText)
	return sb.String()
}

func buildSummaryPrompt(title, source string) string {
	var sb strings.Builder
	sb.WriteString(summaryPrompt)
	sb.WriteString("\n\n---\n")
	fmt.Fprintf(&sb, "Section: %q\n---\n", title)
	sb.WriteString(source)
	return sb.String()
}

func buildDescriptionPrompt(rootSummaries []string) string {
	var sb strings.Builder
	sb.WriteString(descriptionPrompt)
	sb.WriteString("\n\n---\n")
	for i, s := range rootSummaries {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	return sb.String()
}
