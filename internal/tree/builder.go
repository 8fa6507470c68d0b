package tree

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgallion1/pagedex/internal/config"
	"github.com/dgallion1/pagedex/internal/llm"
	"github.com/dgallion1/pagedex/internal/token"
)

// Token budgets for builder prompts. Outline windows slide over the document;
// page samples clip what subdivision and accuracy prompts see of each page.
const (
	outlineWindowTokens = 12000
	pageSampleTokens    = 600
)

// Builder turns per-page text into a validated Node forest.
type Builder struct {
	llm llm.Completer
	tok token.Counter
	cfg config.Config
	log *slog.Logger
}

func NewBuilder(completer llm.Completer, tok token.Counter, cfg config.Config, log *slog.Logger) *Builder {
	return &Builder{llm: completer, tok: tok, cfg: cfg, log: log}
}

// outlineEntry is a flat (title, start page) pair before hierarchy lifting.
type outlineEntry struct {
	Title     string
	StartPage int
}

// Build runs the full pipeline: outline → hierarchy → end-page derivation →
// recursive subdivision → ID assignment → validation. Outlining and
// hierarchy failures are fatal for the document; subdivision failures
// degrade to flat leaves.
func (b *Builder) Build(ctx context.Context, pages []string) ([]*Node, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	outline, err := b.outline(ctx, pages)
	if err != nil {
		return nil, fmt.Errorf("outline document: %w", err)
	}
	if len(outline) == 0 {
		return nil, fmt.Errorf("no sections detected in document")
	}

	roots, err := b.buildHierarchy(ctx, outline, len(pages))
	if err != nil {
		return nil, fmt.Errorf("build hierarchy: %w", err)
	}

	b.subdivideAll(ctx, roots, pages)

	AssignIDs(roots)
	if err := Validate(roots, len(pages)); err != nil {
		return nil, fmt.Errorf("validate tree: %w", err)
	}
	return roots, nil
}

// outline produces the ordered flat outline, preferring a verified table of
// contents and falling back to windowed LLM outlining.
func (b *Builder) outline(ctx context.Context, pages []string) ([]outlineEntry, error) {
	toc := b.detectTOC(ctx, pages)
	if len(toc) > 0 {
		verified := b.verifyTOC(toc, pages)
		// Require at least half of the declared entries to check out.
		if len(verified) > 0 && 2*len(verified) >= len(toc) {
			b.log.Info("using table of contents", "declared", len(toc), "verified", len(verified))
			return dedupeOutline(verified), nil
		}
		b.log.Warn("table of contents failed verification, outlining instead",
			"declared", len(toc), "verified", len(verified))
	}
	return b.windowOutline(ctx, pages)
}

type tocResult struct {
	HasTOC  bool `json:"has_toc"`
	Entries []struct {
		Title string `json:"title"`
		Page  int    `json:"page"`
	} `json:"entries"`
}

// detectTOC scans the first TocCheckPages pages for a table of contents.
// Shape failures degrade to "no ToC"; windowed outlining still runs.
func (b *Builder) detectTOC(ctx context.Context, pages []string) []outlineEntry {
	end := b.cfg.TocCheckPages
	if end > len(pages) {
		end = len(pages)
	}
	prompt := buildTocDetectPrompt(b.taggedPages(pages, 1, end, pageSampleTokens))

	var res tocResult
	if err := b.llm.CompleteJSON(ctx, prompt, &res); err != nil {
		b.log.Warn("toc detection failed", "error", err)
		return nil
	}
	if !res.HasTOC {
		return nil
	}
	entries := make([]outlineEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		title := strings.TrimSpace(e.Title)
		if title == "" || e.Page < 1 || e.Page > len(pages) {
			continue
		}
		entries = append(entries, outlineEntry{Title: title, StartPage: e.Page})
	}
	return entries
}

// verifyTOC cross-checks each entry's declared page against the document
// text: the title must appear, case- and whitespace-insensitively, within
// ±TocMatchWindow pages of the declared page. Failures are discarded.
func (b *Builder) verifyTOC(entries []outlineEntry, pages []string) []outlineEntry {
	var verified []outlineEntry
	for _, e := range entries {
		if b.titleNearPage(e.Title, e.StartPage, pages) {
			verified = append(verified, e)
		} else {
			b.log.Warn("toc entry failed verification", "title", e.Title, "page", e.StartPage)
		}
	}
	return verified
}

func (b *Builder) titleNearPage(title string, page int, pages []string) bool {
	needle := normalizeTitle(title)
	if needle == "" {
		return false
	}
	lo := page - b.cfg.TocMatchWindow
	hi := page + b.cfg.TocMatchWindow
	if lo < 1 {
		lo = 1
	}
	if hi > len(pages) {
		hi = len(pages)
	}
	for i := lo; i <= hi; i++ {
		if strings.Contains(normalizeTitle(pages[i-1]), needle) {
			return true
		}
	}
	return false
}

// normalizeTitle lowercases and collapses all whitespace runs to single
// spaces so line breaks and watermark spacing cannot defeat the match.
func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type outlineWindowResult struct {
	Sections []struct {
		Title     string `json:"title"`
		StartPage int    `json:"start_page"`
	} `json:"sections"`
}

// windowOutline slides a token-bounded window over the document, asking the
// LLM for section starts in each window. A failure here is critical: without
// an outline there is no tree.
func (b *Builder) windowOutline(ctx context.Context, pages []string) ([]outlineEntry, error) {
	var all []outlineEntry

	start := 1
	for start <= len(pages) {
		end := start
		budget := outlineWindowTokens
		for end <= len(pages) {
			cost := b.tok.Count(pages[end-1])
			if cost > budget && end > start {
				break
			}
			budget -= cost
			end++
		}
		windowEnd := end - 1

		prompt := buildOutlineWindowPrompt(b.taggedPages(pages, start, windowEnd, 0))
		var res outlineWindowResult
		if err := b.llm.CompleteJSON(ctx, prompt, &res); err != nil {
			return nil, fmt.Errorf("outline window [%d, %d]: %w", start, windowEnd, err)
		}
		for _, s := range res.Sections {
			title := strings.TrimSpace(s.Title)
			if title == "" || s.StartPage < start || s.StartPage > windowEnd {
				continue
			}
			all = append(all, outlineEntry{Title: title, StartPage: s.StartPage})
		}

		if windowEnd >= len(pages) {
			break
		}
		// Overlap one page so a heading split across windows is not lost. A
		// single-page window cannot overlap or it would never advance.
		if windowEnd > start {
			start = windowEnd
		} else {
			start = windowEnd + 1
		}
	}

	return dedupeOutline(all), nil
}

// dedupeOutline orders entries by page and resolves overlaps by preferring
// the earlier-declared start: entries not advancing past the last accepted
// page are dropped.
func dedupeOutline(entries []outlineEntry) []outlineEntry {
	sorted := make([]outlineEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartPage < sorted[j].StartPage })

	var out []outlineEntry
	last := 0
	for _, e := range sorted {
		if e.StartPage <= last {
			continue
		}
		out = append(out, e)
		last = e.StartPage
	}
	return out
}

type levelsResult struct {
	Levels []int `json:"levels"`
}

// buildHierarchy lifts the flat outline into a forest via LLM-assigned
// levels, then derives end pages from sibling starts and parent bounds.
func (b *Builder) buildHierarchy(ctx context.Context, outline []outlineEntry, pageCount int) ([]*Node, error) {
	levels := make([]int, len(outline))
	if len(outline) == 1 {
		levels[0] = 1
	} else {
		var res levelsResult
		if err := b.llm.CompleteJSON(ctx, buildLevelsPrompt(outline), &res); err != nil {
			return nil, err
		}
		if len(res.Levels) != len(outline) {
			return nil, fmt.Errorf("level count %d does not match outline size %d", len(res.Levels), len(outline))
		}
		copy(levels, res.Levels)
	}

	// Clamp levels: the first entry anchors level 1, and an entry can nest
	// at most one step deeper than its predecessor.
	levels[0] = 1
	for i := 1; i < len(levels); i++ {
		if levels[i] < 1 {
			levels[i] = 1
		}
		if levels[i] > levels[i-1]+1 {
			levels[i] = levels[i-1] + 1
		}
	}

	type frame struct {
		node  *Node
		level int
	}
	var roots []*Node
	var stack []frame
	for i, e := range outline {
		n := &Node{Title: e.Title, StartIndex: e.StartPage}
		for len(stack) > 0 && stack[len(stack)-1].level >= levels[i] {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, n)
		} else {
			parent := stack[len(stack)-1].node
			parent.Nodes = append(parent.Nodes, n)
		}
		stack = append(stack, frame{node: n, level: levels[i]})
	}

	setEndPages(roots, pageCount)
	return roots, nil
}

// setEndPages derives each node's end page from the next sibling's start (or
// the parent's end for the last sibling), top-down.
func setEndPages(siblings []*Node, parentEnd int) {
	for i, n := range siblings {
		if i+1 < len(siblings) {
			n.EndIndex = siblings[i+1].StartIndex - 1
		} else {
			n.EndIndex = parentEnd
		}
		setEndPages(n.Nodes, n.EndIndex)
	}
}
