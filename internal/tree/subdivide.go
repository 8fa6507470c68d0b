package tree

import (
	"context"
	"fmt"
	"strings"
)

// subdivideAll walks the forest and recursively subdivides oversized leaves.
// Subdivision never fails the document: any error keeps the node as a flat
// leaf with a logged warning.
func (b *Builder) subdivideAll(ctx context.Context, nodes []*Node, pages []string) {
	for _, n := range nodes {
		if len(n.Nodes) > 0 {
			b.subdivideAll(ctx, n.Nodes, pages)
			continue
		}
		b.maybeSubdivide(ctx, n, pages)
	}
}

func (b *Builder) maybeSubdivide(ctx context.Context, n *Node, pages []string) {
	span := n.EndIndex - n.StartIndex + 1
	if span <= 1 {
		return
	}
	if span <= b.cfg.MaxPagesPerNode &&
		b.tok.Count(PageRangeText(pages, n.StartIndex, n.EndIndex)) <= b.cfg.MaxTokensPerNode {
		return
	}

	children, err := b.proposeChildren(ctx, n, pages)
	if err != nil {
		b.log.Warn("subdivision failed, keeping node as flat leaf",
			"title", n.Title, "pages", fmt.Sprintf("%d-%d", n.StartIndex, n.EndIndex), "error", err)
		return
	}

	score, err := b.checkAccuracy(ctx, n, children, pages)
	if err != nil {
		b.log.Warn("accuracy check failed, keeping node as flat leaf", "title", n.Title, "error", err)
		return
	}
	if score < b.cfg.AccuracyThreshold {
		b.log.Warn("subdivision rejected by accuracy check, keeping node as flat leaf",
			"title", n.Title, "accuracy", score, "threshold", b.cfg.AccuracyThreshold)
		return
	}

	n.Nodes = children
	b.subdivideAll(ctx, children, pages)
}

type subdivideResult struct {
	Sections []struct {
		Title     string `json:"title"`
		StartPage int    `json:"start_page"`
	} `json:"sections"`
}

// proposeChildren asks the LLM for child sections of an oversized node and
// validates the proposal: at least two children, strictly increasing start
// pages inside the parent's range. End pages derive from sibling starts.
func (b *Builder) proposeChildren(ctx context.Context, n *Node, pages []string) ([]*Node, error) {
	prompt := buildSubdividePrompt(n, b.taggedPages(pages, n.StartIndex, n.EndIndex, pageSampleTokens))

	var res subdivideResult
	if err := b.llm.CompleteJSON(ctx, prompt, &res); err != nil {
		return nil, err
	}

	var children []*Node
	last := n.StartIndex - 1
	for _, s := range res.Sections {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			continue
		}
		if s.StartPage <= last || s.StartPage > n.EndIndex {
			continue
		}
		children = append(children, &Node{Title: title, StartIndex: s.StartPage})
		last = s.StartPage
	}
	if len(children) < 2 {
		return nil, fmt.Errorf("proposal yielded %d usable children", len(children))
	}
	// A lone child spanning the whole parent would recurse forever; the
	// two-child minimum above rules that out.
	setEndPages(children, n.EndIndex)
	return children, nil
}

type accuracyResult struct {
	Accuracy float64 `json:"accuracy"`
}

// checkAccuracy scores how faithfully proposed children cover the parent.
// The page-range tiling is guaranteed by construction; the LLM judges titles
// and boundaries against the actual text.
func (b *Builder) checkAccuracy(ctx context.Context, n *Node, children []*Node, pages []string) (float64, error) {
	prompt := buildAccuracyPrompt(n, children, b.taggedPages(pages, n.StartIndex, n.EndIndex, pageSampleTokens))

	var res accuracyResult
	if err := b.llm.CompleteJSON(ctx, prompt, &res); err != nil {
		return 0, err
	}
	if res.Accuracy < 0 || res.Accuracy > 1 {
		return 0, fmt.Errorf("accuracy %v out of range", res.Accuracy)
	}
	return res.Accuracy, nil
}
