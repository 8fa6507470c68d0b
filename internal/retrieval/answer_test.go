package retrieval

import (
	"testing"

	"github.com/dgallion1/pagedex/internal/store"
	"github.com/dgallion1/pagedex/internal/tree"
)

func TestLabelConfidence(t *testing.T) {
	cases := []struct {
		name          string
		subs          int
		answered      int
		distinctNodes int
		wantLabel     string
	}{
		{"all answered, broad sources", 4, 4, 5, "HIGH"},
		{"all answered, narrow sources", 2, 2, 2, "MEDIUM"},
		{"majority answered", 4, 3, 5, "MEDIUM"},
		{"half answered", 4, 2, 5, "LOW"},
		{"answered but no sources", 2, 2, 0, "LOW"},
		{"nothing answered", 3, 0, 0, "LOW"},
	}

	for _, c := range cases {
		got := labelConfidence(c.subs, c.answered, c.distinctNodes)
		if got.Label != c.wantLabel {
			t.Errorf("%s: expected %s, got %s", c.name, c.wantLabel, got.Label)
		}
		if got.AnsweredByFacts != c.answered || got.AnsweredByChunks != c.distinctNodes {
			t.Errorf("%s: counters wrong: %+v", c.name, got)
		}
		if got.Unanswered != c.subs-c.answered {
			t.Errorf("%s: expected unanswered=%d, got %d", c.name, c.subs-c.answered, got.Unanswered)
		}
	}
}

func TestLabelConfidenceSeedScenario(t *testing.T) {
	// 4 sub-questions, 5 distinct nodes cited across 3 of them.
	got := labelConfidence(4, 3, 5)
	if got.Label != "MEDIUM" {
		t.Errorf("expected MEDIUM, got %s", got.Label)
	}
	if got.AnsweredByFacts != 3 || got.AnsweredByChunks != 5 || got.Unanswered != 1 {
		t.Errorf("unexpected counters: %+v", got)
	}
}

func TestSplitAnswerMeta(t *testing.T) {
	text := "Revenue grew 8% [Apple Inc, 2022, p42].\n\n```json\n" +
		`{"citations": [{"node_id": "0003", "doc_id": "d1", "page": 42}],
		  "answered_sub_questions": [1],
		  "conflicts_detected": []}` + "\n```"

	prose, meta, ok := splitAnswerMeta(text)
	if !ok {
		t.Fatal("expected parsable metadata block")
	}
	if prose != "Revenue grew 8% [Apple Inc, 2022, p42]." {
		t.Errorf("unexpected prose: %q", prose)
	}
	if len(meta.Citations) != 1 || meta.Citations[0].NodeID != "0003" || meta.Citations[0].Page != 42 {
		t.Errorf("unexpected citations: %+v", meta.Citations)
	}
	if len(meta.AnsweredSubQuestions) != 1 || meta.AnsweredSubQuestions[0] != 1 {
		t.Errorf("unexpected answered list: %v", meta.AnsweredSubQuestions)
	}
}

func TestSplitAnswerMetaMissingBlock(t *testing.T) {
	if _, _, ok := splitAnswerMeta("just prose, no block"); ok {
		t.Fatal("expected failure without a json block")
	}
	if _, _, ok := splitAnswerMeta("prose\n```json\nnot valid json\n```"); ok {
		t.Fatal("expected failure on invalid json")
	}
}

func TestMetaFromInline(t *testing.T) {
	blocks := []contextBlock{
		{Company: "Apple Inc", Ticker: "AAPL", FiscalYear: 2022, DocID: "d1", NodeID: "0003", StartPage: 40, EndPage: 45},
		{Company: "Apple Inc", Ticker: "AAPL", FiscalYear: 2023, DocID: "d2", NodeID: "0001", StartPage: 1, EndPage: 12},
	}
	text := "Revenue grew [Apple Inc, 2022, p42] and again [AAPL, 2023, p3-5]. Repeated: [Apple Inc, 2022, p42]."

	meta := metaFromInline(text, blocks)
	if len(meta.Citations) != 2 {
		t.Fatalf("expected 2 deduped citations, got %d", len(meta.Citations))
	}
	if meta.Citations[0].DocID != "d1" || meta.Citations[0].Page != 42 {
		t.Errorf("first citation wrong: %+v", meta.Citations[0])
	}
	if meta.Citations[1].DocID != "d2" || meta.Citations[1].NodeID != "0001" {
		t.Errorf("second citation wrong: %+v", meta.Citations[1])
	}
}

func TestSectionPath(t *testing.T) {
	roots := []*tree.Node{
		{
			NodeID: "0000", Title: "Financial Statements",
			Nodes: []*tree.Node{
				{NodeID: "0001", Title: "Notes",
					Nodes: []*tree.Node{{NodeID: "0002", Title: "Revenue Recognition"}}},
			},
		},
	}
	if got := sectionPath(roots, "0002"); got != "Financial Statements > Notes > Revenue Recognition" {
		t.Errorf("unexpected path: %q", got)
	}
	if got := sectionPath(roots, "9999"); got != "" {
		t.Errorf("unknown node should yield empty path, got %q", got)
	}
}

func TestResolveCitationsFillsPreviewAndClampsPage(t *testing.T) {
	o := &Orchestrator{log: discardLogger()}
	docs := map[string]*docData{
		"d1": {
			doc: store.Document{ID: "d1", Company: "Apple Inc", Ticker: "AAPL", FiscalYear: 2022},
			nodeMap: map[string]*tree.Node{
				"0003": {NodeID: "0003", Title: "Revenue", StartIndex: 40, EndIndex: 45, Text: "Net sales were $394.3 billion."},
			},
			topology: []*tree.Node{{NodeID: "0003", Title: "Revenue"}},
		},
	}
	meta := answerMeta{Citations: []metaCitation{
		{NodeID: "0003", DocID: "d1", Page: 99}, // out of node range → clamped
		{NodeID: "bogus", DocID: "d1", Page: 1}, // unknown node → dropped
		{NodeID: "0003", DocID: "dX", Page: 1},  // unknown doc → dropped
	}}

	got := o.resolveCitations(meta, docs)
	if len(got) != 1 {
		t.Fatalf("expected 1 resolved citation, got %d", len(got))
	}
	c := got[0]
	if c.Page != 40 {
		t.Errorf("expected page clamped to 40, got %d", c.Page)
	}
	if c.ContentPreview != "Net sales were $394.3 billion." {
		t.Errorf("unexpected preview: %q", c.ContentPreview)
	}
	if c.SectionPath != "Revenue" || c.Ticker != "AAPL" {
		t.Errorf("unexpected citation: %+v", c)
	}
}
