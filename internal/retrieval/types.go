// Package retrieval answers questions over the ingested corpus via hybrid
// embedding + LLM tree search.
package retrieval

import (
	"encoding/json"
	"errors"

	"github.com/dgallion1/pagedex/internal/store"
	"github.com/dgallion1/pagedex/internal/tree"
)

// ErrEmptyQuery reports a blank query string.
var ErrEmptyQuery = errors.New("query must not be empty")

// SubQuestion is one atomic question produced by query decomposition.
type SubQuestion struct {
	Question      string `json:"question"`
	TargetCompany string `json:"target_company,omitempty"`
	TargetYear    int    `json:"target_year,omitempty"`
}

// Confidence is the coarse retrieval-quality assessment of an answer.
type Confidence struct {
	Label            string `json:"label"`
	AnsweredByFacts  int    `json:"answered_by_facts"`
	AnsweredByChunks int    `json:"answered_by_chunks"`
	Unanswered       int    `json:"unanswered"`
}

// Citation points a claim at a source node.
type Citation struct {
	Company        string `json:"company"`
	Ticker         string `json:"ticker"`
	FiscalYear     int    `json:"fiscal_year"`
	NodeID         string `json:"node_id"`
	SectionPath    string `json:"section_path"`
	Page           int    `json:"page"`
	ContentPreview string `json:"content_preview"`
}

// Answer is the full response to one query.
type Answer struct {
	Answer                   string     `json:"answer"`
	Confidence               Confidence `json:"retrieval_confidence"`
	ResolvedCitations        []Citation `json:"resolved_citations"`
	UnanswerableSubQuestions []string   `json:"unanswerable_sub_questions"`
	ConflictsDetected        []string   `json:"conflicts_detected"`
}

// nodeRef identifies a node within a specific document; node IDs alone are
// only unique per document.
type nodeRef struct {
	DocID  string
	NodeID string
}

// docData is everything retrieval needs from one document, loaded once per
// query and shared read-only across concurrent searches.
type docData struct {
	doc        store.Document
	nodeMap    map[string]*tree.Node
	treeNoText json.RawMessage
	topology   []*tree.Node
	vectors    []store.ChunkVector
}

// contextBlock is one whole node packed into the answer prompt.
type contextBlock struct {
	Company    string
	Ticker     string
	FiscalYear int
	DocID      string
	NodeID     string
	Title      string
	StartPage  int
	EndPage    int
	Text       string
}
