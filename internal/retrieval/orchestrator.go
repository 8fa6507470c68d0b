package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/pagedex/internal/config"
	"github.com/dgallion1/pagedex/internal/embed"
	"github.com/dgallion1/pagedex/internal/llm"
	"github.com/dgallion1/pagedex/internal/store"
	"github.com/dgallion1/pagedex/internal/token"
	"github.com/dgallion1/pagedex/internal/tree"
)

// Orchestrator runs the query pipeline: decompose → select documents → per
// document hybrid search → merge → pack context → generate answer.
type Orchestrator struct {
	store    *store.Store
	llm      llm.Completer
	embedder embed.Embedder
	tok      token.Counter
	cfg      config.Config
	log      *slog.Logger
}

func NewOrchestrator(st *store.Store, completer llm.Completer, embedder embed.Embedder,
	tok token.Counter, cfg config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    st,
		llm:      completer,
		embedder: embedder,
		tok:      tok,
		cfg:      cfg,
		log:      log,
	}
}

// pair is one (sub-question, document) search unit. Pairs keep their launch
// order so the global merge follows (sub-question order, document order)
// regardless of completion order.
type pair struct {
	subIdx int
	data   *docData
}

// Query answers a natural-language question over the corpus. Per-document
// retrieval failures degrade the answer rather than failing it; only answer
// generation itself is fatal.
func (o *Orchestrator) Query(ctx context.Context, query string, companies []string, years []int) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	subs := o.decompose(ctx, query)
	o.log.Info("decomposed query", "sub_questions", len(subs))

	allDocs, err := o.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	var failureNotes []string

	// Build the ordered pair list, loading each document's shared data once.
	loaded := make(map[string]*docData)
	var pairs []pair
	subHasDocs := make([]bool, len(subs))
	for si, sub := range subs {
		for _, d := range selectDocuments(allDocs, sub, companies, years) {
			dd, ok := loaded[d.ID]
			if !ok {
				dd, err = o.loadDoc(ctx, d)
				if err != nil {
					o.log.Warn("failed to load document for retrieval", "doc_id", d.ID, "error", err)
					failureNotes = append(failureNotes,
						fmt.Sprintf("retrieval unavailable for %s %d (%s)", d.Ticker, d.FiscalYear, d.DocType))
					loaded[d.ID] = nil
					continue
				}
				loaded[d.ID] = dd
			}
			if dd == nil {
				continue
			}
			subHasDocs[si] = true
			pairs = append(pairs, pair{subIdx: si, data: dd})
		}
	}

	// Embed each sub-question once; its vector is shared across documents.
	subVecs := make([][]float32, len(subs))
	for i, sub := range subs {
		vecs, err := o.embedder.EmbedBatch(ctx, []string{sub.Question})
		if err != nil {
			o.log.Warn("sub-question embedding failed, value search disabled for it",
				"sub_question", sub.Question, "error", err)
			continue
		}
		if len(vecs) == 1 {
			subVecs[i] = vecs[0]
		}
	}

	pairLists := o.searchPairs(ctx, subs, pairs, subVecs, &failureNotes)

	refs := mergeGlobal(pairLists)
	docsByID := make(map[string]*docData)
	for id, dd := range loaded {
		if dd != nil {
			docsByID[id] = dd
		}
	}
	blocks := packContext(refs, docsByID, o.cfg.ContextBudgetTokens, o.tok)
	o.log.Info("packed context", "candidate_nodes", len(refs), "blocks", len(blocks))

	if len(blocks) == 0 {
		unanswerable := make([]string, 0, len(subs))
		for _, s := range subs {
			unanswerable = append(unanswerable, s.Question)
		}
		return &Answer{
			Answer:                   "Insufficient context: no relevant sections were retrieved for this query.",
			Confidence:               labelConfidence(len(subs), 0, 0),
			ResolvedCitations:        []Citation{},
			UnanswerableSubQuestions: append(unanswerable, failureNotes...),
			ConflictsDetected:        []string{},
		}, nil
	}

	prose, meta, err := o.generateAnswer(ctx, query, subs, blocks)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	resolved := o.resolveCitations(meta, docsByID)

	answered := make(map[int]bool)
	for _, idx := range meta.AnsweredSubQuestions {
		if idx >= 1 && idx <= len(subs) {
			answered[idx-1] = true
		}
	}
	// A sub-question with no searchable documents cannot count as answered.
	for i := range subs {
		if !subHasDocs[i] {
			delete(answered, i)
		}
	}

	distinct := make(map[nodeRef]bool)
	for _, mc := range meta.Citations {
		if dd, ok := docsByID[mc.DocID]; ok {
			if _, ok := dd.nodeMap[mc.NodeID]; ok {
				distinct[nodeRef{DocID: mc.DocID, NodeID: mc.NodeID}] = true
			}
		}
	}

	var unanswerable []string
	for i, s := range subs {
		if !answered[i] {
			unanswerable = append(unanswerable, s.Question)
		}
	}
	unanswerable = append(unanswerable, failureNotes...)
	if unanswerable == nil {
		unanswerable = []string{}
	}
	conflicts := meta.ConflictsDetected
	if conflicts == nil {
		conflicts = []string{}
	}
	if resolved == nil {
		resolved = []Citation{}
	}

	return &Answer{
		Answer:                   prose,
		Confidence:               labelConfidence(len(subs), len(answered), len(distinct)),
		ResolvedCitations:        resolved,
		UnanswerableSubQuestions: unanswerable,
		ConflictsDetected:        conflicts,
	}, nil
}

// searchPairs fans out hybrid search over all (sub-question, document)
// pairs. Value and LLM search run concurrently within each pair; a
// concurrency cap bounds outstanding work. Results land in launch order.
func (o *Orchestrator) searchPairs(ctx context.Context, subs []SubQuestion, pairs []pair,
	subVecs [][]float32, failureNotes *[]string) [][]nodeRef {

	pairLists := make([][]nodeRef, len(pairs))
	pairErrs := make([]error, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, o.cfg.RetrievalConcurrency)

	for i, p := range pairs {
		// Once cancellation is observed, launch nothing further.
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			if gctx.Err() != nil {
				return nil
			}

			question := subs[p.subIdx].Question
			var llmIDs, valueIDs []string
			var llmErr error

			inner, ictx := errgroup.WithContext(gctx)
			inner.Go(func() error {
				llmIDs, llmErr = o.llmSearch(ictx, question, p.data.treeNoText, p.data.nodeMap)
				return nil
			})
			inner.Go(func() error {
				if subVecs[p.subIdx] != nil {
					valueIDs = valueSearch(subVecs[p.subIdx], p.data.vectors, p.data.nodeMap, o.cfg.ValueSearchTopK)
				}
				return nil
			})
			inner.Wait()

			if llmErr != nil && len(valueIDs) == 0 {
				pairErrs[i] = llmErr
				return nil
			}
			if llmErr != nil {
				o.log.Warn("llm tree search failed, using value search alone",
					"doc_id", p.data.doc.ID, "error", llmErr)
			}

			merged := mergePair(llmIDs, valueIDs)
			refs := make([]nodeRef, len(merged))
			for j, id := range merged {
				refs[j] = nodeRef{DocID: p.data.doc.ID, NodeID: id}
			}
			pairLists[i] = refs
			return nil
		})
	}
	g.Wait()

	for i, err := range pairErrs {
		if err != nil {
			d := pairs[i].data.doc
			o.log.Warn("hybrid search failed for pair", "doc_id", d.ID, "error", err)
			*failureNotes = append(*failureNotes,
				fmt.Sprintf("retrieval failed for %s %d (%s)", d.Ticker, d.FiscalYear, d.DocType))
		}
	}
	return pairLists
}

// loadDoc reads the per-document retrieval data: node map, stripped tree,
// topology, and the chunk-embedding matrix. All of it is immutable after
// ingest and shared across concurrent searches.
func (o *Orchestrator) loadDoc(ctx context.Context, d store.Document) (*docData, error) {
	nodeMap, err := o.store.LoadNodeMap(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	noText, err := o.store.LoadTreeNoText(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	var topology []*tree.Node
	if err := json.Unmarshal(noText, &topology); err != nil {
		return nil, fmt.Errorf("decode tree topology: %w", err)
	}
	vectors, err := o.store.ChunkVectors(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return &docData{
		doc:        d,
		nodeMap:    nodeMap,
		treeNoText: noText,
		topology:   topology,
		vectors:    vectors,
	}, nil
}
