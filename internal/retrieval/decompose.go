package retrieval

import (
	"context"
	"strings"
)

type decomposeResult struct {
	SubQuestions []SubQuestion `json:"sub_questions"`
}

// decompose splits the query into atomic sub-questions. On any failure the
// query itself becomes the single sub-question; decomposition never blocks a
// query.
func (o *Orchestrator) decompose(ctx context.Context, query string) []SubQuestion {
	var res decomposeResult
	if err := o.llm.CompleteJSON(ctx, buildDecomposePrompt(query), &res); err != nil {
		o.log.Warn("query decomposition failed, treating query as atomic", "error", err)
		return []SubQuestion{{Question: query}}
	}

	var subs []SubQuestion
	for _, s := range res.SubQuestions {
		s.Question = strings.TrimSpace(s.Question)
		if s.Question == "" {
			continue
		}
		s.TargetCompany = strings.TrimSpace(s.TargetCompany)
		subs = append(subs, s)
	}
	if len(subs) == 0 {
		return []SubQuestion{{Question: query}}
	}
	return subs
}
