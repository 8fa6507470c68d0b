package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/pagedex/internal/retrieval"
)

type queryRequest struct {
	Query     string   `json:"query"`
	Companies []string `json:"companies,omitempty"`
	Years     []int    `json:"years,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := s.retriever.Query(r.Context(), req.Query, req.Companies, req.Years)
	if err != nil {
		if errors.Is(err, retrieval.ErrEmptyQuery) {
			jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		s.log.Error("query failed", "error", err)
		jsonError(w, "query failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, http.StatusOK, answer)
}
