package api

import "net/http"

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "adapter stats unavailable", http.StatusServiceUnavailable)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"llm_model":  s.llm.Model(),
		"operations": s.stats.Snapshot(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	docCount, err := s.store.CountDocuments(r.Context())
	storeOK := err == nil
	embeddingOK := s.embedding.Healthy(r.Context())

	status := "ok"
	if !storeOK || !embeddingOK {
		status = "degraded"
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":    status,
		"embedding": embeddingOK,
		"llm":       s.llm != nil && s.llm.Model() != "",
		"documents": docCount,
	})
}
