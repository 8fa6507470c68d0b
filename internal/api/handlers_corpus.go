package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/pagedex/internal/store"
)

func (s *Server) handleCorpus(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	deleted, err := s.store.Delete(r.Context(), docID)
	if err != nil {
		jsonError(w, "delete failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		jsonError(w, "document not found: "+docID, http.StatusNotFound)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"deleted": docID})
}
