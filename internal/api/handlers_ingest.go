package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/pagedex/internal/ingest"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Limit total request size, with slack for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	tmp, err := os.CreateTemp("", "pagedex-upload-*.pdf")
	if err != nil {
		jsonError(w, "failed to buffer upload", http.StatusInternalServerError)
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	tmp.Close()
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if n > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	fiscalYear := 0
	if v := r.FormValue("fiscal_year"); v != "" {
		fiscalYear, err = strconv.Atoi(v)
		if err != nil {
			jsonError(w, "fiscal_year must be an integer", http.StatusUnprocessableEntity)
			return
		}
	}

	req := ingest.Request{
		PDFPath:    tmpPath,
		Filename:   filename,
		Company:    r.FormValue("company"),
		Ticker:     strings.ToUpper(strings.TrimSpace(r.FormValue("ticker"))),
		FiscalYear: fiscalYear,
		DocType:    r.FormValue("doc_type_hint"),
		Force:      r.FormValue("force") == "true",
	}

	res, err := s.ingestor.Ingest(r.Context(), req)
	if err != nil {
		var dup *ingest.DuplicateError
		var invalid *ingest.ValidationError
		switch {
		case errors.As(err, &dup):
			jsonResponse(w, http.StatusConflict, map[string]any{
				"error":  err.Error(),
				"doc_id": dup.DocID,
			})
		case errors.As(err, &invalid):
			jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			jsonResponse(w, http.StatusInternalServerError, map[string]any{
				"error":  err.Error(),
				"doc_id": res.DocID,
				"status": res.Status,
			})
		}
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"doc_id":         res.DocID,
		"status":         res.Status,
		"chunks_created": res.ChunksCreated,
		"node_count":     res.NodeCount,
		"page_count":     res.PageCount,
	})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed.pdf"
	}
	return name
}
