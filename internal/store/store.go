// Package store persists documents, trees, and chunks in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/dgallion1/pagedex/internal/tree"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id               TEXT PRIMARY KEY,
    company          TEXT NOT NULL,
    ticker           TEXT NOT NULL,
    fiscal_year      INTEGER NOT NULL,
    doc_type         TEXT NOT NULL DEFAULT '20-F',
    filename         TEXT NOT NULL,
    page_count       INTEGER,
    total_tokens     INTEGER,
    node_count       INTEGER DEFAULT 0,
    chunk_count      INTEGER DEFAULT 0,
    status           TEXT NOT NULL DEFAULT 'processing',
    error_message    TEXT,
    ingest_timestamp TEXT NOT NULL,
    UNIQUE(ticker, fiscal_year, doc_type)
);

CREATE TABLE IF NOT EXISTS trees (
    doc_id        TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    tree_json     TEXT NOT NULL,
    tree_no_text  TEXT NOT NULL,
    node_map_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    doc_id      TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    node_id     TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    content     TEXT NOT NULL,
    token_count INTEGER NOT NULL,
    start_page  INTEGER,
    end_page    INTEGER,
    embedding   BLOB NOT NULL,
    UNIQUE(doc_id, node_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);
CREATE INDEX IF NOT EXISTS idx_chunks_node ON chunks(doc_id, node_id);
`

// Document statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document is a row in the documents table.
type Document struct {
	ID              string `json:"id"`
	Company         string `json:"company"`
	Ticker          string `json:"ticker"`
	FiscalYear      int    `json:"fiscal_year"`
	DocType         string `json:"doc_type"`
	Filename        string `json:"filename"`
	PageCount       int    `json:"page_count"`
	TotalTokens     int    `json:"total_tokens"`
	NodeCount       int    `json:"node_count"`
	ChunkCount      int    `json:"chunk_count"`
	Status          string `json:"status"`
	ErrorMessage    string `json:"error_message,omitempty"`
	IngestTimestamp string `json:"ingest_timestamp"`
}

// Chunk is an embedding-ready fragment of a node's text.
type Chunk struct {
	NodeID     string
	ChunkIndex int
	Content    string
	TokenCount int
	StartPage  int
	EndPage    int
	Embedding  []float32
}

// ChunkVector pairs a chunk's identity with its decoded embedding, loaded
// in bulk for value search.
type ChunkVector struct {
	NodeID     string
	ChunkIndex int
	Content    string
	Embedding  []float32
}

// TreeArtifacts are the derived structures written at ingest end.
type TreeArtifacts struct {
	TreeJSON    []byte
	TreeNoText  []byte
	NodeMapJSON []byte
}

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	dim int
}

// Open creates or opens the database at path and applies the schema. A
// single connection keeps the pragmas in force and serializes writes.
func Open(path string, dim int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, dim: dim}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// InsertProcessing creates the document row with status=processing.
func (s *Store) InsertProcessing(ctx context.Context, d Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, company, ticker, fiscal_year, doc_type, filename, status, ingest_timestamp)
		 VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.Company, d.Ticker, d.FiscalYear, d.DocType, d.Filename, StatusProcessing, d.IngestTimestamp)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// FindByKey returns the document for (ticker, fiscal_year, doc_type), or nil
// when none exists.
func (s *Store) FindByKey(ctx context.Context, ticker string, fiscalYear int, docType string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		selectDocument+` WHERE ticker=? AND fiscal_year=? AND doc_type=?`,
		ticker, fiscalYear, docType)
	return scanDocument(row)
}

// GetDocument returns a document by ID, or nil when absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, selectDocument+` WHERE id=?`, id)
	return scanDocument(row)
}

const selectDocument = `SELECT id, company, ticker, fiscal_year, doc_type, filename,
	COALESCE(page_count, 0), COALESCE(total_tokens, 0), node_count, chunk_count,
	status, COALESCE(error_message, ''), ingest_timestamp
	FROM documents`

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Company, &d.Ticker, &d.FiscalYear, &d.DocType, &d.Filename,
		&d.PageCount, &d.TotalTokens, &d.NodeCount, &d.ChunkCount,
		&d.Status, &d.ErrorMessage, &d.IngestTimestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &d, nil
}

// ListDocuments returns all documents ordered by ticker and fiscal year.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, selectDocument+` ORDER BY ticker, fiscal_year, doc_type`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Company, &d.Ticker, &d.FiscalYear, &d.DocType, &d.Filename,
			&d.PageCount, &d.TotalTokens, &d.NodeCount, &d.ChunkCount,
			&d.Status, &d.ErrorMessage, &d.IngestTimestamp); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CountDocuments returns the number of document rows.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// Delete removes a document; trees and chunks cascade. Returns whether a row
// was deleted.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed sets status=failed with an error message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status=?, error_message=? WHERE id=?`,
		StatusFailed, message, id)
	return err
}

// Finalize writes the tree artifacts, all chunks, and the completed document
// counters in a single transaction, so no partial document is ever visible.
func (s *Store) Finalize(ctx context.Context, docID string, art TreeArtifacts, chunks []Chunk, pageCount, totalTokens, nodeCount int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trees (doc_id, tree_json, tree_no_text, node_map_json) VALUES (?,?,?,?)`,
		docID, string(art.TreeJSON), string(art.TreeNoText), string(art.NodeMapJSON)); err != nil {
		return fmt.Errorf("insert tree: %w", err)
	}

	for _, c := range chunks {
		if len(c.Embedding) != s.dim {
			return fmt.Errorf("chunk %s/%d: embedding has dim %d, store expects %d",
				c.NodeID, c.ChunkIndex, len(c.Embedding), s.dim)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (doc_id, node_id, chunk_index, content, token_count, start_page, end_page, embedding)
			 VALUES (?,?,?,?,?,?,?,?)`,
			docID, c.NodeID, c.ChunkIndex, c.Content, c.TokenCount, c.StartPage, c.EndPage,
			EncodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %s/%d: %w", c.NodeID, c.ChunkIndex, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET page_count=?, total_tokens=?, node_count=?, chunk_count=?, status=?, error_message=NULL
		 WHERE id=?`,
		pageCount, totalTokens, nodeCount, len(chunks), StatusCompleted, docID); err != nil {
		return fmt.Errorf("finalize document: %w", err)
	}

	return tx.Commit()
}

// LoadTreeNoText returns the stripped tree JSON for retrieval prompts.
func (s *Store) LoadTreeNoText(ctx context.Context, docID string) (json.RawMessage, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT tree_no_text FROM trees WHERE doc_id=?`, docID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no tree for document %s", docID)
	}
	if err != nil {
		return nil, fmt.Errorf("load tree_no_text: %w", err)
	}
	return json.RawMessage(raw), nil
}

// LoadNodeMap returns the node_id → node map for a document.
func (s *Store) LoadNodeMap(ctx context.Context, docID string) (map[string]*tree.Node, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT node_map_json FROM trees WHERE doc_id=?`, docID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no tree for document %s", docID)
	}
	if err != nil {
		return nil, fmt.Errorf("load node_map: %w", err)
	}
	var m map[string]*tree.Node
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode node_map: %w", err)
	}
	return m, nil
}

// LoadTree returns the full tree for a document.
func (s *Store) LoadTree(ctx context.Context, docID string) ([]*tree.Node, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT tree_json FROM trees WHERE doc_id=?`, docID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no tree for document %s", docID)
	}
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	var roots []*tree.Node
	if err := json.Unmarshal([]byte(raw), &roots); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return roots, nil
}

// ChunkVectors loads every chunk embedding for a document, decoded into
// memory for value search.
func (s *Store) ChunkVectors(ctx context.Context, docID string) ([]ChunkVector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, chunk_index, content, embedding FROM chunks WHERE doc_id=? ORDER BY node_id, chunk_index`,
		docID)
	if err != nil {
		return nil, fmt.Errorf("load chunk vectors: %w", err)
	}
	defer rows.Close()

	var out []ChunkVector
	for rows.Next() {
		var cv ChunkVector
		var blob []byte
		if err := rows.Scan(&cv.NodeID, &cv.ChunkIndex, &cv.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk vector: %w", err)
		}
		vec, err := DecodeVector(blob, s.dim)
		if err != nil {
			return nil, fmt.Errorf("chunk %s/%d: %w", cv.NodeID, cv.ChunkIndex, err)
		}
		cv.Embedding = vec
		out = append(out, cv)
	}
	return out, rows.Err()
}

// CountChunks returns the number of chunk rows for a document.
func (s *Store) CountChunks(ctx context.Context, docID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE doc_id=?`, docID).Scan(&n)
	return n, err
}
