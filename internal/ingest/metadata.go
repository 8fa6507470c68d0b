package ingest

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ParsedMetadata is document metadata recovered from a filename.
type ParsedMetadata struct {
	Ticker     string
	DocType    string
	FiscalYear int
}

// Filenames like INFY_20F_2022.pdf carry ticker, doc type, and fiscal year.
var filenameRe = regexp.MustCompile(`(?i)^([A-Za-z0-9]+)_([A-Za-z0-9-]+)_(\d{4})\.pdf$`)

// Short doc-type tokens map to normalised forms.
var docTypeMap = map[string]string{
	"20f":  "20-F",
	"20-f": "20-F",
	"10k":  "10-K",
	"10-k": "10-K",
}

// ParseFilename extracts metadata from a filename like INFY_20F_2022.pdf.
// Returns nil when the filename does not match the expected pattern.
func ParseFilename(filename string) *ParsedMetadata {
	m := filenameRe.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return nil
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return nil
	}
	docType := m[2]
	if normalized, ok := docTypeMap[strings.ToLower(docType)]; ok {
		docType = normalized
	}
	return &ParsedMetadata{
		Ticker:     strings.ToUpper(m[1]),
		DocType:    docType,
		FiscalYear: year,
	}
}
