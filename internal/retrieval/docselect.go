package retrieval

import (
	"strings"

	"github.com/dgallion1/pagedex/internal/store"
)

// selectDocuments filters the corpus for one sub-question. User-supplied
// companies/years are hard constraints; the sub-question's own targets
// narrow further. Only completed documents are candidates.
func selectDocuments(docs []store.Document, sub SubQuestion, companies []string, years []int) []store.Document {
	var out []store.Document
	for _, d := range docs {
		if d.Status != store.StatusCompleted {
			continue
		}
		if len(companies) > 0 && !matchesAnyCompany(d, companies) {
			continue
		}
		if len(years) > 0 && !containsInt(years, d.FiscalYear) {
			continue
		}
		if sub.TargetCompany != "" && !matchesCompany(d, sub.TargetCompany) {
			continue
		}
		if sub.TargetYear != 0 && d.FiscalYear != sub.TargetYear {
			continue
		}
		out = append(out, d)
	}
	return out
}

func matchesAnyCompany(d store.Document, companies []string) bool {
	for _, c := range companies {
		if matchesCompany(d, c) {
			return true
		}
	}
	return false
}

// matchesCompany accepts either a ticker or a company-name fragment,
// case-insensitively.
func matchesCompany(d store.Document, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	if strings.ToLower(d.Ticker) == name {
		return true
	}
	return strings.Contains(strings.ToLower(d.Company), name)
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
