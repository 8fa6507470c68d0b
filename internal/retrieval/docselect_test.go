package retrieval

import (
	"testing"

	"github.com/dgallion1/pagedex/internal/store"
)

func corpus() []store.Document {
	return []store.Document{
		{ID: "a21", Company: "Apple Inc", Ticker: "AAPL", FiscalYear: 2021, Status: store.StatusCompleted},
		{ID: "a22", Company: "Apple Inc", Ticker: "AAPL", FiscalYear: 2022, Status: store.StatusCompleted},
		{ID: "i22", Company: "Infosys Ltd", Ticker: "INFY", FiscalYear: 2022, Status: store.StatusCompleted},
		{ID: "i23", Company: "Infosys Ltd", Ticker: "INFY", FiscalYear: 2023, Status: store.StatusProcessing},
	}
}

func ids(docs []store.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestSelectDocumentsCompletedOnly(t *testing.T) {
	got := ids(selectDocuments(corpus(), SubQuestion{Question: "q"}, nil, nil))
	want := []string{"a21", "a22", "i22"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSelectDocumentsUserFilters(t *testing.T) {
	got := ids(selectDocuments(corpus(), SubQuestion{Question: "q"}, []string{"AAPL"}, []int{2022}))
	if len(got) != 1 || got[0] != "a22" {
		t.Fatalf("expected [a22], got %v", got)
	}
}

func TestSelectDocumentsCompanyNameFragment(t *testing.T) {
	got := ids(selectDocuments(corpus(), SubQuestion{Question: "q"}, []string{"infosys"}, nil))
	if len(got) != 1 || got[0] != "i22" {
		t.Fatalf("expected [i22], got %v", got)
	}
}

func TestSelectDocumentsSubQuestionNarrows(t *testing.T) {
	sub := SubQuestion{Question: "q", TargetCompany: "AAPL", TargetYear: 2021}
	got := ids(selectDocuments(corpus(), sub, nil, nil))
	if len(got) != 1 || got[0] != "a21" {
		t.Fatalf("expected [a21], got %v", got)
	}
}

func TestSelectDocumentsTargetCannotEscapeUserFilter(t *testing.T) {
	// The user restricted to Infosys; a sub-question targeting Apple finds
	// nothing rather than widening the filter.
	sub := SubQuestion{Question: "q", TargetCompany: "AAPL"}
	got := selectDocuments(corpus(), sub, []string{"INFY"}, nil)
	if len(got) != 0 {
		t.Fatalf("expected no documents, got %v", ids(got))
	}
}
