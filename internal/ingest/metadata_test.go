package ingest

import "testing"

func TestParseFilename(t *testing.T) {
	cases := []struct {
		filename string
		want     *ParsedMetadata
	}{
		{"INFY_20F_2022.pdf", &ParsedMetadata{Ticker: "INFY", DocType: "20-F", FiscalYear: 2022}},
		{"aapl_10k_2023.pdf", &ParsedMetadata{Ticker: "AAPL", DocType: "10-K", FiscalYear: 2023}},
		{"TSM_20-F_2021.pdf", &ParsedMetadata{Ticker: "TSM", DocType: "20-F", FiscalYear: 2021}},
		{"WIT_ANNUAL_2020.pdf", &ParsedMetadata{Ticker: "WIT", DocType: "ANNUAL", FiscalYear: 2020}},
		{"/uploads/INFY_20F_2022.pdf", &ParsedMetadata{Ticker: "INFY", DocType: "20-F", FiscalYear: 2022}},
		{"annual-report-2022.pdf", nil},
		{"INFY_20F_22.pdf", nil},
		{"INFY_20F_2022.docx", nil},
		{"", nil},
	}

	for _, c := range cases {
		got := ParseFilename(c.filename)
		if c.want == nil {
			if got != nil {
				t.Errorf("%q: expected no match, got %+v", c.filename, got)
			}
			continue
		}
		if got == nil {
			t.Errorf("%q: expected %+v, got nil", c.filename, c.want)
			continue
		}
		if *got != *c.want {
			t.Errorf("%q: expected %+v, got %+v", c.filename, c.want, got)
		}
	}
}
