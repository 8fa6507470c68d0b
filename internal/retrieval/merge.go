package retrieval

// mergePair orders one (sub-question, document) result: LLM-search node IDs
// first in their returned order, then value-search IDs in score order,
// skipping IDs already present. Ordering is fixed by these semantics, not by
// which search finished first.
func mergePair(llmIDs, valueIDs []string) []string {
	out := make([]string, 0, len(llmIDs)+len(valueIDs))
	seen := make(map[string]bool, len(llmIDs)+len(valueIDs))
	for _, id := range llmIDs {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range valueIDs {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// mergeGlobal concatenates per-pair lists in (sub-question order, document
// order), deduplicating across the whole query by (doc, node).
func mergeGlobal(pairLists [][]nodeRef) []nodeRef {
	var out []nodeRef
	seen := make(map[nodeRef]bool)
	for _, list := range pairLists {
		for _, ref := range list {
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
	}
	return out
}
