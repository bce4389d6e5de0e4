package catalog

import "strings"

// Select picks the entries whose ID is listed in ids, in catalog order, and
// returns the IDs that matched nothing in the order they were requested.
// Duplicate and blank IDs are ignored.
func Select(entries []Entry, ids []string) (found []Entry, pending []string) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = normalizeID(id); id != "" {
			wanted[id] = true
		}
	}

	matched := make(map[string]bool)
	for _, e := range entries {
		if wanted[e.ID] && !matched[e.ID] {
			matched[e.ID] = true
			found = append(found, e)
		}
	}

	reported := make(map[string]bool)
	for _, id := range ids {
		id = normalizeID(id)
		if id == "" || matched[id] || reported[id] {
			continue
		}
		reported[id] = true
		pending = append(pending, id)
	}
	return found, pending
}

// Restrict keeps the entries of kind that are published in domain and
// narrows their domain list to it. DomainAll keeps every domain.
func Restrict(entries []Entry, kind, domain string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Kind != kind {
			continue
		}
		if domain == "" || domain == DomainAll {
			out = append(out, e)
			continue
		}
		if contains(e.Domains, domain) {
			e.Domains = []string{domain}
			out = append(out, e)
		}
	}
	return out
}

// NarrowDomains limits every entry to the given domains, dropping entries
// left with none.
func NarrowDomains(entries []Entry, domains []string) []Entry {
	var out []Entry
	for _, e := range entries {
		var kept []string
		for _, d := range e.Domains {
			if contains(domains, d) {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			continue
		}
		e.Domains = kept
		out = append(out, e)
	}
	return out
}

// CountByKind tallies entries per kind.
func CountByKind(entries []Entry) map[string]int {
	counts := map[string]int{KindGroups: 0, KindSoftware: 0}
	for _, e := range entries {
		counts[e.Kind]++
	}
	return counts
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
