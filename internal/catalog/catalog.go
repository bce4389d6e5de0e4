// Package catalog knows which ATT&CK groups and software exist and in which
// domains their layers are published.
package catalog

import (
	"fmt"
	"strings"
)

// Entry kinds, matching the path segment used by the ATT&CK website.
const (
	KindGroups   = "groups"
	KindSoftware = "software"
)

// DomainAll selects every domain.
const DomainAll = "all"

// Domains lists the ATT&CK domains in canonical order.
var Domains = []string{"enterprise", "mobile", "ics"}

// Entry is one group or software known to ATT&CK.
type Entry struct {
	ID      string   `json:"id" yaml:"id"`
	Kind    string   `json:"kind" yaml:"kind"`
	Name    string   `json:"name" yaml:"name"`
	Domains []string `json:"domains" yaml:"domains"`
}

// KindOf derives the entry kind from an ATT&CK identifier prefix.
func KindOf(id string) (string, error) {
	switch {
	case strings.HasPrefix(id, "G"):
		return KindGroups, nil
	case strings.HasPrefix(id, "S"):
		return KindSoftware, nil
	default:
		return "", fmt.Errorf("the id %s has not been recognized", id)
	}
}

// ValidDomain reports whether d is a known domain.
func ValidDomain(d string) bool {
	return domainRank(d) >= 0
}

// ParseDomains expands a domain selector ("all" or one domain name).
func ParseDomains(selector string) ([]string, error) {
	if selector == "" || selector == DomainAll {
		return append([]string(nil), Domains...), nil
	}
	if !ValidDomain(selector) {
		return nil, fmt.Errorf("the domain %s has not been recognized: must be one of: all, %s",
			selector, strings.Join(Domains, ", "))
	}
	return []string{selector}, nil
}

func domainRank(d string) int {
	for i, known := range Domains {
		if known == d {
			return i
		}
	}
	return -1
}
