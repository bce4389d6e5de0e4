package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type stixBundle struct {
	Objects []stixObject `json:"objects"`
}

type stixObject struct {
	Type               string              `json:"type"`
	Name               string              `json:"name"`
	Revoked            bool                `json:"revoked"`
	Deprecated         bool                `json:"x_mitre_deprecated"`
	Domains            []string            `json:"x_mitre_domains"`
	ExternalReferences []externalReference `json:"external_references"`
}

type externalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
}

// STIX object types describing groups and software.
var stixKinds = map[string]string{
	"intrusion-set": KindGroups,
	"malware":       KindSoftware,
	"tool":          KindSoftware,
}

// ParseBundle extracts the groups and software of a STIX 2 bundle. Revoked
// and deprecated objects are left out, as are objects without a mitre-attack
// external reference. Entries are sorted by ID.
func ParseBundle(data []byte) ([]Entry, error) {
	var bundle stixBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode STIX bundle: %w", err)
	}

	var entries []Entry
	for _, obj := range bundle.Objects {
		kind, ok := stixKinds[obj.Type]
		if !ok || obj.Revoked || obj.Deprecated {
			continue
		}
		id := attackID(obj.ExternalReferences)
		if id == "" {
			continue
		}
		entries = append(entries, Entry{
			ID:      id,
			Kind:    kind,
			Name:    obj.Name,
			Domains: stixDomains(obj.Domains),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func attackID(refs []externalReference) string {
	for _, ref := range refs {
		if ref.SourceName == "mitre-attack" {
			return ref.ExternalID
		}
	}
	return ""
}

// stixDomains turns "enterprise-attack" style names into known domains.
func stixDomains(raw []string) []string {
	var domains []string
	for _, d := range raw {
		d = strings.TrimSuffix(d, "-attack")
		if ValidDomain(d) {
			domains = append(domains, d)
		}
	}
	return sortDomains(domains)
}

func sortDomains(domains []string) []string {
	sort.SliceStable(domains, func(i, j int) bool {
		return domainRank(domains[i]) < domainRank(domains[j])
	})
	return domains
}
