package merge

import (
	"regexp"

	"github.com/lherron/navmerge/internal/layer"
	"github.com/lherron/navmerge/internal/logging"
)

// attackIDPattern matches an ATT&CK group or software ID such as G0016 or
// (S0154): one uppercase letter and exactly four digits.
var attackIDPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9])\(?([A-Z][0-9]{4})\)?(?:$|[^0-9])`)

// LabelField names a document field the resolver searches.
type LabelField string

const (
	LabelFromName        LabelField = "name"
	LabelFromDescription LabelField = "description"
)

// Resolver derives a short provenance label for a layer.
type Resolver struct {
	fields []LabelField
	log    *logging.Logger
}

// NewResolver creates a Resolver searching fields in order. With no fields
// it searches the name, then the description.
func NewResolver(log *logging.Logger, fields ...LabelField) *Resolver {
	if len(fields) == 0 {
		fields = []LabelField{LabelFromName, LabelFromDescription}
	}
	return &Resolver{fields: fields, log: log}
}

// Resolve returns the first ATT&CK ID found in the configured fields of doc.
// When none is found it warns and returns fallback, usually the file name
// without extension. ok reports whether an ID was found.
func (r *Resolver) Resolve(doc *layer.Document, fallback string) (label string, ok bool) {
	for _, field := range r.fields {
		if id, found := ExtractID(fieldValue(doc, field)); found {
			return id, true
		}
	}
	r.log.Warnf("could not parse the name of %s, the file name will be used instead", fallback)
	return fallback, false
}

// ExtractID returns the first ATT&CK ID in s.
func ExtractID(s string) (string, bool) {
	m := attackIDPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func fieldValue(doc *layer.Document, field LabelField) string {
	switch field {
	case LabelFromName:
		return doc.Name
	case LabelFromDescription:
		return doc.Description
	default:
		return ""
	}
}
