package layer

import "encoding/json"

// UnmarshalJSON decodes the typed fields and keeps every other key in Extra.
func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, documentKeys)
	if err != nil {
		return err
	}
	*d = Document(p)
	d.Extra = extra
	return nil
}

// MarshalJSON encodes the typed fields together with Extra.
func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	return withExtra(plain(d), d.Extra)
}

// UnmarshalJSON decodes the typed fields and keeps every other key in Extra.
func (t *Technique) UnmarshalJSON(data []byte) error {
	type plain Technique
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, techniqueKeys)
	if err != nil {
		return err
	}
	*t = Technique(p)
	t.Extra = extra
	return nil
}

// MarshalJSON encodes the typed fields together with Extra.
func (t Technique) MarshalJSON() ([]byte, error) {
	type plain Technique
	return withExtra(plain(t), t.Extra)
}

// UnmarshalJSON decodes the typed fields and keeps every other key in Extra.
func (l *Layout) UnmarshalJSON(data []byte) error {
	type plain Layout
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, layoutKeys)
	if err != nil {
		return err
	}
	*l = Layout(p)
	l.Extra = extra
	return nil
}

// MarshalJSON encodes the typed fields together with Extra.
func (l Layout) MarshalJSON() ([]byte, error) {
	type plain Layout
	return withExtra(plain(l), l.Extra)
}

// Keys modeled by the typed structs. Anything else lands in Extra.
var (
	documentKeys = keySet("name", "description", "domain", "layout", "techniques", "gradient",
		"legendItems", "sorting", "hideDisabled", "expandSubtechniques", "selectTechniquesAcrossTactics")
	techniqueKeys = keySet("techniqueID", "score", "comment", "enabled", "showSubtechniques", "color")
	layoutKeys    = keySet("layout", "aggregateFunction", "showAggregateScores", "countUnscored", "showID", "showName")
)

func keySet(keys ...string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// unknownFields returns the keys of data that are not in known.
func unknownFields(data []byte, known map[string]bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for key, value := range all {
		if known[key] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[key] = value
	}
	return extra, nil
}

// withExtra marshals typed and adds the Extra keys it does not already set.
func withExtra(typed any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(typed)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return data, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, ok := fields[key]; !ok {
			fields[key] = value
		}
	}
	return json.Marshal(fields)
}
