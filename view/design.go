package view

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DesignDocumentID is the id of the design document holding the view
// definitions.
const DesignDocumentID = DesignPrefix + "todos"

// DesignDocument is the persisted set of view definitions.
type DesignDocument struct {
	Views map[Name]Definition `json:"views"`
}

// ExpectedDesignDocument returns the design document for defs.
func ExpectedDesignDocument(defs []Definition) DesignDocument {
	doc := DesignDocument{Views: make(map[Name]Definition, len(defs))}
	for _, def := range defs {
		doc.Views[def.Name] = def
	}
	return doc
}

// DecodeDesignDocument parses a stored design document body.
func DecodeDesignDocument(body []byte) (DesignDocument, error) {
	var doc DesignDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return DesignDocument{}, fmt.Errorf("decode design document: %w", err)
	}
	if doc.Views == nil {
		doc.Views = map[Name]Definition{}
	}
	return doc, nil
}

// Encode returns the stored body of the design document.
func (d DesignDocument) Encode() ([]byte, error) {
	views := d.Views
	if views == nil {
		views = map[Name]Definition{}
	}
	return json.Marshal(DesignDocument{Views: views})
}

// Diff returns the names of views whose stored definition is missing or
// differs from the expected one, in name order.
func Diff(stored, expected DesignDocument) []Name {
	var changed []Name
	for name, want := range expected.Views {
		got, ok := stored.Views[name]
		if !ok || got != want {
			changed = append(changed, name)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed
}

// Bootstrap compares a stored design document (nil when absent) with the
// expected definitions. It returns the design document, the views whose
// rows must be rebuilt, and whether the design document must be written.
// Definitions of views the code no longer knows are dropped.
func Bootstrap(stored *DesignDocument, defs []Definition) (next DesignDocument, changed []Name, write bool) {
	expected := ExpectedDesignDocument(defs)
	if stored == nil {
		return expected, Diff(DesignDocument{}, expected), true
	}
	changed = Diff(*stored, expected)
	if len(changed) == 0 && len(stored.Views) == len(expected.Views) {
		return *stored, nil, false
	}
	return expected, changed, true
}
