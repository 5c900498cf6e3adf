package fudo

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResourceRef is a typed reference to another resource.
type ResourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RelationshipData holds the payload of a relationship, which the API encodes
// either as a single resource reference, a list of references, or null.
type RelationshipData struct {
	One  *ResourceRef
	Many []ResourceRef
}

// Relationship is a named link from a resource to related resources.
type Relationship struct {
	Data RelationshipData `json:"data"`
}

// UnmarshalJSON accepts an object, an array, or null.
func (d *RelationshipData) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*d = RelationshipData{}
		return nil
	}

	switch trimmed[0] {
	case '[':
		var many []ResourceRef
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return fmt.Errorf("relationship list: %w", err)
		}
		*d = RelationshipData{Many: many}
	case '{':
		var one ResourceRef
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return fmt.Errorf("relationship reference: %w", err)
		}
		*d = RelationshipData{One: &one}
	default:
		return fmt.Errorf("relationship data is neither object nor array: %s", trimmed)
	}

	return nil
}

// MarshalJSON writes the payload back in the shape it arrived in.
func (d RelationshipData) MarshalJSON() ([]byte, error) {
	if d.Many != nil {
		return json.Marshal(d.Many)
	}
	if d.One != nil {
		return json.Marshal(d.One)
	}
	return []byte("null"), nil
}

// Resource is one JSON:API resource object.
type Resource struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id"`
	Attributes    map[string]any          `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Relationship returns the named relationship, or a zero value if absent.
func (r *Resource) Relationship(name string) RelationshipData {
	rel, ok := r.Relationships[name]
	if !ok {
		return RelationshipData{}
	}
	return rel.Data
}

// Document is a single-resource response, e.g. GET /expenses/{id}.
type Document struct {
	Data     Resource   `json:"data"`
	Included []Resource `json:"included,omitempty"`
}

// Page is a collection response, e.g. GET /expenses.
type Page struct {
	Data     []Resource `json:"data"`
	Included []Resource `json:"included,omitempty"`
	Links    PageLinks  `json:"links,omitempty"`
}

// PageLinks carries pagination links; Next is empty on the last page.
type PageLinks struct {
	Next string `json:"next,omitempty"`
}
