// Package record resolves identifiers and rerank summaries from retrieved
// records whose shape depends on the vector index that produced them.
package record

import "fmt"

// Candidate is one retrieved record as seen by the rest of the pipeline.
type Candidate interface {
	// Identifier returns the record's unique id. ok is false when the
	// record carries no usable id and must be discarded.
	Identifier() (id string, ok bool)

	// Summary returns the text used for reranking, or "" if none is present.
	Summary() string
}

// AttributeSource is implemented by records that nest their payload under
// an attributes mapping.
type AttributeSource interface {
	Attributes() map[string]any
}

// FieldSource is implemented by records that expose typed top-level fields.
type FieldSource interface {
	Field(name string) (any, bool)
}

// Row is a record with direct id/distance fields and a nested attributes
// mapping (turbopuffer v1 query rows).
type Row struct {
	ID    any
	Dist  float64
	Attrs map[string]any
}

func (r Row) Attributes() map[string]any { return r.Attrs }

func (r Row) Field(name string) (any, bool) {
	switch name {
	case "id":
		return r.ID, r.ID != nil
	case "dist":
		return r.Dist, true
	}
	return nil, false
}

func (r Row) Identifier() (string, bool) { return ExtractID(r) }
func (r Row) Summary() string            { return ExtractSummary(r) }

// Point is a qdrant point: an id plus a payload that plays the role of the
// attributes mapping.
type Point struct {
	ID      string
	Score   float32
	Payload map[string]any
}

func (p Point) Attributes() map[string]any { return p.Payload }

func (p Point) Field(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID, p.ID != ""
	case "score":
		return p.Score, true
	}
	return nil, false
}

func (p Point) Identifier() (string, bool) { return ExtractID(p) }
func (p Point) Summary() string            { return ExtractSummary(p) }

// Mapping is a flat key-value record (turbopuffer v2 query rows).
type Mapping map[string]any

func (m Mapping) Identifier() (string, bool) { return ExtractID(m) }
func (m Mapping) Summary() string            { return ExtractSummary(m) }

// Opaque wraps a value of unknown shape. Its identifier is the value's
// string form and it never has a summary.
type Opaque struct {
	Value any
}

func (o Opaque) Identifier() (string, bool) { return ExtractID(o) }
func (o Opaque) Summary() string            { return ExtractSummary(o) }

func (o Opaque) String() string { return fmt.Sprintf("%v", o.Value) }
