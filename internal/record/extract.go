package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// summaryField is the attribute the index stores rerank text under.
const summaryField = "rerankSummary"

// fallbackSummaryFields are consulted in order when no rerankSummary exists.
var fallbackSummaryFields = []string{"rerank_summary", "summary", "description", "bio"}

// ExtractID resolves a record identifier. Resolution order:
//  1. id, then _id, inside the nested attributes mapping
//  2. direct id field
//  3. direct _id field
//  4. id, then _id, when the record itself is a key-value mapping
//  5. the string form of the whole record
//
// ok is false only for mappings that carry neither key.
func ExtractID(rec any) (id string, ok bool) {
	if as, isAttr := rec.(AttributeSource); isAttr {
		if attrs := as.Attributes(); attrs != nil {
			for _, key := range []string{"id", "_id"} {
				if s, found := stringValue(attrs[key]); found {
					return s, true
				}
			}
		}
	}

	if fs, isField := rec.(FieldSource); isField {
		for _, key := range []string{"id", "_id"} {
			if v, has := fs.Field(key); has {
				if s, found := stringValue(v); found {
					return s, true
				}
			}
		}
	}

	if m, isMap := asMapping(rec); isMap {
		for _, key := range []string{"id", "_id"} {
			if s, found := stringValue(m[key]); found {
				return s, true
			}
		}
		return "", false
	}

	return fmt.Sprintf("%v", rec), true
}

// ExtractSummary resolves the rerank text of a record: rerankSummary in the
// attributes mapping, then as a direct field, then as a mapping key; failing
// that the first present of rerank_summary, summary, description and bio.
// Returns "" when nothing is present.
func ExtractSummary(rec any) string {
	attrs := attributesOf(rec)
	fs, _ := rec.(FieldSource)
	m, _ := asMapping(rec)

	if s, ok := stringValue(attrs[summaryField]); ok {
		return s
	}
	if s, ok := fieldString(fs, summaryField); ok {
		return s
	}
	if s, ok := stringValue(m[summaryField]); ok {
		return s
	}

	for _, name := range fallbackSummaryFields {
		if s, ok := fieldString(fs, name); ok {
			return s
		}
		if s, ok := stringValue(m[name]); ok {
			return s
		}
		if s, ok := stringValue(attrs[name]); ok {
			return s
		}
	}
	return ""
}

func attributesOf(rec any) map[string]any {
	if as, ok := rec.(AttributeSource); ok {
		return as.Attributes()
	}
	return nil
}

func asMapping(rec any) (map[string]any, bool) {
	switch m := rec.(type) {
	case Mapping:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func fieldString(fs FieldSource, name string) (string, bool) {
	if fs == nil {
		return "", false
	}
	v, ok := fs.Field(name)
	if !ok {
		return "", false
	}
	return stringValue(v)
}

// stringValue renders v as a string. Nil values and empty strings count as
// absent.
func stringValue(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = formatFloat(t)
	case float32:
		s = formatFloat(float64(t))
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case uint64:
		s = strconv.FormatUint(t, 10)
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprintf("%v", t)
	}
	return s, s != ""
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
