// Package wireshape normalizes the two payload shapes oracles and chain
// RPCs are observed to return for list endpoints: a bare JSON array, or
// `{data: [...]}`. Per spec.md §9, this is modeled as an explicit tagged
// variant with one normalizer rather than trusting ad-hoc type checks.
package wireshape

import "encoding/json"

// Mismatch describes why a payload failed to normalize, bounded to the
// first 8 top-level keys so logs stay small (spec.md §4.9/§7).
type Mismatch struct {
	PayloadType string
	PayloadKeys []string
}

type envelope[T any] struct {
	Data []T `json:"data"`
}

// DecodeArrayOrEnvelope accepts either a bare `[...]` array or an
// `{"data": [...]}` envelope and returns the normalized slice. ok is
// false on any other shape, with meta describing what was seen.
func DecodeArrayOrEnvelope[T any](raw []byte) (items []T, ok bool, meta Mismatch) {
	var asArray []T
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return asArray, true, Mismatch{}
	}

	var asEnvelope envelope[T]
	if err := json.Unmarshal(raw, &asEnvelope); err == nil {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err == nil {
			if _, hasData := probe["data"]; hasData {
				return asEnvelope.Data, true, Mismatch{}
			}
		}
	}

	return nil, false, describeMismatch(raw)
}

func describeMismatch(raw []byte) Mismatch {
	var probe interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Mismatch{PayloadType: "unparseable"}
	}

	switch v := probe.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
			if len(keys) == 8 {
				break
			}
		}
		return Mismatch{PayloadType: "object", PayloadKeys: keys}
	case []interface{}:
		return Mismatch{PayloadType: "array-wrong-element-shape"}
	case nil:
		return Mismatch{PayloadType: "null"}
	default:
		return Mismatch{PayloadType: "scalar"}
	}
}
