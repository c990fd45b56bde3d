package rates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrNotContainer is returned when the top level of a payload is not a JSON
// array or object. This is fatal for that payload: there is nothing to walk.
var ErrNotContainer = errors.New("top-level JSON value is not an array or object")

// Discover parses a raw payload and walks it for leaf pairs.
//
// The feed has no fixed schema: the pairs may sit at the top level or be
// wrapped in arrays or objects of varying depth. The walk recurses
// depth-first and stops as soon as it finds a pair collection: a non-empty
// array whose every element is an array of scalars. The elements of that
// collection become candidate records; their arity and content are judged by
// Normalize, so short or overlong rows are counted as malformed rather than
// silently lost.
func Discover(payload []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("parsing payload: %v", err)
	}

	switch root.(type) {
	case []any, map[string]any:
	default:
		return nil, ErrNotContainer
	}

	var records []Record
	walk(root, &records)
	return records, nil
}

func walk(node any, out *[]Record) {
	switch v := node.(type) {
	case []any:
		if isPairCollection(v) {
			for _, el := range v {
				*out = append(*out, Record(el.([]any)))
			}
			return
		}
		for _, el := range v {
			walk(el, out)
		}
	case map[string]any:
		// Deterministic order so first/last report timestamps are stable.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(v[k], out)
		}
	}
}

// isPairCollection reports whether l is the innermost level of the structure:
// a non-empty array whose elements are all arrays of scalars.
func isPairCollection(l []any) bool {
	if len(l) == 0 {
		return false
	}
	for _, el := range l {
		inner, ok := el.([]any)
		if !ok {
			return false
		}
		for _, c := range inner {
			switch c.(type) {
			case []any, map[string]any:
				return false
			}
		}
	}
	return true
}
