package crdt

import (
	"encoding/json"
	"math"
	"sort"
)

// canonicalJSON re-marshals v through a sorted-key, NaN-rejecting pass so
// that any two equal lattice values serialize to byte-identical
// representations. encoding/json already sorts map[string]X keys; the
// extra walk here is what catches NaN scalars and normalizes nested maps
// consistently regardless of the concrete Go type used to build them.
func canonicalJSON(v interface{}) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

func normalize(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) {
			return nil, newErr(ErrKindLogic, "normalize", ErrNaN)
		}
		return val, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			nv, err := normalize(v)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			ne, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	default:
		return v, nil
	}
}

// sortedStrings returns a freshly sorted copy of ss, used whenever a set of
// tags or element keys must be written out in a deterministic order.
func sortedStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

// checkCanonical calls reencode (which re-encodes the value Unmarshal just
// populated from data) and rejects data if the bytes it produces differ
// from the input.
func checkCanonical(data []byte, reencode func() ([]byte, error)) error {
	again, err := reencode()
	if err != nil {
		return err
	}
	if string(again) != string(data) {
		return newErr(ErrKindIntegrity, "unmarshal", ErrNonCanonical)
	}
	return nil
}
