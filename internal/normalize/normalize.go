// Package normalize turns an arbitrary decoded JSON body into the canonical
// payload forwarded to a scorer. It establishes shape only; field names and
// numeric ranges are left to the scorer.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"

	"riskd/pkg/types"
)

// ErrInvalidShape is wrapped by every normalization failure.
var ErrInvalidShape = errors.New("invalid payload shape")

// ShapeError describes why a payload could not be normalized.
type ShapeError struct{ Reason string }

func (e *ShapeError) Error() string { return "invalid payload shape: " + e.Reason }

func (e *ShapeError) Unwrap() error { return ErrInvalidShape }

func invalid(format string, args ...any) error {
	return &ShapeError{Reason: fmt.Sprintf(format, args...)}
}

// Normalize applies, in order:
//
//  1. an object with an "input" or "values" key is returned unchanged;
//  2. a sequence of objects becomes Input(batch), a sequence of sequences
//     becomes Values(matrix), anything else in a sequence is rejected;
//  3. a non-empty object becomes Input(record);
//  4. everything else, including {} and [], is rejected.
func Normalize(raw any) (types.NormalizedInput, error) {
	switch v := raw.(type) {
	case map[string]any:
		if _, ok := v[string(types.KindInput)]; ok {
			return types.Passthrough(v), nil
		}
		if _, ok := v[string(types.KindValues)]; ok {
			return types.Passthrough(v), nil
		}
		if len(v) == 0 {
			return types.NormalizedInput{}, invalid("empty object")
		}
		return types.NewInput(v), nil
	case []any:
		return normalizeSequence(v)
	case nil:
		return types.NormalizedInput{}, invalid("null payload")
	default:
		return types.NormalizedInput{}, invalid("unsupported payload type %s", jsonKind(v))
	}
}

func normalizeSequence(seq []any) (types.NormalizedInput, error) {
	if len(seq) == 0 {
		return types.NormalizedInput{}, invalid("empty sequence")
	}
	first := jsonKind(seq[0])
	for i, e := range seq {
		if k := jsonKind(e); k != first {
			return types.NormalizedInput{}, invalid("sequence mixes %s and %s (element %d)", first, k, i)
		}
	}
	switch first {
	case "object":
		return types.NewInput(seq), nil
	case "array":
		return types.NewValues(seq), nil
	default:
		return types.NormalizedInput{}, invalid("sequence of %s; expected objects or sequences", first)
	}
}

// jsonKind names the JSON type of a value produced by encoding/json.
func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
