package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// FeatureNames lists the clinical measurements the scorers understand, in
// the positional order expected by a Values matrix row.
var FeatureNames = []string{
	"age", "sex", "cp", "trestbps", "chol", "fbs",
	"restecg", "thalach", "exang", "oldpeak", "slope", "ca", "thal",
}

// InputKind tags a NormalizedInput.
type InputKind string

const (
	// KindInput carries a named-field record or a batch of records.
	KindInput InputKind = "input"
	// KindValues carries a matrix of positional feature vectors.
	KindValues InputKind = "values"
)

// NormalizedInput is the canonical payload forwarded to a scorer. It always
// carries exactly one tag. Payloads that arrived already canonical are kept
// verbatim and re-encoded as received.
type NormalizedInput struct {
	Kind InputKind
	// Data is the tagged value: a record, a slice of records, or a matrix.
	Data any

	passthrough map[string]any
}

// NewInput wraps a record or a batch of records.
func NewInput(data any) NormalizedInput { return NormalizedInput{Kind: KindInput, Data: data} }

// NewValues wraps a matrix of positional feature vectors.
func NewValues(data any) NormalizedInput { return NormalizedInput{Kind: KindValues, Data: data} }

// Passthrough keeps an already-canonical object unchanged. The tag is Input
// when the object has an "input" key and Values otherwise.
func Passthrough(obj map[string]any) NormalizedInput {
	if v, ok := obj[string(KindInput)]; ok {
		return NormalizedInput{Kind: KindInput, Data: v, passthrough: obj}
	}
	return NormalizedInput{Kind: KindValues, Data: obj[string(KindValues)], passthrough: obj}
}

// IsPassthrough reports whether the payload was forwarded as received.
func (n NormalizedInput) IsPassthrough() bool { return n.passthrough != nil }

// MarshalJSON encodes the wire form {"input": ...} or {"values": ...}.
func (n NormalizedInput) MarshalJSON() ([]byte, error) {
	if n.passthrough != nil {
		return json.Marshal(n.passthrough)
	}
	switch n.Kind {
	case KindInput, KindValues:
		return json.Marshal(map[string]any{string(n.Kind): n.Data})
	default:
		return nil, errors.New("normalized input has no tag")
	}
}

// ScoringResult is a scorer's classification. Single-record scorers answer
// with Prediction/Probability; batch scorers may answer with
// Predictions/Probabilities instead.
type ScoringResult struct {
	// Binary class for a single record.
	// example: 1
	Prediction *int `json:"prediction,omitempty" example:"1"`
	// Probability of the positive class, when the model exposes one.
	// example: 0.82
	Probability *float64 `json:"probability,omitempty" example:"0.82"`
	// Binary classes for a batch, in input order.
	Predictions []int `json:"predictions,omitempty"`
	// Positive-class probabilities for a batch, in input order.
	Probabilities []float64 `json:"probabilities,omitempty"`

	// raw is the scorer's document as received; it is what gets encoded.
	raw json.RawMessage
}

// Raw returns the scorer's document, or nil for a result built in code.
func (r ScoringResult) Raw() json.RawMessage { return r.raw }

// Usable reports whether the typed fields carry a prediction.
func (r ScoringResult) Usable() bool { return r.Prediction != nil || r.Predictions != nil }

// MarshalJSON emits the scorer's document unchanged when there is one, so
// extra fields and list-valued predictions reach the caller as sent.
func (r ScoringResult) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	type plain ScoringResult
	return json.Marshal(plain(r))
}

// scorerDocument is the loosely typed document a scorer writes. prediction
// and probability may be scalars or sequences.
type scorerDocument struct {
	Prediction    json.RawMessage `json:"prediction"`
	Probability   json.RawMessage `json:"probability"`
	Predictions   json.RawMessage `json:"predictions"`
	Probabilities json.RawMessage `json:"probabilities"`
	Error         string          `json:"error"`
	Details       any             `json:"details"`
}

// ParseScoringResult decodes and validates a scorer document. It fails when
// the document is not JSON, carries no prediction, or holds values outside
// {0,1} / [0,1]. A document of the form {"error": ...} is reported as such.
func ParseScoringResult(b []byte) (ScoringResult, error) {
	var res ScoringResult
	err := res.UnmarshalJSON(b)
	return res, err
}

// DecodeScoringResult accepts any JSON document. The typed fields are filled
// only when the document passes ParseScoringResult; the document itself is
// kept either way.
func DecodeScoringResult(b []byte) (ScoringResult, error) {
	raw, err := compact(b)
	if err != nil {
		return ScoringResult{}, fmt.Errorf("decode scorer document: %w", err)
	}
	res, err := ParseScoringResult(raw)
	if err != nil {
		res = ScoringResult{}
	}
	res.raw = raw
	return res, nil
}

func compact(b []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler with the validation rules of
// ParseScoringResult.
func (r *ScoringResult) UnmarshalJSON(b []byte) error {
	var doc scorerDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("decode scorer document: %w", err)
	}
	var out ScoringResult
	if isPresent(doc.Prediction) {
		single, many, err := decodeClasses(doc.Prediction)
		if err != nil {
			return fmt.Errorf("prediction: %w", err)
		}
		out.Prediction, out.Predictions = single, many
	}
	if isPresent(doc.Predictions) {
		_, many, err := decodeClasses(doc.Predictions)
		if err != nil {
			return fmt.Errorf("predictions: %w", err)
		}
		if many == nil {
			return errors.New("predictions: expected a sequence")
		}
		out.Predictions = many
	}
	if out.Prediction == nil && out.Predictions == nil {
		if doc.Error != "" {
			if doc.Details != nil {
				return fmt.Errorf("scorer reported error: %s: %v", doc.Error, doc.Details)
			}
			return fmt.Errorf("scorer reported error: %s", doc.Error)
		}
		return errors.New("scorer document has no prediction")
	}
	for _, raw := range []json.RawMessage{doc.Probability, doc.Probabilities} {
		if !isPresent(raw) {
			continue
		}
		single, many, err := decodeProbabilities(raw)
		if err != nil {
			return fmt.Errorf("probability: %w", err)
		}
		if single != nil {
			out.Probability = single
		}
		if many != nil {
			out.Probabilities = many
		}
	}
	raw, err := compact(b)
	if err != nil {
		return err
	}
	out.raw = raw
	*r = out
	return nil
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func decodeClasses(raw json.RawMessage) (*int, []int, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil, err
	}
	switch t := v.(type) {
	case float64:
		c, err := toClass(t)
		if err != nil {
			return nil, nil, err
		}
		return &c, nil, nil
	case []any:
		out := make([]int, 0, len(t))
		for i, e := range t {
			f, ok := e.(float64)
			if !ok {
				return nil, nil, fmt.Errorf("element %d is not a number", i)
			}
			c, err := toClass(f)
			if err != nil {
				return nil, nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, c)
		}
		return nil, out, nil
	default:
		return nil, nil, fmt.Errorf("unsupported type %T", v)
	}
}

func toClass(f float64) (int, error) {
	if f != 0 && f != 1 {
		return 0, fmt.Errorf("class %v is not 0 or 1", f)
	}
	return int(f), nil
}

func decodeProbabilities(raw json.RawMessage) (*float64, []float64, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil, err
	}
	switch t := v.(type) {
	case float64:
		if !isProbability(t) {
			return nil, nil, fmt.Errorf("%v outside [0,1]", t)
		}
		return &t, nil, nil
	case []any:
		out := make([]float64, 0, len(t))
		for i, e := range t {
			f, ok := e.(float64)
			if !ok || !isProbability(f) {
				return nil, nil, fmt.Errorf("element %d is not a probability", i)
			}
			out = append(out, f)
		}
		return nil, out, nil
	default:
		return nil, nil, fmt.Errorf("unsupported type %T", v)
	}
}

func isProbability(f float64) bool {
	return !math.IsNaN(f) && f >= 0 && f <= 1
}
