// Package result defines ExtractionResult and its map, JSON and protobuf forms.
package result

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/w2-extractor/constants"
	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
	"github.com/joseph-ayodele/w2-extractor/internal/normalize"
)

// SampleLen is the number of characters kept in TextSample.
const SampleLen = 500

// Map keys that are not field names.
const (
	KeyDocumentType = "document_type"
	KeyConfidence   = "confidence"
	KeyMethod       = "extraction_method"
	KeyDiagnostics  = "diagnostics"
	KeyTextSample   = "text_sample"
	KeyMessage      = "message"
	KeyRequestID    = "request_id"
)

// ExtractionResult is the outcome of one processing call. It is built once and
// not modified after it is returned.
type ExtractionResult struct {
	DocumentType constants.DocumentType
	Confidence   float64
	Method       string
	Fields       map[string]normalize.Value
	Diagnostics  []string
	TextSample   string
	Message      string
	RequestID    string
	ProcessedAt  time.Time
	Duration     time.Duration
}

// Sample returns the first SampleLen characters of text.
func Sample(text string) string {
	if utf8.RuneCountInString(text) <= SampleLen {
		return text
	}
	return string([]rune(text)[:SampleLen])
}

// Amount returns the currency value of field name, if present.
func (r ExtractionResult) Amount(name string) (float64, bool) {
	v, ok := r.Fields[name]
	if !ok || v.Kind != fieldspec.KindCurrency {
		return 0, false
	}
	return v.Amount, true
}

// Text returns the textual value of field name, if present.
func (r ExtractionResult) Text(name string) (string, bool) {
	v, ok := r.Fields[name]
	if !ok || v.Kind == fieldspec.KindCurrency {
		return "", false
	}
	return v.Text, true
}

// ToMap flattens r: the fixed keys plus one key per extracted field.
func (r ExtractionResult) ToMap() map[string]any {
	m := make(map[string]any, len(r.Fields)+7)
	m[KeyDocumentType] = string(r.DocumentType)
	m[KeyConfidence] = r.Confidence
	m[KeyMethod] = r.Method
	for name, v := range r.Fields {
		m[name] = v.Any()
	}
	diags := make([]string, len(r.Diagnostics))
	copy(diags, r.Diagnostics)
	m[KeyDiagnostics] = diags
	if r.TextSample != "" {
		m[KeyTextSample] = r.TextSample
	}
	if r.Message != "" {
		m[KeyMessage] = r.Message
	}
	if r.RequestID != "" {
		m[KeyRequestID] = r.RequestID
	}
	return m
}

func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

func (r *ExtractionResult) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	out, err := FromMap(m)
	if err != nil {
		return err
	}
	*r = out
	return nil
}

// FromMap is the inverse of ToMap. Field keys are resolved against the W-2 table.
func FromMap(m map[string]any) (ExtractionResult, error) {
	var (
		r   ExtractionResult
		err error
	)
	str := func(key string) string {
		if err != nil {
			return ""
		}
		raw, ok := m[key]
		if !ok || raw == nil {
			return ""
		}
		s, ok := raw.(string)
		if !ok {
			err = fmt.Errorf("%s: expected string, got %T", key, raw)
		}
		return s
	}

	r.DocumentType = constants.DocumentType(str(KeyDocumentType))
	r.Method = str(KeyMethod)
	r.TextSample = str(KeyTextSample)
	r.Message = str(KeyMessage)
	r.RequestID = str(KeyRequestID)
	if err != nil {
		return ExtractionResult{}, err
	}

	if raw, ok := m[KeyConfidence]; ok {
		c, ok := raw.(float64)
		if !ok {
			return ExtractionResult{}, fmt.Errorf("%s: expected number, got %T", KeyConfidence, raw)
		}
		r.Confidence = c
	}

	switch diags := m[KeyDiagnostics].(type) {
	case nil:
	case []string:
		r.Diagnostics = append([]string(nil), diags...)
	case []any:
		for i, d := range diags {
			s, ok := d.(string)
			if !ok {
				return ExtractionResult{}, fmt.Errorf("%s[%d]: expected string, got %T", KeyDiagnostics, i, d)
			}
			r.Diagnostics = append(r.Diagnostics, s)
		}
	default:
		return ExtractionResult{}, fmt.Errorf("%s: expected list, got %T", KeyDiagnostics, diags)
	}

	for _, spec := range fieldspec.W2() {
		raw, ok := m[spec.Name]
		if !ok || raw == nil {
			continue
		}
		if r.Fields == nil {
			r.Fields = make(map[string]normalize.Value)
		}
		if spec.Kind == fieldspec.KindCurrency {
			amt, ok := raw.(float64)
			if !ok {
				return ExtractionResult{}, fmt.Errorf("%s: expected number, got %T", spec.Name, raw)
			}
			r.Fields[spec.Name] = normalize.Value{Kind: spec.Kind, Amount: amt}
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return ExtractionResult{}, fmt.Errorf("%s: expected string, got %T", spec.Name, raw)
		}
		r.Fields[spec.Name] = normalize.Value{Kind: spec.Kind, Text: s}
	}
	return r, nil
}

// ToStruct converts r for transport over gRPC.
func (r ExtractionResult) ToStruct() (*structpb.Struct, error) {
	m := r.ToMap()
	diags := make([]any, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		diags[i] = d
	}
	m[KeyDiagnostics] = diags
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("result to struct: %w", err)
	}
	return s, nil
}

func FromStruct(s *structpb.Struct) (ExtractionResult, error) {
	if s == nil {
		return ExtractionResult{}, fmt.Errorf("result from struct: nil struct")
	}
	return FromMap(s.AsMap())
}
