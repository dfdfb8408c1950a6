package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// GenerateSchema reflects the JSON Schema of value's type, inlined and
// closed to additional properties. GET /api/schema serves it for the raw
// triple format.
func GenerateSchema(value any) *jsonschema.Schema {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.ReflectFromType(t)
}

// UnmarshalFlexible decodes JSON as produced by extraction models into out.
// Besides plain JSON it accepts a markdown code fence around the payload, a
// payload encoded a second time as a JSON string, and syntax jsonrepair can
// fix such as trailing commas or unquoted keys:
//
//	UnmarshalFlexible(`{"triples": []}`, &batch)
//	UnmarshalFlexible("```json\n{\"triples\": []}\n```", &batch)
//	UnmarshalFlexible(`"{\"triples\": []}"`, &batch)
//	UnmarshalFlexible(`{triples: [],}`, &batch)
func UnmarshalFlexible(input string, out any) error {
	input = stripCodeFence(strings.TrimSpace(input))
	if json.Unmarshal([]byte(input), out) == nil {
		return nil
	}

	var inner string
	if json.Unmarshal([]byte(input), &inner) == nil {
		input = stripCodeFence(strings.TrimSpace(inner))
		if json.Unmarshal([]byte(input), out) == nil {
			return nil
		}
	}

	repaired, err := jsonrepair.JSONRepair(collapseDoubleBrace(input))
	if err != nil {
		return fmt.Errorf("json repair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: %w", err)
	}
	return nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// collapseDoubleBrace turns "{ {...}" into "{...}", a slip models make
// when asked for an object.
func collapseDoubleBrace(s string) string {
	if rest, ok := strings.CutPrefix(s, "{"); ok {
		if rest = strings.TrimSpace(rest); strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the vectors differ in length or either is all zeros.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
