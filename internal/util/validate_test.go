package util

import "testing"

func objectSchema(required any) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"s": map[string]any{"type": "string"},
		},
		"required": required,
	}
}

func TestValidateParametersRequiredMissing(t *testing.T) {
	err := ValidateParameters(map[string]any{"s": "x"}, objectSchema([]string{"a"}))
	if err == nil {
		t.Fatal("expected missing required field error")
	}
	if ve, ok := err.(*ValidationError); !ok || ve.Field != "a" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateParametersRequiredDecodedFromJSON(t *testing.T) {
	// Schemas decoded from JSON carry required as []any.
	err := ValidateParameters(map[string]any{"s": "x"}, objectSchema([]any{"a"}))
	if err == nil {
		t.Fatal("expected missing required field error")
	}
}

func TestValidateParametersTypeMismatch(t *testing.T) {
	err := ValidateParameters(map[string]any{"a": "not a number"}, objectSchema(nil))
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestValidateParametersIntegerFromJSONNumber(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"n": map[string]any{"type": "integer"}},
	}
	if err := ValidateParameters(map[string]any{"n": float64(3)}, schema); err != nil {
		t.Fatalf("whole float64 should validate as integer: %v", err)
	}
	if err := ValidateParameters(map[string]any{"n": 3.5}, schema); err == nil {
		t.Fatal("fractional number accepted as integer")
	}
}

func TestValidateParametersExtraFieldsAllowed(t *testing.T) {
	if err := ValidateParameters(map[string]any{"extra": true}, objectSchema(nil)); err != nil {
		t.Fatalf("extra fields should be allowed: %v", err)
	}
}
