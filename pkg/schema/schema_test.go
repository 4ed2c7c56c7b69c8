package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/schema"
)

func TestValidateNilSchemaAlwaysPasses(t *testing.T) {
	require.NoError(t, schema.Validate("anything", nil, ""))
}

func TestValidateStringFormatEmail(t *testing.T) {
	s := map[string]any{"type": "string", "format": "email"}
	require.NoError(t, schema.Validate("a@b.com", s, ""))
	err := schema.Validate("nope", s, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email")
}

func TestValidateIntegerRejectsBool(t *testing.T) {
	s := map[string]any{"type": "integer"}
	err := schema.Validate(true, s, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected integer")
}

func TestValidateOneOfExactlyOneMatch(t *testing.T) {
	s := map[string]any{
		"oneOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "integer"},
		},
	}
	require.NoError(t, schema.Validate("x", s, ""))
	require.NoError(t, schema.Validate(5, s, ""))

	both := map[string]any{
		"oneOf": []any{
			map[string]any{"type": "integer"},
			map[string]any{"minimum": 0},
		},
	}
	err := schema.Validate(5, both, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneOf failed")
}

func TestValidateObjectRequiredAndAdditionalProperties(t *testing.T) {
	s := map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
		"required":   []any{"name"},
	}
	require.NoError(t, schema.Validate(map[string]any{"name": "a"}, s, ""))
	err := schema.Validate(map[string]any{}, s, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required")

	noExtra := map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"name": map[string]any{"type": "string"}},
		"additionalProperties": false,
	}
	err = schema.Validate(map[string]any{"extra": 1}, noExtra, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected property")
}

func TestValidateArrayItems(t *testing.T) {
	s := map[string]any{"type": "array", "items": map[string]any{"type": "integer"}}
	require.NoError(t, schema.Validate([]any{1, 2, 3}, s, ""))
	err := schema.Validate([]any{1, "x"}, s, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[1]")
}

func TestValidateStringMinMaxLengthAsFloat64(t *testing.T) {
	s := map[string]any{"type": "string", "minLength": float64(2), "maxLength": float64(4)}
	require.NoError(t, schema.Validate("abc", s, ""))
	require.Error(t, schema.Validate("a", s, ""))
	require.Error(t, schema.Validate("abcde", s, ""))
}

func TestValidateArrayMinMaxItemsAsFloat64(t *testing.T) {
	s := map[string]any{"type": "array", "minItems": float64(1), "maxItems": float64(2)}
	require.NoError(t, schema.Validate([]any{1}, s, ""))
	require.Error(t, schema.Validate([]any{}, s, ""))
	require.Error(t, schema.Validate([]any{1, 2, 3}, s, ""))
}

func TestValidateEnumRejectsUnlistedValue(t *testing.T) {
	s := map[string]any{"enum": []any{"a", "b"}}
	require.NoError(t, schema.Validate("a", s, ""))
	err := schema.Validate("c", s, "")
	require.Error(t, err)
}

func TestValidateCachedAgreesWithValidate(t *testing.T) {
	s := map[string]any{"type": "string", "format": "uuid"}
	err1 := schema.Validate("not-a-uuid", s, "")
	err2 := schema.ValidateCached("not-a-uuid", s, "")
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, err1.Error(), err2.Error())
}
