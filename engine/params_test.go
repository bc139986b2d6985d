package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParametersRequired(t *testing.T) {
	defs := []ParameterDefinition{
		{Name: "target", Type: ParamString, Required: true},
		{Name: "verbose", Type: ParamBool, Required: false},
	}

	t.Run("missing required", func(t *testing.T) {
		ok, errs := ValidateParameters(map[string]any{}, defs)
		assert.False(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "Required parameter 'target' is missing", errs[0])
	})

	t.Run("missing optional is fine", func(t *testing.T) {
		ok, errs := ValidateParameters(map[string]any{"target": "web-01"}, defs)
		assert.True(t, ok)
		assert.Empty(t, errs)
	})
}

func TestValidateParametersTypes(t *testing.T) {
	tests := []struct {
		name    string
		def     ParameterDefinition
		value   any
		ok      bool
		wantErr string
	}{
		{"string ok", ParameterDefinition{Name: "p", Type: ParamString}, "x", true, ""},
		{"string wrong type", ParameterDefinition{Name: "p", Type: ParamString}, 5, false, "Parameter 'p' must be a string"},
		{"int ok", ParameterDefinition{Name: "p", Type: ParamInt}, 42, true, ""},
		{"int from json whole float", ParameterDefinition{Name: "p", Type: ParamInt}, float64(42), true, ""},
		{"int fractional float", ParameterDefinition{Name: "p", Type: ParamInt}, 42.5, false, "Parameter 'p' must be an integer"},
		{"int wrong type", ParameterDefinition{Name: "p", Type: ParamInt}, "42", false, "Parameter 'p' must be an integer"},
		{"float ok", ParameterDefinition{Name: "p", Type: ParamFloat}, 0.75, true, ""},
		{"float accepts int", ParameterDefinition{Name: "p", Type: ParamFloat}, 3, true, ""},
		{"float wrong type", ParameterDefinition{Name: "p", Type: ParamFloat}, "0.75", false, "Parameter 'p' must be a number"},
		{"bool ok", ParameterDefinition{Name: "p", Type: ParamBool}, true, true, ""},
		{"bool wrong type", ParameterDefinition{Name: "p", Type: ParamBool}, "true", false, "Parameter 'p' must be a boolean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, errs := ValidateParameters(map[string]any{"p": tt.value}, []ParameterDefinition{tt.def})
			assert.Equal(t, tt.ok, ok)
			if tt.wantErr != "" {
				require.NotEmpty(t, errs)
				assert.Equal(t, tt.wantErr, errs[0])
			}
		})
	}
}

func TestValidateParametersPattern(t *testing.T) {
	defs := []ParameterDefinition{
		{Name: "host", Type: ParamString, Required: true, Pattern: `^[a-z]+-\d{2}$`},
	}

	t.Run("matches", func(t *testing.T) {
		ok, errs := ValidateParameters(map[string]any{"host": "web-01"}, defs)
		assert.True(t, ok)
		assert.Empty(t, errs)
	})

	t.Run("does not match", func(t *testing.T) {
		ok, errs := ValidateParameters(map[string]any{"host": "web01"}, defs)
		assert.False(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "Parameter 'host' does not match required pattern", errs[0])
	})

	t.Run("invalid pattern reported not panicked", func(t *testing.T) {
		bad := []ParameterDefinition{{Name: "host", Type: ParamString, Pattern: `[`}}
		ok, errs := ValidateParameters(map[string]any{"host": "x"}, bad)
		assert.False(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "Parameter 'host' has an invalid pattern", errs[0])
	})

	t.Run("pattern ignored for non-string value", func(t *testing.T) {
		defs := []ParameterDefinition{{Name: "n", Type: ParamInt, Pattern: `^\d+$`}}
		ok, errs := ValidateParameters(map[string]any{"n": 7}, defs)
		assert.True(t, ok)
		assert.Empty(t, errs)
	})
}

func TestValidateParametersAccumulatesErrors(t *testing.T) {
	defs := []ParameterDefinition{
		{Name: "a", Type: ParamString, Required: true},
		{Name: "b", Type: ParamInt, Required: true},
		{Name: "c", Type: ParamBool, Required: true},
	}

	ok, errs := ValidateParameters(map[string]any{"b": "nope", "c": 1}, defs)
	assert.False(t, ok)
	assert.Len(t, errs, 3)
}

func TestValidateParametersUndeclaredExtrasAllowed(t *testing.T) {
	defs := []ParameterDefinition{{Name: "a", Type: ParamString}}

	ok, errs := ValidateParameters(map[string]any{"a": "x", "extra": 99}, defs)
	assert.True(t, ok)
	assert.Empty(t, errs)
}
