package engine

import (
	"fmt"
	"math"
	"regexp"
)

// Parameter types a script may declare.
const (
	ParamString = "string"
	ParamInt    = "int"
	ParamFloat  = "float"
	ParamBool   = "bool"
)

// ParameterDefinition is the declared schema for one script parameter,
// supplied by the script-storage collaborator. Definitions gate execution
// requests up front; the binder itself does not enforce them.
type ParameterDefinition struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
	Pattern  string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// ValidateParameters checks a parameter map against its declared
// definitions: required presence, declared type, and the optional regex
// pattern for string values. Returns (true, nil) when everything conforms.
func ValidateParameters(parameters map[string]any, definitions []ParameterDefinition) (bool, []string) {
	var errs []string

	for _, def := range definitions {
		value, present := parameters[def.Name]

		if !present {
			if def.Required {
				errs = append(errs, fmt.Sprintf("Required parameter '%s' is missing", def.Name))
			}
			continue
		}

		switch def.Type {
		case ParamString:
			if _, ok := value.(string); !ok {
				errs = append(errs, fmt.Sprintf("Parameter '%s' must be a string", def.Name))
			}
		case ParamInt:
			if !isInteger(value) {
				errs = append(errs, fmt.Sprintf("Parameter '%s' must be an integer", def.Name))
			}
		case ParamFloat:
			if !isNumber(value) {
				errs = append(errs, fmt.Sprintf("Parameter '%s' must be a number", def.Name))
			}
		case ParamBool:
			if _, ok := value.(bool); !ok {
				errs = append(errs, fmt.Sprintf("Parameter '%s' must be a boolean", def.Name))
			}
		}

		if def.Pattern != "" {
			if s, ok := value.(string); ok {
				re, err := regexp.Compile(def.Pattern)
				if err != nil {
					errs = append(errs, fmt.Sprintf("Parameter '%s' has an invalid pattern", def.Name))
				} else if !re.MatchString(s) {
					errs = append(errs, fmt.Sprintf("Parameter '%s' does not match required pattern", def.Name))
				}
			}
		}
	}

	return len(errs) == 0, errs
}

// isInteger accepts native integers plus JSON-decoded numbers that carry an
// integral value (encoding/json turns every number into float64).
func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == math.Trunc(v) && !math.IsInf(v, 0)
	case float32:
		f := float64(v)
		return f == math.Trunc(f)
	default:
		return false
	}
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
