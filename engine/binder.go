package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// parameterMarker precedes the generated assignment block in a composed
// script.
const parameterMarker = "# Auto-generated parameters"

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Binder turns a typed parameter map into PowerShell variable-assignment
// statements prepended to the script body.
//
// Parameters become script-local variables rather than text spliced into
// command arguments; assignment-statement generation, not template
// substitution, is what makes caller-supplied values injection-safe. The
// binder never evaluates the composed text itself.
type Binder struct{}

// NewBinder creates a parameter binder.
func NewBinder() *Binder {
	return &Binder{}
}

// Compose returns scriptText with one assignment statement per parameter
// prepended under a marker comment. Parameter names are stripped to
// [A-Za-z0-9_]; values are emitted with per-type literal syntax. Output is
// deterministic (parameters sorted by name). With no parameters the script
// is returned unchanged.
func (b *Binder) Compose(scriptText string, parameters map[string]any) string {
	if len(parameters) == 0 {
		return scriptText
	}

	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	assignments := make([]string, 0, len(names))
	for _, name := range names {
		safeName := unsafeNameChars.ReplaceAllString(name, "")
		if safeName == "" {
			continue
		}
		assignments = append(assignments, b.assignment(safeName, parameters[name]))
	}

	if len(assignments) == 0 {
		return scriptText
	}

	return parameterMarker + "\n" + strings.Join(assignments, "\n") + "\n\n" + scriptText
}

// assignment emits one variable-assignment statement for a single value.
func (b *Binder) assignment(name string, value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("$%s = '%s'", name, quoteSingle(v))
	case bool:
		if v {
			return fmt.Sprintf("$%s = $true", name)
		}
		return fmt.Sprintf("$%s = $false", name)
	case int:
		return fmt.Sprintf("$%s = %d", name, v)
	case int32:
		return fmt.Sprintf("$%s = %d", name, v)
	case int64:
		return fmt.Sprintf("$%s = %d", name, v)
	case float32:
		return fmt.Sprintf("$%s = %s", name, strconv.FormatFloat(float64(v), 'f', -1, 32))
	case float64:
		return fmt.Sprintf("$%s = %s", name, strconv.FormatFloat(v, 'f', -1, 64))
	case json.Number:
		return fmt.Sprintf("$%s = %s", name, v.String())
	default:
		// Structured values travel as a quoted JSON string paired with a
		// parse statement, so the script receives a native object.
		data, err := json.Marshal(v)
		if err != nil {
			data = []byte("null")
		}
		return fmt.Sprintf("$%s = '%s' | ConvertFrom-Json", name, quoteSingle(string(data)))
	}
}

// quoteSingle doubles embedded single quotes, the PowerShell escape inside a
// single-quoted literal.
func quoteSingle(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
