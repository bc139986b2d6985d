package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// --- Compose basics ---

func TestComposeNoParameters(t *testing.T) {
	b := NewBinder()

	script := "Get-Process"
	assert.Equal(t, script, b.Compose(script, nil))
	assert.Equal(t, script, b.Compose(script, map[string]any{}))
}

func TestComposeTypes(t *testing.T) {
	b := NewBinder()

	t.Run("string", func(t *testing.T) {
		out := b.Compose("Write-Output $name", map[string]any{"name": "web-01"})
		assert.Contains(t, out, "$name = 'web-01'")
	})

	t.Run("string with single quote", func(t *testing.T) {
		out := b.Compose("Write-Output $msg", map[string]any{"msg": "it's fine"})
		assert.Contains(t, out, "$msg = 'it''s fine'")
	})

	t.Run("bool true", func(t *testing.T) {
		out := b.Compose("", map[string]any{"force": true})
		assert.Contains(t, out, "$force = $true")
	})

	t.Run("bool false", func(t *testing.T) {
		out := b.Compose("", map[string]any{"force": false})
		assert.Contains(t, out, "$force = $false")
	})

	t.Run("int", func(t *testing.T) {
		out := b.Compose("", map[string]any{"count": 42})
		assert.Contains(t, out, "$count = 42")
	})

	t.Run("float", func(t *testing.T) {
		out := b.Compose("", map[string]any{"ratio": 0.75})
		assert.Contains(t, out, "$ratio = 0.75")
	})

	t.Run("json-decoded whole number stays bare", func(t *testing.T) {
		// encoding/json hands over float64 even for integers.
		out := b.Compose("", map[string]any{"port": float64(8080)})
		assert.Contains(t, out, "$port = 8080")
	})

	t.Run("structured value", func(t *testing.T) {
		out := b.Compose("", map[string]any{"spec": map[string]any{"cpu": 4}})
		assert.Contains(t, out, `$spec = '{"cpu":4}' | ConvertFrom-Json`)
	})
}

func TestComposeNameSanitization(t *testing.T) {
	b := NewBinder()

	t.Run("dangerous characters stripped", func(t *testing.T) {
		out := b.Compose("", map[string]any{"host; rm -rf /": "x"})
		assert.Contains(t, out, "$hostrmrf = 'x'")
		assert.NotContains(t, out, ";")
	})

	t.Run("name reduced to nothing is dropped", func(t *testing.T) {
		script := "Get-Process"
		out := b.Compose(script, map[string]any{"!!!": "x"})
		assert.Equal(t, script, out)
	})
}

func TestComposeLayout(t *testing.T) {
	b := NewBinder()

	script := "Write-Output $a\nWrite-Output $b"
	out := b.Compose(script, map[string]any{"b": 2, "a": 1})

	assert.True(t, strings.HasPrefix(out, parameterMarker+"\n"))
	assert.True(t, strings.HasSuffix(out, "\n\n"+script), "original body follows a blank line, unmodified")

	// Deterministic: parameters sorted by name.
	aIdx := strings.Index(out, "$a = 1")
	bIdx := strings.Index(out, "$b = 2")
	require.GreaterOrEqual(t, aIdx, 0)
	require.GreaterOrEqual(t, bIdx, 0)
	assert.Less(t, aIdx, bIdx)
}

// --- properties ---

// decodeSingleQuoted undoes PowerShell single-quoted literal syntax: strips
// the outer quotes and collapses doubled quotes.
func decodeSingleQuoted(t assert.TestingT, literal string) string {
	if !strings.HasPrefix(literal, "'") || !strings.HasSuffix(literal, "'") {
		assert.Fail(t, "not a single-quoted literal", "got %q", literal)
		return ""
	}
	return strings.ReplaceAll(literal[1:len(literal)-1], "''", "'")
}

// Every string value survives the quote/escape round trip, and the emitted
// assignment is syntactically balanced (even number of quote characters).
func TestComposeStringRoundTripProperty(t *testing.T) {
	b := NewBinder()

	rapid.Check(t, func(rt *rapid.T) {
		value := rapid.String().Draw(rt, "value")
		if strings.ContainsAny(value, "\r\n") {
			// Assignments are line-based; multi-line strings would need a
			// here-string, which the binder does not emit.
			rt.Skip()
		}

		out := b.Compose("Write-Output $p", map[string]any{"p": value})

		lines := strings.Split(out, "\n")
		require.GreaterOrEqual(rt, len(lines), 2)
		assignment := lines[1]
		require.True(rt, strings.HasPrefix(assignment, "$p = "), "got %q", assignment)

		literal := strings.TrimPrefix(assignment, "$p = ")
		assert.Equal(rt, 0, strings.Count(literal, "'")%2, "unbalanced quotes in %q", literal)
		assert.Equal(rt, value, decodeSingleQuoted(rt, literal))
	})
}

// The original script body always appears at the end of the composed text,
// byte-for-byte, whatever the parameter map holds.
func TestComposeBodyPreservedProperty(t *testing.T) {
	b := NewBinder()

	rapid.Check(t, func(rt *rapid.T) {
		script := rapid.String().Draw(rt, "script")
		n := rapid.IntRange(1, 5).Draw(rt, "params")

		params := make(map[string]any, n)
		for i := 0; i < n; i++ {
			name := rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9_]{0,8}`).Draw(rt, fmt.Sprintf("name_%d", i))
			switch rapid.IntRange(0, 2).Draw(rt, fmt.Sprintf("kind_%d", i)) {
			case 0:
				params[name] = rapid.IntRange(-1000, 1000).Draw(rt, fmt.Sprintf("int_%d", i))
			case 1:
				params[name] = rapid.Bool().Draw(rt, fmt.Sprintf("bool_%d", i))
			default:
				params[name] = rapid.StringMatching(`[ -~]{0,20}`).Draw(rt, fmt.Sprintf("str_%d", i))
			}
		}

		out := b.Compose(script, params)
		assert.True(rt, strings.HasSuffix(out, "\n\n"+script))
		assert.True(rt, strings.HasPrefix(out, parameterMarker))
	})
}
