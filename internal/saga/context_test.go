package saga

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Int64Conversions(t *testing.T) {
	sc := NewContext(map[string]any{
		"int":     7,
		"int64":   int64(8),
		"float":   float64(9),
		"number":  json.Number("10"),
		"string":  "11",
		"badjson": json.Number("x"),
	})

	tests := []struct {
		key    string
		want   int64
		wantOK bool
	}{
		{"int", 7, true},
		{"int64", 8, true},
		{"float", 9, true},
		{"number", 10, true},
		{"string", 0, false},
		{"badjson", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := sc.Int64(tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContext_ValuesIsACopy(t *testing.T) {
	initial := map[string]any{"a": "1"}
	sc := NewContext(initial)
	initial["a"] = "changed"

	values := sc.Values()
	values["b"] = "2"

	assert.Equal(t, "1", sc.String("a"))
	_, ok := sc.Get("b")
	assert.False(t, ok)

	sc.Delete("a")
	assert.Equal(t, "", sc.String("a"))
}
