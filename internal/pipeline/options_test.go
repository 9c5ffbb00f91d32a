package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Options
	}{
		{"empty", "", Options{}},
		{"whitespace only", "   \t\n ", Options{}},
		{
			"mixed types",
			"min=-10 max=10 size=large",
			Options{
				"min":  NumberValue(-10),
				"max":  NumberValue(10),
				"size": StringValue("large"),
			},
		},
		{
			"booleans",
			"flag=true other=false",
			Options{
				"flag":  BoolValue(true),
				"other": BoolValue(false),
			},
		},
		{
			"duplicate key keeps last",
			"x=1 x=2",
			Options{"x": NumberValue(2)},
		},
		{
			"float and scientific",
			"step=0.5 scale=1e3",
			Options{"step": NumberValue(0.5), "scale": NumberValue(1000)},
		},
		{
			"malformed tokens skipped",
			"good=1 =orphan dangling bare= also-bad",
			Options{"good": NumberValue(1)},
		},
		{
			"string kept verbatim",
			"label=x^2+1 color=#ff0000",
			Options{"label": StringValue("x^2+1"), "color": StringValue("#ff0000")},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseOptions(tc.raw))
		})
	}
}

func TestOptionsMarshalNativeScalars(t *testing.T) {
	opts := ParseOptions("min=-10 flag=true size=large")
	data, err := json.Marshal(opts)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(-10), decoded["min"])
	assert.Equal(t, true, decoded["flag"])
	assert.Equal(t, "large", decoded["size"])
}

func TestOptionValueUnmarshal(t *testing.T) {
	var opts Options
	require.NoError(t, json.Unmarshal([]byte(`{"a":true,"b":-2.5,"c":"wide"}`), &opts))
	assert.Equal(t, BoolValue(true), opts["a"])
	assert.Equal(t, NumberValue(-2.5), opts["b"])
	assert.Equal(t, StringValue("wide"), opts["c"])

	var bad OptionValue
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &bad))
}

func TestOptionValueString(t *testing.T) {
	assert.Equal(t, "true", BoolValue(true).String())
	assert.Equal(t, "-10", NumberValue(-10).String())
	assert.Equal(t, "large", StringValue("large").String())
}
