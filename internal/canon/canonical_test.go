package canon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"sorts keys", `{"b":1,"a":2}`, `{"a":2,"b":1}`},
		{"nested objects", `{"z":{"y":true,"x":null},"a":[3,1,2]}`, `{"a":[3,1,2],"z":{"x":null,"y":true}}`},
		{"strips whitespace", "{ \"a\" : [ 1 , 2 ] }", `{"a":[1,2]}`},
		{"no html escaping", `{"q":"<a&b>"}`, `{"q":"<a&b>"}`},
		{"control characters", `{"s":"a\nb\u0001"}`, `{"s":"a\nb\u0001"}`},
		{"decimal numbers kept literal", `{"amount":12.50}`, `{"amount":12.50}`},
		{"string money", `{"amount":"12.50"}`, `{"amount":"12.50"}`},
		{"scalar", `"x"`, `"x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCanonicalize_NFC(t *testing.T) {
	// "é" precomposed vs "e" + combining acute accent
	composed, err := Canonicalize([]byte(`{"name":"café"}`))
	require.NoError(t, err)
	decomposed, err := Canonicalize([]byte(`{"name":"cafe\u0301"}`))
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestCanonicalize_UTF16KeyOrder(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 byte order but after it in UTF-16
	got, err := Canonicalize([]byte(`{"｡":2,"😀":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"😀":1,"｡":2}`, string(got))
}

func TestCanonicalize_Errors(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)

	_, err = Canonicalize([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestMarshal_RejectsFloats(t *testing.T) {
	_, err := Marshal(map[string]any{"x": 1.5})
	assert.ErrorContains(t, err, "floats are forbidden")

	_, err = Marshal(struct{}{})
	assert.ErrorContains(t, err, "unsupported type")
}

func TestValue_HonorsStructTags(t *testing.T) {
	type body struct {
		Zeta  string `json:"zeta"`
		Alpha int    `json:"alpha"`
		Skip  string `json:"skip,omitempty"`
	}
	got, err := Value(body{Zeta: "z", Alpha: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":1,"zeta":"z"}`, string(got))
}

func TestRequestHash_KeyOrderIndependent(t *testing.T) {
	var a, b map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"session_id":"s1","wave":1}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"wave":1,"session_id":"s1"}`), &b))

	ha, err := RequestHash(a)
	require.NoError(t, err)
	hb, err := RequestHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)

	hc, err := RequestHash(map[string]any{"session_id": "s1", "wave": 2})
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestHash_DomainSeparation(t *testing.T) {
	h1, err := Hash("a/v1", map[string]any{"k": "v"})
	require.NoError(t, err)
	h2, err := Hash("b/v1", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
