package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain object", `{"variant":"direct_call"}`, `{"variant":"direct_call"}`},
		{"plain array", `[1,2,3]`, `[1,2,3]`},
		{"nested", `{"a":{"b":[1,{"c":2}]}}`, `{"a":{"b":[1,{"c":2}]}}`},
		{"think tags", "<think>\nLet me plan {this}\n</think>\n{\"ok\":true}", `{"ok":true}`},
		{"prose before and after", "Here is the plan:\n{\"ok\":true}\nHope that helps.", `{"ok":true}`},
		{"markdown fence", "```json\n{\"ok\":true}\n```", `{"ok":true}`},
		{"brackets in strings", `{"q":"SELECT [x] FROM {t}"}`, `{"q":"SELECT [x] FROM {t}"}`},
		{"escaped quotes", `{"q":"say \"hi\" }"}`, `{"q":"say \"hi\" }"}`},
		{"array before object", `[{"a":1}] and {"b":2}`, `[{"a":1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestExtractJSON_Failures(t *testing.T) {
	for _, input := range []string{"", "no json here", `{"unterminated": `, `{bad json}`} {
		_, err := ExtractJSON(input)
		assert.ErrorIs(t, err, ErrNoJSON, "input %q", input)
	}
}

func TestParseJSONResponse(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	result, err := ParseJSONResponse[payload]("Sure: {\"name\":\"x\",\"count\":3,\"extra\":true}")
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "x", Count: 3}, result)
}

func TestParseStrictJSONResponse(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	result, err := ParseStrictJSONResponse[payload](`{"name":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, "x", result.Name)

	_, err = ParseStrictJSONResponse[payload](`{"name":"x","extra":1}`)
	assert.Error(t, err, "unknown fields are rejected")

	_, err = ParseStrictJSONResponse[payload](`{"name":7}`)
	assert.Error(t, err, "type mismatch is rejected")
}

func TestParseStrictJSONResponse_SecondObject(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	_, err := ParseStrictJSONResponse[payload]("{\"name\":\"x\"}\nAlternatively: {\"name\":\"y\"}")
	assert.ErrorIs(t, err, ErrMultipleJSON)

	_, err = ParseStrictJSONResponse[payload]("```json\n{\"name\":\"x\"}\n```\n```json\n{\"name\":\"y\"}\n```")
	assert.ErrorIs(t, err, ErrMultipleJSON)

	result, err := ParseStrictJSONResponse[payload]("```json\n{\"name\":\"x\"}\n```\nReplace {customer} with the real id.")
	require.NoError(t, err, "braces in prose are not JSON")
	assert.Equal(t, "x", result.Name)
}
