package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueMasksSecretShapedKeys(t *testing.T) {
	in := map[string]any{
		"Authorization": "Bearer abc123",
		"api_key":       "sk-xyz",
		"password":      "hunter2",
		"username":      "octocat",
		"nested": map[string]any{
			"secret_token": "t0p",
			"count":        float64(3),
		},
	}

	out := Value(in).(map[string]any)
	assert.Equal(t, Mask, out["Authorization"])
	assert.Equal(t, Mask, out["api_key"])
	assert.Equal(t, Mask, out["password"])
	assert.Equal(t, "octocat", out["username"])

	nested := out["nested"].(map[string]any)
	assert.Equal(t, Mask, nested["secret_token"])
	assert.Equal(t, float64(3), nested["count"])
}

func TestValueRecursesIntoNonStringValuesUnderMatchingKeys(t *testing.T) {
	in := map[string]any{
		"token": map[string]any{"inner": "x", "count": float64(1)},
	}
	out := Value(in).(map[string]any)
	tokenMap := out["token"].(map[string]any)
	assert.Equal(t, Mask, tokenMap["inner"])
	assert.Equal(t, float64(1), tokenMap["count"])
}

func TestValueLeavesEmptyStringUnderMatchingKeyUnmasked(t *testing.T) {
	in := map[string]any{"api_key": ""}
	out := Value(in).(map[string]any)
	assert.Equal(t, "", out["api_key"])
}

func TestValueWalksLists(t *testing.T) {
	in := []any{
		map[string]any{"token": "a"},
		map[string]any{"name": "b"},
	}
	out := Value(in).([]any)
	assert.Equal(t, Mask, out[0].(map[string]any)["token"])
	assert.Equal(t, "b", out[1].(map[string]any)["name"])
}

func TestValuePassesThroughScalars(t *testing.T) {
	assert.Equal(t, "hello", Value("hello"))
	assert.Equal(t, float64(42), Value(float64(42)))
	assert.Nil(t, Value(nil))
}

func TestHeadersMasksCaseInsensitively(t *testing.T) {
	in := map[string]string{
		"Authorization": "Bearer zzz",
		"X-Api-Key":     "k",
		"Accept":        "application/json",
	}
	out := Headers(in)
	assert.Equal(t, Mask, out["Authorization"])
	assert.Equal(t, Mask, out["X-Api-Key"])
	assert.Equal(t, "application/json", out["Accept"])
}
