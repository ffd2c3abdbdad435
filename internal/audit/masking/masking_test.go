package masking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskSecretKeepsSuffix(t *testing.T) {
	require.Equal(t, "sk_live_****3456", MaskSecret("sk_live_abcdef123456"))
	require.Equal(t, "****", MaskSecret("abc"))
	require.Equal(t, "", MaskSecret("   "))
}

func TestMaskSensitiveOnlyTouchesCredentialKeys(t *testing.T) {
	in := map[string]any{
		"email":          "ada@example.com",
		"webhook_secret": "whsec_superclandestine99",
		"nested": map[string]any{
			"access_token": "ya29.verylongtoken1234",
			"status":       "active",
		},
	}

	out := MaskSensitive(in)
	require.Equal(t, "ada@example.com", out["email"])
	require.NotContains(t, out["webhook_secret"], "superclandestine")

	nested, ok := out["nested"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "active", nested["status"])
	require.NotContains(t, nested["access_token"], "verylongtoken")
}

func TestMaskJSONMasksEveryString(t *testing.T) {
	out := MaskJSON(map[string]any{"anything": "plainvalue12"})
	require.NotEqual(t, "plainvalue12", out["anything"])
}
