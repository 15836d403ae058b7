package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("1234"))
	assert.Equal(t, "****6789", MaskSecret("CHK-000123456789"))
}

func TestMaskFieldsOnlyTouchesSensitiveKeys(t *testing.T) {
	ref := "WIRE-99887766"
	masked := MaskFields(map[string]any{
		"reimbursement_reference": "CHK-10002000",
		"status":                  "completed",
		"bank": map[string]any{
			"Account_Number": "0011223344",
			"name":           "Main",
		},
		"reference": &ref,
		" ":         "dropped",
	}, "reimbursement_reference", "account_number", "reference")

	assert.Equal(t, "****2000", masked["reimbursement_reference"])
	assert.Equal(t, "completed", masked["status"])
	assert.Equal(t, "****7766", masked["reference"])
	bank := masked["bank"].(map[string]any)
	assert.Equal(t, "****3344", bank["Account_Number"])
	assert.Equal(t, "Main", bank["name"])
	assert.NotContains(t, masked, " ")
	assert.Nil(t, MaskFields(nil))
}
