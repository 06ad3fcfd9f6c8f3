package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visioncraft/internal/vision"
)

func TestValidateWellFormedBatch(t *testing.T) {
	raw := `{
		"extracted_fields": {
			"company_name": {"value": "Acme", "confidence": 0.95, "source_span": "we're Acme", "extraction_method": "direct"},
			"employee_count": {"value": 42, "confidence": 0.8, "extraction_method": "inferred"}
		},
		"custom_fields": {
			"mascot": {"value": "Otto", "confidence": 0.7, "extraction_method": "contextual"}
		}
	}`

	r := Validate(raw)
	require.True(t, r.OK)
	require.Empty(t, r.Dropped)

	assert.Equal(t, "Acme", r.Fields["company_name"].Value)
	assert.Equal(t, 0.95, r.Fields["company_name"].Confidence)
	assert.Equal(t, vision.MethodDirect, r.Fields["company_name"].Method)
	assert.Equal(t, float64(42), r.Fields["employee_count"].Value)
	assert.Equal(t, "Otto", r.Custom["mascot"].Value)
}

func TestValidateUnwrapsFencedJSON(t *testing.T) {
	raw := "Here is the extraction:\n```json\n" +
		`{"extracted_fields": {"industry": {"value": "Retail", "confidence": 0.9}}}` +
		"\n```\nLet me know if you need more."

	r := Validate(raw)
	require.True(t, r.OK)
	assert.Equal(t, "Retail", r.Fields["industry"].Value)
}

func TestValidateNoJSONIsDegraded(t *testing.T) {
	r := Validate("I could not find any business facts in that message.")
	assert.True(t, r.Degraded())
	assert.NotEmpty(t, r.Reason)
	assert.Nil(t, r.Fields)
}

func TestValidateMalformedJSONIsDegraded(t *testing.T) {
	r := Validate(`{"extracted_fields": {"industry": {"value": "Retail", "confidence": }}}`)
	assert.True(t, r.Degraded())
}

func TestValidateDropsInvalidFieldsOnly(t *testing.T) {
	raw := `{"extracted_fields": {
		"industry": {"value": "Retail", "confidence": 0.9},
		"company_name": {"value": "Acme", "confidence": 1.5},
		"target_market": {"value": null, "confidence": 0.9},
		"revenue_model": {"value": "Subscriptions", "confidence": 0.8, "extraction_method": "guessed"}
	}}`

	r := Validate(raw)
	require.True(t, r.OK)
	assert.Len(t, r.Fields, 1)
	assert.Contains(t, r.Fields, "industry")
	assert.ElementsMatch(t, []string{"company_name", "target_market", "revenue_model"}, r.Dropped)
}

func TestValidateAllFieldsRejectedIsDegraded(t *testing.T) {
	raw := `{"extracted_fields": {"a": {"value": "x", "confidence": 2.0}}}`

	r := Validate(raw)
	assert.True(t, r.Degraded())
	assert.Contains(t, r.Dropped, "a")
}

func TestValidateEmptyBatchIsOK(t *testing.T) {
	r := Validate(`{"extracted_fields": {}, "custom_fields": {}}`)
	assert.True(t, r.OK, "a well-formed nothing-new answer is not degraded")
	assert.Empty(t, r.Fields)
	assert.Empty(t, r.Custom)
}

func TestValidateBracesInsideStrings(t *testing.T) {
	raw := `{"extracted_fields": {"company_name": {"value": "Acme {Group}", "confidence": 0.9}}}`

	r := Validate(raw)
	require.True(t, r.OK)
	assert.Equal(t, "Acme {Group}", r.Fields["company_name"].Value)
}
