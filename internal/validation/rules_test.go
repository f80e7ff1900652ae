package validation

import (
	"encoding/json"
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/edgepos/edgesync/internal/errors"
)

func TestWrapValidationError(t *testing.T) {
	assert.NoError(t, WrapValidationError(nil))

	err := WrapValidationError(validation.NewError("validation_test", "boom"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestIdentifier(t *testing.T) {
	valid := []string{"product", "pos-001", "tax_invoice", "sku.42", "A1"}
	for _, value := range valid {
		assert.NoError(t, validation.Validate(value, Identifier), value)
	}

	invalid := []string{"-leading", "has space", "tab\tchar", "émoji", ".dot"}
	for _, value := range invalid {
		assert.Error(t, validation.Validate(value, Identifier), value)
	}
}

func TestNotBlank(t *testing.T) {
	assert.NoError(t, validation.Validate("value", NotBlank))
	assert.Error(t, validation.Validate("   ", NotBlank))
}

func TestNoWhitespace(t *testing.T) {
	assert.NoError(t, validation.Validate("value", NoWhitespace))
	assert.Error(t, validation.Validate(" value ", NoWhitespace))
}

func TestJSONPayload(t *testing.T) {
	assert.NoError(t, validation.Validate([]byte(`{"price":499}`), JSONPayload))
	assert.NoError(t, validation.Validate(json.RawMessage(`[1,2,3]`), JSONPayload))
	assert.NoError(t, validation.Validate([]byte{}, JSONPayload))

	assert.Error(t, validation.Validate([]byte(`{"price":`), JSONPayload))
	assert.Error(t, validation.Validate("not-bytes", JSONPayload))
}
