// Package validation provides custom validation rules for the application.
package validation

import (
	"encoding/json"

	validation "github.com/jellydator/validation"
)

// JSONPayload validates that a byte slice holds a valid JSON document.
var JSONPayload = validation.By(func(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		return validation.NewError("validation_json_type", "must be a byte slice")
	}
	if len(data) == 0 {
		return nil // Let Required handle empty payloads
	}
	if !json.Valid(data) {
		return validation.NewError("validation_json", "must be a valid json document")
	}
	return nil
})
