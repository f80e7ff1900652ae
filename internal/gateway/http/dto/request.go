// Package dto provides data transfer objects for the gateway sync API.
package dto

import (
	"encoding/json"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/google/uuid"

	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
	customValidation "github.com/edgepos/edgesync/internal/validation"
)

// SubmitChangeRequest is one change submission from an edge node.
type SubmitChangeRequest struct {
	IdempotencyKey  string          `json:"idempotency_key" binding:"required"`
	EntityType      string          `json:"entity_type" binding:"required"`
	EntityID        string          `json:"entity_id" binding:"required"`
	Operation       string          `json:"operation" binding:"required"`
	Sequence        int64           `json:"sequence"`
	Payload         json.RawMessage `json:"payload"`
	ClientUpdatedAt time.Time       `json:"client_updated_at"`
}

// Validate checks if the change submission is well-formed.
func (r *SubmitChangeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.IdempotencyKey, validation.Required, validation.By(isUUID)),
		validation.Field(&r.EntityType, validation.Required, customValidation.Identifier),
		validation.Field(&r.EntityID, validation.Required, customValidation.Identifier),
		validation.Field(&r.Operation, validation.Required, customValidation.NotBlank),
		validation.Field(&r.Payload, customValidation.JSONPayload),
		validation.Field(&r.ClientUpdatedAt, validation.Required),
	)
}

// ToSubmission converts the request into a domain change submission.
func (r *SubmitChangeRequest) ToSubmission() (*gatewayDomain.ChangeSubmission, error) {
	key, err := uuid.Parse(r.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	return &gatewayDomain.ChangeSubmission{
		IdempotencyKey:  key,
		EntityType:      r.EntityType,
		EntityID:        r.EntityID,
		Operation:       r.Operation,
		Payload:         r.Payload,
		ClientUpdatedAt: r.ClientUpdatedAt,
	}, nil
}

func isUUID(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_uuid_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if _, err := uuid.Parse(s); err != nil {
		return validation.NewError("validation_uuid", "must be a valid uuid")
	}
	return nil
}
