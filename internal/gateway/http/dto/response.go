package dto

import (
	"encoding/json"
	"time"

	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
)

// SubmitAcceptedResponse is returned when a change is applied.
type SubmitAcceptedResponse struct {
	Result       string `json:"result"`
	FeedPosition int64  `json:"feed_position"`
}

// RemoteVersionResponse describes the winning remote state in a conflict.
type RemoteVersionResponse struct {
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy string          `json:"updated_by"`
}

// SubmitConflictResponse is returned when a newer remote version exists.
type SubmitConflictResponse struct {
	Result string                 `json:"result"`
	Reason string                 `json:"reason"`
	Remote *RemoteVersionResponse `json:"remote"`
}

// SubmitRejectedResponse is returned when a change is permanently refused.
type SubmitRejectedResponse struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}

// StatusResponse is the recorded verdict for an idempotency key.
type StatusResponse struct {
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
}

// FeedChangeResponse is one accepted change in the pull feed.
type FeedChangeResponse struct {
	Position   int64           `json:"position"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	UpdatedAt  time.Time       `json:"updated_at"`
	UpdatedBy  string          `json:"updated_by"`
}

// FeedResponse is a page of the pull feed.
type FeedResponse struct {
	Changes   []FeedChangeResponse `json:"changes"`
	NextSince int64                `json:"next_since"`
}

// MapStatusToResponse maps a recorded verdict to its response.
func MapStatusToResponse(change *gatewayDomain.AppliedChange) StatusResponse {
	response := StatusResponse{Result: string(change.Result)}
	if change.Reason != nil {
		response.Reason = *change.Reason
	}
	return response
}

// MapRemoteToResponse maps the current entity version to a conflict response.
func MapRemoteToResponse(remote *gatewayDomain.EntityVersion) *RemoteVersionResponse {
	if remote == nil {
		return nil
	}
	return &RemoteVersionResponse{
		Payload:   remote.Payload,
		UpdatedAt: remote.UpdatedAt,
		UpdatedBy: remote.UpdatedBy,
	}
}

// MapFeedToResponse maps feed entries to a feed page response.
func MapFeedToResponse(entries []*gatewayDomain.FeedEntry, nextSince int64) FeedResponse {
	changes := make([]FeedChangeResponse, 0, len(entries))
	for _, entry := range entries {
		changes = append(changes, FeedChangeResponse{
			Position:   entry.Position,
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			Operation:  entry.Operation,
			Payload:    entry.Payload,
			UpdatedAt:  entry.UpdatedAt,
			UpdatedBy:  entry.UpdatedBy,
		})
	}
	return FeedResponse{Changes: changes, NextSince: nextSince}
}
