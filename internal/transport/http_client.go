package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "github.com/edgepos/edgesync/internal/errors"
)

const (
	headerNodeID         = "X-Node-Id"
	headerNodeKey        = "X-Node-Key"
	headerIdempotencyKey = "X-Idempotency-Key"
)

// HTTPTransport implements Transport over the gateway's JSON API.
type HTTPTransport struct {
	httpClient *http.Client
	baseURL    string
	nodeID     string
	nodeKey    string
	limiter    *rate.Limiter
}

// NewHTTPTransport creates a gateway client. The limiter paces all outbound
// requests so a node draining a large backlog cannot flood the gateway; pass
// nil to disable pacing.
func NewHTTPTransport(
	baseURL string,
	nodeID string,
	nodeKey string,
	timeout time.Duration,
	limiter *rate.Limiter,
) *HTTPTransport {
	return &HTTPTransport{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		nodeID:     nodeID,
		nodeKey:    nodeKey,
		limiter:    limiter,
	}
}

// SendChange submits one change to the gateway.
func (t *HTTPTransport) SendChange(ctx context.Context, change *ChangeRequest) (*SendResult, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(change)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal change request")
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		t.baseURL+"/v1/sync/changes",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create change request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerIdempotencyKey, change.IdempotencyKey.String())
	t.setAuth(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransient, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransient, err.Error())
	}

	return classifySendResponse(resp.StatusCode, respBody)
}

// QueryStatus asks the gateway whether an idempotency key was applied.
func (t *HTTPTransport) QueryStatus(ctx context.Context, idempotencyKey uuid.UUID) (*StatusResult, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/sync/status/%s", t.baseURL, idempotencyKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create status request")
	}
	t.setAuth(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransient, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransient, err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var payload struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return nil, apperrors.Wrap(err, "failed to decode status response")
		}
		return &StatusResult{Known: true, Result: payload.Result, Reason: payload.Reason}, nil

	case resp.StatusCode == http.StatusNotFound:
		return &StatusResult{Known: false}, nil

	default:
		return nil, apperrors.Wrap(
			apperrors.ErrTransient,
			fmt.Sprintf("status query failed with status %d", resp.StatusCode),
		)
	}
}

// PullChanges fetches a page of the inbound change feed.
func (t *HTTPTransport) PullChanges(ctx context.Context, since int64, limit int) (*ChangeFeed, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/sync/changes?since=%d&limit=%d", t.baseURL, since, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create pull request")
	}
	t.setAuth(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransient, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransient, err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Wrap(
			apperrors.ErrTransient,
			fmt.Sprintf("pull failed with status %d", resp.StatusCode),
		)
	}

	var feed ChangeFeed
	if err := json.Unmarshal(respBody, &feed); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode change feed")
	}
	return &feed, nil
}

func (t *HTTPTransport) setAuth(req *http.Request) {
	req.Header.Set(headerNodeID, t.nodeID)
	req.Header.Set(headerNodeKey, t.nodeKey)
}

func (t *HTTPTransport) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return apperrors.Wrap(err, "rate limiter wait failed")
	}
	return nil
}

// classifySendResponse maps an HTTP response to a scheduler-facing outcome.
//
// Classification is deliberately conservative: anything not recognized as a
// definitive acceptance or refusal is transient, so an ambiguous response
// never discards a change.
func classifySendResponse(statusCode int, body []byte) (*SendResult, error) {
	switch {
	case statusCode == http.StatusOK || statusCode == http.StatusCreated:
		var payload struct {
			FeedPosition int64 `json:"feed_position"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, apperrors.Wrap(err, "failed to decode accept response")
		}
		return &SendResult{Outcome: OutcomeAccepted, FeedPosition: payload.FeedPosition}, nil

	case statusCode == http.StatusConflict:
		var payload struct {
			Reason string         `json:"reason"`
			Remote *RemoteVersion `json:"remote"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, apperrors.Wrap(err, "failed to decode conflict response")
		}
		return &SendResult{Outcome: OutcomeConflict, Reason: payload.Reason, Remote: payload.Remote}, nil

	case statusCode == http.StatusBadRequest,
		statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusUnprocessableEntity:
		var payload struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(body, &payload)
		if payload.Reason == "" {
			payload.Reason = fmt.Sprintf("rejected with status %d", statusCode)
		}
		return &SendResult{Outcome: OutcomeRejected, Reason: payload.Reason}, nil

	default:
		return &SendResult{
			Outcome: OutcomeTransient,
			Reason:  fmt.Sprintf("gateway returned status %d", statusCode),
		}, nil
	}
}
