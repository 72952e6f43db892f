// Package backend talks to the remote scheduling service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.io/infrasutra/outboxlab/internal/pagination"
)

const maxResponseBytes = 4 << 20

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// ScheduleEmails submits one campaign. Connectivity failures come back as
// *UnreachableError, rejections as *APIError.
func (c *Client) ScheduleEmails(ctx context.Context, payload SchedulePayload) (ScheduleResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ScheduleResponse{}, fmt.Errorf("encode schedule payload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/schedule", nil, body)
	if err != nil {
		return ScheduleResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ScheduleResponse{}, decodeAPIError(resp)
	}

	var result ScheduleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		return ScheduleResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := result.validate(); err != nil {
		return ScheduleResponse{}, err
	}
	return result, nil
}

func (c *Client) ScheduledEmails(ctx context.Context, userID string, page pagination.Params) (ListResponse[ScheduledEmailItem], error) {
	return fetchList(ctx, c, "/api/emails/scheduled", userID, page, ScheduledEmailItem.validate)
}

func (c *Client) SentEmails(ctx context.Context, userID string, page pagination.Params) (ListResponse[SentEmailItem], error) {
	return fetchList(ctx, c, "/api/emails/sent", userID, page, SentEmailItem.validate)
}

func fetchList[T any](ctx context.Context, c *Client, path, userID string, page pagination.Params, check func(T) error) (ListResponse[T], error) {
	q := url.Values{}
	if userID != "" {
		q.Set("userId", userID)
	}
	page.Apply(q)

	resp, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return ListResponse[T]{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ListResponse[T]{}, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("list %s: status %d", path, resp.StatusCode)}
	}

	var envelope listEnvelope[T]
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&envelope); err != nil {
		return ListResponse[T]{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return envelope.response(check)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte) (*http.Response, error) {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("backend request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, &UnreachableError{BaseURL: c.baseURL, Err: err}
	}
	c.logger.Debug("backend request", "method", method, "path", path, "request_id", requestID, "status", resp.StatusCode)
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Error *string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	message := fallbackScheduleMessage
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != nil {
		message = *payload.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

// IsConnectivity reports whether err means the backend could not be reached or
// answered with something unusable.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrMalformedResponse)
}
