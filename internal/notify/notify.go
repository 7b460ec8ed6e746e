package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"alertgateway/internal/failure"
)

// Channel names used in logs, errors, and metrics labels.
const (
	ChannelZoom    = "zoom"
	ChannelMSTeams = "msteams"
	ChannelEmail   = "email"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	defaultTimeoutSec = 10
	maxErrorBodyBytes = 4 << 10
	detailsLinkText   = "View More Details"
)

// Result reports one channel delivery outcome.
// Params: status and human-readable detail.
// Returns: sender outcome (errors are returned separately for webhook channels).
type Result struct {
	Status string
	Detail string
}

// newHTTPClient builds bounded outbound client.
// Params: timeout in seconds (<=0 selects default).
// Returns: http client.
func newHTTPClient(timeoutSec int) *http.Client {
	if timeoutSec <= 0 {
		timeoutSec = defaultTimeoutSec
	}
	return &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}
}

// postJSON posts one JSON payload and maps failures to DeliveryFailed.
// Params: ctx, client, channel label, endpoint, extra headers, and payload value.
// Returns: success result or failure.DeliveryFailed.
func postJSON(ctx context.Context, client *http.Client, channel, endpoint string, header http.Header, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Status: StatusError}, fmt.Errorf("encode %s payload: %w", channel, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Status: StatusError}, failure.DeliveryFailed{Channel: channel, Err: fmt.Errorf("build request: %w", err)}
	}
	for key, values := range header {
		for _, value := range values {
			request.Header.Add(key, value)
		}
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return Result{Status: StatusError, Detail: err.Error()}, failure.DeliveryFailed{Channel: channel, Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		err := unexpectedHTTPStatusError(response)
		return Result{Status: StatusError, Detail: err.Error()}, failure.DeliveryFailed{
			Channel: channel,
			Status:  response.StatusCode,
			Err:     err,
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxErrorBodyBytes))
	return Result{Status: StatusSuccess, Detail: "Message sent successfully!"}, nil
}

// unexpectedHTTPStatusError formats non-2xx HTTP response with optional body.
// Params: HTTP response pointer.
// Returns: status-only or status+body error.
func unexpectedHTTPStatusError(response *http.Response) error {
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	if readErr != nil {
		return fmt.Errorf("unexpected status %d (read body error: %w)", response.StatusCode, readErr)
	}
	trimmedBody := strings.TrimSpace(string(rawBody))
	if trimmedBody == "" {
		return fmt.Errorf("unexpected status %d", response.StatusCode)
	}
	return fmt.Errorf("unexpected status %d body=%s", response.StatusCode, trimmedBody)
}
