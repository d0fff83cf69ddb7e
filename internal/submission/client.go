package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes bounds how much of a regulator response is read.
const maxResponseBytes = 1 << 20

// RegulatorClient transmits a certified invoice to the regulator.
type RegulatorClient interface {
	Submit(ctx context.Context, irn string, payload json.RawMessage) Outcome
}

// HTTPRegulatorClient submits invoices to the regulator's HTTP API.
type HTTPRegulatorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRegulatorClient creates a client for the regulator API at baseURL.
// Every request is bounded by the given timeout; a request that exceeds it
// is reported as a retryable failure.
func NewHTTPRegulatorClient(baseURL string, timeout time.Duration) *HTTPRegulatorClient {
	return &HTTPRegulatorClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	IRN     string          `json:"irn"`
	Invoice json.RawMessage `json:"invoice"`
}

type submitResponse struct {
	ReceiptID string `json:"receipt_id"`
	Message   string `json:"message,omitempty"`
}

func (c *HTTPRegulatorClient) Submit(ctx context.Context, irn string, payload json.RawMessage) Outcome {
	body, err := json.Marshal(submitRequest{IRN: irn, Invoice: payload})
	if err != nil {
		return PermanentFailure{Reason: fmt.Sprintf("failed to encode submission: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoices", bytes.NewReader(body))
	if err != nil {
		return PermanentFailure{Reason: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient from the
		// submitter's point of view.
		if errors.Is(err, context.Canceled) {
			return PermanentFailure{Reason: "submission canceled"}
		}
		return RetryableFailure{Reason: fmt.Sprintf("transport failure: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return RetryableFailure{Reason: fmt.Sprintf("failed to read response: %v", err), StatusCode: resp.StatusCode}
	}

	return classifyResponse(resp.StatusCode, respBody)
}

// classifyResponse maps a regulator HTTP response to an outcome. Server
// errors, rate limiting and request timeouts are retryable; any other
// non-2xx status is a permanent rejection.
func classifyResponse(status int, body []byte) Outcome {
	switch {
	case status >= 200 && status < 300:
		var ack submitResponse
		if err := json.Unmarshal(body, &ack); err != nil || ack.ReceiptID == "" {
			return RetryableFailure{
				Reason:     "regulator accepted without a parseable receipt",
				StatusCode: status,
			}
		}
		return Accepted{ReceiptID: ack.ReceiptID, Response: body}
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return RetryableFailure{
			Reason:     fmt.Sprintf("regulator returned status %d: %s", status, truncate(body, 200)),
			StatusCode: status,
		}
	default:
		return PermanentFailure{
			Reason:     fmt.Sprintf("regulator rejected submission with status %d: %s", status, truncate(body, 200)),
			StatusCode: status,
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
