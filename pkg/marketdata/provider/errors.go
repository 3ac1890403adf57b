package provider

import (
	"bytes"
	"context"
	"net"
	"net/http"

	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

const maxBodyPreview = 120

// classifyTransportError maps a failed round trip onto a retryable code.
func classifyTransportError(providerName string, err error) *errors.Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Wrapf(errors.ErrCodeProviderTimeout, err, "%s: request timed out", providerName)
	}

	return errors.Wrapf(errors.ErrCodeProviderUnavailable, err, "%s: request failed", providerName)
}

// classifyStatus maps a non-2xx HTTP status onto an error code.
// 429, 408 and 5xx are transient; every other 4xx means the request itself is wrong.
func classifyStatus(providerName string, status int, body []byte) *errors.Error {
	preview := previewBody(body)

	switch {
	case status == http.StatusTooManyRequests:
		return errors.Newf(errors.ErrCodeProviderRateLimited, "%s: rate limited (status %d): %s", providerName, status, preview)
	case status == http.StatusRequestTimeout:
		return errors.Newf(errors.ErrCodeProviderTimeout, "%s: upstream timeout (status %d): %s", providerName, status, preview)
	case status >= 500:
		return errors.Newf(errors.ErrCodeProviderUnavailable, "%s: upstream error (status %d): %s", providerName, status, preview)
	default:
		return errors.Newf(errors.ErrCodeProviderRejectedRequest, "%s: request rejected (status %d): %s", providerName, status, preview)
	}
}

// checkResponse validates status and content of an HTTP response body before decoding.
func checkResponse(providerName string, status int, body []byte) error {
	if status < 200 || status >= 300 {
		return classifyStatus(providerName, status, body)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return errors.Newf(errors.ErrCodeNoDataFound, "%s: empty response body", providerName)
	}

	// Edge proxies answer rate limits with HTML or plain text and a 200.
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return errors.Newf(errors.ErrCodeMarketDataParseFailed, "%s: non-json body: %s", providerName, previewBody(trimmed))
	}

	return nil
}

func previewBody(body []byte) string {
	if len(body) > maxBodyPreview {
		return string(body[:maxBodyPreview])
	}

	return string(body)
}
