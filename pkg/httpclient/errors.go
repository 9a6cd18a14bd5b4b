package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/bjamilk/campusmarket/pkg/errors"
)

// upstreamError matches the {"error": {"message": ..., "status": ...}} body
// used by Google APIs and by this service's own error envelope.
type upstreamError struct {
	Error *struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// maps it to an AppError, keeping the upstream message when it is present.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned %d (read body: %w)", upstream, resp.StatusCode, err)
	}

	msg := string(body)
	var parsed upstreamError
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
		msg = parsed.Error.Message
	}
	msg = fmt.Sprintf("%s: %s", upstream, msg)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return apperrors.InvalidInput(msg)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(msg)
	case http.StatusForbidden:
		return apperrors.Forbidden(msg)
	case http.StatusNotFound:
		return apperrors.NotFound(upstream, msg)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return apperrors.Unavailable("UPSTREAM_UNAVAILABLE", msg)
	default:
		return fmt.Errorf("%s returned status %d", msg, resp.StatusCode)
	}
}
