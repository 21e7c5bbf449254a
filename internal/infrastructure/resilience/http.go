package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/legal-code-search/internal/core/domain"
)

const maxErrorBody = 2048

// HTTPStatusError is a non-2xx answer from a backend REST API.
type HTTPStatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Service, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// NewHTTPStatusError captures at most 2 KiB of the response body.
func NewHTTPStatusError(service, operation string, resp *http.Response) *HTTPStatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPStatusError{
		Service:    service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

var (
	transientFailure = ErrorClassification{Retryable: true, RecordFailure: true}
	permanentFailure = ErrorClassification{RecordFailure: true}
	notCounted       = ErrorClassification{}
)

// ClassifyHTTPError retries network errors, 408, 429 and 5xx gateway-style
// statuses. Caller cancellation and 4xx rejections never trip a breaker.
func ClassifyHTTPError(err error) ErrorClassification {
	var (
		statusErr *HTTPStatusError
		netErr    net.Error
	)
	switch {
	case err == nil:
		return notCounted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return notCounted
	case IsCircuitOpen(err):
		return transientFailure
	case errors.As(err, &statusErr):
		if IsRetryableHTTPStatus(statusErr.StatusCode) {
			return transientFailure
		}
		return notCounted
	case errors.As(err, &netErr):
		return transientFailure
	default:
		return permanentFailure
	}
}

// WrapTemporaryIfNeeded marks retryable and breaker-rejected errors as
// domain.ErrTemporary.
func WrapTemporaryIfNeeded(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = ClassifyHTTPError
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
