package tilecache

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/tourmap-app/overpass"
)

var ErrPayloadTooLarge = errors.New("payload too large")

// StatusError is a failure with the HTTP status it should be reported with.
// Message is safe to show to an end user.
type StatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func newStatusError(statusCode int, message string, err error) errorsx.Error {
	return errorsx.Wrap(&StatusError{StatusCode: statusCode, Message: message, Err: err})
}

// AsStatusError finds the StatusError behind an error, if there is one
func AsStatusError(err error) (*StatusError, bool) {
	if err == nil {
		return nil, false
	}

	statusErr, ok := errorsx.Cause(err).(*StatusError)
	if ok {
		return statusErr, true
	}

	return nil, false
}

// StatusCodeOf returns the status code an error should be reported with: the StatusError's, or 500
func StatusCodeOf(err error) int {
	statusErr, ok := AsStatusError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	return statusErr.StatusCode
}

// upstreamError maps an overpass client failure to the status it is reported with.
// Rate limiting is passed through, a timeout becomes 408, everything else is a bad gateway.
func upstreamError(err errorsx.Error) errorsx.Error {
	cause := errorsx.Cause(err)

	switch cause {
	case overpass.ErrTimeout:
		return newStatusError(http.StatusRequestTimeout, "upstream request timed out, try a smaller search area", err)
	case overpass.ErrResponseTooLarge:
		return newStatusError(http.StatusRequestEntityTooLarge, "upstream response too large, narrow the search", errors.Join(ErrPayloadTooLarge, err))
	case overpass.ErrMalformedResponse:
		return newStatusError(http.StatusBadGateway, "upstream returned a malformed response", err)
	}

	statusErr, ok := cause.(*overpass.UpstreamStatusError)
	if ok {
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return newStatusError(http.StatusTooManyRequests, "upstream rate limit reached, try again later", err)
		}
		return newStatusError(http.StatusBadGateway, "upstream request failed", err)
	}

	return newStatusError(http.StatusBadGateway, "upstream request failed", err)
}

var storeTooLargeMarkers = []string{"out of memory", "too big", "too large"}

// storeError maps a cache write failure. Failures that look like the backing store running out of room are reported as 413.
func storeError(err errorsx.Error) errorsx.Error {
	message := err.Error()
	isTooLarge := strings.Contains(message, "OOM")
	for _, marker := range storeTooLargeMarkers {
		if strings.Contains(strings.ToLower(message), marker) {
			isTooLarge = true
		}
	}

	if isTooLarge {
		return newStatusError(http.StatusRequestEntityTooLarge, "result too large to cache, narrow the search", errors.Join(ErrPayloadTooLarge, err))
	}

	return newStatusError(http.StatusInternalServerError, "failed to store result", err)
}
