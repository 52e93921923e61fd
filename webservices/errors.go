package webservices

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/tourmap-app/tilecache"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSONError logs the error the way errorsx.HTTPError does, and responds with {"error": message}.
// The message of a *tilecache.StatusError is used when there is one, so internals are not shown to the user.
func writeJSONError(w http.ResponseWriter, r *http.Request, logger *logpkg.Logger, err errorsx.Error, statusCode int) {
	if statusCode < 500 {
		logger.Warn("%s. Stack trace:\n%s", err.Error(), err.Stack())
	} else {
		logger.Error("%s. Stack trace:\n%s", err.Error(), err.Stack())
	}

	message := err.Error()
	statusErr, ok := tilecache.AsStatusError(err)
	if ok {
		message = statusErr.Message
	}

	render.Status(r, statusCode)
	render.JSON(w, r, errorResponse{message})
}

// writeStatusError responds with the status carried by the error, or 500
func writeStatusError(w http.ResponseWriter, r *http.Request, logger *logpkg.Logger, err errorsx.Error) {
	writeJSONError(w, r, logger, err, tilecache.StatusCodeOf(err))
}
