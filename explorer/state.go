package explorer

import (
	"math"
	"net/http"
	"time"
)

// State is where a search is in its lifecycle
type State int

const (
	StateIdle State = iota
	StateSearching
	StateSuccess
	StateError
	// StateRateLimited is a search stopped by the upstream's rate limiting
	StateRateLimited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	case StateRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Done reports whether the search has finished
func (s State) Done() bool {
	return s == StateSuccess || s == StateError || s == StateRateLimited
}

// Outcome is what to do after a failed request
type Outcome int

const (
	// OutcomeAbort stops the search, retrying or widening will not help
	OutcomeAbort Outcome = iota
	// OutcomeRetry repeats the request after a linear backoff
	OutcomeRetry
	// OutcomeBackoff repeats the request after an exponential backoff
	OutcomeBackoff
)

// ClassifyStatus decides how to react to a failed request's status code. 0 means no response was received.
func ClassifyStatus(statusCode int) Outcome {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return OutcomeBackoff
	case statusCode == 0, statusCode >= 500:
		return OutcomeRetry
	default:
		// 408 and 413 included: a wider search would only time out or be rejected again
		return OutcomeAbort
	}
}

// RetryDelay is the wait before retry number attempt (1-based)
func RetryDelay(outcome Outcome, attempt int, config Config) time.Duration {
	if attempt < 1 {
		return 0
	}

	switch outcome {
	case OutcomeBackoff:
		return config.RateLimitBackoff * time.Duration(1<<uint(attempt-1))
	case OutcomeRetry:
		return config.ServerRetryDelay * time.Duration(attempt)
	default:
		return 0
	}
}

// NextRadius is the outer radius of the next ring. It grows quickly while nothing has been found in a small area,
// and never passes the maximum. ok is false when the maximum has already been searched.
func NextRadius(radius float64, found int, config Config) (next float64, ok bool) {
	if radius >= config.MaxRadiusMetres {
		return radius, false
	}

	step := config.RadiusStepMetres
	if found == 0 && radius < config.SparseRadiusLimitMetres {
		step = config.SparseRadiusStepMetres
	}

	return math.Min(radius+step, config.MaxRadiusMetres), true
}

// NextGridSize is the next grid size to search. ok is false when the maximum has already been searched.
func NextGridSize(gridSize int, config Config) (next int, ok bool) {
	maxGridSize := config.MaxGridSize
	if maxGridSize > HardMaxGridSize {
		maxGridSize = HardMaxGridSize
	}

	next = gridSize + config.GridSizeStep
	if next > maxGridSize {
		return gridSize, false
	}

	return next, true
}
