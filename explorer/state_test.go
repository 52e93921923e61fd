package explorer

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		statusCode int
		want       Outcome
	}{
		{http.StatusTooManyRequests, OutcomeBackoff},
		{http.StatusInternalServerError, OutcomeRetry},
		{http.StatusBadGateway, OutcomeRetry},
		{http.StatusGatewayTimeout, OutcomeRetry},
		{0, OutcomeRetry},
		{http.StatusRequestTimeout, OutcomeAbort},
		{http.StatusRequestEntityTooLarge, OutcomeAbort},
		{http.StatusBadRequest, OutcomeAbort},
		{http.StatusNotFound, OutcomeAbort},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.statusCode))
		})
	}
}

func TestRetryDelay(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 4*time.Second, RetryDelay(OutcomeBackoff, 1, config))
	assert.Equal(t, 8*time.Second, RetryDelay(OutcomeBackoff, 2, config))
	assert.Equal(t, 16*time.Second, RetryDelay(OutcomeBackoff, 3, config))

	assert.Equal(t, time.Second, RetryDelay(OutcomeRetry, 1, config))
	assert.Equal(t, 3*time.Second, RetryDelay(OutcomeRetry, 3, config))

	assert.Equal(t, time.Duration(0), RetryDelay(OutcomeAbort, 1, config))
	assert.Equal(t, time.Duration(0), RetryDelay(OutcomeRetry, 0, config))
}

func TestNextRadius(t *testing.T) {
	config := DefaultConfig()

	tests := []struct {
		name     string
		radius   float64
		found    int
		wantNext float64
		wantOK   bool
	}{
		{"sparse small area grows quickly", 25, 0, 100, true},
		{"found something grows slowly", 25, 1, 75, true},
		{"sparse but already large", 100, 0, 150, true},
		{"clamped to the maximum", 1980, 5, 2000, true},
		{"maximum reached", 2000, 5, 2000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := NextRadius(tt.radius, tt.found, config)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantNext, next)
		})
	}
}

func TestNextRadius_terminatesBelowMaximum(t *testing.T) {
	config := DefaultConfig()

	radius, previous, iterations := config.InitialRadiusMetres, 0.0, 0
	for {
		require.Greater(t, radius, previous)
		require.LessOrEqual(t, radius, config.MaxRadiusMetres)
		iterations++

		next, ok := NextRadius(radius, 0, config)
		if !ok {
			break
		}
		previous, radius = radius, next
	}

	assert.Equal(t, config.MaxRadiusMetres, radius)
	// 25 -> 100, then steps of 50 to 2000
	assert.Equal(t, 40, iterations)
}

func TestNextGridSize(t *testing.T) {
	config := DefaultConfig()

	next, ok := NextGridSize(3, config)
	assert.True(t, ok)
	assert.Equal(t, 5, next)

	next, ok = NextGridSize(21, config)
	assert.False(t, ok)
	assert.Equal(t, 21, next)

	// a misconfigured maximum still stops at the hard cap
	config.MaxGridSize = 99
	gridSize := config.InitialGridSize
	for {
		next, ok := NextGridSize(gridSize, config)
		if !ok {
			break
		}
		gridSize = next
	}
	assert.Equal(t, HardMaxGridSize, gridSize)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"even grid", func(c *Config) { c.InitialGridSize = 4 }, true},
		{"grid over the hard cap", func(c *Config) { c.MaxGridSize = 31 }, true},
		{"grid at the hard cap", func(c *Config) { c.MaxGridSize = 29 }, false},
		{"odd grid step", func(c *Config) { c.GridSizeStep = 3 }, true},
		{"max radius below initial", func(c *Config) { c.MaxRadiusMetres = 10 }, true},
		{"zero radius step", func(c *Config) { c.RadiusStepMetres = 0 }, true},
		{"no min elements", func(c *Config) { c.MinElements = 0 }, true},
		{"negative retries", func(c *Config) { c.MaxServerRetries = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)

			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "rate_limited", StateRateLimited.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateError.Done())
	assert.False(t, StateSearching.Done())
}
