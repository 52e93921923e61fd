package explorer

import (
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/tourmap-app/tourmap"
)

// HardMaxGridSize bounds MaxGridSize whatever the configuration says
const HardMaxGridSize = 29

// Config holds the search policy. Durations of 0 disable the corresponding wait.
type Config struct {
	// MinElements stops the search once this many matching elements are found
	MinElements int

	GridZoom        int
	InitialGridSize int
	GridSizeStep    int
	MaxGridSize     int

	InitialRadiusMetres float64
	MaxRadiusMetres     float64
	// SparseRadiusStepMetres is used while nothing has been found and the radius is below SparseRadiusLimitMetres
	SparseRadiusStepMetres  float64
	SparseRadiusLimitMetres float64
	RadiusStepMetres        float64
	FallbackRadiusMetres    float64

	// MinInterval is the minimum time between two upstream-bound requests, across all searches
	MinInterval   time.Duration
	RingDelay     time.Duration
	RadiusDelay   time.Duration
	FallbackDelay time.Duration

	MaxRateLimitRetries int
	RateLimitBackoff    time.Duration
	MaxServerRetries    int
	ServerRetryDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinElements: 20,

		GridZoom:        tourmap.DefaultTileZoom,
		InitialGridSize: 3,
		GridSizeStep:    2,
		MaxGridSize:     21,

		InitialRadiusMetres:     25,
		MaxRadiusMetres:         2000,
		SparseRadiusStepMetres:  75,
		SparseRadiusLimitMetres: 100,
		RadiusStepMetres:        50,
		FallbackRadiusMetres:    200,

		MinInterval:   1500 * time.Millisecond,
		RingDelay:     2 * time.Second,
		RadiusDelay:   time.Second,
		FallbackDelay: 5 * time.Second,

		MaxRateLimitRetries: 3,
		RateLimitBackoff:    4 * time.Second,
		MaxServerRetries:    3,
		ServerRetryDelay:    time.Second,
	}
}

func (c Config) Validate() errorsx.Error {
	if c.MinElements < 1 {
		return errorsx.Errorf("min elements must be at least 1, got %d", c.MinElements)
	}

	if c.InitialGridSize < 1 || c.InitialGridSize%2 == 0 {
		return errorsx.Errorf("initial grid size must be a positive odd number, got %d", c.InitialGridSize)
	}
	if c.GridSizeStep < 2 || c.GridSizeStep%2 != 0 {
		return errorsx.Errorf("grid size step must be a positive even number, got %d", c.GridSizeStep)
	}
	if c.MaxGridSize < c.InitialGridSize || c.MaxGridSize > HardMaxGridSize {
		return errorsx.Errorf("max grid size must be between the initial grid size (%d) and %d, got %d", c.InitialGridSize, HardMaxGridSize, c.MaxGridSize)
	}
	if c.GridZoom < 0 || c.GridZoom > 20 {
		return errorsx.Errorf("grid zoom must be between 0 and 20, got %d", c.GridZoom)
	}

	if tourmap.RoundMetres(c.InitialRadiusMetres) < 1 {
		return errorsx.Errorf("initial radius must be at least 1 metre, got %f", c.InitialRadiusMetres)
	}
	if c.MaxRadiusMetres < c.InitialRadiusMetres {
		return errorsx.Errorf("max radius (%f) must not be smaller than the initial radius (%f)", c.MaxRadiusMetres, c.InitialRadiusMetres)
	}
	if tourmap.RoundMetres(c.RadiusStepMetres) < 1 || tourmap.RoundMetres(c.SparseRadiusStepMetres) < 1 {
		return errorsx.Errorf("radius steps must be at least 1 metre")
	}
	if tourmap.RoundMetres(c.FallbackRadiusMetres) < 1 {
		return errorsx.Errorf("fallback radius must be at least 1 metre, got %f", c.FallbackRadiusMetres)
	}

	if c.MaxRateLimitRetries < 0 || c.MaxServerRetries < 0 {
		return errorsx.Errorf("retry counts must not be negative")
	}

	return nil
}
