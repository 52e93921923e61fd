package explorer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/tourmap-app/metrics"
	"github.com/jamesrr39/tourmap-app/tagfilter"
	"github.com/jamesrr39/tourmap-app/tilecache"
	"github.com/jamesrr39/tourmap-app/tourmap"
	"github.com/paulmach/osm"
	"golang.org/x/time/rate"
)

// ErrSuperseded is returned by a search that was cancelled because a newer one started
var ErrSuperseded = errors.New("search superseded by a newer search")

type Mode string

const (
	// ModeGrid widens a block of tiles around the start point
	ModeGrid Mode = "grid"
	// ModeRing fetches successive rings around the start point, never fetching the same area twice
	ModeRing Mode = "ring"
)

type Request struct {
	Lat, Lng float64
	Mode     Mode
	// Interests are taxonomy category names. Empty means the default allowed set.
	Interests []string
}

// Progress is a snapshot of a search. Elements are the matching elements found so far.
type Progress struct {
	Generation   uint64             `json:"generation"`
	State        State              `json:"state"`
	Mode         Mode               `json:"mode"`
	GridSize     int                `json:"gridSize,omitempty"`
	RadiusMetres float64            `json:"radiusMetres,omitempty"`
	Area         osm.Bounds         `json:"area"`
	Elements     []*tourmap.Element `json:"elements"`
	Requests     int                `json:"requests"`
	LastError    string             `json:"lastError,omitempty"`
}

// Sleeper waits for d, or until the context is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Explorer runs one search at a time. Starting a search cancels the previous one, whose later progress is dropped.
type Explorer struct {
	logger   *logpkg.Logger
	fetcher  Fetcher
	taxonomy *tagfilter.Taxonomy
	config   Config
	limiter  *rate.Limiter
	sleep    Sleeper

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	progress   Progress
	onProgress func(Progress)
}

func NewExplorer(logger *logpkg.Logger, fetcher Fetcher, taxonomy *tagfilter.Taxonomy, config Config) (*Explorer, errorsx.Error) {
	err := config.Validate()
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	limit := rate.Inf
	if config.MinInterval > 0 {
		limit = rate.Every(config.MinInterval)
	}

	return &Explorer{
		logger:   logger,
		fetcher:  fetcher,
		taxonomy: taxonomy,
		config:   config,
		limiter:  rate.NewLimiter(limit, 1),
		sleep:    sleepContext,
	}, nil
}

// OnProgress registers a function called with every progress update of the current search
func (e *Explorer) OnProgress(fn func(Progress)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.onProgress = fn
}

// Progress returns the latest progress of the current search
func (e *Explorer) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.progress
}

// Cancel stops the current search, if any
func (e *Explorer) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Search runs a search to completion and returns its final progress.
// A search that ends in StateError or StateRateLimited is not a Go error: the reason is in LastError.
func (e *Explorer) Search(ctx context.Context, req Request) (Progress, errorsx.Error) {
	err := tourmap.ValidateCoords(req.Lat, req.Lng)
	if err != nil {
		return Progress{}, errorsx.Wrap(err)
	}

	_, err = e.taxonomy.FilterSet(req.Interests)
	if err != nil {
		return Progress{}, errorsx.Wrap(err)
	}

	switch req.Mode {
	case "":
		req.Mode = ModeGrid
	case ModeGrid, ModeRing:
	default:
		return Progress{}, errorsx.Errorf("unknown search mode %q", req.Mode)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.generation++
	generation := e.generation
	e.cancel = cancel
	e.mu.Unlock()

	s := &search{
		explorer: e,
		req:      req,
		progress: Progress{Generation: generation, State: StateSearching, Mode: req.Mode, Elements: []*tourmap.Element{}},
	}
	s.report()

	if req.Mode == ModeRing {
		err = s.runRing(ctx)
	} else {
		err = s.runGrid(ctx)
	}

	if !e.isCurrent(generation) {
		return s.snapshot(), errorsx.Wrap(ErrSuperseded, "generation", generation)
	}

	if err != nil {
		return s.snapshot(), errorsx.Wrap(err)
	}

	return s.snapshot(), nil
}

func (e *Explorer) isCurrent(generation uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return generation == e.generation
}

// publish stores and broadcasts progress, unless a newer search has started
func (e *Explorer) publish(progress Progress) {
	e.mu.Lock()
	if progress.Generation != e.generation {
		e.mu.Unlock()
		return
	}
	e.progress = progress
	onProgress := e.onProgress
	e.mu.Unlock()

	if onProgress != nil {
		onProgress(progress)
	}
}

type search struct {
	explorer *Explorer
	req      Request
	progress Progress
}

func (s *search) snapshot() Progress {
	snapshot := s.progress
	snapshot.Elements = make([]*tourmap.Element, len(s.progress.Elements))
	copy(snapshot.Elements, s.progress.Elements)
	return snapshot
}

func (s *search) report() {
	s.explorer.publish(s.snapshot())
}

func (s *search) finish(state State, err errorsx.Error) {
	s.progress.State = state
	if err != nil {
		s.progress.LastError = describeError(err)
	}
	s.report()
}

func (s *search) filter(elements []*tourmap.Element) ([]*tourmap.Element, errorsx.Error) {
	return s.explorer.taxonomy.Filter(elements, s.req.Interests)
}

// runGrid searches gridSize x gridSize tiles, widening the grid until enough elements are found or the maximum is searched.
// Each step fetches the whole grid, so results replace the previous step's.
func (s *search) runGrid(ctx context.Context) errorsx.Error {
	config := s.explorer.config

	gridSize := config.InitialGridSize
	for {
		bounds := tourmap.GridBounds(s.req.Lat, s.req.Lng, config.GridZoom, gridSize)
		s.progress.GridSize = gridSize
		s.progress.Area = bounds

		elements, err := s.fetch(ctx, tourmap.BoundsQuery{Bounds: bounds})
		if err != nil {
			return s.fail(ctx, err)
		}

		filtered, err := s.filter(insideArea(elements, bounds))
		if err != nil {
			return err
		}
		s.progress.Elements = filtered

		if len(filtered) >= config.MinElements {
			s.finish(StateSuccess, nil)
			return nil
		}

		next, ok := NextGridSize(gridSize, config)
		if !ok {
			s.finish(StateSuccess, nil)
			return nil
		}
		s.report()
		gridSize = next
	}
}

// insideArea drops elements positioned outside the area. A bounding box query also returns the nodes of ways
// that cross its edge, and those must not count towards the grid's results. Elements without a position are kept.
func insideArea(elements []*tourmap.Element, area osm.Bounds) []*tourmap.Element {
	kept := make([]*tourmap.Element, 0, len(elements))
	for _, el := range elements {
		position, ok := el.Position()
		if ok && !tourmap.IsInBounds(area, position.Lat, position.Lon) {
			continue
		}
		kept = append(kept, el)
	}
	return kept
}

// runRing fetches the ring between the previous radius and the current one, accumulating the results,
// until enough elements are found or the maximum radius is searched
func (s *search) runRing(ctx context.Context) errorsx.Error {
	config := s.explorer.config

	radius, previousRadius := config.InitialRadiusMetres, 0.0
	for {
		if previousRadius > 0 {
			err := s.wait(ctx, config.RadiusDelay+config.RingDelay)
			if err != nil {
				return s.fail(ctx, err)
			}
		}

		s.progress.RadiusMetres = radius
		s.progress.Area = tourmap.BoundsForRadius(s.req.Lat, s.req.Lng, radius)

		elements, err := s.fetch(ctx, tourmap.NewAroundQuery(s.req.Lat, s.req.Lng, radius, previousRadius))
		if err != nil {
			if ClassifyStatus(tilecache.StatusCodeOf(err)) == OutcomeBackoff && ctx.Err() == nil {
				return s.fallback(ctx, err)
			}
			return s.fail(ctx, err)
		}

		filtered, err := s.filter(elements)
		if err != nil {
			return err
		}
		s.progress.Elements = tourmap.DedupeElements(s.progress.Elements, filtered)

		if len(s.progress.Elements) >= config.MinElements {
			s.finish(StateSuccess, nil)
			return nil
		}

		next, ok := NextRadius(radius, len(s.progress.Elements), config)
		if !ok {
			s.finish(StateSuccess, nil)
			return nil
		}
		s.report()
		previousRadius, radius = radius, next
	}
}

// fallback runs one full-disc query after the rate limit retries are used up, once the upstream has had time to recover
func (s *search) fallback(ctx context.Context, rateLimitErr errorsx.Error) errorsx.Error {
	config := s.explorer.config

	s.progress.State = StateRateLimited
	s.progress.LastError = describeError(rateLimitErr)
	s.report()

	err := s.wait(ctx, config.FallbackDelay)
	if err != nil {
		return s.fail(ctx, err)
	}

	query := tourmap.RadiusQuery{Lat: s.req.Lat, Lng: s.req.Lng, RadiusMetres: config.FallbackRadiusMetres}
	elements, err := s.fetchOnce(ctx, query)
	if err != nil {
		s.explorer.logger.Warn("fallback search failed. Error: %s", err)
		if ctx.Err() != nil {
			return s.fail(ctx, err)
		}
		s.finish(StateRateLimited, rateLimitErr)
		return nil
	}

	filtered, err := s.filter(elements)
	if err != nil {
		return err
	}
	s.progress.Elements = tourmap.DedupeElements(s.progress.Elements, filtered)
	s.progress.RadiusMetres = config.FallbackRadiusMetres
	s.progress.Area = query.Area()
	s.progress.LastError = ""

	s.finish(StateSuccess, nil)
	return nil
}

// fail ends the search in the error state. Only cancellation is returned as an error: an upstream failure is a search result.
func (s *search) fail(ctx context.Context, err errorsx.Error) errorsx.Error {
	state := StateError
	if ClassifyStatus(tilecache.StatusCodeOf(err)) == OutcomeBackoff {
		state = StateRateLimited
	}
	s.finish(state, err)

	if ctx.Err() != nil {
		return errorsx.Wrap(ctx.Err())
	}

	s.explorer.logger.Info("search stopped. Error: %s", err)
	return nil
}

// fetch runs a query, retrying server errors and backing off on rate limiting
func (s *search) fetch(ctx context.Context, query tourmap.SpatialQuery) ([]*tourmap.Element, errorsx.Error) {
	config := s.explorer.config

	var serverRetries, rateLimitRetries int
	for {
		elements, err := s.fetchOnce(ctx, query)
		if err == nil {
			return elements, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		var delay time.Duration
		outcome := ClassifyStatus(tilecache.StatusCodeOf(err))
		switch outcome {
		case OutcomeBackoff:
			if rateLimitRetries >= config.MaxRateLimitRetries {
				return nil, err
			}
			rateLimitRetries++
			delay = RetryDelay(outcome, rateLimitRetries, config)
			s.progress.State = StateRateLimited
		case OutcomeRetry:
			if serverRetries >= config.MaxServerRetries {
				return nil, err
			}
			serverRetries++
			delay = RetryDelay(outcome, serverRetries, config)
		default:
			return nil, err
		}

		s.progress.LastError = describeError(err)
		s.report()
		s.explorer.logger.Debug("retrying %q in %s. Error: %s", query.CacheKey().String(), delay, err)

		sleepErr := s.wait(ctx, delay)
		if sleepErr != nil {
			return nil, sleepErr
		}
		s.progress.State = StateSearching
	}
}

// fetchOnce makes one upstream-bound request, respecting the minimum interval between requests
func (s *search) fetchOnce(ctx context.Context, query tourmap.SpatialQuery) ([]*tourmap.Element, errorsx.Error) {
	err := s.explorer.limiter.Wait(ctx)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	s.progress.Requests++
	start := time.Now()
	elements, fetchErr := s.explorer.fetcher.Fetch(ctx, query)
	metrics.ObserveUpstream("tourmap", query.Kind().String(), statusLabelCode(fetchErr), start)
	if fetchErr != nil {
		return nil, fetchErr
	}

	return elements, nil
}

func (s *search) wait(ctx context.Context, d time.Duration) errorsx.Error {
	if d <= 0 {
		return nil
	}

	err := s.explorer.sleep(ctx, d)
	if err != nil {
		return errorsx.Wrap(err)
	}
	return nil
}

func statusLabelCode(err errorsx.Error) int {
	if err == nil {
		return 200
	}
	statusErr, ok := tilecache.AsStatusError(err)
	if !ok {
		return 0
	}
	return statusErr.StatusCode
}

// describeError gives the message shown to the user
func describeError(err error) string {
	statusErr, ok := tilecache.AsStatusError(err)
	if ok {
		return statusErr.Message
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
