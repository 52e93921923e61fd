package tilecache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/semaphore"
	"github.com/jamesrr39/tourmap-app/metrics"
	"github.com/jamesrr39/tourmap-app/overpass"
	"github.com/jamesrr39/tourmap-app/tourmap"
	"github.com/jamesrr39/tourmap-app/tourmapdal"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxRawElements      = 50000
	DefaultMaxPayloadBytes     = 10 * 1024 * 1024
	DefaultUpstreamConcurrency = 4
)

// Upstream fetches raw results. *overpass.Client implements it.
type Upstream interface {
	Fetch(ctx context.Context, query *overpass.Query) (*overpass.Response, errorsx.Error)
}

var _ Upstream = &overpass.Client{}

type Config struct {
	// MaxRawElements rejects upstream responses with more elements than this, before post-processing
	MaxRawElements int
	// MaxPayloadBytes rejects processed results larger than this, before storing
	MaxPayloadBytes     int
	UpstreamConcurrency uint
	QueryOptions        overpass.QueryOptions
}

func DefaultConfig() Config {
	return Config{
		MaxRawElements:      DefaultMaxRawElements,
		MaxPayloadBytes:     DefaultMaxPayloadBytes,
		UpstreamConcurrency: DefaultUpstreamConcurrency,
		QueryOptions:        overpass.QueryOptions{IncludeRelations: true},
	}
}

// Result is a resolved query. Payload is the JSON document ({"elements": [...], ...}) exactly as stored.
type Result struct {
	Key     tourmap.CacheKey
	Payload []byte
	Hit     bool
}

// Resolver resolves spatial queries through the cache, going upstream on a miss
type Resolver struct {
	logger   *logpkg.Logger
	store    tourmapdal.CacheStore
	upstream Upstream
	config   Config
	sema     *semaphore.Semaphore
	group    singleflight.Group
}

func NewResolver(logger *logpkg.Logger, store tourmapdal.CacheStore, upstream Upstream, config Config) *Resolver {
	if config.UpstreamConcurrency == 0 {
		config.UpstreamConcurrency = DefaultUpstreamConcurrency
	}

	return &Resolver{
		logger:   logger,
		store:    store,
		upstream: upstream,
		config:   config,
		sema:     semaphore.NewSemaphore(config.UpstreamConcurrency),
	}
}

func (r *Resolver) Config() Config {
	return r.config
}

// Resolve returns the cached result for the query, or fetches, processes and stores it.
// Failures carry a *StatusError (see AsStatusError).
func (r *Resolver) Resolve(ctx context.Context, query tourmap.SpatialQuery) (*Result, errorsx.Error) {
	err := query.Validate()
	if err != nil {
		return nil, newStatusError(http.StatusBadRequest, err.Error(), err)
	}

	key := query.CacheKey()
	kindLabel := key.Kind.String()

	entry, err := r.store.Get(ctx, key.String())
	if err == nil {
		metrics.CacheLookupsTotal.WithLabelValues(kindLabel, "hit").Inc()
		return &Result{Key: key, Payload: entry.Data, Hit: true}, nil
	}

	if errorsx.Cause(err) != tourmapdal.ErrNotFound {
		// a broken cache read should not stop the user getting a result
		r.logger.Warn("cache read failed, treating as a miss. Error: %s", err)
	}

	metrics.CacheLookupsTotal.WithLabelValues(kindLabel, "miss").Inc()

	// concurrent misses for the same key share one upstream fetch.
	// The fetch is detached from the first caller's cancellation, the query timeout still applies.
	resultChan := r.group.DoChan(key.String(), func() (interface{}, error) {
		payload, err := r.fetchAndStore(context.WithoutCancel(ctx), query, key)
		if err != nil {
			return nil, err
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, newStatusError(http.StatusRequestTimeout, "request cancelled", ctx.Err())
	case result := <-resultChan:
		if result.Err != nil {
			metrics.CacheLookupsTotal.WithLabelValues(kindLabel, "error").Inc()
			// the error is shared between waiters, so each gets its own copy to wrap
			statusErr, ok := AsStatusError(result.Err)
			if ok {
				return nil, newStatusError(statusErr.StatusCode, statusErr.Message, statusErr.Err)
			}
			return nil, errorsx.Errorf("resolving %q: %s", key.String(), result.Err)
		}

		return &Result{Key: key, Payload: result.Val.([]byte), Hit: false}, nil
	}
}

func (r *Resolver) fetchAndStore(ctx context.Context, query tourmap.SpatialQuery, key tourmap.CacheKey) ([]byte, errorsx.Error) {
	upstreamQuery, err := overpass.BuildQuery(query, r.config.QueryOptions)
	if err != nil {
		return nil, newStatusError(http.StatusBadRequest, err.Error(), err)
	}

	response, err := r.fetch(ctx, upstreamQuery, key.Kind.String())
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	if remark := response.Remark(); remark != "" {
		r.logger.Warn("upstream remark for %q: %s", key.String(), remark)
	}

	rawCount := len(response.Elements)
	if r.config.MaxRawElements > 0 && rawCount > r.config.MaxRawElements {
		metrics.PayloadRejectionsTotal.WithLabelValues("raw_elements").Inc()
		return nil, newStatusError(
			http.StatusRequestEntityTooLarge,
			fmt.Sprintf("too many elements in the area (%d, the limit is %d), narrow the search", rawCount, r.config.MaxRawElements),
			ErrPayloadTooLarge,
		)
	}

	response.Elements = overpass.PostProcess(response.Elements, upstreamQuery.CenterMode)

	payload, marshalErr := json.Marshal(response)
	if marshalErr != nil {
		return nil, newStatusError(http.StatusInternalServerError, "failed to encode result", marshalErr)
	}

	if r.config.MaxPayloadBytes > 0 && len(payload) > r.config.MaxPayloadBytes {
		metrics.PayloadRejectionsTotal.WithLabelValues("payload_bytes").Inc()
		return nil, newStatusError(
			http.StatusRequestEntityTooLarge,
			fmt.Sprintf("result too large (%d bytes, the limit is %d), narrow the search", len(payload), r.config.MaxPayloadBytes),
			ErrPayloadTooLarge,
		)
	}

	err = r.store.Put(ctx, &tourmapdal.Entry{ID: key.String(), Data: payload})
	if err != nil {
		return nil, storeError(err)
	}

	r.logger.Debug("stored %q: %d raw elements, %d after processing, %d bytes", key.String(), rawCount, len(response.Elements), len(payload))

	return payload, nil
}

func (r *Resolver) fetch(ctx context.Context, query *overpass.Query, kind string) (*overpass.Response, errorsx.Error) {
	r.sema.Add()
	defer r.sema.Done()

	start := time.Now()
	response, err := r.upstream.Fetch(ctx, query)
	if err != nil {
		status := 0
		if statusErr, ok := errorsx.Cause(err).(*overpass.UpstreamStatusError); ok {
			status = statusErr.StatusCode
		}
		metrics.ObserveUpstream("overpass", kind, status, start)

		return nil, upstreamError(err)
	}
	metrics.ObserveUpstream("overpass", kind, http.StatusOK, start)

	return response, nil
}

// Purge removes every cached result
func (r *Resolver) Purge(ctx context.Context) (int64, errorsx.Error) {
	return r.store.Purge(ctx)
}

// Forget removes one cached result
func (r *Resolver) Forget(ctx context.Context, id string) errorsx.Error {
	return r.store.Delete(ctx, id)
}
