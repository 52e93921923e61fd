package explorer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/tourmap-app/tilecache"
	"github.com/jamesrr39/tourmap-app/tourmap"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestTileQueryParams(t *testing.T) {
	tests := []struct {
		name  string
		query tourmap.SpatialQuery
		want  string
	}{
		{
			name:  "tile",
			query: tourmap.NewTileQuery(47.3769, 8.5417),
			want:  "lat=47.3769&lng=8.5417",
		}, {
			name:  "bounds",
			query: tourmap.BoundsQuery{Bounds: osm.Bounds{MinLat: 1, MaxLat: 2, MinLon: 3, MaxLon: 4.5}},
			want:  "maxLat=2&maxLng=4.5&minLat=1&minLng=3",
		}, {
			name:  "radius",
			query: tourmap.RadiusQuery{Lat: 1, Lng: 2, RadiusMetres: 25.4},
			want:  "lat=1&lng=2&radius=25",
		}, {
			name:  "ring",
			query: tourmap.RingQuery{Lat: 1, Lng: 2, InnerRadiusMetres: 25, OuterRadiusMetres: 75},
			want:  "innerRadius=25&lat=1&lng=2&radius=75",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := TileQueryParams(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, params.Encode())
		})
	}
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	doer := &httpextra.MockDoer{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "http://localhost:9000/api/tile?lat=1&lng=2&radius=25", req.URL.String())
			return newResponse(http.StatusOK, `{"elements": [{"type": "node", "id": 5, "lat": 1, "lon": 2, "tags": {"tourism": "zoo"}}], "generator": "test"}`), nil
		},
	}

	elements, err := NewHTTPFetcher(doer, "http://localhost:9000/").Fetch(context.Background(), tourmap.RadiusQuery{Lat: 1, Lng: 2, RadiusMetres: 25})
	require.NoError(t, err)

	require.Len(t, elements, 1)
	assert.Equal(t, tourmap.ElementKey{Type: osm.TypeNode, ID: 5}, elements[0].Key())
}

func TestHTTPFetcher_Fetch_errors(t *testing.T) {
	tests := []struct {
		name        string
		response    *http.Response
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "json error body",
			response:    newResponse(http.StatusRequestEntityTooLarge, `{"error": "narrow the search"}`),
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantMessage: "narrow the search",
		}, {
			name:        "plain text error body",
			response:    newResponse(http.StatusBadGateway, "bad gateway"),
			wantStatus:  http.StatusBadGateway,
			wantMessage: "bad gateway",
		}, {
			name:        "empty error body",
			response:    newResponse(http.StatusTooManyRequests, ""),
			wantStatus:  http.StatusTooManyRequests,
			wantMessage: "Too Many Requests",
		}, {
			name:        "malformed body",
			response:    newResponse(http.StatusOK, `{"elements": [`),
			wantStatus:  http.StatusBadGateway,
			wantMessage: "server returned a malformed response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &httpextra.MockDoer{
				DoFunc: func(req *http.Request) (*http.Response, error) {
					return tt.response, nil
				},
			}

			_, err := NewHTTPFetcher(doer, "http://localhost:9000").Fetch(context.Background(), tourmap.NewTileQuery(1, 2))
			require.Error(t, err)

			statusErr, ok := tilecache.AsStatusError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, statusErr.StatusCode)
			assert.Equal(t, tt.wantMessage, statusErr.Message)
		})
	}
}

type fakeResolver struct {
	result *tilecache.Result
	err    errorsx.Error
}

func (r *fakeResolver) Resolve(ctx context.Context, query tourmap.SpatialQuery) (*tilecache.Result, errorsx.Error) {
	return r.result, r.err
}

func TestResolverFetcher_Fetch(t *testing.T) {
	query := tourmap.NewTileQuery(1, 2)
	fetcher := NewResolverFetcher(&fakeResolver{result: &tilecache.Result{
		Key:     query.CacheKey(),
		Payload: []byte(`{"elements": [{"type": "way", "id": 7, "lat": 1, "lon": 2, "tags": {"historic": "castle"}}]}`),
	}})

	elements, err := fetcher.Fetch(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, osm.TypeWay, elements[0].Type)

	fetcher = NewResolverFetcher(&fakeResolver{err: errorsx.Wrap(&tilecache.StatusError{StatusCode: http.StatusTooManyRequests, Message: "slow down"})})
	_, err = fetcher.Fetch(context.Background(), query)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, tilecache.StatusCodeOf(err))
}
