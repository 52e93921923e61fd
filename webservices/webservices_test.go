package webservices

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/tourmap-app/explorer"
	"github.com/jamesrr39/tourmap-app/gemini"
	"github.com/jamesrr39/tourmap-app/nominatim"
	"github.com/jamesrr39/tourmap-app/overpass"
	"github.com/jamesrr39/tourmap-app/summary"
	"github.com/jamesrr39/tourmap-app/tagfilter"
	"github.com/jamesrr39/tourmap-app/tilecache"
	"github.com/jamesrr39/tourmap-app/tourmap"
	"github.com/jamesrr39/tourmap-app/tourmapdal"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logpkg.Logger {
	return logpkg.NewLogger(io.Discard, logpkg.LogLevelInfo)
}

func newTestStore(t *testing.T) *tourmapdal.SQLStore {
	store, err := tourmapdal.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "tiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func newUpstreamResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func doRequest(t *testing.T, handler http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	body := new(errorResponse)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(body))
	return body.Error
}

func TestTileService_missThenHit(t *testing.T) {
	var upstreamCalls int32
	doer := &httpextra.MockDoer{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&upstreamCalls, 1)
			return newUpstreamResponse(http.StatusOK, `{
				"version": 0.6,
				"elements": [
					{"type": "node", "id": 1, "lat": 47.3769, "lon": 8.5417, "tags": {"tourism": "museum", "name": "Landesmuseum"}},
					{"type": "node"}
				]
			}`), nil
		},
	}

	store := newTestStore(t)
	resolver := tilecache.NewResolver(newTestLogger(), store, overpass.NewClient(doer, "https://overpass.example/api/interpreter", 0), tilecache.DefaultConfig())
	service := NewTileService(newTestLogger(), resolver)

	first := doRequest(t, service, http.MethodGet, "/?lat=47.3769&lng=8.5417", nil)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "miss", first.Header().Get(cacheHeader))
	assert.Equal(t, "application/json", first.Header().Get("Content-Type"))

	entry, err := store.Get(context.Background(), "tile_47.37690_8.54170_z17")
	require.NoError(t, err)
	assert.JSONEq(t, first.Body.String(), string(entry.Data))

	response := new(overpass.Response)
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), response))
	// the single-key element is dropped by post-processing
	require.Len(t, response.Elements, 1)
	assert.Equal(t, "Landesmuseum", response.Elements[0].Name())

	second := doRequest(t, service, http.MethodGet, "/?lat=47.3769&lng=8.5417", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get(cacheHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())

	assert.Equal(t, int32(1), atomic.LoadInt32(&upstreamCalls))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTileService_errors(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		upstreamStatus int
		wantStatus     int
	}{
		{"missing coordinates", "/", 0, http.StatusBadRequest},
		{"not a number", "/?lat=abc&lng=1", 0, http.StatusBadRequest},
		{"out of range", "/?lat=91&lng=1", 0, http.StatusBadRequest},
		{"inner radius without radius", "/?lat=1&lng=1&innerRadius=5", 0, http.StatusBadRequest},
		{"inner radius not inside radius", "/?lat=1&lng=1&radius=50&innerRadius=75", 0, http.StatusBadRequest},
		{"incomplete bounds", "/?minLat=1&minLng=1&maxLat=2", 0, http.StatusBadRequest},
		{"upstream rate limited", "/?lat=1&lng=1", http.StatusTooManyRequests, http.StatusTooManyRequests},
		{"upstream failed", "/?lat=1&lng=1&radius=100", http.StatusInternalServerError, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &httpextra.MockDoer{
				DoFunc: func(req *http.Request) (*http.Response, error) {
					if tt.upstreamStatus == 0 {
						t.Error("unexpected upstream request")
					}
					return newUpstreamResponse(tt.upstreamStatus, "failed"), nil
				},
			}

			resolver := tilecache.NewResolver(newTestLogger(), newTestStore(t), overpass.NewClient(doer, "https://overpass.example/api/interpreter", 0), tilecache.DefaultConfig())
			rec := doRequest(t, NewTileService(newTestLogger(), resolver), http.MethodGet, tt.target, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, rec.Header().Get(cacheHeader))
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestParseSpatialQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  tourmap.SpatialQuery
	}{
		{
			name:  "point",
			query: "lat=47.3769&lng=8.5417",
			want:  tourmap.NewTileQuery(47.3769, 8.5417),
		}, {
			name:  "radius",
			query: "lat=1&lng=2&radius=250",
			want:  tourmap.RadiusQuery{Lat: 1, Lng: 2, RadiusMetres: 250},
		}, {
			name:  "ring",
			query: "lat=1&lng=2&radius=250&innerRadius=200",
			want:  tourmap.RingQuery{Lat: 1, Lng: 2, InnerRadiusMetres: 200, OuterRadiusMetres: 250},
		}, {
			name:  "bounds",
			query: "minLat=1&minLng=2&maxLat=3&maxLng=4",
			want:  tourmap.BoundsQuery{Bounds: osm.Bounds{MinLat: 1, MinLon: 2, MaxLat: 3, MaxLon: 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			got, err := parseSpatialQuery(req.URL.Query())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeSummaryGenerator struct {
	prompt   string
	elements []*tourmap.Element
}

func (g *fakeSummaryGenerator) Generate(ctx context.Context, userPrompt string, elements []*tourmap.Element) (*gemini.GenerateResponse, errorsx.Error) {
	g.prompt = userPrompt
	g.elements = elements
	return &gemini.GenerateResponse{
		Candidates: []gemini.Candidate{{Content: gemini.Content{Parts: []gemini.Part{{Text: "an answer"}}}, FinishReason: "STOP"}},
	}, nil
}

type fakeModelLister struct{}

func (l *fakeModelLister) ListModels(ctx context.Context) ([]gemini.Model, errorsx.Error) {
	return []gemini.Model{{Name: "models/test"}}, nil
}

func TestSummaryService(t *testing.T) {
	generator := new(fakeSummaryGenerator)
	service := NewSummaryService(newTestLogger(), generator, new(fakeModelLister))

	rec := doRequest(t, service, http.MethodPost, "/", strings.NewReader(`{"prompt": "what to see", "relevantData": [{"type": "node", "id": 1, "lat": 1, "lon": 2}]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	response := new(summary.Response)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(response))
	assert.Equal(t, "an answer", response.Answer)
	assert.Len(t, response.Candidates, 1)
	assert.Equal(t, "what to see", generator.prompt)
	assert.Len(t, generator.elements, 1)

	rec = doRequest(t, service, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"models": [{"name": "models/test"}]}`, rec.Body.String())

	rec = doRequest(t, service, http.MethodPost, "/", strings.NewReader(`{"prompt": `))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryService_noAPIKey(t *testing.T) {
	client, err := gemini.NewClient(context.Background(), nil, "", "", "")
	require.NoError(t, err)
	service := NewSummaryService(newTestLogger(), summary.NewGeminiAnswerer(client, tagfilter.NewDefaultTaxonomy(), 0), client)

	rec := doRequest(t, service, http.MethodPost, "/", strings.NewReader(`{"prompt": "hi", "relevantData": []}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeError(t, rec), gemini.ErrNoAPIKey.Error())

	rec = doRequest(t, service, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type failingSummaryGenerator struct {
	err errorsx.Error
}

func (g *failingSummaryGenerator) Generate(ctx context.Context, userPrompt string, elements []*tourmap.Element) (*gemini.GenerateResponse, errorsx.Error) {
	return nil, g.err
}

func (g *failingSummaryGenerator) ListModels(ctx context.Context) ([]gemini.Model, errorsx.Error) {
	return nil, g.err
}

func TestSummaryService_upstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  errorsx.Error
	}{
		{"api error", errorsx.Wrap(&gemini.APIError{StatusCode: http.StatusForbidden, Body: "API key not valid: AIza-secret"})},
		{"no answer", errorsx.Wrap(gemini.ErrNoAnswer, "model", "test-model")},
		{"transport", errorsx.Errorf("dial tcp 10.0.0.1:443: connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator := &failingSummaryGenerator{tt.err}
			service := NewSummaryService(newTestLogger(), generator, generator)

			for _, rec := range []*httptest.ResponseRecorder{
				doRequest(t, service, http.MethodPost, "/", strings.NewReader(`{"prompt": "hi", "relevantData": []}`)),
				doRequest(t, service, http.MethodGet, "/", nil),
			} {
				assert.Equal(t, http.StatusInternalServerError, rec.Code)
				assert.Equal(t, summary.ErrorMessage, decodeError(t, rec))
			}
		})
	}
}

type fakeGeocoder struct{}

func (g *fakeGeocoder) Search(ctx context.Context, query string) (*nominatim.Place, errorsx.Error) {
	switch query {
	case "Zurich":
		return &nominatim.Place{Lat: 47.37, Lon: 8.54, DisplayName: "Zürich"}, nil
	case "Atlantis":
		return nil, errorsx.Wrap(nominatim.ErrNoResults)
	default:
		return nil, errorsx.Errorf("geocoder unavailable")
	}
}

func TestGeocodeService(t *testing.T) {
	service := NewGeocodeService(newTestLogger(), new(fakeGeocoder))

	rec := doRequest(t, service, http.MethodGet, "/?q=Zurich", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lat": 47.37, "lon": 8.54, "displayName": "Zürich"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, doRequest(t, service, http.MethodGet, "/?q=Atlantis", nil).Code)
	assert.Equal(t, http.StatusBadGateway, doRequest(t, service, http.MethodGet, "/?q=Elsewhere", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, service, http.MethodGet, "/", nil).Code)
}

func TestInfoService(t *testing.T) {
	service := NewInfoService(newTestLogger(), tagfilter.NewDefaultTaxonomy(), tilecache.DefaultConfig(), explorer.DefaultConfig())

	rec := doRequest(t, service, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	info := new(infoType)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(info))
	assert.Equal(t, tagfilter.DefaultAllowedCategories, info.DefaultAllowedCategories)
	assert.Len(t, info.Categories, len(tagfilter.DefaultCategories))
	assert.Equal(t, 50000, info.Policy.MaxRawElements)
	assert.Equal(t, 21, info.Policy.MaxGridSize)
	assert.Equal(t, int64(1500), info.Policy.MinIntervalMS)
}

func TestAdminService(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, id := range []string{"tile_1.00000_2.00000_z17", "radius_1.00000_2.00000_r100"} {
		require.NoError(t, store.Put(ctx, &tourmapdal.Entry{ID: id, Data: []byte(`{"elements":[]}`)}))
	}

	service := NewAdminService(newTestLogger(), store, "admin")

	rec := doRequest(t, service, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cached results: 2")
	assert.Contains(t, rec.Body.String(), "radius_1.00000_2.00000_r100")

	rec = doRequest(t, service, http.MethodDelete, "/cache/tile_1.00000_2.00000_z17", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, service, http.MethodDelete, "/cache/tile_1.00000_2.00000_z17", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, service, http.MethodPost, "/cache/purge", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted": 1}`, rec.Body.String())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
