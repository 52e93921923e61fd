package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/tourmap-app/overpass"
	"github.com/jamesrr39/tourmap-app/tilecache"
	"github.com/jamesrr39/tourmap-app/tourmap"
)

// Fetcher returns the elements for a spatial query. Failures with an HTTP status carry a *tilecache.StatusError.
type Fetcher interface {
	Fetch(ctx context.Context, query tourmap.SpatialQuery) ([]*tourmap.Element, errorsx.Error)
}

// HTTPFetcher fetches from a tourmap server's tile endpoint
type HTTPFetcher struct {
	doer      httpextra.Doer
	serverURL string
}

func NewHTTPFetcher(doer httpextra.Doer, serverURL string) *HTTPFetcher {
	return &HTTPFetcher{doer, strings.TrimSuffix(serverURL, "/")}
}

// TileQueryParams gives the tile endpoint's query parameters for a query
func TileQueryParams(query tourmap.SpatialQuery) (url.Values, errorsx.Error) {
	formatFloat := func(f float64) string {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	params := url.Values{}
	switch q := query.(type) {
	case tourmap.TileQuery:
		params.Set("lat", formatFloat(q.Lat))
		params.Set("lng", formatFloat(q.Lng))
	case tourmap.BoundsQuery:
		params.Set("minLat", formatFloat(q.Bounds.MinLat))
		params.Set("minLng", formatFloat(q.Bounds.MinLon))
		params.Set("maxLat", formatFloat(q.Bounds.MaxLat))
		params.Set("maxLng", formatFloat(q.Bounds.MaxLon))
	case tourmap.RadiusQuery:
		params.Set("lat", formatFloat(q.Lat))
		params.Set("lng", formatFloat(q.Lng))
		params.Set("radius", strconv.Itoa(tourmap.RoundMetres(q.RadiusMetres)))
	case tourmap.RingQuery:
		params.Set("lat", formatFloat(q.Lat))
		params.Set("lng", formatFloat(q.Lng))
		params.Set("radius", strconv.Itoa(tourmap.RoundMetres(q.OuterRadiusMetres)))
		params.Set("innerRadius", strconv.Itoa(tourmap.RoundMetres(q.InnerRadiusMetres)))
	default:
		return nil, errorsx.Errorf("unsupported query type %T", query)
	}

	return params, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, query tourmap.SpatialQuery) ([]*tourmap.Element, errorsx.Error) {
	params, err := TileQueryParams(query)
	if err != nil {
		return nil, err
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, f.serverURL+"/api/tile?"+params.Encode(), nil)
	if reqErr != nil {
		return nil, errorsx.Wrap(reqErr)
	}

	resp, reqErr := f.doer.Do(req)
	if reqErr != nil {
		return nil, errorsx.Wrap(reqErr, "key", query.CacheKey().String())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorsx.Wrap(statusErrorFromResponse(resp), "key", query.CacheKey().String())
	}

	response := new(overpass.Response)
	reqErr = json.NewDecoder(resp.Body).Decode(response)
	if reqErr != nil {
		return nil, errorsx.Wrap(&tilecache.StatusError{
			StatusCode: http.StatusBadGateway,
			Message:    "server returned a malformed response",
			Err:        reqErr,
		})
	}

	return response.Elements, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func statusErrorFromResponse(resp *http.Response) *tilecache.StatusError {
	body := httpextra.GetBodyOrErrorMsg(resp)

	message := body
	errBody := new(errorBody)
	if json.Unmarshal([]byte(body), errBody) == nil && errBody.Error != "" {
		message = errBody.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &tilecache.StatusError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Err:        fmt.Errorf("server returned status %d", resp.StatusCode),
	}
}

// Resolver is implemented by *tilecache.Resolver
type Resolver interface {
	Resolve(ctx context.Context, query tourmap.SpatialQuery) (*tilecache.Result, errorsx.Error)
}

var _ Resolver = &tilecache.Resolver{}

// ResolverFetcher resolves queries in-process, without going through a server
type ResolverFetcher struct {
	resolver Resolver
}

func NewResolverFetcher(resolver Resolver) *ResolverFetcher {
	return &ResolverFetcher{resolver}
}

func (f *ResolverFetcher) Fetch(ctx context.Context, query tourmap.SpatialQuery) ([]*tourmap.Element, errorsx.Error) {
	result, err := f.resolver.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}

	response := new(overpass.Response)
	unmarshalErr := json.Unmarshal(result.Payload, response)
	if unmarshalErr != nil {
		return nil, errorsx.Wrap(unmarshalErr, "key", result.Key.String())
	}

	return response.Elements, nil
}
