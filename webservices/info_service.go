package webservices

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/tourmap-app/explorer"
	"github.com/jamesrr39/tourmap-app/tagfilter"
	"github.com/jamesrr39/tourmap-app/tilecache"
	"github.com/jamesrr39/tourmap-app/tourmap"
)

func NewInfoService(logger *logpkg.Logger, taxonomy *tagfilter.Taxonomy, cacheConfig tilecache.Config, searchConfig explorer.Config) *InfoService {
	ws := &InfoService{logger, taxonomy, cacheConfig, searchConfig, chi.NewRouter()}
	ws.Get("/", ws.handleGet)

	return ws
}

type InfoService struct {
	logger       *logpkg.Logger
	taxonomy     *tagfilter.Taxonomy
	cacheConfig  tilecache.Config
	searchConfig explorer.Config
	chi.Router
}

type policyType struct {
	TileZoom         int     `json:"tileZoom"`
	TileQueryDelta   float64 `json:"tileQueryDelta"`
	MaxRawElements   int     `json:"maxRawElements"`
	MaxPayloadBytes  int     `json:"maxPayloadBytes"`
	IncludeRelations bool    `json:"includeRelations"`
	MinElements      int     `json:"minElements"`
	InitialGridSize  int     `json:"initialGridSize"`
	MaxGridSize      int     `json:"maxGridSize"`
	InitialRadius    float64 `json:"initialRadiusMetres"`
	MaxRadius        float64 `json:"maxRadiusMetres"`
	MinIntervalMS    int64   `json:"minIntervalMs"`
}

type infoType struct {
	Categories               []tagfilter.Category `json:"categories"`
	DefaultAllowedCategories []string             `json:"defaultAllowedCategories"`
	Policy                   policyType           `json:"policy"`
}

func (ws *InfoService) handleGet(w http.ResponseWriter, r *http.Request) {
	policy := policyType{
		TileZoom:         tourmap.DefaultTileZoom,
		TileQueryDelta:   tourmap.TileQueryDelta,
		MaxRawElements:   ws.cacheConfig.MaxRawElements,
		MaxPayloadBytes:  ws.cacheConfig.MaxPayloadBytes,
		IncludeRelations: ws.cacheConfig.QueryOptions.IncludeRelations,
		MinElements:      ws.searchConfig.MinElements,
		InitialGridSize:  ws.searchConfig.InitialGridSize,
		MaxGridSize:      ws.searchConfig.MaxGridSize,
		InitialRadius:    ws.searchConfig.InitialRadiusMetres,
		MaxRadius:        ws.searchConfig.MaxRadiusMetres,
		MinIntervalMS:    ws.searchConfig.MinInterval.Milliseconds(),
	}

	render.JSON(w, r, infoType{
		Categories:               ws.taxonomy.Categories(),
		DefaultAllowedCategories: ws.taxonomy.DefaultAllowedCategories(),
		Policy:                   policy,
	})
}
