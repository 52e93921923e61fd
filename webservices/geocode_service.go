package webservices

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/tourmap-app/nominatim"
)

// Geocoder is implemented by *nominatim.Client
type Geocoder interface {
	Search(ctx context.Context, query string) (*nominatim.Place, errorsx.Error)
}

var _ Geocoder = &nominatim.Client{}

type GeocodeService struct {
	logger   *logpkg.Logger
	geocoder Geocoder
	chi.Router
}

func NewGeocodeService(logger *logpkg.Logger, geocoder Geocoder) *GeocodeService {
	s := &GeocodeService{logger, geocoder, chi.NewRouter()}

	s.Get("/", s.handleGet)

	return s
}

func (s *GeocodeService) handleGet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSONError(w, r, s.logger, errorsx.Errorf("missing query parameter \"q\""), http.StatusBadRequest)
		return
	}

	place, err := s.geocoder.Search(r.Context(), query)
	if err != nil {
		statusCode := http.StatusBadGateway
		if errorsx.Cause(err) == nominatim.ErrNoResults {
			statusCode = http.StatusNotFound
		}
		writeJSONError(w, r, s.logger, err, statusCode)
		return
	}

	render.JSON(w, r, place)
}
