package webservices

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/tourmap-app/gemini"
	"github.com/jamesrr39/tourmap-app/summary"
	"github.com/jamesrr39/tourmap-app/tilecache"
	"github.com/jamesrr39/tourmap-app/tourmap"
)

// maxSummaryRequestBytes bounds the request body. relevantData can be a few thousand elements.
const maxSummaryRequestBytes = 20 * 1024 * 1024

type SummaryGenerator interface {
	Generate(ctx context.Context, userPrompt string, elements []*tourmap.Element) (*gemini.GenerateResponse, errorsx.Error)
}

type ModelLister interface {
	ListModels(ctx context.Context) ([]gemini.Model, errorsx.Error)
}

var (
	_ SummaryGenerator = &summary.GeminiAnswerer{}
	_ ModelLister      = &gemini.Client{}
)

type SummaryService struct {
	logger    *logpkg.Logger
	generator SummaryGenerator
	lister    ModelLister
	chi.Router
}

func NewSummaryService(logger *logpkg.Logger, generator SummaryGenerator, lister ModelLister) *SummaryService {
	s := &SummaryService{logger, generator, lister, chi.NewRouter()}

	s.Post("/", s.handlePost)
	s.Get("/", s.handleGetModels)

	return s
}

type modelsResponse struct {
	Models []gemini.Model `json:"models"`
}

func (s *SummaryService) handlePost(w http.ResponseWriter, r *http.Request) {
	request := new(summary.Request)
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSummaryRequestBytes)).Decode(request)
	if err != nil {
		writeJSONError(w, r, s.logger, errorsx.Wrap(err), http.StatusBadRequest)
		return
	}

	response, generateErr := s.generator.Generate(r.Context(), request.Prompt, request.RelevantData)
	if generateErr != nil {
		writeJSONError(w, r, s.logger, summaryError(generateErr), http.StatusInternalServerError)
		return
	}

	render.JSON(w, r, summary.Response{
		Answer:     response.Text(),
		Candidates: response.Candidates,
	})
}

func (s *SummaryService) handleGetModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.lister.ListModels(r.Context())
	if err != nil {
		writeJSONError(w, r, s.logger, summaryError(err), http.StatusInternalServerError)
		return
	}

	render.JSON(w, r, modelsResponse{models})
}

// summaryError keeps model API details out of the response, apart from a missing key, which the operator has to fix
func summaryError(err errorsx.Error) errorsx.Error {
	if errorsx.Cause(err) == gemini.ErrNoAPIKey {
		return err
	}
	return errorsx.Wrap(&tilecache.StatusError{
		StatusCode: http.StatusInternalServerError,
		Message:    summary.ErrorMessage,
		Err:        err,
	})
}
