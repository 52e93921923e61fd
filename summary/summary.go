package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/tourmap-app/gemini"
	"github.com/jamesrr39/tourmap-app/tagfilter"
	"github.com/jamesrr39/tourmap-app/tourmap"
)

// ErrorMessage is shown in place of a summary when one could not be produced
const ErrorMessage = "Error retrieving summary"

// Marker is a place the model's answer points at
type Marker struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// Report is a parsed model answer
type Report struct {
	// Narrative is the answer with the summary table taken out
	Narrative string   `json:"narrative"`
	Table     *Table   `json:"-"`
	Markers   []Marker `json:"markers"`
	// Failed is set when no answer could be retrieved, and Narrative is ErrorMessage
	Failed bool `json:"failed,omitempty"`
}

// ParseAnswer splits a model answer into its summary table, narrative and markers.
// Rows whose coordinates are not numbers stay in the table but do not become markers.
func ParseAnswer(answer string) *Report {
	lines := strings.Split(strings.ReplaceAll(answer, "\r\n", "\n"), "\n")

	span := findTable(lines)
	if span == nil {
		return &Report{
			Narrative: strings.TrimSpace(answer),
			Table:     &Table{},
			Markers:   []Marker{},
		}
	}

	var narrativeLines []string
	narrativeLines = append(narrativeLines, lines[:span.start]...)
	narrativeLines = append(narrativeLines, lines[span.end:]...)

	markers := []Marker{}
	for _, row := range span.table.Rows {
		lat, ok := parseLeadingFloat(row[ColumnLatitude])
		if !ok {
			continue
		}
		lon, ok := parseLeadingFloat(row[ColumnLongitude])
		if !ok {
			continue
		}
		if tourmap.ValidateCoords(lat, lon) != nil {
			continue
		}

		markers = append(markers, Marker{
			Name:        row[ColumnName],
			Description: row[ColumnDescription],
			Lat:         lat,
			Lon:         lon,
		})
	}

	return &Report{
		Narrative: strings.TrimSpace(strings.Join(narrativeLines, "\n")),
		Table:     span.table,
		Markers:   markers,
	}
}

// Answerer produces the model's raw text answer for a request about some elements
type Answerer interface {
	Answer(ctx context.Context, userPrompt string, elements []*tourmap.Element) (string, errorsx.Error)
}

// Generator is implemented by *gemini.Client
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (*gemini.GenerateResponse, errorsx.Error)
}

var _ Generator = &gemini.Client{}

// GeminiAnswerer asks the generative model directly
type GeminiAnswerer struct {
	generator   Generator
	taxonomy    *tagfilter.Taxonomy
	maxElements int
}

func NewGeminiAnswerer(generator Generator, taxonomy *tagfilter.Taxonomy, maxElements int) *GeminiAnswerer {
	return &GeminiAnswerer{generator, taxonomy, maxElements}
}

// Generate builds the prompt and returns the model's full response
func (a *GeminiAnswerer) Generate(ctx context.Context, userPrompt string, elements []*tourmap.Element) (*gemini.GenerateResponse, errorsx.Error) {
	prompt := BuildPrompt(userPrompt, elements, a.taxonomy, a.maxElements)

	response, err := a.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return response, nil
}

func (a *GeminiAnswerer) Answer(ctx context.Context, userPrompt string, elements []*tourmap.Element) (string, errorsx.Error) {
	response, err := a.Generate(ctx, userPrompt, elements)
	if err != nil {
		return "", errorsx.Wrap(err)
	}

	return response.Text(), nil
}

// Request is the body of the summary endpoint
type Request struct {
	RelevantData []*tourmap.Element `json:"relevantData"`
	Prompt       string             `json:"prompt"`
}

// Response is the successful answer of the summary endpoint
type Response struct {
	Answer     string             `json:"answer"`
	Candidates []gemini.Candidate `json:"candidates,omitempty"`
}

// HTTPAnswerer asks a tourmap server, which holds the API key
type HTTPAnswerer struct {
	doer      httpextra.Doer
	serverURL string
}

func NewHTTPAnswerer(doer httpextra.Doer, serverURL string) *HTTPAnswerer {
	return &HTTPAnswerer{doer, strings.TrimSuffix(serverURL, "/")}
}

func (a *HTTPAnswerer) Answer(ctx context.Context, userPrompt string, elements []*tourmap.Element) (string, errorsx.Error) {
	b, err := json.Marshal(Request{RelevantData: elements, Prompt: userPrompt})
	if err != nil {
		return "", errorsx.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.serverURL+"/api/gemini", bytes.NewReader(b))
	if err != nil {
		return "", errorsx.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.doer.Do(req)
	if err != nil {
		return "", errorsx.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorsx.Errorf("summary endpoint returned status %d: %s", resp.StatusCode, httpextra.GetBodyOrErrorMsg(resp))
	}

	response := new(Response)
	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return "", errorsx.Wrap(err)
	}

	return response.Answer, nil
}

// Summarizer turns elements into a Report. It never fails: problems are logged and reported as ErrorMessage.
type Summarizer struct {
	logger   *logpkg.Logger
	answerer Answerer
}

func NewSummarizer(logger *logpkg.Logger, answerer Answerer) *Summarizer {
	return &Summarizer{logger, answerer}
}

func (s *Summarizer) Summarize(ctx context.Context, userPrompt string, elements []*tourmap.Element) *Report {
	answer, err := s.answerer.Answer(ctx, userPrompt, elements)
	if err != nil {
		s.logger.Error("failed to get summary. Error: %s\nStack:\n%s", err, err.Stack())
		return &Report{
			Narrative: ErrorMessage,
			Table:     &Table{},
			Markers:   []Marker{},
			Failed:    true,
		}
	}

	return ParseAnswer(answer)
}
