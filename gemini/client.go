package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/tourmap-app/metrics"
	"google.golang.org/genai"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/"
	DefaultAPIVersion = "v1beta"
	DefaultModel      = "gemini-1.5-flash"
	DefaultTimeout    = 60 * time.Second
)

var (
	ErrNoAPIKey = errors.New("no generative model API key configured")
	ErrNoAnswer = errors.New("model returned no answer")
)

// APIError is returned when the model API answers with an error status
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generative model API returned status %d: %s", e.StatusCode, e.Body)
}

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Text is the text of the first candidate's parts, joined
func (r *GenerateResponse) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}

	var texts []string
	for _, part := range r.Candidates[0].Content.Parts {
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, "")
}

type Model struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName,omitempty"`
	Description                string   `json:"description,omitempty"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods,omitempty"`
}

type Client struct {
	genai   *genai.Client
	model   string
	timeout time.Duration
}

// NewClient creates a client. A missing API key is not an error here, every call returns ErrNoAPIKey instead.
// No SDK client is created without a key, so the key is never picked up from the environment.
func NewClient(ctx context.Context, httpClient *http.Client, baseURL, apiKey, model string) (*Client, errorsx.Error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if model == "" {
		model = DefaultModel
	}

	client := &Client{
		model:   model,
		timeout: DefaultTimeout,
	}

	if apiKey == "" {
		return client, nil
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: DefaultAPIVersion,
		},
	})
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	client.genai = genaiClient

	return client, nil
}

func (c *Client) Model() string {
	return c.model
}

// GenerateContent sends a single-turn prompt to the model
func (c *Client) GenerateContent(ctx context.Context, prompt string) (*GenerateResponse, errorsx.Error) {
	if c.genai == nil {
		return nil, errorsx.Wrap(ErrNoAPIKey)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	metrics.ObserveUpstream("gemini", "generate", statusCodeOf(err), start)
	if err != nil {
		return nil, errorsx.Wrap(fromAPIError(err), "model", c.model)
	}

	response := fromGenerateContentResponse(resp)
	if response.Text() == "" {
		return nil, errorsx.Wrap(ErrNoAnswer, "model", c.model)
	}

	return response, nil
}

func (c *Client) ListModels(ctx context.Context) ([]Model, errorsx.Error) {
	if c.genai == nil {
		return nil, errorsx.Wrap(ErrNoAPIKey)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	page, err := c.genai.Models.List(ctx, nil)
	metrics.ObserveUpstream("gemini", "models", statusCodeOf(err), start)

	var models []Model
	for err == nil {
		for _, m := range page.Items {
			models = append(models, Model{
				Name:                       m.Name,
				DisplayName:                m.DisplayName,
				Description:                m.Description,
				SupportedGenerationMethods: m.SupportedActions,
			})
		}
		page, err = page.Next(ctx)
	}
	if !errors.Is(err, genai.ErrPageDone) {
		return nil, errorsx.Wrap(fromAPIError(err))
	}

	return models, nil
}

func fromGenerateContentResponse(resp *genai.GenerateContentResponse) *GenerateResponse {
	response := new(GenerateResponse)
	if resp == nil {
		return response
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}

		converted := Candidate{FinishReason: string(candidate.FinishReason)}
		if candidate.Content != nil {
			converted.Content.Role = candidate.Content.Role
			for _, part := range candidate.Content.Parts {
				// thoughts are not part of the answer
				if part == nil || part.Thought || part.Text == "" {
					continue
				}
				converted.Content.Parts = append(converted.Content.Parts, Part{Text: part.Text})
			}
		}
		response.Candidates = append(response.Candidates, converted)
	}

	return response
}

func asGenaiAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}

	return genai.APIError{}, false
}

func fromAPIError(err error) error {
	apiErr, ok := asGenaiAPIError(err)
	if !ok {
		return err
	}

	return &APIError{StatusCode: apiErr.Code, Body: apiErr.Message}
}

func statusCodeOf(err error) int {
	if err == nil {
		return http.StatusOK
	}

	apiErr, ok := asGenaiAPIError(err)
	if !ok {
		return 0
	}
	return apiErr.Code
}
