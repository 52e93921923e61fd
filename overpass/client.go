package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/tourmap-app/tourmap"
)

const (
	DefaultInterpreterURL = "https://overpass-api.de/api/interpreter"
	// DefaultMaxResponseBytes bounds how much of an upstream response is read into memory
	DefaultMaxResponseBytes = 64 * 1024 * 1024

	userAgent = "tourmap-app (+https://github.com/jamesrr39/tourmap-app)"
)

var (
	ErrTimeout           = errors.New("upstream request timed out")
	ErrResponseTooLarge  = errors.New("upstream response too large")
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// UpstreamStatusError is returned when Overpass answers with a non-2xx status
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Response is an Overpass JSON response. Top-level fields other than "elements" are kept as-is.
type Response struct {
	Elements []*tourmap.Element
	Extra    map[string]json.RawMessage
}

func (r *Response) UnmarshalJSON(b []byte) error {
	fields := make(map[string]json.RawMessage)
	err := json.Unmarshal(b, &fields)
	if err != nil {
		return err
	}

	elementsJSON, ok := fields["elements"]
	if ok {
		delete(fields, "elements")
		err = json.Unmarshal(elementsJSON, &r.Elements)
		if err != nil {
			return err
		}
	}

	r.Extra = fields
	return nil
}

func (r *Response) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{}, len(r.Extra)+1)
	for k, v := range r.Extra {
		fields[k] = v
	}

	elements := r.Elements
	if elements == nil {
		elements = []*tourmap.Element{}
	}
	fields["elements"] = elements

	return json.Marshal(fields)
}

// Remark returns the "remark" field Overpass uses to report server-side problems (such as its own timeout) in a 200 response
func (r *Response) Remark() string {
	raw, ok := r.Extra["remark"]
	if !ok {
		return ""
	}

	var remark string
	err := json.Unmarshal(raw, &remark)
	if err != nil {
		return ""
	}
	return remark
}

type Client struct {
	doer             httpextra.Doer
	interpreterURL   string
	maxResponseBytes int64
}

func NewClient(doer httpextra.Doer, interpreterURL string, maxResponseBytes int64) *Client {
	if interpreterURL == "" {
		interpreterURL = DefaultInterpreterURL
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = DefaultMaxResponseBytes
	}

	return &Client{doer, interpreterURL, maxResponseBytes}
}

// Fetch runs the query against the interpreter, bounded by the query's timeout
func (c *Client) Fetch(ctx context.Context, query *Query) (*Response, errorsx.Error) {
	ctx, cancel := context.WithTimeout(ctx, query.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("data", query.Text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.interpreterURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.doer.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, errorsx.Wrap(ErrTimeout, "timeout", query.Timeout.String())
		}
		return nil, errorsx.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := httpextra.GetBodyOrErrorMsg(resp)
		if len(body) > 500 {
			body = body[:500]
		}
		return nil, errorsx.Wrap(&UpstreamStatusError{StatusCode: resp.StatusCode, Body: body})
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, errorsx.Wrap(ErrTimeout, "timeout", query.Timeout.String())
		}
		return nil, errorsx.Wrap(err)
	}

	if int64(len(b)) > c.maxResponseBytes {
		return nil, errorsx.Wrap(ErrResponseTooLarge, "maxBytes", c.maxResponseBytes)
	}

	response := new(Response)
	err = json.Unmarshal(b, response)
	if err != nil {
		return nil, errorsx.Wrap(ErrMalformedResponse, "cause", err.Error())
	}

	return response, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
