// Package httpclient adapts go-resty to the engine's HTTPDoer contract
// for the REST node effector. Retry policy is deliberately NOT configured
// here — the workflow executor owns retries and timeouts per node kind,
// and a second retry loop underneath it would multiply attempts.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/relayforge/relayforge/engine/effector"
)

// Resty implements effector.HTTPDoer over one shared resty client.
type Resty struct {
	client *resty.Client
}

// New builds a Resty doer. A nil client gets a default resty.New().
func New(client *resty.Client) *Resty {
	if client == nil {
		client = resty.New()
	}
	return &Resty{client: client}
}

// Do performs one request. The response body is decoded as a JSON object
// when possible; a non-object or empty body yields a nil Body map. A
// non-2xx status is not an error here — the REST effector maps the status
// to its status-role output port and decides.
func (r *Resty) Do(ctx context.Context, req effector.HTTPRequest) (effector.HTTPResponse, error) {
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return effector.HTTPResponse{}, effector.Permanent(fmt.Errorf("httpclient: malformed url %q: %w", req.URL, err))
	}
	rr := r.client.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		rr.SetHeaders(req.Headers)
	}
	if req.Body != nil {
		rr.SetBody(req.Body)
	}

	resp, err := rr.Execute(req.Method, req.URL)
	if err != nil {
		return effector.HTTPResponse{}, fmt.Errorf("httpclient: %s %s: %w", req.Method, req.URL, err)
	}

	var body map[string]any
	if raw := resp.Body(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			body = nil
		}
	}
	return effector.HTTPResponse{StatusCode: resp.StatusCode(), Body: body}, nil
}
