// Package renderer is the HTTP Render Client. Every outbound call waits on a
// token-bucket limiter before it is sent.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	v1 "clipforge/internal/contracts/renderer/v1"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

// APIKeyHeader carries the renderer credential.
const APIKeyHeader = "X-API-Key"

// Options configures HTTPClient.
type Options struct {
	BaseURL string
	APIKey  string
	RPS     float64
	Burst   int
	Timeout time.Duration
	// HTTPClient overrides the default client. Tests use httptest's.
	HTTPClient *http.Client
}

// HTTPClient implements ports.RenderClient and ports.ArtifactFetcher.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPClient(opt Options) *HTTPClient {
	if opt.Timeout == 0 {
		opt.Timeout = 30 * time.Second
	}
	hc := opt.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opt.Timeout}
	}
	limit := rate.Inf
	if opt.RPS > 0 {
		limit = rate.Limit(opt.RPS)
	}
	if opt.Burst <= 0 {
		opt.Burst = 1
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(opt.BaseURL, "/"),
		apiKey:  opt.APIKey,
		client:  hc,
		limiter: rate.NewLimiter(limit, opt.Burst),
	}
}

var (
	_ ports.RenderClient    = (*HTTPClient)(nil)
	_ ports.ArtifactFetcher = (*HTTPClient)(nil)
)

func (c *HTTPClient) Submit(ctx context.Context, spec ports.RenderSpec) (string, error) {
	const op = "renderer.submit"

	body, err := json.Marshal(v1.RenderRequest{
		JobID:       spec.JobID,
		Kind:        spec.Kind,
		SourceURL:   spec.SourceURL,
		ClipSeconds: spec.ClipSeconds,
		Transition:  spec.Transition,
		CaptionText: spec.CaptionText,
		MusicURL:    spec.MusicURL,
		Resolution:  spec.Resolution,
	})
	if err != nil {
		return "", errors.Wrap(err, op, "encode render request")
	}

	var out v1.CreateResponse
	if err := c.do(ctx, op, http.MethodPost, "/v1/renders", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New(errors.CodeRenderRejected, "renderer returned an empty render id")
	}
	return out.ID, nil
}

func (c *HTTPClient) GetStatus(ctx context.Context, externalID string) (ports.RenderStatus, error) {
	const op = "renderer.status"

	var out v1.StatusResponse
	if err := c.do(ctx, op, http.MethodGet, "/v1/renders/"+url.PathEscape(externalID), nil, &out); err != nil {
		return ports.RenderStatus{}, err
	}

	st := ports.RenderStatus{ResultURL: out.ResultURL, Error: out.Error}
	switch out.Status {
	case v1.StatusQueued:
		st.State = ports.RenderQueued
	case v1.StatusRendering:
		st.State = ports.RenderRendering
	case v1.StatusDone:
		st.State = ports.RenderDone
	case v1.StatusFailed:
		st.State = ports.RenderFailed
	default:
		return ports.RenderStatus{}, errors.Newf(errors.CodeRenderUnavailable, "unknown render status %q", out.Status).
			WithField("external_render_id", externalID)
	}
	return st, nil
}

// Fetch downloads a finished artifact. The caller closes body.
func (c *HTTPClient) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, string, int64, error) {
	const op = "renderer.fetch"

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", 0, errors.WrapWithCode(err, errors.CodeRenderUnavailable, op, "rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", 0, errors.WrapWithCode(err, errors.CodePersistence, op, "invalid result url")
	}
	if c.sameHost(rawURL) {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, "", 0, errors.WrapWithCode(err, errors.CodeRenderUnavailable, op, "artifact download failed")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		res.Body.Close()
		return nil, "", 0, errors.Newf(errors.CodePersistence, "artifact download returned http %d", res.StatusCode)
	}
	return res.Body, res.Header.Get("Content-Type"), res.ContentLength, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderUnavailable, op, "rate limiter wait")
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return errors.Wrap(err, op, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderUnavailable, op, "renderer unreachable")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderUnavailable, op, "read renderer response")
	}

	switch {
	case res.StatusCode >= 500:
		return errors.Newf(errors.CodeRenderUnavailable, "renderer http %d", res.StatusCode).
			WithField("body", providerMessage(raw))
	case res.StatusCode >= 400:
		msg := providerMessage(raw)
		if msg == "" {
			msg = fmt.Sprintf("renderer rejected request with http %d", res.StatusCode)
		}
		return errors.New(errors.CodeRenderRejected, msg).WithField("http_status", res.StatusCode)
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return errors.Newf(errors.CodeRenderUnavailable, "unexpected renderer http %d", res.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errors.WrapWithCode(err, errors.CodeRenderUnavailable, op, "decode renderer response")
	}
	return nil
}

func (c *HTTPClient) sameHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return u.Host == base.Host
}

func providerMessage(raw []byte) string {
	var e v1.ErrorResponse
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(raw))
}
