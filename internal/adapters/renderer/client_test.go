package renderer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "clipforge/internal/contracts/renderer/v1"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

func newClient(t *testing.T, h http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(Options{BaseURL: srv.URL + "/", APIKey: "secret", HTTPClient: srv.Client()}), srv
}

func TestSubmit(t *testing.T) {
	var got v1.RenderRequest
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/renders", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(APIKeyHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"rnd_1"}`))
	})

	id, err := c.Submit(context.Background(), ports.RenderSpec{
		JobID: "job_1", Kind: "video", SourceURL: "http://src", ClipSeconds: 30,
		Transition: "fade", Resolution: "720p", MusicURL: "http://m.mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, "rnd_1", id)
	assert.Equal(t, "job_1", got.JobID)
	assert.Equal(t, 30, got.ClipSeconds)
	assert.Equal(t, "http://m.mp3", got.MusicURL)
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    errors.Code
		message string
	}{
		{"rejected with provider message", 422, `{"message":"unsupported codec"}`, errors.CodeRenderRejected, "unsupported codec"},
		{"rejected plain body", 400, `nope`, errors.CodeRenderRejected, "nope"},
		{"server error", 502, `bad gateway`, errors.CodeRenderUnavailable, "renderer http 502"},
		{"empty id", 200, `{}`, errors.CodeRenderRejected, "renderer returned an empty render id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Submit(context.Background(), ports.RenderSpec{JobID: "j"})
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.Equal(t, tt.message, errors.GetMessage(err))
		})
	}
}

func TestSubmitTransportError(t *testing.T) {
	c, srv := newClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.Submit(context.Background(), ports.RenderSpec{JobID: "j"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeRenderUnavailable, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestGetStatus(t *testing.T) {
	responses := map[string]string{
		"a": `{"id":"a","status":"rendering"}`,
		"b": `{"id":"b","status":"done","result_url":"http://cdn/b.mp4"}`,
		"c": `{"id":"c","status":"failed","error":"bad input"}`,
		"d": `{"id":"d","status":"exploded"}`,
	}
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/renders/"):]
		_, _ = w.Write([]byte(responses[id]))
	})
	ctx := context.Background()

	st, err := c.GetStatus(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, ports.RenderRendering, st.State)

	st, err = c.GetStatus(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, ports.RenderDone, st.State)
	assert.Equal(t, "http://cdn/b.mp4", st.ResultURL)

	st, err = c.GetStatus(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, ports.RenderFailed, st.State)
	assert.Equal(t, "bad input", st.Error)

	_, err = c.GetStatus(ctx, "d")
	assert.True(t, errors.IsRetryable(err))
}

func TestFetch(t *testing.T) {
	c, srv := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/out/b.mp4":
			assert.Equal(t, "secret", r.Header.Get(APIKeyHeader))
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("MP4DATA"))
		default:
			http.NotFound(w, r)
		}
	})

	body, ct, _, err := c.Fetch(context.Background(), srv.URL+"/out/b.mp4")
	require.NoError(t, err)
	defer body.Close()
	b, _ := io.ReadAll(body)
	assert.Equal(t, "MP4DATA", string(b))
	assert.Equal(t, "video/mp4", ct)

	_, _, _, err = c.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Equal(t, errors.CodePersistence, errors.GetCode(err))
}

func TestLimiterHonoursContext(t *testing.T) {
	c := NewHTTPClient(Options{BaseURL: "http://127.0.0.1:1", RPS: 0.001, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetStatus(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, errors.CodeRenderUnavailable, errors.GetCode(err))
}
