package testkit

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leeforge/billing/http/responder"
	"github.com/leeforge/billing/json"
)

// HTTPClient sends JSON requests to a handler served by httptest.
type HTTPClient struct {
	t      testing.TB
	server *httptest.Server
	client *http.Client
}

// NewHTTPClient serves handler until the test ends.
func NewHTTPClient(t testing.TB, handler http.Handler) *HTTPClient {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &HTTPClient{
		t:      t,
		server: server,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// URL is the server root.
func (c *HTTPClient) URL() string { return c.server.URL }

// Response is a fully read response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Envelope decodes the body as the standard response envelope.
func (r *Response) Envelope() (*responder.Response, error) {
	var env responder.Response
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// DecodeData decodes the envelope's data member into v.
func (r *Response) DecodeData(v any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, v)
}

func (c *HTTPClient) Get(path string, headers map[string]string) *Response {
	return c.Do(http.MethodGet, path, nil, headers)
}

func (c *HTTPClient) Post(path string, body any, headers map[string]string) *Response {
	return c.Do(http.MethodPost, path, body, headers)
}

func (c *HTTPClient) Put(path string, body any, headers map[string]string) *Response {
	return c.Do(http.MethodPut, path, body, headers)
}

func (c *HTTPClient) Patch(path string, body any, headers map[string]string) *Response {
	return c.Do(http.MethodPatch, path, body, headers)
}

func (c *HTTPClient) Delete(path string, headers map[string]string) *Response {
	return c.Do(http.MethodDelete, path, nil, headers)
}

// Do sends body as JSON when it is not nil. Transport failures fail the
// test.
func (c *HTTPClient) Do(method, path string, body any, headers map[string]string) *Response {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}
}
