package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/leeforge/billing/http/middleware"
	"github.com/leeforge/billing/http/responder"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
)

func endpoints() []plugin.Endpoint {
	return []plugin.Endpoint{
		{Name: "getCustomer", Method: http.MethodGet, Path: "/customers/{id}", Handler: func(w http.ResponseWriter, r *http.Request) {
			responder.OK(w, r, map[string]string{"id": chi.URLParam(r, "id")})
		}},
		{Name: "createCustomer", Method: http.MethodPost, Path: "/customers", Handler: func(w http.ResponseWriter, r *http.Request) {
			responder.Created(w, r, map[string]string{"id": "c1"})
		}},
		{Name: "explode", Method: http.MethodGet, Path: "/explode", Handler: func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}},
	}
}

func serve(h http.Handler, method, target string) (*httptest.ResponseRecorder, responder.Response) {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	var resp responder.Response
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	return rr, resp
}

func TestRouterMountsUnderBasePath(t *testing.T) {
	h := New("/api/billing/", endpoints(), nil)

	rr, resp := serve(h, http.MethodGet, "/api/billing/customers/c42")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"id": "c42"}, resp.Data)
	assert.NotEmpty(t, rr.Header().Get(middleware.TraceIDHeader))
	assert.Equal(t, rr.Header().Get(middleware.TraceIDHeader), resp.Meta.TraceId)

	rr, _ = serve(h, http.MethodPost, "/api/billing/customers")
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestRouterNotFoundAndMethodNotAllowed(t *testing.T) {
	h := New("/api/billing", endpoints(), nil)

	rr, resp := serve(h, http.MethodGet, "/api/billing/invoices")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, responder.ErrCodeRouteNotFound, resp.Error.Code)

	rr, _ = serve(h, http.MethodDelete, "/api/billing/customers")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouterRecoversPanics(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := New("", endpoints(), logging.FromZap(zap.New(core)))

	rr, resp := serve(h, http.MethodGet, "/explode")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, responder.ErrCodeInternalServer, resp.Error.Code)
	assert.NotEmpty(t, logs.FilterMessage("endpoint panicked").All())
}

func TestNormalizeBase(t *testing.T) {
	assert.Equal(t, "/", normalizeBase(""))
	assert.Equal(t, "/", normalizeBase("/"))
	assert.Equal(t, "/api/billing", normalizeBase("api/billing/"))
}
