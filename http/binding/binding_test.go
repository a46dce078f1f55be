package binding

import (
	stdjson "encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/billing/errors"
)

type recordUsageBody struct {
	CustomerID string  `json:"customerId" validate:"required"`
	Feature    string  `json:"feature" validate:"required"`
	Quantity   float64 `json:"quantity" validate:"gt=0"`
	Source     string  `json:"source" default:"api"`
}

func jsonRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/usage", strings.NewReader(body))
}

func TestJSON(t *testing.T) {
	var got recordUsageBody
	err := JSON(jsonRequest(`{"customerId":"c1","feature":"seats","quantity":2}`), &got)
	require.NoError(t, err)
	assert.Equal(t, recordUsageBody{CustomerID: "c1", Feature: "seats", Quantity: 2, Source: "api"}, got)
}

func TestJSONValidation(t *testing.T) {
	var got recordUsageBody
	err := JSON(jsonRequest(`{"feature":"seats","quantity":0}`), &got)

	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	fields := make([]string, len(ve))
	for i, e := range ve {
		fields[i] = e.Field
	}
	assert.ElementsMatch(t, []string{"customerId", "quantity"}, fields)

	app := AsAppError(err)
	assert.True(t, errors.IsValidation(app))
}

func TestJSONBadInput(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"no body", httptest.NewRequest(http.MethodPost, "/usage", nil)},
		{"empty body", jsonRequest("")},
		{"malformed", jsonRequest(`{"customerId":`)},
		{"wrong type", jsonRequest(`{"customerId":"c1","feature":"seats","quantity":"two"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got recordUsageBody
			err := JSON(tt.req, &got)
			var be *BindError
			require.ErrorAs(t, err, &be)
			assert.True(t, errors.IsValidation(AsAppError(err)))
		})
	}
}

func TestJSONOptions(t *testing.T) {
	var got recordUsageBody
	err := JSON(jsonRequest(`{"customerId":"c1","feature":"seats","quantity":1,"extra":true}`), &got, WithDisallowUnknownFields())
	require.Error(t, err)

	var loose map[string]any
	require.NoError(t, JSON(jsonRequest(`{"n":12345678901234567890}`), &loose, WithUseNumber()))
	assert.IsType(t, stdjson.Number(""), loose["n"])
}

type plan string

func (p *plan) UnmarshalQuery(s string) error {
	*p = plan(strings.ToLower(s))
	return nil
}

type usageQuery struct {
	Feature  string    `query:"feature"`
	Since    time.Time `query:"since"`
	Limit    int       `query:"limit" default:"50" validate:"lte=500"`
	Statuses []string  `query:"status"`
	Plan     plan      `query:"plan"`
	Active   *bool     `json:"active"`
	Internal string    `query:"-"`
	Page     uint
}

func TestQueryParser(t *testing.T) {
	values := url.Values{
		"feature":  {"seats"},
		"since":    {"2025-03-01T10:00:00+02:00"},
		"status":   {"active,trialing"},
		"plan":     {"PRO"},
		"active":   {"true"},
		"Internal": {"x"},
		"page":     {"3"},
	}

	var got usageQuery
	require.NoError(t, NewQueryParser().Parse(values, &got))
	assert.Equal(t, "seats", got.Feature)
	assert.Equal(t, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), got.Since)
	assert.Equal(t, 50, got.Limit)
	assert.Equal(t, []string{"active", "trialing"}, got.Statuses)
	assert.Equal(t, plan("pro"), got.Plan)
	require.NotNil(t, got.Active)
	assert.True(t, *got.Active)
	assert.Empty(t, got.Internal)
	assert.Equal(t, uint(3), got.Page)
}

func TestQueryArrayStrategy(t *testing.T) {
	values := url.Values{"status": {"a,b", "c"}}

	qp := NewQueryParser()
	qp.SetArrayStrategy(ArrayStrategyMultiple)
	var got usageQuery
	require.NoError(t, qp.Parse(values, &got))
	assert.Equal(t, []string{"a,b", "c"}, got.Statuses)

	qp.SetArrayStrategy(ArrayStrategyComma)
	got = usageQuery{}
	require.NoError(t, qp.Parse(values, &got))
	assert.Equal(t, []string{"a", "b"}, got.Statuses)
}

func TestQueryErrors(t *testing.T) {
	var got usageQuery
	assert.Error(t, NewQueryParser().Parse(url.Values{"limit": {"many"}}, &got))
	assert.Error(t, NewQueryParser().Parse(url.Values{"since": {"yesterday"}}, &got))
	assert.Error(t, NewQueryParser().Parse(url.Values{}, got))

	req := httptest.NewRequest(http.MethodGet, "/usage/c1?limit=1000", nil)
	err := Query(req, &got)
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "limit", ve[0].Field)
}
