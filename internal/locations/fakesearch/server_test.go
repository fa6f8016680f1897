package fakesearch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFixtureNormalizesTerms(t *testing.T) {
	fx, err := LoadFixture(strings.NewReader(`{"Évora": [{"id": 7, "name": "Évora", "level": "distrito"}]}`))
	require.NoError(t, err)
	require.Contains(t, fx, "evora")
	assert.Equal(t, "7", string(fx["evora"][0].ID))

	_, err = LoadFixture(strings.NewReader(`[]`))
	assert.Error(t, err)
}

func TestServerScriptThenFixture(t *testing.T) {
	fx, err := LoadFixture(strings.NewReader(`{"faro": [{"id": "8", "name": "Faro"}]}`))
	require.NoError(t, err)
	s := New(fx)
	s.Fail("Faro", http.StatusServiceUnavailable, 1)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, RESTPath+"?q=faro", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, RESTPath+"?q=FARO", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Locations []map[string]any `json:"locations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Locations, 1)
	assert.Equal(t, "Faro", body.Locations[0]["name"])
	assert.Equal(t, 2, s.Hits("faro"))
	assert.Equal(t, 2, s.TotalHits())
}

func TestServerRequiresQuery(t *testing.T) {
	s := New(nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, RESTPath, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, s.TotalHits())
}
