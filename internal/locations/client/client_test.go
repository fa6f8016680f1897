package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"location_mapper/internal/locations/fakesearch"
	"location_mapper/internal/locations/transport"
	"location_mapper/internal/taxonomy"
	"location_mapper/platform/apperr"
)

func newFake(t *testing.T) (*fakesearch.Server, *httptest.Server) {
	t.Helper()
	fake := fakesearch.New(fakesearch.Fixture{
		"lisboa": {
			{ID: "11", Name: "Lisboa", Level: "distrito", Children: []transport.Location{
				{ID: "1106", Name: "Loures", Level: "concelho", ParentIDs: []transport.FlexID{"11"}},
			}},
		},
	})
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)
	return fake, srv
}

func TestQueryREST(t *testing.T) {
	fake, srv := newFake(t)
	c := New(Options{URL: srv.URL + fakesearch.RESTPath}, nil)

	got, err := c.Query(context.Background(), "Lisboa")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "11", got[0].ID)
	assert.Equal(t, taxonomy.LevelDistrict, got[0].Level)
	require.Len(t, got[0].Children, 1)
	assert.Equal(t, taxonomy.LevelCouncil, got[0].Children[0].Level)
	assert.Equal(t, 1, fake.Hits("lisboa"))
}

func TestQueryGraphQL(t *testing.T) {
	fake, srv := newFake(t)
	c := New(Options{URL: srv.URL + fakesearch.GraphQLPath, Mode: ModeGraphQL}, nil)

	got, err := c.Query(context.Background(), "lisboa")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Lisboa", got[0].Name)
	assert.Equal(t, 1, fake.Hits("lisboa"))

	none, err := c.Query(context.Background(), "atlantis")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   apperr.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, apperr.KindRateLimited},
		{"server error", http.StatusBadGateway, `{}`, apperr.KindUnreachable},
		{"bad request", http.StatusBadRequest, `{}`, apperr.KindUnreachable},
		{"forbidden", http.StatusForbidden, `{}`, apperr.KindUnreachable},
		{"unknown shape", http.StatusOK, `{"results":[]}`, apperr.KindMalformed},
		{"html body", http.StatusOK, `<html></html>`, apperr.KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newFake(t)
			fake.Respond("porto", tt.status, tt.body)
			c := New(Options{URL: srv.URL + fakesearch.RESTPath}, nil)

			_, err := c.Query(context.Background(), "porto")
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.GetKind(err), err.Error())
		})
	}
}

func TestQueryNotFoundIsEmpty(t *testing.T) {
	fake, srv := newFake(t)
	fake.Respond("nowhere", http.StatusNotFound, ``)
	c := New(Options{URL: srv.URL + fakesearch.RESTPath}, nil)

	got, err := c.Query(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryTimeout(t *testing.T) {
	fake, srv := newFake(t)
	fake.Delay("slow", 200*time.Millisecond)
	c := New(Options{URL: srv.URL + fakesearch.RESTPath, Timeout: 20 * time.Millisecond}, nil)

	_, err := c.Query(context.Background(), "slow")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTimeout), err.Error())
}

func TestQueryUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := New(Options{URL: addr + fakesearch.RESTPath}, nil)
	_, err := c.Query(context.Background(), "lisboa")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnreachable), err.Error())
}

func TestQueryCancelledIsNotClassified(t *testing.T) {
	fake, srv := newFake(t)
	fake.Delay("slow", time.Second)
	c := New(Options{URL: srv.URL + fakesearch.RESTPath}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Query(ctx, "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, apperr.KindUnknown, apperr.GetKind(err))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeREST, m)

	m, err = ParseMode("GraphQL")
	require.NoError(t, err)
	assert.Equal(t, ModeGraphQL, m)

	_, err = ParseMode("soap")
	assert.Error(t, err)
}
