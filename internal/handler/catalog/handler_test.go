package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
)

func TestOutline(t *testing.T) {
	r := chi.NewRouter()
	New(catalog.NewMemoryStore(catalog.Seed()), zerolog.Nop()).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/catalog", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	var outline catalog.Outline
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &outline))
	assert.Equal(t, catalog.Seed(), outline)
}

type brokenStore struct{ catalog.Store }

func (brokenStore) Outline(context.Context) (catalog.Outline, error) {
	return catalog.Outline{}, errors.New("db down")
}

func TestOutlineStoreFailure(t *testing.T) {
	r := chi.NewRouter()
	New(brokenStore{}, zerolog.Nop()).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/catalog", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.JSONEq(t, `{"error":"catalog unavailable"}`, resp.Body.String())
}
