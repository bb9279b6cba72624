package doctors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerList(t *testing.T) {
	h := NewHandler(NewDirectory(&stubLister{records: sampleRecords()}, nil, 0, nil), nil)
	srv := h.Routes()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?speciality=Gynecologist", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Doctors []Doctor `json:"doctors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Doctors, 1)
	assert.Equal(t, "doc2", body.Doctors[0].ID)
}

func TestHandlerGet(t *testing.T) {
	h := NewHandler(NewDirectory(&stubLister{records: sampleRecords()}, nil, 0, nil), nil)
	srv := h.Routes()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doc1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc Doctor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "Dr. Richard James", doc.Name)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRelatedAndSpecialities(t *testing.T) {
	h := NewHandler(NewDirectory(&stubLister{records: sampleRecords()}, nil, 0, nil), nil)
	srv := h.Routes()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doc2/related", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"doctors":[]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/specialities", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dermatologist")
}

func TestHandlerUpstreamFailure(t *testing.T) {
	h := NewHandler(NewDirectory(&stubLister{err: errors.New("down")}, nil, 0, nil), nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandlerInvalidateCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(listCacheKey, "[]"))
	h := NewHandler(NewDirectory(&stubLister{}, client, time.Minute, nil), nil)

	rec := httptest.NewRecorder()
	h.InvalidateCache(rec, httptest.NewRequest(http.MethodPost, "/admin/doctors/cache/invalidate", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, mr.Exists(listCacheKey))
}
