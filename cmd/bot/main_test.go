package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disneyvacation/wikihow-link-bot/internal/storage"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDigestRouter(t *testing.T) (*mux.Router, *storage.FileStorage) {
	t.Helper()
	archive, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	router := mux.NewRouter()
	router.HandleFunc("/digests", digestListHandler(archive)).Methods("GET")
	router.HandleFunc("/digests/{name}", digestHandler(archive)).Methods("GET")
	return router, archive
}

func TestDigestHandlers(t *testing.T) {
	router, archive := newDigestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digests", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"digests":[]}`, rec.Body.String())

	ctx := context.Background()
	require.NoError(t, archive.Store(ctx, "digest-2024-05-01.log", []byte("Post PASSED - a\n")))
	require.NoError(t, archive.Store(ctx, "digest-2024-05-08.log", []byte("Post FAILED - b\n")))

	tests := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{name: "List", path: "/digests", status: http.StatusOK, body: `{"digests":["digest-2024-05-01.log","digest-2024-05-08.log"]}` + "\n"},
		{name: "Retrieve", path: "/digests/digest-2024-05-08.log", status: http.StatusOK, body: "Post FAILED - b\n"},
		{name: "Missing", path: "/digests/digest-2023-01-01.log", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}
