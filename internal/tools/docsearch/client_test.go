package docsearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*SearchClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv(TextSearchEndpointEnvVar, server.URL+"/search-text")
	t.Setenv(ImageSearchEndpointEnvVar, server.URL+"/search-images")

	return NewSearchClient(logrus.New()), server
}

func TestSearchText(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search-text", r.URL.Path)
		assert.Equal(t, "ancient temple", r.URL.Query().Get("query"))
		assert.Equal(t, "3", r.URL.Query().Get("top_k"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"content": "passage one"},
			{"content": ""},
			{"content": "passage two"}
		]}`))
	})

	passages, err := client.SearchText(context.Background(), "ancient temple", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"passage one", "passage two"}, passages, "empty content entries are dropped")
}

func TestSearchTextDefaultTopK(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("top_k"))
		_, _ = w.Write([]byte(`{"results": []}`))
	})

	passages, err := client.SearchText(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestSearchImages(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search-images", r.URL.Path)
		assert.Equal(t, "0.6", r.URL.Query().Get("min_score"))

		_, _ = w.Write([]byte(`{"results": [
			{"file_url": "http://minio.test/docs/a.png", "score": 0.9},
			{"file_url": "", "score": 0.7}
		]}`))
	})

	urls, err := client.SearchImages(context.Background(), "facade", 5, 0.6)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://minio.test/docs/a.png"}, urls)
}

func TestSearchImagesDefaultMinScore(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0.4", r.URL.Query().Get("min_score"))
		_, _ = w.Write([]byte(`{"results": []}`))
	})

	_, err := client.SearchImages(context.Background(), "q", 5, 0)
	require.NoError(t, err)
}

func TestSearchErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.SearchText(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSearchMalformedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.SearchText(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestUnconfiguredEndpoints(t *testing.T) {
	t.Setenv(TextSearchEndpointEnvVar, "")
	t.Setenv(ImageSearchEndpointEnvVar, "")
	client := NewSearchClient(logrus.New())

	assert.False(t, client.HasTextSearch())
	assert.False(t, client.HasImageSearch())

	_, err := client.SearchText(context.Background(), "q", 1)
	assert.Error(t, err)

	_, err = client.SearchImages(context.Background(), "q", 1, 0.5)
	assert.Error(t, err)
}

func TestSearchTextServesRepeatsFromCache(t *testing.T) {
	requests := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [{"content": "cached passage"}]}`))
	})

	first, err := client.SearchText(context.Background(), "repeated query", 2)
	require.NoError(t, err)
	second, err := client.SearchText(context.Background(), "repeated query", 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, requests, "second identical search should not hit the endpoint")
}
