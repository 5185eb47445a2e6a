package httpclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_PostsJSONAndDecodesResponse(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	resp, err := Do(t.Context(), server.Client(), Request{
		URL:     server.URL,
		Headers: map[string]string{"X-Token": "secret"},
		Body:    map[string]any{"order_id": "o-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"ok": true}, resp.JSON)
	assert.Equal(t, "o-1", received["order_id"])
}

func TestDo_NonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("accepted"))
	}))
	defer server.Close()

	resp, err := Do(t.Context(), nil, Request{Method: "get", URL: server.URL})
	require.NoError(t, err)

	assert.Nil(t, resp.JSON)
	assert.Equal(t, "accepted", resp.Body)
}

func TestDo_ErrorStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		clientError bool
	}{
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, true},
		{"redirect not followed as success", http.StatusNotModified, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := Do(t.Context(), server.Client(), Request{URL: server.URL})
			require.Error(t, err)

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Contains(t, err.Error(), strconv.Itoa(tt.status))
			assert.Equal(t, tt.clientError, IsClientError(err))
		})
	}
}

func TestDo_ResponseSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size := MaxResponseBytes
		if r.URL.Path == "/over" {
			size++
		}

		_, _ = w.Write([]byte(strings.Repeat("x", size)))
	}))
	defer server.Close()

	resp, err := Do(t.Context(), server.Client(), Request{Method: http.MethodGet, URL: server.URL + "/exact"})
	require.NoError(t, err)
	assert.Len(t, resp.Body, MaxResponseBytes)

	_, err = Do(t.Context(), server.Client(), Request{Method: http.MethodGet, URL: server.URL + "/over"})
	require.ErrorIs(t, err, ErrResponseTooLarge)
}
