package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoResponse struct {
	Method string            `json:"method"`
	Body   map[string]string `json:"body"`
	Header string            `json:"header"`
}

func TestMakeJSONRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(echoResponse{
			Method: r.Method,
			Body:   body,
			Header: r.Header.Get("X-Api-Key"),
		})
	}))
	defer srv.Close()

	got, err := MakeJSONRequest[echoResponse](context.Background(), http.DefaultClient, http.MethodPost, srv.URL,
		map[string]string{"pair": "cUSD/USD"}, map[string]string{"X-Api-Key": "secret"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "cUSD/USD", got.Body["pair"])
	assert.Equal(t, "secret", got.Header)
}

func TestMakeJSONRequestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"feed down","details":"maintenance"}`))
	}))
	defer srv.Close()

	_, err := MakeJSONRequest[echoResponse](context.Background(), http.DefaultClient, http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.True(t, httpErr.IsServerError())
	assert.Equal(t, "HTTP 503: feed down - maintenance", httpErr.Error())
}

func TestMakeJSONRequestDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := MakeJSONRequest[echoResponse](context.Background(), http.DefaultClient, http.MethodGet, srv.URL, nil, nil)
	assert.ErrorContains(t, err, "failed to decode response")
}

func TestHTTPErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *HTTPError
		want string
	}{
		{name: "no body", err: &HTTPError{StatusCode: 404, Status: "404 Not Found"}, want: "HTTP 404: 404 Not Found"},
		{name: "json error only", err: &HTTPError{StatusCode: 400, Body: []byte(`{"error":"bad pair"}`)}, want: "HTTP 400: bad pair"},
		{name: "plain body", err: &HTTPError{StatusCode: 502, Status: "502 Bad Gateway", Body: []byte("upstream")}, want: "HTTP 502: 502 Bad Gateway - upstream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCreateHTTPClientWithTimeouts(t *testing.T) {
	client := CreateHTTPClientWithTimeouts()
	assert.NotZero(t, client.Timeout)
	require.NotNil(t, client.CheckRedirect)
	assert.Equal(t, http.ErrUseLastResponse, client.CheckRedirect(nil, nil))
}
