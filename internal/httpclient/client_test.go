package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avicenne-studio/bridge-hub/internal/bherr"
)

type pong struct {
	Msg string `json:"msg"`
}

func TestGetJSON_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		json.NewEncoder(w).Encode(pong{Msg: "hi"})
	}))
	defer srv.Close()

	c := New(Config{})
	out, err := GetJSON[pong](context.Background(), c, srv.URL, "/ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Msg)
}

func TestGetJSON_NonTwoXXReturnsHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(Config{})
	_, err := GetJSON[pong](context.Background(), c, srv.URL, "/ping", nil)
	require.Error(t, err)
	var status *bherr.HTTPStatus
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusInternalServerError, status.Code)
}

func TestPostJSON_SendsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "custom", r.Header.Get("X-Test"))
		var body pong
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "req", body.Msg)
		json.NewEncoder(w).Encode(pong{Msg: "ack"})
	}))
	defer srv.Close()

	c := New(Config{})
	out, err := PostJSON[pong](context.Background(), c, srv.URL, "/submit", pong{Msg: "req"}, map[string]string{"X-Test": "custom"})
	require.NoError(t, err)
	assert.Equal(t, "ack", out.Msg)
}

func TestClientFor_ReusesClientPerOrigin(t *testing.T) {
	c := New(Config{})
	a := c.clientFor("http://origin-a")
	b := c.clientFor("http://origin-a")
	assert.Same(t, a, b)
	other := c.clientFor("http://origin-b")
	assert.NotSame(t, a, other)
}
