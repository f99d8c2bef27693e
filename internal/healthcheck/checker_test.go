package healthcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name string
	err  error
}

func (c stubChecker) Name() string                  { return c.name }
func (c stubChecker) Check(_ context.Context) error { return c.err }

func TestRegistryReportsPerDependency(t *testing.T) {
	reg := NewRegistry(nil, time.Second)
	reg.Register(stubChecker{name: "up"})
	reg.Register(stubChecker{name: "down", err: errors.New("connection refused")})

	results := reg.Run(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusOK, results[0].Status)
	assert.Equal(t, StatusError, results[1].Status)
	assert.Equal(t, "connection refused", results[1].Detail)
	assert.False(t, Healthy(results))
}

func TestHealthyWhenAllPass(t *testing.T) {
	reg := NewRegistry(nil, time.Second)
	reg.Register(stubChecker{name: "a"})
	reg.Register(stubChecker{name: "b"})

	assert.True(t, Healthy(reg.Run(context.Background())))
}

func TestHTTPCheckerAcceptsClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Channel APIs commonly answer 404 on a bare GET; reachability
		// is the signal, not the status code.
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPChecker("channel_api", srv.URL)
	assert.Equal(t, "channel_api", c.Name())
	assert.NoError(t, c.Check(context.Background()))
}

func TestHTTPCheckerRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	assert.Error(t, NewHTTPChecker("responder", srv.URL).Check(context.Background()))
}

func TestHTTPCheckerUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	assert.Error(t, NewHTTPChecker("responder", srv.URL).Check(context.Background()))
}
