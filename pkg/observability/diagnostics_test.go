package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/corpuscan/pkg/observability"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestDiagnosticsServer_Endpoints(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metric 1\n"))
	})

	srv, err := observability.NewDiagnosticsServer("127.0.0.1:0", metrics, nil)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, srv.Close()) })

	base := "http://" + srv.Addr()

	code, body := get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	code, _ = get(t, base+"/readyz")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "metric 1\n", body)
}

func TestDiagnosticsServer_NotReady(t *testing.T) {
	t.Parallel()

	failing := func(context.Context) error { return errors.New("store unavailable") }

	srv, err := observability.NewDiagnosticsServer("127.0.0.1:0", nil, nil, failing)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, srv.Close()) })

	code, body := get(t, "http://"+srv.Addr()+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"status":"unavailable"}`, body)

	code, _ = get(t, "http://"+srv.Addr()+"/metrics")
	assert.Equal(t, http.StatusNotFound, code)
}
