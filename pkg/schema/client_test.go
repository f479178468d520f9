package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commandlayer/runtime-core/pkg/coreerr"
)

// routeTransport sends every request to target while preserving the
// requested host in req.Host, so handlers can act per hostname.
type routeTransport struct {
	target *url.URL
	next   http.RoundTripper

	mu    sync.Mutex
	hosts []string
}

func (rt *routeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.hosts = append(rt.hosts, req.URL.Host)
	rt.mu.Unlock()

	out := req.Clone(req.Context())
	out.Host = req.URL.Host
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	return rt.next.RoundTrip(out)
}

func (rt *routeTransport) requested() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.hosts...)
}

func newTestClient(t *testing.T, schemaHost string, h http.Handler) (*Client, *routeTransport) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	rt := &routeTransport{target: target, next: srv.Client().Transport}
	c, err := NewClient(Options{
		SchemaHost: schemaHost,
		Timeout:    2 * time.Second,
		HTTPClient: &http.Client{Transport: rt},
	})
	require.NoError(t, err)
	return c, rt
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func TestNewClient_RejectsBadHost(t *testing.T) {
	for _, host := range []string{"", "schemas.test", "ftp://schemas.test", "http://"} {
		_, err := NewClient(Options{SchemaHost: host})
		assert.Error(t, err, host)
	}
}

func TestNewClient_TagsCallerLogger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	c, err := NewClient(Options{
		SchemaHost: srv.URL,
		Logger:     slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	require.NoError(t, err)

	_, err = c.FetchJSON(context.Background(), srv.URL+"/a.json")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "component=schema")
	assert.Contains(t, buf.String(), "schema fetch attempt failed")
}

func TestFetchJSON_DecodesWithNumbers(t *testing.T) {
	c, _ := newTestClient(t, "https://schemas.test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		writeJSON(w, `{"type":"object","maxProperties":3}`)
	}))

	doc, err := c.FetchJSON(context.Background(), "https://schemas.test/a.json")
	require.NoError(t, err)
	m, ok := doc.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", m["type"])
	assert.Equal(t, json.Number("3"), m["maxProperties"])
}

func TestFetchJSON_CachesSuccess(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, "https://schemas.test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, `{}`)
	}))

	for i := 0; i < 3; i++ {
		_, err := c.FetchJSON(context.Background(), "https://schemas.test/a.json")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchJSON_SingleFlight(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, "https://schemas.test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		writeJSON(w, `{"ok":true}`)
	}))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.FetchJSON(context.Background(), "https://schemas.test/shared.json")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchJSON_FailuresAreNotCached(t *testing.T) {
	var healthy atomic.Bool
	c, _ := newTestClient(t, "https://schemas.test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, `{}`)
	}))

	_, err := c.FetchJSON(context.Background(), "https://schemas.test/a.json")
	require.Error(t, err)
	assert.True(t, coreerr.HasCode(err, coreerr.ErrSchemaFetch))

	healthy.Store(true)
	_, err = c.FetchJSON(context.Background(), "https://schemas.test/a.json")
	require.NoError(t, err)
}

func TestFetchJSON_WWWFallback(t *testing.T) {
	c, rt := newTestClient(t, "https://www.schemas.test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host == "www.schemas.test" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, `{"served_by":"apex"}`)
	}))

	doc, err := c.FetchJSON(context.Background(), "https://www.schemas.test/x.json")
	require.NoError(t, err)
	assert.Equal(t, "apex", doc.(map[string]any)["served_by"])
	assert.Equal(t, []string{"www.schemas.test", "schemas.test"}, rt.requested())
}

func TestFetchJSON_RejectsBadResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"html", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		}},
		{"missing content type", func(w http.ResponseWriter, r *http.Request) {
			w.Header()["Content-Type"] = nil
			_, _ = w.Write([]byte(`{}`))
		}},
		{"status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{}`))
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, `{"type":`)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, rt := newTestClient(t, "https://schemas.test", tc.handler)
			_, err := c.FetchJSON(context.Background(), "https://schemas.test/a.json")
			require.Error(t, err)
			assert.True(t, coreerr.HasCode(err, coreerr.ErrSchemaFetch))
			assert.Len(t, rt.requested(), 2)
		})
	}
}

func TestFetchJSON_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	c, _ := newTestClient(t, "https://schemas.test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		writeJSON(w, `{}`)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.FetchJSON(ctx, "https://schemas.test/slow.json")
		done <- err
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	_, err := c.FetchJSON(context.Background(), "https://schemas.test/slow.json")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCandidateURLs(t *testing.T) {
	got, err := candidateURLs("https://www.commandlayer.org/schemas/a.json?x=1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.commandlayer.org/schemas/a.json?x=1",
		"https://commandlayer.org/schemas/a.json?x=1",
	}, got)

	got, err = candidateURLs("http://localhost:8080/a.json")
	require.NoError(t, err)
	assert.Equal(t, "http://www.localhost:8080/a.json", got[1])

	_, err = candidateURLs("not a url")
	assert.Error(t, err)
}
