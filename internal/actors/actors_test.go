package actors

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ensemble/internal/cast"
	"ensemble/internal/collector"
	"ensemble/internal/config"
	"ensemble/internal/coordinator"
	"ensemble/internal/core"
	"ensemble/internal/orchestrator"
	"ensemble/internal/workload"
)

type runResult struct {
	err     error
	events  []core.Event
	hook    *test.Hook
	actors  []core.Actor
	aborted bool
}

func runWorkload(t *testing.T, doc string) runResult {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	c := cast.New()
	require.NoError(t, RegisterAll(c))
	c.Freeze()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	col := collector.NewCollector()
	o := orchestrator.New()
	wc, err := workload.NewContext(cfg, o, c, col, workload.WithLogger(logrus.NewEntry(logger)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = coordinator.New(o, col).Run(ctx, wc.Actors())
	col.Close()

	return runResult{err: err, events: col.Events(), hook: hook, actors: wc.Actors(), aborted: o.Aborted()}
}

func constructErr(t *testing.T, doc string) error {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	c := cast.New()
	require.NoError(t, RegisterAll(c))
	_, err = workload.NewContext(cfg, orchestrator.New(), c, nil)
	return err
}

func TestRegisterAll(t *testing.T) {
	c := cast.New()
	require.NoError(t, RegisterAll(c))
	assert.Equal(t, []string{HelloWorldType, HttpRequestType, SleepType}, c.Names())

	assert.ErrorIs(t, RegisterAll(c), cast.ErrDuplicate)
}

func TestHelloWorld_GreetsPerIteration(t *testing.T) {
	res := runWorkload(t, `
SchemaVersion: 2018-07-01
Actors:
  - Name: Greeter
    Type: HelloWorld
    Threads: 2
    Phases:
      - Repeat: 3
        Message: hi there
      - Repeat: 1
`)
	require.NoError(t, res.err)
	assert.Len(t, res.events, 8)

	messages := map[string]int{}
	for _, e := range res.hook.AllEntries() {
		if e.Level == logrus.InfoLevel {
			messages[e.Message]++
		}
	}
	assert.Equal(t, 6, messages["hi there"])
	assert.Equal(t, 2, messages[defaultMessage])

	assert.Equal(t, int64(8), res.actors[0].(*HelloWorld).Greetings(), "the counter is shared by every HelloWorld")
	for _, e := range res.events {
		assert.Equal(t, "Greeter", e.Actor)
		assert.Equal(t, "output", e.Operation)
		assert.True(t, e.Success)
	}
}

func TestSleep_DurationAndNonBlockingPhases(t *testing.T) {
	start := time.Now()
	res := runWorkload(t, `
SchemaVersion: 2018-07-01
Actors:
  - Name: Timed
    Type: Sleep
    Phases:
      - Duration: 30ms
        SleepFor: 1ms
  - Name: Background
    Type: Sleep
    Phases:
      - SleepFor: 2ms
`)
	require.NoError(t, res.err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	perActor := map[string]int{}
	for _, e := range res.events {
		perActor[e.Actor]++
	}
	assert.Greater(t, perActor["Timed"], 1)
	assert.Greater(t, perActor["Background"], 1, "a non-blocking actor keeps working until the phase ends")
}

func TestSleep_RejectsNegative(t *testing.T) {
	err := constructErr(t, `
SchemaVersion: 2018-07-01
Actors:
  - Type: Sleep
    Phases:
      - Repeat: 1
        SleepFor: -1s
`)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "SleepFor must be non-negative")
}

func TestHttpRequest_SendsConfiguredRequests(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []*http.Request
		bodies   []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, r)
		bodies = append(bodies, string(body))
		mu.Unlock()
		_, _ = w.Write([]byte("pong"))
	}))
	defer server.Close()

	res := runWorkload(t, `
SchemaVersion: 2018-07-01
Actors:
  - Name: Api
    Type: HttpRequest
    Threads: 2
    Timeout: 2s
    Phases:
      - Repeat: 3
        Method: post
        URL: `+server.URL+`/items
        Headers:
          Content-Type: application/json
        Body: '{"n": 1}'
      - Repeat: 1
        URL: `+server.URL+`/health
`)
	require.NoError(t, res.err)
	require.Len(t, requests, 8)

	posts := 0
	for i, r := range requests {
		if r.Method == http.MethodPost {
			posts++
			assert.Equal(t, "/items", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, `{"n": 1}`, bodies[i])
		} else {
			assert.Equal(t, "/health", r.URL.Path)
		}
	}
	assert.Equal(t, 6, posts)

	for _, e := range res.events {
		assert.True(t, e.Success)
		assert.Equal(t, http.StatusOK, e.StatusCode)
		assert.Equal(t, int64(4), e.BytesRecv)
	}
}

func TestHttpRequest_RecordsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	res := runWorkload(t, `
SchemaVersion: 2018-07-01
Actors:
  - Type: HttpRequest
    Phases:
      - Repeat: 4
        URL: `+server.URL+`
`)
	require.NoError(t, res.err, "failed requests do not stop the workload by default")
	require.Len(t, res.events, 4)
	for _, e := range res.events {
		assert.False(t, e.Success)
		assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
		assert.Contains(t, e.Error, "500")
	}
}

func TestHttpRequest_TruncatedBodyIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short body"))
	}))
	defer server.Close()

	res := runWorkload(t, `
SchemaVersion: 2018-07-01
Actors:
  - Type: HttpRequest
    Phases:
      - Repeat: 2
        URL: `+server.URL+`
`)
	require.NoError(t, res.err, "body errors are recorded like any other failed request")
	require.Len(t, res.events, 2)
	for _, e := range res.events {
		assert.False(t, e.Success)
		assert.Equal(t, http.StatusOK, e.StatusCode)
		assert.Contains(t, e.Error, "reading response body")
		assert.Less(t, e.BytesRecv, int64(100))
	}
}

func TestHttpRequest_AbortOnError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	res := runWorkload(t, `
SchemaVersion: 2018-07-01
Actors:
  - Name: Strict
    Type: HttpRequest
    AbortOnError: true
    Phases:
      - Repeat: 10
        URL: `+server.URL+`
  - Name: Peer
    Type: Sleep
    Phases:
      - Duration: 1h
        SleepFor: 1ms
`)
	require.Error(t, res.err)
	assert.True(t, res.aborted)
	assert.Contains(t, res.err.Error(), "actor Strict")
	assert.Contains(t, res.err.Error(), "503")
	assert.Equal(t, int32(1), hits.Load())
}

func TestHttpRequest_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	res := runWorkload(t, `
SchemaVersion: 2018-07-01
Actors:
  - Type: HttpRequest
    Timeout: 20ms
    Phases:
      - Repeat: 1
        URL: `+server.URL+`
`)
	require.NoError(t, res.err)
	require.Len(t, res.events, 1)
	assert.False(t, res.events[0].Success)
	assert.True(t, strings.Contains(res.events[0].Error, "Timeout") || strings.Contains(res.events[0].Error, "deadline"))
}

func TestHttpRequest_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing URL",
			doc: `
SchemaVersion: 2018-07-01
Actors:
  - Type: HttpRequest
    Phases:
      - Repeat: 1
`,
			want: "URL is required",
		},
		{
			name: "bad scheme",
			doc: `
SchemaVersion: 2018-07-01
Actors:
  - Type: HttpRequest
    Phases:
      - Repeat: 1
        URL: ftp://example.com
`,
			want: `unsupported URL scheme "ftp"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := constructErr(t, tt.doc)
			assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHttpRequest_NopPhaseNeedsNoURL(t *testing.T) {
	assert.NoError(t, constructErr(t, `
SchemaVersion: 2018-07-01
Actors:
  - Type: HttpRequest
    Phases:
      - Nop: true
`))
}
