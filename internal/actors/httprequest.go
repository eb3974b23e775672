package actors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ensemble/internal/config"
	"ensemble/internal/core"
	"ensemble/internal/orchestrator"
	"ensemble/internal/phase"
	"ensemble/internal/workload"
)

const (
	HttpRequestType = "HttpRequest"

	defaultHTTPTimeout = 30 * time.Second
	// maxDebugBodySize limits the response body logged at trace level.
	maxDebugBodySize = 1024
)

// httpActorConfig holds the actor-level keys of an HttpRequest block.
type httpActorConfig struct {
	Timeout time.Duration `yaml:"Timeout"`
	// AbortOnError aborts the workload on the first failed request instead
	// of recording the failure and moving on.
	AbortOnError bool `yaml:"AbortOnError"`
}

type httpPhase struct {
	Method  string            `yaml:"Method"`
	URL     string            `yaml:"URL"`
	Headers map[string]string `yaml:"Headers"`
	Body    string            `yaml:"Body"`
}

func buildHTTPPhase(pc *config.PhaseConfig) (httpPhase, error) {
	p, err := workload.DecodePhase[httpPhase](pc)
	if err != nil {
		return p, err
	}
	if p.Method == "" {
		p.Method = http.MethodGet
	}
	p.Method = strings.ToUpper(p.Method)
	if p.URL == "" {
		return p, fmt.Errorf("URL is required")
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return p, errors.Wrap(err, "invalid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return p, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	return p, nil
}

// HttpRequest sends one request per iteration and reports its status,
// latency and sizes.
type HttpRequest struct {
	workload.ActorBase
	loop         *phase.PhaseLoop[httpPhase]
	client       *http.Client
	reporter     core.Reporter
	abortOnError bool
	log          *log.Entry
}

func NewHttpRequest(ac *workload.ActorContext, id int) (core.Actor, error) {
	var cfg httpActorConfig
	if err := ac.Config().Decode(&cfg); err != nil {
		return nil, &core.ConfigurationError{Message: "actor " + ac.Name(), Cause: err}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	loop, err := workload.NewPhaseLoop(ac, buildHTTPPhase)
	if err != nil {
		return nil, err
	}
	// Threads of one block share a transport so connections are reused.
	transport := ac.SharedState(HttpRequestType+".transport."+ac.Name(), func() any {
		return http.DefaultTransport.(*http.Transport).Clone()
	}).(*http.Transport)

	return &HttpRequest{
		ActorBase:    ac.Base(id),
		loop:         loop,
		client:       &http.Client{Timeout: cfg.Timeout, Transport: transport},
		reporter:     ac.Reporter(),
		abortOnError: cfg.AbortOnError,
		log:          ac.Logger(id),
	}, nil
}

func (h *HttpRequest) Run(ctx context.Context) error {
	return h.loop.Run(ctx, func(ctx context.Context, num orchestrator.PhaseNumber, ap *phase.ActorPhase[httpPhase]) error {
		return ap.Run(ctx, func(ctx context.Context) error {
			ev, err := h.do(ctx, num, ap.Value())
			h.reporter.Report(ev)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if !ev.Success && h.abortOnError {
				if err == nil {
					err = errors.New(ev.Error)
				}
				return errors.Wrapf(err, "%s %s", ap.Value().Method, ap.Value().URL)
			}
			return nil
		})
	})
}

func (h *HttpRequest) do(ctx context.Context, num orchestrator.PhaseNumber, p httpPhase) (core.Event, error) {
	start := time.Now()
	op := p.Method

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, strings.NewReader(p.Body))
	if err != nil {
		ev := event(h.ActorBase, num, op, start)
		ev.Success, ev.Error = false, err.Error()
		return ev, err
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		ev := event(h.ActorBase, num, op, start)
		ev.Success, ev.Error = false, err.Error()
		ev.BytesSent = int64(len(p.Body))
		h.log.WithError(err).WithField("url", p.URL).Debug("request failed")
		return ev, err
	}
	defer resp.Body.Close()

	received, readErr := h.readBody(resp, p.URL)

	ev := event(h.ActorBase, num, op, start)
	ev.StatusCode = resp.StatusCode
	ev.BytesSent = int64(len(p.Body))
	ev.BytesRecv = received
	if readErr != nil {
		readErr = errors.Wrap(readErr, "reading response body")
		ev.Success, ev.Error = false, readErr.Error()
		h.log.WithError(readErr).WithField("url", p.URL).Debug("request failed")
		return ev, readErr
	}
	if resp.StatusCode >= 400 {
		ev.Success = false
		ev.Error = resp.Status
	}
	return ev, nil
}

// readBody drains the response body and returns how many bytes it held. At
// trace level the start of the body is logged.
func (h *HttpRequest) readBody(resp *http.Response, target string) (int64, error) {
	if !h.log.Logger.IsLevelEnabled(log.TraceLevel) {
		return io.Copy(io.Discard, resp.Body)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDebugBodySize))
	received := int64(len(body))
	if err == nil {
		var rest int64
		rest, err = io.Copy(io.Discard, resp.Body)
		received += rest
	}
	h.log.WithFields(log.Fields{
		"status": resp.StatusCode,
		"url":    target,
	}).Tracef("response body: %s", body)
	return received, err
}
