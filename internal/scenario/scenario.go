package scenario

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/permlug/digestload/internal/httpclient"
	"github.com/permlug/digestload/internal/metrics"
	"github.com/permlug/digestload/internal/tracing"
)

const defaultBodyLogLimit = 1024

// Recorder accepts observations. *metrics.Collector satisfies it.
type Recorder interface {
	Record(obs metrics.Observation)
}

// Options configures a Scenario.
type Options struct {
	Steps    []Step
	Client   httpclient.Doer
	Recorder Recorder
	Logger   zerolog.Logger

	// Tracer is optional; a no-op tracer is used when nil.
	Tracer trace.Tracer
	RunID  string

	// Now is the clock used to time requests. Defaults to time.Now.
	Now func() time.Time

	// BodyLogLimit bounds how much of a response body is logged.
	BodyLogLimit int
}

// Scenario runs the configured steps once per iteration.
type Scenario struct {
	steps     []Step
	client    httpclient.Doer
	recorder  Recorder
	log       zerolog.Logger
	tracer    trace.Tracer
	runID     string
	now       func() time.Time
	bodyLimit int
}

func New(opts Options) (*Scenario, error) {
	if len(opts.Steps) == 0 {
		return nil, errors.New("scenario needs at least one step")
	}
	for i, step := range opts.Steps {
		if step.Builder == nil {
			return nil, fmt.Errorf("step %d (%s): request builder is not configured", i, step.Tag)
		}
	}
	if opts.Client == nil {
		return nil, errors.New("scenario needs an HTTP client")
	}
	if opts.Recorder == nil {
		return nil, errors.New("scenario needs a recorder")
	}
	s := &Scenario{
		steps:     append([]Step(nil), opts.Steps...),
		client:    opts.Client,
		recorder:  opts.Recorder,
		log:       opts.Logger,
		tracer:    opts.Tracer,
		runID:     opts.RunID,
		now:       opts.Now,
		bodyLimit: opts.BodyLogLimit,
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("digestload")
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.bodyLimit <= 0 {
		s.bodyLimit = defaultBodyLogLimit
	}
	return s, nil
}

// Iterate runs every step in order and records one observation per step.
// The returned error joins the failures of all steps.
func (s *Scenario) Iterate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var attrs []attribute.KeyValue
	if s.runID != "" {
		attrs = append(attrs, tracing.AttrRunID.String(s.runID))
	}
	ctx, span := tracing.StartIterationSpan(ctx, s.tracer, attrs...)

	var errs []error
	for _, step := range s.steps {
		obs, err := s.execute(ctx, step)
		s.recorder.Record(obs)
		if err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	tracing.EndSpan(span, err)
	return err
}

func (s *Scenario) execute(ctx context.Context, step Step) (metrics.Observation, error) {
	url := step.Builder.Target()
	ctx, span := tracing.StartRequestSpan(ctx, s.tracer, step.Builder.Method(), string(step.Tag), url)
	log := s.log.With().Str("tag", string(step.Tag)).Logger()

	start := s.now()
	obs := metrics.Observation{Tag: step.Tag}

	fail := func(status int, err error) (metrics.Observation, error) {
		obs.Duration = s.now().Sub(start)
		obs.Status = status
		obs.Err = err
		tracing.EndRequestSpan(span, status, err)
		log.Error().Err(err).Int("status", status).Dur("latency", obs.Duration).Msg("request failed")
		return obs, &RequestError{Tag: step.Tag, URL: url, StatusCode: status, Err: err}
	}

	req, err := step.Builder.Build(ctx)
	if err != nil {
		return fail(0, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(0, err)
	}
	body, readErr := httpclient.ReadBody(resp.Body, s.bodyLimit)
	resp.Body.Close()
	if readErr != nil {
		return fail(resp.StatusCode, fmt.Errorf("read response body: %w", readErr))
	}

	obs.Duration = s.now().Sub(start)
	obs.Status = resp.StatusCode
	obs.Success = resp.StatusCode == http.StatusOK
	tracing.EndRequestSpan(span, resp.StatusCode, nil)

	if !obs.Success {
		log.Error().
			Int("status", resp.StatusCode).
			Dur("latency", obs.Duration).
			Str("body", body.String()).
			Msg("unexpected response status")
		return obs, &RequestError{Tag: step.Tag, URL: url, StatusCode: resp.StatusCode, Body: body.String()}
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", obs.Duration).
		Int64("bytes", body.Size).
		Str("body", body.String()).
		Msg("response")
	return obs, nil
}
