package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/permlug/digestload/internal/auth"
	"github.com/permlug/digestload/internal/config"
	"github.com/permlug/digestload/internal/httpclient"
	"github.com/permlug/digestload/internal/logging"
	"github.com/permlug/digestload/internal/metrics"
	"github.com/permlug/digestload/internal/output"
	"github.com/permlug/digestload/internal/runner"
	"github.com/permlug/digestload/internal/scenario"
	"github.com/permlug/digestload/internal/threshold"
	"github.com/permlug/digestload/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second

	exitOK               = 0
	exitSetupFailure     = 1
	exitThresholdsFailed = 99
)

// ErrThresholdsCrossed is returned by run when at least one threshold failed.
var ErrThresholdsCrossed = errors.New("some thresholds have failed")

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ErrThresholdsCrossed):
		return exitThresholdsFailed
	default:
		return exitSetupFailure
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := ulid.Make().String()
	log, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: logging.Format(cfg.LogFormat),
		Out:    stderr,
		RunID:  runID,
	})
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		log.Warn().Msg(w)
	}

	exprs := cfg.Thresholds
	if len(exprs) == 0 {
		exprs = threshold.Defaults(scenario.Tags(), cfg.Duration, cfg.Rate, cfg.TimeUnit)
	}
	thresholds, err := threshold.ParseMultiple(exprs)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing, tracing.AttrRunID.String(runID))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	provider, err := setup(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer provider.Close()

	steps, err := scenario.DigestSteps(cfg, provider, tp.ShouldPropagate())
	if err != nil {
		return err
	}
	collector := metrics.NewCollector(scenario.Tags()...)
	sc, err := scenario.New(scenario.Options{
		Steps:    steps,
		Client:   httpclient.NewClient(cfg.Timeout),
		Recorder: collector,
		Logger:   log,
		Tracer:   tp.Tracer(),
		RunID:    runID,
	})
	if err != nil {
		return err
	}

	r := runner.New(runner.Options{
		Rate:            cfg.Rate,
		TimeUnit:        cfg.TimeUnit,
		Duration:        cfg.Duration,
		PreAllocatedVUs: cfg.PreAllocatedVUs,
		MaxVUs:          cfg.MaxVUs,
		GracefulStop:    cfg.GracefulStop,
		ArrivalModel:    toRunnerArrivalModel(cfg.Arrival.Model),
		Iteration:       sc,
		Logger:          log,
	})

	var progress *output.ProgressReporter
	if cfg.Progress && !cfg.JSONOutput {
		progress = output.NewProgressReporter(collector, progressInterval, stdout)
		progress.Start()
	}

	log.Info().
		Str("base_url", cfg.BaseURL).
		Float64("rate", cfg.Rate).
		Dur("time_unit", cfg.TimeUnit).
		Dur("duration", cfg.Duration).
		Int("max_vus", cfg.MaxVUs).
		Msg("starting load test")

	// Start the clock right before the executor so per-second rates
	// exclude setup.
	startedAt := time.Now()
	collector.Start()
	result := r.Run(ctx)
	stats := collector.Snapshot()

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(stdout)
	}

	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	summary := output.NewSummary(runID, startedAt, result, stats, results, cfg.SummaryTrendStats)

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, summary); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, summary)
	}

	if cfg.SummaryExport != "" {
		exportCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := output.ExportSummary(exportCtx, cfg.SummaryExport, summary); err != nil {
			return err
		}
		log.Info().Str("path", cfg.SummaryExport).Msg("summary exported")
	}

	if !summary.Passed {
		var failed []string
		for _, res := range results {
			if !res.Pass {
				failed = append(failed, res.Name)
			}
		}
		log.Error().Strs("thresholds", failed).Msg("thresholds crossed")
		return fmt.Errorf("%w: %s", ErrThresholdsCrossed, strings.Join(failed, ", "))
	}
	return nil
}

// setup obtains the bearer token shared by every iteration. It runs once;
// a failed login aborts the run.
func setup(ctx context.Context, cfg *config.Config, log zerolog.Logger) (auth.Provider, error) {
	if strings.TrimSpace(cfg.Token) != "" {
		log.Info().Msg("using pre-issued token, skipping login")
		return auth.NewStaticTokenProvider(cfg.Token), nil
	}

	p, err := auth.NewPasswordProvider(cfg.TokenURL(), auth.Credentials{
		Login:    cfg.Login,
		Password: cfg.Password,
	}, nil, log)
	if err != nil {
		return nil, err
	}
	if _, err := p.Login(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}
	log.Info().Str("login", cfg.Login).Msg("authenticated")
	return p, nil
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}
