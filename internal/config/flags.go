package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "digestload",
		Short:         "Constant-arrival-rate load test for the FOSS News digest API",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target and credentials
	flags.String("base-url", DefaultBaseURL, "API base URL (env API_BASE_URL)")
	flags.String("login", "", "Login for the token endpoint (env LOGIN)")
	flags.String("tbot-user-id", "", "Telegram bot user id sent as tbot-user-id (env TBOT_USER_ID)")
	flags.String("token", "", "Pre-issued bearer token; skips the login call (env TOKEN)")
	flags.String("random-record-path", DefaultRandomRecordPath, "Path of the randomRecord step relative to the base URL")
	flags.String("records-count-path", DefaultRecordsCountPath, "Path of the recordsCount step relative to the base URL")
	flags.Bool("allow-duplicate-urls", false, "Allow both steps to resolve to the same URL")

	// Executor flags
	flags.Float64P("rate", "r", 1, "Iterations started per time unit")
	flags.Duration("time-unit", time.Second, "Period the rate applies to")
	flags.DurationP("duration", "d", time.Minute, "How long to start new iterations (e.g. 30s, 1m)")
	flags.Int("pre-allocated-vus", 10, "Worker slots started up front")
	flags.Int("max-vus", 10, "Upper bound on worker slots")
	flags.Duration("graceful-stop", 2*time.Second, "Time in-flight iterations get to finish after the run ends")
	flags.Duration("timeout", 0, "Per-request timeout (0 means none)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing iterations (uniform or poisson)")

	// Threshold flags
	flags.StringArray("threshold", nil, "Pass/fail threshold (repeatable, e.g. 'duration{randomRecord}:p(95) < 100')")
	flags.StringSlice("summary-trend-stats", nil, "Latency statistics shown in the summary (e.g. min,avg,med,max,p(95))")

	// Output flags
	flags.Bool("json-output", false, "Emit the end-of-run report as JSON")
	flags.String("summary-export", "", "Write the end-of-run summary to a .json or .yaml file")
	flags.Bool("progress", false, "Print a live progress line to stderr")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", string(LogFormatConsole), "Log format (console or json)")

	// Sources
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("env-file", "", "Path to a dotenv file with LOGIN, PASSWORD, TBOT_USER_ID (default .env when present)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (env OTEL_EXPORTER_OTLP_ENDPOINT)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol (grpc or http)")
	flags.String("tracing-service-name", "", "Service name reported on spans (env OTEL_SERVICE_NAME)")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of iterations to sample (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Export spans without TLS")
	flags.Bool("tracing-propagate", true, "Inject W3C trace context headers into requests")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
	fmt.Fprintln(out, "\nThe password is only read from PASSWORD (or DIGESTLOAD_PASSWORD), the env file or the config file.")
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the environment and the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if err := overrideString(fs, "base-url", func(v string) { cfg.BaseURL = strings.TrimSpace(v) }); err != nil {
		return err
	}
	if err := overrideString(fs, "login", func(v string) { cfg.Login = strings.TrimSpace(v) }); err != nil {
		return err
	}
	if err := overrideString(fs, "tbot-user-id", func(v string) { cfg.BotUserID = strings.TrimSpace(v) }); err != nil {
		return err
	}
	if err := overrideString(fs, "token", func(v string) { cfg.Token = strings.TrimSpace(v) }); err != nil {
		return err
	}
	if err := overrideString(fs, "random-record-path", func(v string) { cfg.Endpoints.RandomRecord = strings.TrimSpace(v) }); err != nil {
		return err
	}
	if err := overrideString(fs, "records-count-path", func(v string) { cfg.Endpoints.RecordsCount = strings.TrimSpace(v) }); err != nil {
		return err
	}
	if fs.Changed("allow-duplicate-urls") {
		val, err := fs.GetBool("allow-duplicate-urls")
		if err != nil {
			return err
		}
		cfg.Endpoints.AllowDuplicateURLs = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("time-unit") {
		val, err := fs.GetDuration("time-unit")
		if err != nil {
			return err
		}
		cfg.TimeUnit = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("pre-allocated-vus") {
		val, err := fs.GetInt("pre-allocated-vus")
		if err != nil {
			return err
		}
		cfg.PreAllocatedVUs = val
	}
	if fs.Changed("max-vus") {
		val, err := fs.GetInt("max-vus")
		if err != nil {
			return err
		}
		cfg.MaxVUs = val
	}
	if fs.Changed("graceful-stop") {
		val, err := fs.GetDuration("graceful-stop")
		if err != nil {
			return err
		}
		cfg.GracefulStop = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if err := overrideString(fs, "arrival-model", func(v string) {
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(v)))
	}); err != nil {
		return err
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("summary-trend-stats") {
		val, err := fs.GetStringSlice("summary-trend-stats")
		if err != nil {
			return err
		}
		cfg.SummaryTrendStats = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if err := overrideString(fs, "summary-export", func(v string) { cfg.SummaryExport = strings.TrimSpace(v) }); err != nil {
		return err
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if err := overrideString(fs, "log-level", func(v string) { cfg.LogLevel = strings.ToLower(strings.TrimSpace(v)) }); err != nil {
		return err
	}
	if err := overrideString(fs, "log-format", func(v string) {
		cfg.LogFormat = LogFormat(strings.ToLower(strings.TrimSpace(v)))
	}); err != nil {
		return err
	}
	return applyTracingFlagOverrides(&cfg.Tracing, fs)
}

func applyTracingFlagOverrides(t *TracingConfig, fs *pflag.FlagSet) error {
	if err := overrideString(fs, "tracing-endpoint", func(v string) { t.Endpoint = strings.TrimSpace(v) }); err != nil {
		return err
	}
	if err := overrideString(fs, "tracing-protocol", func(v string) { t.Protocol = strings.ToLower(strings.TrimSpace(v)) }); err != nil {
		return err
	}
	if err := overrideString(fs, "tracing-service-name", func(v string) { t.ServiceName = strings.TrimSpace(v) }); err != nil {
		return err
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		t.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		t.Insecure = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		t.Propagate = &val
	}
	return nil
}

func overrideString(fs *pflag.FlagSet, name string, set func(string)) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetString(name)
	if err != nil {
		return err
	}
	set(val)
	return nil
}
