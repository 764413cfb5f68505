package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/permlug/digestload/internal/metrics"
)

// DefaultBaseURL is used when neither API_BASE_URL nor base_url is set.
const DefaultBaseURL = "https://fossnews.permlug.org/api/v1"

const (
	DefaultRandomRecordPath = "telegram-bot-one-random-not-categorized-foss-news-digest-record"
	DefaultRecordsCountPath = "telegram-bot-not-categorized-foss-news-digest-records-count"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

type Config struct {
	BaseURL           string          `mapstructure:"base_url"`
	Login             string          `mapstructure:"login"`
	Password          string          `mapstructure:"password"`
	BotUserID         string          `mapstructure:"tbot_user_id"`
	Token             string          `mapstructure:"token"`
	Endpoints         EndpointsConfig `mapstructure:"endpoints"`
	Rate              float64         `mapstructure:"rate"`
	TimeUnit          time.Duration   `mapstructure:"time_unit"`
	Duration          time.Duration   `mapstructure:"duration"`
	PreAllocatedVUs   int             `mapstructure:"pre_allocated_vus"`
	MaxVUs            int             `mapstructure:"max_vus"`
	GracefulStop      time.Duration   `mapstructure:"graceful_stop"`
	Timeout           time.Duration   `mapstructure:"timeout"`
	Arrival           ArrivalConfig   `mapstructure:"arrival"`
	Thresholds        []string        `mapstructure:"thresholds"`
	SummaryTrendStats []string        `mapstructure:"summary_trend_stats"`
	JSONOutput        bool            `mapstructure:"json_output"`
	SummaryExport     string          `mapstructure:"summary_export"`
	Progress          bool            `mapstructure:"progress"`
	LogLevel          string          `mapstructure:"log_level"`
	LogFormat         LogFormat       `mapstructure:"log_format"`
	Tracing           TracingConfig   `mapstructure:"tracing"`
	EnvFile           string          `mapstructure:"-"`
	ConfigFile        string          `mapstructure:"-"`
}

// EndpointsConfig holds the path of each scenario step relative to BaseURL.
type EndpointsConfig struct {
	RandomRecord       string `mapstructure:"random_record"`
	RecordsCount       string `mapstructure:"records_count"`
	AllowDuplicateURLs bool   `mapstructure:"allow_duplicate_urls"`
}

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured, either explicitly
// or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to Enabled unless propagation was set explicitly.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Default returns a Config populated with the built-in run profile:
// one iteration per second for a minute, ten worker slots, 2s graceful stop.
func Default() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Endpoints: EndpointsConfig{
			RandomRecord: DefaultRandomRecordPath,
			RecordsCount: DefaultRecordsCountPath,
		},
		Rate:              1,
		TimeUnit:          time.Second,
		Duration:          time.Minute,
		PreAllocatedVUs:   10,
		MaxVUs:            10,
		GracefulStop:      2 * time.Second,
		Arrival:           ArrivalConfig{Model: ArrivalModelUniform},
		SummaryTrendStats: append([]string(nil), metrics.DefaultTrendStats...),
		LogLevel:          "info",
		LogFormat:         LogFormatConsole,
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// EndpointURL resolves a step path against BaseURL and appends the
// tbot-user-id query parameter.
func (c Config) EndpointURL(path string) string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	path = strings.Trim(strings.TrimSpace(path), "/")
	q := url.Values{}
	q.Set("tbot-user-id", c.BotUserID)
	return base + "/" + path + "?" + q.Encode()
}

// TokenURL is the login endpoint under BaseURL.
func (c Config) TokenURL() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + "/token/"
}

// RandomRecordURL is the full URL of the randomRecord step.
func (c Config) RandomRecordURL() string { return c.EndpointURL(c.Endpoints.RandomRecord) }

// RecordsCountURL is the full URL of the recordsCount step.
func (c Config) RecordsCountURL() string { return c.EndpointURL(c.Endpoints.RecordsCount) }

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	issues = append(issues, validateBaseURL(c.BaseURL)...)

	if strings.TrimSpace(c.BotUserID) == "" {
		issues = append(issues, "tbot_user_id is required (set TBOT_USER_ID)")
	}
	if strings.TrimSpace(c.Token) == "" {
		if strings.TrimSpace(c.Login) == "" {
			issues = append(issues, "login is required unless a token is given (set LOGIN)")
		}
		if c.Password == "" {
			issues = append(issues, "password is required unless a token is given (set PASSWORD)")
		}
	}

	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.TimeUnit <= 0 {
		issues = append(issues, "time_unit must be > 0")
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if c.PreAllocatedVUs < 1 {
		issues = append(issues, "pre_allocated_vus must be >= 1")
	}
	if c.MaxVUs < c.PreAllocatedVUs {
		issues = append(issues, "max_vus must be >= pre_allocated_vus")
	}
	if c.GracefulStop < 0 {
		issues = append(issues, "graceful_stop must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, c.validateEndpoints()...)

	if err := metrics.ValidateTrendStats(c.SummaryTrendStats); err != nil {
		issues = append(issues, fmt.Sprintf("summary_trend_stats: %v", err))
	}
	if c.SummaryExport != "" {
		switch strings.ToLower(filepath.Ext(c.SummaryExport)) {
		case ".json", ".yaml", ".yml":
		default:
			issues = append(issues, "summary_export must end in .json, .yaml or .yml")
		}
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel))); err != nil {
		issues = append(issues, fmt.Sprintf("log_level %q is not supported", c.LogLevel))
	}
	switch c.LogFormat {
	case "", LogFormatConsole, LogFormatJSON:
	default:
		issues = append(issues, fmt.Sprintf("log_format %q is not supported", c.LogFormat))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

// Warnings lists settings that are valid but likely unintended.
func (c Config) Warnings() []string {
	var warnings []string
	if c.TimeUnit > 0 {
		perSecond := c.Rate / c.TimeUnit.Seconds()
		if perSecond > 100 {
			warnings = append(warnings, fmt.Sprintf("high arrival rate configured (%.2f iterations/s); ensure you have authorization to load the target API", perSecond))
		}
	}
	if c.Rate == 0 {
		warnings = append(warnings, "rate is 0, no iterations will be started")
	}
	if c.Tracing.Insecure && c.Tracing.Enabled() {
		warnings = append(warnings, "OTLP export without TLS (tracing.insecure: true)")
	}
	return warnings
}

func validateBaseURL(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{"base_url is required (set API_BASE_URL)"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return []string{fmt.Sprintf("base_url: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{fmt.Sprintf("base_url must use http or https, got %q", raw)}
	}
	if u.Host == "" {
		return []string{fmt.Sprintf("base_url has no host: %q", raw)}
	}
	if u.RawQuery != "" {
		return []string{"base_url must not carry a query string"}
	}
	return nil
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func (c Config) validateEndpoints() []string {
	var issues []string
	if strings.Trim(strings.TrimSpace(c.Endpoints.RandomRecord), "/") == "" {
		issues = append(issues, "endpoints.random_record is required")
	}
	if strings.Trim(strings.TrimSpace(c.Endpoints.RecordsCount), "/") == "" {
		issues = append(issues, "endpoints.records_count is required")
	}
	if len(issues) > 0 {
		return issues
	}
	if !c.Endpoints.AllowDuplicateURLs && c.RandomRecordURL() == c.RecordsCountURL() {
		issues = append(issues, "endpoints.random_record and endpoints.records_count resolve to the same URL (set allow_duplicate_urls to permit)")
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol %q is not supported (use grpc or http)", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %g", t.SampleRate))
	}
	return issues
}
