package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is accepted in front of every environment variable name.
const EnvPrefix = "DIGESTLOAD"

// defaultEnvFile is loaded when present and no --env-file is given.
const defaultEnvFile = ".env"

// envBindings maps config keys to the environment variables that feed them,
// in order of precedence.
var envBindings = map[string][]string{
	"base_url":     {EnvPrefix + "_API_BASE_URL", "API_BASE_URL"},
	"login":        {EnvPrefix + "_LOGIN", "LOGIN"},
	"password":     {EnvPrefix + "_PASSWORD", "PASSWORD"},
	"tbot_user_id": {EnvPrefix + "_TBOT_USER_ID", "TBOT_USER_ID"},
	"token":        {EnvPrefix + "_TOKEN", "TOKEN"},
}

// Loader handles loading configuration from the environment, files and
// command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load builds a Config from, in increasing precedence: built-in defaults,
// the config file, environment variables (after loading the env file) and
// command-line flags.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	envFile := flagSet.Lookup("env-file").Value.String()
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	for key, names := range envBindings {
		if err := cfgViper.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Default()
	cfg.ConfigFile = configPath
	cfg.EnvFile = envFile

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return cfg, nil
}

// loadEnvFile populates the process environment from a dotenv file without
// overriding variables that are already set. An explicit path must exist;
// the default .env is optional.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

// applyConfigSettings applies settings from the config file and bound
// environment variables to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	stringFields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"base_url", "baseurl", "base-url"}, &cfg.BaseURL},
		{[]string{"login", "username"}, &cfg.Login},
		{[]string{"tbot_user_id", "tbotuserid", "tbot-user-id"}, &cfg.BotUserID},
		{[]string{"token"}, &cfg.Token},
		{[]string{"summary_export", "summaryexport", "summary-export"}, &cfg.SummaryExport},
		{[]string{"log_level", "loglevel", "log-level"}, &cfg.LogLevel},
	}
	for _, f := range stringFields {
		raw, ok := lookupSetting(settings, f.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.dst = strings.TrimSpace(val)
	}

	// Passwords are taken verbatim.
	if raw, ok := lookupSetting(settings, "password"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("password: %w", err)
		}
		cfg.Password = val
	}

	if raw, ok := lookupSetting(settings, "log_format", "logformat", "log-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_format: %w", err)
		}
		cfg.LogFormat = LogFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	durationFields := []struct {
		keys []string
		dst  *time.Duration
	}{
		{[]string{"time_unit", "timeunit", "time-unit"}, &cfg.TimeUnit},
		{[]string{"duration"}, &cfg.Duration},
		{[]string{"graceful_stop", "gracefulstop", "graceful-stop"}, &cfg.GracefulStop},
		{[]string{"timeout"}, &cfg.Timeout},
	}
	for _, f := range durationFields {
		raw, ok := lookupSetting(settings, f.keys...)
		if !ok {
			continue
		}
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.dst = dur
	}

	if raw, ok := lookupSetting(settings, "pre_allocated_vus", "preallocatedvus", "pre-allocated-vus"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("pre_allocated_vus: %w", err)
		}
		cfg.PreAllocatedVUs = val
	}

	if raw, ok := lookupSetting(settings, "max_vus", "maxvus", "max-vus"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_vus: %w", err)
		}
		cfg.MaxVUs = val
	}

	if raw, ok := lookupSetting(settings, "json_output", "jsonoutput", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "summary_trend_stats", "summarytrendstats", "summary-trend-stats"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("summary_trend_stats: %w", err)
		}
		cfg.SummaryTrendStats = splitList(val)
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		cfg.Arrival = arrival
	}

	if raw, ok := lookupSetting(settings, "endpoints"); ok {
		if err := parseEndpoints(raw, &cfg.Endpoints); err != nil {
			return fmt.Errorf("endpoints: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := parseTracing(raw, &cfg.Tracing); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	arrival := ArrivalConfig{Model: ArrivalModelUniform}
	if value == nil {
		return arrival, nil
	}
	// A bare string is shorthand for the model.
	if s, ok := value.(string); ok {
		arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(s)))
		return arrival, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return ArrivalConfig{}, err
	}
	if raw, ok := lookupSetting(entry, "model"); ok {
		val, err := asString(raw)
		if err != nil {
			return ArrivalConfig{}, fmt.Errorf("model: %w", err)
		}
		if val != "" {
			arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
		}
	}
	return arrival, nil
}

func parseEndpoints(value interface{}, ep *EndpointsConfig) error {
	if value == nil {
		return nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "random_record", "randomrecord", "random-record"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("random_record: %w", err)
		}
		ep.RandomRecord = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "records_count", "recordscount", "records-count"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("records_count: %w", err)
		}
		ep.RecordsCount = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "allow_duplicate_urls", "allowduplicateurls", "allow-duplicate-urls"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("allow_duplicate_urls: %w", err)
		}
		ep.AllowDuplicateURLs = val
	}
	return nil
}

func parseTracing(value interface{}, t *TracingConfig) error {
	if value == nil {
		return nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "service_name", "servicename", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
