package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/permlug/digestload/internal/auth"
	"github.com/permlug/digestload/internal/config"
	"github.com/permlug/digestload/internal/runner"
)

var runEnv = []string{
	"LOGIN", "PASSWORD", "TBOT_USER_ID", "API_BASE_URL", "TOKEN",
	"DIGESTLOAD_LOGIN", "DIGESTLOAD_PASSWORD", "DIGESTLOAD_TBOT_USER_ID",
	"DIGESTLOAD_API_BASE_URL", "DIGESTLOAD_TOKEN",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range runEnv {
		old, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, old)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}

// digestAPI fakes the token endpoint and both digest endpoints.
type digestAPI struct {
	server      *httptest.Server
	tokenStatus int
	randomCode  int

	mu     sync.Mutex
	hits   map[string]int
	logins int
}

func newDigestAPI(t *testing.T) *digestAPI {
	t.Helper()
	api := &digestAPI{tokenStatus: http.StatusOK, randomCode: http.StatusOK, hits: map[string]int{}}
	api.server = httptest.NewServer(http.HandlerFunc(api.handle))
	t.Cleanup(api.server.Close)
	return api
}

func (a *digestAPI) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/api/v1/token/" {
		a.mu.Lock()
		a.logins++
		a.mu.Unlock()
		if a.tokenStatus != http.StatusOK {
			w.WriteHeader(a.tokenStatus)
			w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
			return
		}
		w.Write([]byte(`{"refresh":"r1","access":"tok123"}`))
		return
	}
	if r.Header.Get("Authorization") != "Bearer tok123" || r.URL.Query().Get("tbot-user-id") != "42" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	a.mu.Lock()
	a.hits[strings.TrimPrefix(r.URL.Path, "/api/v1/")]++
	a.mu.Unlock()

	if strings.HasSuffix(r.URL.Path, config.DefaultRandomRecordPath) && a.randomCode != http.StatusOK {
		w.WriteHeader(a.randomCode)
		w.Write([]byte(`{"detail":"boom"}`))
		return
	}
	w.Write([]byte(`{"ok":true}`))
}

func (a *digestAPI) counts() (logins int, hits map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.hits))
	for k, v := range a.hits {
		out[k] = v
	}
	return a.logins, out
}

func (a *digestAPI) args(extra ...string) []string {
	base := []string{
		"--base-url", a.server.URL + "/api/v1",
		"--login", "bot",
		"--tbot-user-id", "42",
		"--rate", "20",
		"--duration", "300ms",
		"--pre-allocated-vus", "2",
		"--max-vus", "4",
		"--log-level", "error",
		"--log-format", "json",
	}
	return append(base, extra...)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"thresholds", ErrThresholdsCrossed, 99},
		{"wrapped thresholds", errors.Join(errors.New("x"), ErrThresholdsCrossed), 99},
		{"auth", &auth.Error{StatusCode: 401}, 1},
		{"config", config.ValidationError{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestToRunnerArrivalModel(t *testing.T) {
	tests := []struct {
		input config.ArrivalModel
		want  runner.ArrivalModel
	}{
		{config.ArrivalModelUniform, runner.ArrivalModelUniform},
		{config.ArrivalModelPoisson, runner.ArrivalModelPoisson},
		{"POISSON", runner.ArrivalModelPoisson},
		{"unknown", runner.ArrivalModelUniform},
	}
	for _, tt := range tests {
		if got := toRunnerArrivalModel(tt.input); got != tt.want {
			t.Errorf("toRunnerArrivalModel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRunPasses(t *testing.T) {
	clearEnv(t)
	t.Setenv("PASSWORD", "s3cret")
	api := newDigestAPI(t)
	export := filepath.Join(t.TempDir(), "summary.yaml")

	var stdout, stderr bytes.Buffer
	err := run(api.args("--json-output", "--summary-export", export), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v\nstderr: %s", err, stderr.String())
	}

	var report struct {
		RunID   string `json:"run_id"`
		Passed  bool   `json:"passed"`
		Metrics struct {
			Tags []struct {
				Tag   string `json:"tag"`
				Count int    `json:"count"`
			} `json:"tags"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, stdout.String())
	}
	if !report.Passed || report.RunID == "" {
		t.Errorf("report = %+v", report)
	}
	if len(report.Metrics.Tags) != 2 {
		t.Fatalf("tags = %+v, want randomRecord and recordsCount", report.Metrics.Tags)
	}
	// 300ms at 20/s starts about 6 iterations; the default count threshold wants half.
	for _, tag := range report.Metrics.Tags {
		if tag.Count < 3 {
			t.Errorf("%s count = %d, want at least 3", tag.Tag, tag.Count)
		}
	}

	logins, hits := api.counts()
	if logins != 1 {
		t.Errorf("logins = %d, want exactly one setup call", logins)
	}
	if hits[config.DefaultRandomRecordPath] != hits[config.DefaultRecordsCountPath] {
		t.Errorf("hits = %v, want equal per endpoint", hits)
	}

	data, err := os.ReadFile(export)
	if err != nil {
		t.Fatalf("summary export missing: %v", err)
	}
	var exported map[string]interface{}
	if err := yaml.Unmarshal(data, &exported); err != nil {
		t.Fatalf("summary export is not YAML: %v", err)
	}
	if exported["run_id"] != report.RunID {
		t.Errorf("exported run_id = %v, want %s", exported["run_id"], report.RunID)
	}
}

func TestRunTextReport(t *testing.T) {
	clearEnv(t)
	t.Setenv("PASSWORD", "s3cret")
	api := newDigestAPI(t)

	var stdout, stderr bytes.Buffer
	if err := run(api.args("--summary-trend-stats", "avg,p(99)"), &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v\nstderr: %s", err, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"Load Test Results", "randomRecord:", "recordsCount:", "p(99)=", "Thresholds (6/6 passed)"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "med=") {
		t.Errorf("report shows unconfigured trend stat:\n%s", out)
	}
}

func TestRunAuthenticationFailure(t *testing.T) {
	clearEnv(t)
	t.Setenv("PASSWORD", "wrong")
	api := newDigestAPI(t)
	api.tokenStatus = http.StatusUnauthorized

	var stdout, stderr bytes.Buffer
	err := run(api.args(), &stdout, &stderr)

	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		t.Fatalf("run() error = %v, want *auth.Error", err)
	}
	if exitCode(err) != 1 {
		t.Errorf("exitCode = %d, want 1", exitCode(err))
	}
	if !strings.Contains(stderr.String(), "No active account") {
		t.Errorf("token response body not logged: %s", stderr.String())
	}
	if _, hits := api.counts(); len(hits) != 0 {
		t.Errorf("scenario ran after failed login: %v", hits)
	}
	if stdout.Len() != 0 {
		t.Errorf("report printed after failed login: %s", stdout.String())
	}
}

func TestRunStaticTokenSkipsLogin(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN", "tok123")
	api := newDigestAPI(t)

	var stdout, stderr bytes.Buffer
	args := []string{
		"--base-url", api.server.URL + "/api/v1",
		"--tbot-user-id", "42",
		"--rate", "10",
		"--duration", "200ms",
		"--log-level", "error",
		"--json-output",
	}
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v\nstderr: %s", err, stderr.String())
	}
	if logins, hits := api.counts(); logins != 0 || len(hits) != 2 {
		t.Errorf("logins = %d, hits = %v", logins, hits)
	}
}

func TestRunThresholdsCrossed(t *testing.T) {
	clearEnv(t)
	t.Setenv("PASSWORD", "s3cret")
	api := newDigestAPI(t)
	api.randomCode = http.StatusInternalServerError

	var stdout, stderr bytes.Buffer
	err := run(api.args("--json-output"), &stdout, &stderr)
	if !errors.Is(err, ErrThresholdsCrossed) {
		t.Fatalf("run() error = %v, want ErrThresholdsCrossed", err)
	}
	if exitCode(err) != 99 {
		t.Errorf("exitCode = %d, want 99", exitCode(err))
	}
	if !strings.Contains(err.Error(), "success{randomRecord}:rate > 0.999") {
		t.Errorf("error does not name the failed threshold: %v", err)
	}
	if strings.Contains(err.Error(), "recordsCount") {
		t.Errorf("recordsCount thresholds should pass: %v", err)
	}
	// A failing first step never stops the second.
	if _, hits := api.counts(); hits[config.DefaultRecordsCountPath] == 0 || hits[config.DefaultRecordsCountPath] != hits[config.DefaultRandomRecordPath] {
		t.Errorf("hits = %v", hits)
	}
}

func TestRunCustomThreshold(t *testing.T) {
	clearEnv(t)
	t.Setenv("PASSWORD", "s3cret")
	api := newDigestAPI(t)

	var stdout, stderr bytes.Buffer
	err := run(api.args("--json-output", "--threshold", "requests{recordsCount}:count > 100000"), &stdout, &stderr)
	if !errors.Is(err, ErrThresholdsCrossed) {
		t.Fatalf("run() error = %v, want ErrThresholdsCrossed", err)
	}
}

func TestRunSetupErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing bot user id", []string{"--login", "bot"}},
		{"bad threshold", []string{"--login", "bot", "--tbot-user-id", "42", "--threshold", "latency:p95 < 1"}},
		{"unknown flag", []string{"--no-such-flag"}},
		{"bad export extension", []string{"--login", "bot", "--tbot-user-id", "42", "--summary-export", "out.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PASSWORD", "s3cret")
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			if err == nil {
				t.Fatal("run() error = nil, want setup error")
			}
			if exitCode(err) != 1 {
				t.Errorf("exitCode = %d, want 1", exitCode(err))
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	clearEnv(t)
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("run(--help) error = %v", err)
	}
}
