package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockTokenServer is a token endpoint that records what it receives.
type mockTokenServer struct {
	server       *httptest.Server
	requestCount int32
	statusCode   int
	body         string
	delay        time.Duration

	mu          sync.Mutex
	lastRequest loginRequest
	contentType string
	path        string
}

func newMockTokenServer(status int, body string) *mockTokenServer {
	m := &mockTokenServer{statusCode: status, body: body}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.requestCount, 1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.lastRequest = req
		m.contentType = r.Header.Get("Content-Type")
		m.path = r.URL.Path
		m.mu.Unlock()

		if m.delay > 0 {
			time.Sleep(m.delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(m.statusCode)
		w.Write([]byte(m.body))
	}))
	return m
}

func (m *mockTokenServer) url() string { return m.server.URL + "/api/v1/token/" }

func (m *mockTokenServer) getRequestCount() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

func newTestProvider(t *testing.T, tokenURL string) *PasswordProvider {
	t.Helper()
	p, err := NewPasswordProvider(tokenURL, Credentials{Login: "bot", Password: "s3cret"}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPasswordProvider() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPasswordProviderLogin(t *testing.T) {
	mock := newMockTokenServer(http.StatusOK, `{"refresh":"r1","access":"tok123"}`)
	defer mock.server.Close()

	p := newTestProvider(t, mock.url())

	token, err := p.Login(context.Background())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if token != "tok123" {
		t.Errorf("Login() = %q, want tok123", token)
	}

	mock.mu.Lock()
	defer mock.mu.Unlock()
	if mock.lastRequest.Username != "bot" || mock.lastRequest.Password != "s3cret" {
		t.Errorf("login body = %+v", mock.lastRequest)
	}
	if mock.contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", mock.contentType)
	}
	if mock.path != "/api/v1/token/" {
		t.Errorf("path = %q, want /api/v1/token/", mock.path)
	}

	got, err := p.Token(context.Background())
	if err != nil || got != "tok123" {
		t.Errorf("Token() = %q, %v; want tok123", got, err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	if err := p.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader() error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok123" {
		t.Errorf("Authorization = %q, want Bearer tok123", got)
	}
}

func TestPasswordProviderLoginIsCached(t *testing.T) {
	mock := newMockTokenServer(http.StatusOK, `{"access":"tok123"}`)
	defer mock.server.Close()

	p := newTestProvider(t, mock.url())
	for i := 0; i < 3; i++ {
		if _, err := p.Login(context.Background()); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
	}
	if mock.getRequestCount() != 1 {
		t.Errorf("expected 1 token request, got %d", mock.getRequestCount())
	}
}

func TestPasswordProviderConcurrentLoginSharesRequest(t *testing.T) {
	mock := newMockTokenServer(http.StatusOK, `{"access":"tok123"}`)
	mock.delay = 50 * time.Millisecond
	defer mock.server.Close()

	p := newTestProvider(t, mock.url())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if token, err := p.Login(context.Background()); err != nil || token != "tok123" {
				t.Errorf("Login() = %q, %v", token, err)
			}
		}()
	}
	wg.Wait()

	if mock.getRequestCount() != 1 {
		t.Errorf("expected 1 token request, got %d", mock.getRequestCount())
	}
}

func TestPasswordProviderRejectedLogin(t *testing.T) {
	mock := newMockTokenServer(http.StatusUnauthorized, `{"detail":"No active account found with the given credentials"}`)
	defer mock.server.Close()

	p := newTestProvider(t, mock.url())

	token, err := p.Login(context.Background())
	if err == nil {
		t.Fatal("Login() error = nil, want authentication failure")
	}
	if token != "" {
		t.Errorf("Login() token = %q, want none", token)
	}

	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("Login() error type = %T, want *Error", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", authErr.StatusCode)
	}
	if !strings.Contains(authErr.Body, "No active account") {
		t.Errorf("Body = %q, want response body", authErr.Body)
	}

	if _, err := p.Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token() error = %v, want ErrNoToken", err)
	}
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	if err := p.InjectHeader(context.Background(), req); !errors.Is(err, ErrNoToken) {
		t.Errorf("InjectHeader() error = %v, want ErrNoToken", err)
	}
}

func TestPasswordProviderBadResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing access", `{"refresh":"r1"}`, "no access token"},
		{"empty access", `{"access":""}`, "no access token"},
		{"non-string access", `{"access":42}`, "no access token"},
		{"invalid json", `access=tok123`, "not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockTokenServer(http.StatusOK, tt.body)
			defer mock.server.Close()

			p := newTestProvider(t, mock.url())
			_, err := p.Login(context.Background())
			var authErr *Error
			if !errors.As(err, &authErr) {
				t.Fatalf("Login() error = %v, want *Error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Login() error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestPasswordProviderUnreachable(t *testing.T) {
	mock := newMockTokenServer(http.StatusOK, `{"access":"tok123"}`)
	tokenURL := mock.url()
	mock.server.Close()

	p := newTestProvider(t, tokenURL)
	_, err := p.Login(context.Background())
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("Login() error = %v, want *Error", err)
	}
	if authErr.StatusCode != 0 || authErr.Err == nil {
		t.Errorf("Error = %+v, want transport failure without status", authErr)
	}
}

func TestNewPasswordProviderRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/token/", "://bad"} {
		if _, err := NewPasswordProvider(raw, Credentials{}, nil, zerolog.Nop()); err == nil {
			t.Errorf("NewPasswordProvider(%q) error = nil, want error", raw)
		}
	}
}
