package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// maxTokenResponseBytes bounds how much of the token response is read.
const maxTokenResponseBytes = 1 << 20

// maxLoggedBody bounds response bodies written to logs and errors.
const maxLoggedBody = 512

// PasswordProvider exchanges a login and password for a bearer token with a
// single POST to the token endpoint. The token is fetched once and never
// refreshed.
type PasswordProvider struct {
	tokenURL   string
	creds      Credentials
	httpClient *http.Client
	log        zerolog.Logger

	mu              sync.Mutex
	cachedToken     string
	fetchInProgress bool
	fetchCond       *sync.Cond
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewPasswordProvider creates a provider posting creds to tokenURL. A nil
// client gets a default one with a 30s timeout.
func NewPasswordProvider(tokenURL string, creds Credentials, client *http.Client, log zerolog.Logger) (*PasswordProvider, error) {
	u, err := url.Parse(tokenURL)
	if err != nil {
		return nil, fmt.Errorf("token url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("token url %q: scheme must be http or https", tokenURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	p := &PasswordProvider{
		tokenURL:   tokenURL,
		creds:      creds,
		httpClient: client,
		log:        log.With().Str("component", "auth").Logger(),
	}
	p.fetchCond = sync.NewCond(&p.mu)
	return p, nil
}

// Login performs the token request unless a token is already held. Concurrent
// callers share one request. Failures are returned as *Error and leave the
// provider without a token.
func (p *PasswordProvider) Login(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cachedToken != "" {
		return p.cachedToken, nil
	}

	for p.fetchInProgress {
		p.fetchCond.Wait()
		if p.cachedToken != "" {
			return p.cachedToken, nil
		}
	}

	p.fetchInProgress = true
	p.mu.Unlock()

	token, err := p.fetchToken(ctx)

	p.mu.Lock()
	p.fetchInProgress = false
	p.fetchCond.Broadcast()

	if err != nil {
		return "", err
	}

	p.cachedToken = token
	return p.cachedToken, nil
}

// Token returns the token obtained by Login, or ErrNoToken.
func (p *PasswordProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cachedToken == "" {
		return "", ErrNoToken
	}
	return p.cachedToken, nil
}

func (p *PasswordProvider) fetchToken(ctx context.Context) (string, error) {
	payload, err := json.Marshal(loginRequest{Username: p.creds.Login, Password: p.creds.Password})
	if err != nil {
		return "", &Error{Err: fmt.Errorf("encode login request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Err: fmt.Errorf("create token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.Error().Err(err).Str("url", p.tokenURL).Msg("token request failed")
		return "", &Error{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return "", &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		snippet := truncate(string(body), maxLoggedBody)
		p.log.Error().
			Int("status", resp.StatusCode).
			Str("body", snippet).
			Msg("token endpoint rejected login")
		return "", &Error{StatusCode: resp.StatusCode, Body: snippet}
	}

	if !gjson.ValidBytes(body) {
		return "", &Error{StatusCode: resp.StatusCode, Body: truncate(string(body), maxLoggedBody), Err: errors.New("token response is not valid JSON")}
	}
	access := gjson.GetBytes(body, "access")
	if access.Type != gjson.String || strings.TrimSpace(access.String()) == "" {
		return "", &Error{StatusCode: resp.StatusCode, Err: errors.New("no access token in response")}
	}

	p.log.Debug().Dur("latency", time.Since(start)).Msg("obtained access token")
	return access.String(), nil
}

// InjectHeader sets the bearer token obtained by Login.
func (p *PasswordProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	setBearer(req, token)
	return nil
}

// Close releases resources held by the provider.
func (p *PasswordProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
