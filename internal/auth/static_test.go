package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestStaticTokenProvider(t *testing.T) {
	token := "my-static-token"
	provider := NewStaticTokenProvider(token)

	gotToken, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if gotToken != token {
		t.Errorf("Token() = %q, want %q", gotToken, token)
	}

	req := httptest.NewRequest("GET", "http://example.com", nil)
	if err := provider.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader() error = %v", err)
	}

	gotHeader := req.Header.Get("Authorization")
	wantHeader := "Bearer " + token
	if gotHeader != wantHeader {
		t.Errorf("Authorization header = %q, want %q", gotHeader, wantHeader)
	}

	if err := provider.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestStaticTokenProviderEmpty(t *testing.T) {
	provider := NewStaticTokenProvider("   ")

	if _, err := provider.Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Token() error = %v, want ErrNoToken", err)
	}

	req := httptest.NewRequest("GET", "http://example.com", nil)
	if err := provider.InjectHeader(context.Background(), req); !errors.Is(err, ErrNoToken) {
		t.Fatalf("InjectHeader() error = %v, want ErrNoToken", err)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization header = %q, want none", got)
	}
}
