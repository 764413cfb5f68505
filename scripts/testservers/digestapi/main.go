// Command digestapi serves a local stand-in for the FOSS News digest API so
// digestload can be exercised without touching the real service.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const (
	randomRecordPath = "/api/v1/telegram-bot-one-random-not-categorized-foss-news-digest-record"
	recordsCountPath = "/api/v1/telegram-bot-not-categorized-foss-news-digest-records-count"
	tokenPath        = "/api/v1/token/"
)

type serverOptions struct {
	Login     string
	Password  string
	Token     string
	Latency   time.Duration
	ErrorRate float64
	Records   int
}

func main() {
	port := pflag.Int("port", 8000, "Listening port")
	opts := serverOptions{}
	pflag.StringVar(&opts.Login, "login", "bot", "Accepted login")
	pflag.StringVar(&opts.Password, "password", "secret", "Accepted password")
	pflag.StringVar(&opts.Token, "token", "local-access-token", "Access token handed out on login")
	pflag.DurationVar(&opts.Latency, "latency", 20*time.Millisecond, "Added latency per digest request")
	pflag.Float64Var(&opts.ErrorRate, "error-rate", 0, "Fraction of digest requests answered with 500")
	pflag.IntVar(&opts.Records, "records", 42, "Number of uncategorized records reported")
	pflag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}).With().Timestamp().Logger()

	addr := fmt.Sprintf(":%d", *port)
	log.Info().Str("addr", addr).Msg("digest API stand-in listening")
	if err := http.ListenAndServe(addr, newHandler(opts, log)); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newHandler(opts serverOptions, log zerolog.Logger) http.Handler {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	failNext := func() bool {
		if opts.ErrorRate <= 0 {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return rnd.Float64() < opts.ErrorRate
	}

	digest := func(payload func(r *http.Request) any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"detail": "method not allowed"})
				return
			}
			if r.Header.Get("Authorization") != "Bearer "+opts.Token {
				respondJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid for any token type"})
				return
			}
			if r.URL.Query().Get("tbot-user-id") == "" {
				respondJSON(w, http.StatusBadRequest, map[string]any{"detail": "tbot-user-id is required"})
				return
			}
			if opts.Latency > 0 {
				time.Sleep(opts.Latency)
			}
			if failNext() {
				log.Debug().Str("path", r.URL.Path).Msg("injected failure")
				respondJSON(w, http.StatusInternalServerError, map[string]any{"detail": "injected failure"})
				return
			}
			respondJSON(w, http.StatusOK, payload(r))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"detail": "method not allowed"})
			return
		}
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]any{"detail": "malformed JSON"})
			return
		}
		if creds.Username != opts.Login || creds.Password != opts.Password {
			log.Warn().Str("username", creds.Username).Msg("rejected login")
			respondJSON(w, http.StatusUnauthorized, map[string]any{"detail": "No active account found with the given credentials"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"refresh": "local-refresh-token", "access": opts.Token})
	})
	mux.HandleFunc(randomRecordPath, digest(func(r *http.Request) any {
		mu.Lock()
		id := rnd.Intn(opts.Records + 1)
		mu.Unlock()
		return map[string]any{
			"id":    id,
			"title": fmt.Sprintf("Record %d", id),
			"url":   fmt.Sprintf("https://example.org/news/%d", id),
			"state": "UNKNOWN",
		}
	}))
	mux.HandleFunc(recordsCountPath, digest(func(r *http.Request) any {
		return map[string]any{"count": opts.Records}
	}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found.", "path": strings.TrimSpace(r.URL.Path)})
	})
	return mux
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
