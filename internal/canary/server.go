// Package canary is a stand-in for the Radix golang canary application. It
// serves the same endpoints the load scenarios probe, so runs can be
// exercised locally and in tests.
package canary

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"
)

const (
	// DefaultBcryptCost makes /calculatehashesbcrypt take on the order of
	// seconds of CPU.
	DefaultBcryptCost = 15
	// DefaultScryptN makes /calculatehashesscrypt allocate 256 MiB per call.
	DefaultScryptN = 262144
	// DefaultPort is used when neither --port nor LISTENING_PORT is set.
	DefaultPort = "5000"

	healthStatusOK = 200
	scryptR        = 8
	scryptP        = 1
	scryptKeyLen   = 32
)

var (
	examplePassword = []byte("RadixExamplePassword")
	exampleSalt     = []byte("kjefn2k3bfje")
)

// Options configures the stand-in canary.
type Options struct {
	BcryptCost int
	ScryptN    int
	Version    string
	Logger     zerolog.Logger
}

// Server holds the canary's request counters.
type Server struct {
	opts         Options
	hostname     string
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

type healthStatus struct {
	Status int
}

// New returns a Server with defaults applied to zero options.
func New(opts Options) *Server {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = DefaultBcryptCost
	}
	if opts.ScryptN == 0 {
		opts.ScryptN = DefaultScryptN
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	hostname, _ := os.Hostname()
	return &Server{opts: opts, hostname: hostname}
}

// NewHandler is shorthand for New(opts).Handler().
func NewHandler(opts Options) http.Handler {
	return New(opts).Handler()
}

// Handler returns the canary routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.index)
	mux.HandleFunc("/status", s.health)
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/metrics", s.metrics)
	mux.HandleFunc("/error", s.serverError)
	mux.HandleFunc("/echo", s.echo)
	mux.HandleFunc("/calculatehashesbcrypt", s.calculateHashesBcrypt)
	mux.HandleFunc("/calculatehashesscrypt", s.calculateHashesScrypt)

	return hlog.NewHandler(s.opts.Logger)(
		hlog.RequestHandler("request")(
			hlog.RemoteAddrHandler("ip")(
				hlog.AccessHandler(logRequest)(
					hlog.UserAgentHandler("useragent")(mux),
				),
			),
		),
	)
}

// Counts returns the total requests served and how many of them failed.
func (s *Server) Counts() (requests, errs int64) {
	return s.requestCount.Load(), s.errorCount.Load()
}

func logRequest(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().Int("status", status).Int("size", size).Dur("took", duration).Send()
}

// index answers every path without a handler of its own.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<h1>Radix Canary App v %s</h1>", s.opts.Version)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)
	s.writeJSON(w, r, http.StatusOK, healthStatus{Status: healthStatusOK})
}

// metrics writes the counters in Prometheus text exposition format.
func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)

	labels := map[string]interface{}{
		"host":      s.hostname,
		"pid":       os.Getpid(),
		"component": "canaryload-canary",
		"version":   s.opts.Version,
	}
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, fmt.Sprintf("%s=%q", name, fmt.Sprint(labels[name])))
	}
	labelStr := strings.Join(pairs, ",")

	requests, errs := s.Counts()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "errors_total{%s} %d\n", labelStr, errs)
	fmt.Fprintf(w, "requests_total{%s} %d\n", labelStr, requests)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)
	s.fail(w, r, http.StatusInternalServerError, errors.New("can't fulfil request"))
}

func (s *Server) echo(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)
	hlog.FromRequest(r).Debug().Str("method", r.Method).Str("uri", r.RequestURI).Msg("Echo")
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"headers":    r.Header,
		"method":     r.Method,
		"url":        r.URL.String(),
		"requesturi": r.RequestURI,
		"remoteaddr": r.RemoteAddr,
	})
}

// calculateHashesBcrypt is CPU heavy: hash and verify a fixed password.
func (s *Server) calculateHashesBcrypt(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)

	hash, err := bcrypt.GenerateFromPassword(examplePassword, s.opts.BcryptCost)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Errorf("generate hash: %w", err))
		return
	}
	if err := bcrypt.CompareHashAndPassword(hash, examplePassword); err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Errorf("compare hash: %w", err))
		return
	}
	fmt.Fprintf(w, "%s matches %s", examplePassword, hash)
}

// calculateHashesScrypt is CPU and memory heavy: derive the same key twice
// and compare.
func (s *Server) calculateHashesScrypt(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)

	dk, err := scrypt.Key(examplePassword, exampleSalt, s.opts.ScryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Errorf("derive key: %w", err))
		return
	}
	verify, err := scrypt.Key(examplePassword, exampleSalt, s.opts.ScryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Errorf("derive key: %w", err))
		return
	}
	if !bytes.Equal(dk, verify) {
		s.fail(w, r, http.StatusInternalServerError, errors.New("derived keys do not match"))
		return
	}
	fmt.Fprintf(w, "%s matches %s (b64 encoded)", examplePassword, base64.StdEncoding.EncodeToString(dk))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.errorCount.Add(1)
	hlog.FromRequest(r).Error().Err(err).Msg("Server error")
	s.writeJSON(w, r, status, map[string]string{"Error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		s.errorCount.Add(1)
		hlog.FromRequest(r).Error().Err(err).Msg("Unable to encode JSON")
		http.Error(w, `{"Error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
