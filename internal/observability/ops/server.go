// Package ops serves the operational HTTP surface: liveness, prometheus
// metrics, a JSON view of jobs and broadcasts, and optionally pprof.
//
// Security:
//   - Prefer binding to localhost (default).
//   - A non-loopback address requires Token or JWTSecret.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	logx "fitbuddy/pkg/logx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultAddr = "127.0.0.1:9090"

// ErrInsecureBind is returned by Run for a public address without auth.
var ErrInsecureBind = errors.New("ops: non-loopback addr requires token or jwt_secret")

type Config struct {
	Addr      string
	Token     string
	JWTSecret string
	JWTIssuer string
	Pprof     bool
}

// StatusFunc returns the document served at /jobs. It must be JSON-encodable.
type StatusFunc func() any

type Server struct {
	cfg    Config
	status StatusFunc
	log    logx.Logger
}

func New(cfg Config, status StatusFunc, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{cfg: cfg, status: status, log: log}
}

// Handler builds the router. /healthz stays open for probes; everything else
// goes through auth when credentials are configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/jobs", s.handleJobs)

		if s.cfg.Pprof {
			r.HandleFunc("/debug/pprof/", hpprof.Index)
			r.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
			r.HandleFunc("/debug/pprof/profile", hpprof.Profile)
			r.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
			r.HandleFunc("/debug/pprof/trace", hpprof.Trace)
			r.HandleFunc("/debug/pprof/{name}", hpprof.Index)
		}
	})
	return r
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	var doc any = map[string]any{}
	if s.status != nil {
		doc = s.status()
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		s.log.Warn("ops status encode failed", logx.Err(err))
	}
}

// Run listens and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if s.cfg.Token == "" && s.cfg.JWTSecret == "" && !isLoopbackAddr(addr) {
		s.log.Error("ops server refused to start", logx.String("addr", addr))
		return ErrInsecureBind
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(sctx)
		cancel()
	}()

	s.log.Info("ops server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("auth", s.cfg.Token != "" || s.cfg.JWTSecret != ""),
		logx.Bool("pprof", s.cfg.Pprof),
	)
	err = srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
