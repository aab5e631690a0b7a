// Package observability serves the sync daemon's local status endpoint:
// /healthz with the last reconcile pass and, optionally, net/http/pprof.
package observability

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"net/netip"
	"strings"
	"time"

	logx "taskdeck/pkg/logx"
)

const pprofPrefix = "/debug/pprof/"

// Config controls the status server.
//
// Bind to localhost unless Token is set: a non-loopback Addr without a token is refused.
type Config struct {
	Addr  string
	Token string
	Pprof bool
}

// StatusFunc returns the JSON document served at /healthz and whether the
// daemon is healthy (503 otherwise).
type StatusFunc func() (doc any, healthy bool)

type Server struct {
	cfg    Config
	status StatusFunc
	log    logx.Logger
}

func New(cfg Config, status StatusFunc, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, status: status, log: log.With(logx.String("component", "status"))}
}

// Handler builds the mux; exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	if s.cfg.Pprof {
		mux.HandleFunc(pprofPrefix, hpprof.Index)
		mux.HandleFunc(pprofPrefix+"cmdline", hpprof.Cmdline)
		mux.HandleFunc(pprofPrefix+"profile", hpprof.Profile)
		mux.HandleFunc(pprofPrefix+"symbol", hpprof.Symbol)
		mux.HandleFunc(pprofPrefix+"trace", hpprof.Trace)
	}
	return requireToken(s.cfg.Token, mux)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	var (
		doc     any = map[string]string{"status": "ok"}
		healthy     = true
	)
	if s.status != nil {
		doc, healthy = s.status()
	}
	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(doc)
}

// Run serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		return errors.New("status: addr required")
	}
	if strings.TrimSpace(s.cfg.Token) == "" && !isLoopbackAddr(addr) {
		return errors.New("status: non-loopback addr requires a token")
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
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("status server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("pprof", s.cfg.Pprof),
		logx.Bool("token_set", s.cfg.Token != ""),
	)
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		s.log.Info("status server stopped")
		return nil
	}
	return err
}

// requireToken guards every route when token is set. The token may come as
// "Authorization: Bearer <token>" or ?token=<token> (handy for go tool pprof).
func requireToken(token string, next http.Handler) http.Handler {
	want := []byte(strings.TrimSpace(token))
	if len(want) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(presentedToken(r)), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="taskdeck"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func presentedToken(r *http.Request) string {
	if q := r.URL.Query().Get("token"); q != "" {
		return q
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// isLoopbackAddr reports whether a listen address binds only to this host.
// An empty host (":6061") listens on every interface.
func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip, err := netip.ParseAddr(host)
	return err == nil && ip.Unmap().IsLoopback()
}
