package preview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/gongjeon/internal/build"
	"git.home.luguber.info/inful/gongjeon/internal/logfields"
	"git.home.luguber.info/inful/gongjeon/internal/version"
)

// HealthStatus summarizes the preview state for /healthz.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Uptime    string       `json:"uptime"`
	Version   string       `json:"version"`
	BuildID   string       `json:"build_id,omitempty"`
	Outcome   string       `json:"outcome,omitempty"`
	Summary   string       `json:"summary,omitempty"`
}

// ServerOptions configures the preview HTTP handler.
type ServerOptions struct {
	OutputDir   string
	LastReport  func() *build.Report
	Metrics     http.Handler // nil disables the metrics endpoint
	MetricsPath string
}

// NewHandler returns the preview mux: the output tree at "/", plus /healthz
// and the optional metrics endpoint.
func NewHandler(opts ServerOptions) http.Handler {
	started := time.Now()
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(opts.OutputDir)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		var last *build.Report
		if opts.LastReport != nil {
			last = opts.LastReport()
		}
		resp := healthFromReport(last)
		resp.Timestamp = time.Now()
		resp.Uptime = time.Since(started).Round(time.Second).String()

		code := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write health response", logfields.Error(err))
		}
	})
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, opts.Metrics)
	}
	return mux
}

func healthFromReport(r *build.Report) HealthResponse {
	resp := HealthResponse{Version: version.Version}
	if r == nil {
		resp.Status = HealthStatusUnhealthy
		return resp
	}
	resp.BuildID = r.BuildID
	resp.Outcome = string(r.Outcome)
	resp.Summary = r.Summary()
	switch r.Outcome {
	case build.OutcomeSuccess:
		resp.Status = HealthStatusHealthy
	default:
		// The last good tree is still being served.
		resp.Status = HealthStatusDegraded
	}
	return resp
}

// Server is the preview HTTP server.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr so a port conflict surfaces before any goroutine starts.
func Listen(addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		srv: &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second, ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, IdleTimeout: 120 * time.Second},
		ln:  ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Serve() error {
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
// The listener is closed even if Serve was never called.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	_ = s.ln.Close()
	return err
}
