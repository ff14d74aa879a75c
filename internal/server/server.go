package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/IYouKnow/atlas-probe/internal/fault"
	"github.com/IYouKnow/atlas-probe/internal/probe"
	"github.com/IYouKnow/atlas-probe/pkg/user"
)

// maxBodyBytes bounds command request bodies.
const maxBodyBytes = 1 << 20

// Options tunes the bridge. A zero RateLimit disables limiting.
type Options struct {
	RateLimit float64
	Burst     int
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
}

// Server is the local HTTP bridge that exposes probe commands to a frontend.
type Server struct {
	Addr       string
	Service    *probe.Service
	UserStore  *user.Store
	HTTPServer *http.Server

	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a new Server instance.
func New(addr string, svc *probe.Service, store *user.Store, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		Addr:      addr,
		Service:   svc,
		UserStore: store,
		opts:      opts,
		logger:    logger,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	// Built up front so a Shutdown that wins the race against Serve still
	// marks the server closed.
	s.HTTPServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain: log, rate limit, then the
// routes, which apply Basic auth to everything except /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.authMiddleware(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	mux.Handle("GET /v1/volumes", s.authMiddleware(http.HandlerFunc(s.handleVolumes)))
	mux.Handle("POST /v1/commands/"+probe.CmdDriveSize, s.authMiddleware(http.HandlerFunc(s.handleDriveSize)))
	mux.Handle("POST /v1/commands/"+probe.CmdFolderSize, s.authMiddleware(http.HandlerFunc(s.handleFolderSize)))
	mux.Handle("POST /v1/commands/"+probe.CmdSendTCP, s.authMiddleware(http.HandlerFunc(s.handleSendTCP)))
	mux.Handle("POST /v1/commands/"+probe.CmdStorageInfo, s.authMiddleware(http.HandlerFunc(s.handleStorageReport)))

	return otelhttp.NewHandler(s.logMiddleware(s.rateLimitMiddleware(mux)), "atlas-bridge")
}

// Start listens on Addr and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves the bridge on ln. After Shutdown it returns nil at once.
func (s *Server) Serve(ln net.Listener) error {
	if s.UserStore == nil || len(s.UserStore.List()) == 0 {
		s.logger.Warn("no users defined; every authenticated route will be rejected, use 'atlas user add'")
	}
	s.logger.Info("atlas bridge listening", "addr", ln.Addr().String())
	if err := s.HTTPServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.HTTPServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVolumes(w http.ResponseWriter, r *http.Request) {
	vols, err := s.Service.ListVolumes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vols)
}

func (s *Server) handleDriveSize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if !decode(w, r, &req) {
		return
	}
	size, err := s.Service.GetDriveSize(r.Context(), req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, size)
}

func (s *Server) handleFolderSize(w http.ResponseWriter, r *http.Request) {
	var req probe.FolderSizeRequest
	if !decode(w, r, &req) {
		return
	}
	size, err := s.Service.GetFolderSize(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"size": size})
}

func (s *Server) handleSendTCP(w http.ResponseWriter, r *http.Request) {
	var req probe.TCPRequest
	if !decode(w, r, &req) {
		return
	}
	reply, err := s.Service.SendTCPMessage(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func (s *Server) handleStorageReport(w http.ResponseWriter, r *http.Request) {
	var req probe.StorageRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Categories) == 0 {
		writeError(w, fault.New(fault.InvalidRequest, probe.CmdStorageInfo, "", errors.New("categories must not be empty")))
		return
	}
	rep, err := s.Service.StorageReport(r.Context(), req.Categories)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, fault.New(fault.InvalidRequest, "decode", "", fmt.Errorf("body: %w", err)))
		return false
	}
	return true
}
