// Package app wires the sheet service: storage, cost table, layout, journal,
// the websocket transport, and the gRPC health endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/charsheet/internal/platform/timeouts"
	"github.com/louisbranch/charsheet/internal/services/sheet/api/ws"
	"github.com/louisbranch/charsheet/internal/services/sheet/costtable"
	"github.com/louisbranch/charsheet/internal/services/sheet/journal"
	"github.com/louisbranch/charsheet/internal/services/sheet/layout"
	"github.com/louisbranch/charsheet/internal/services/sheet/storage/sqlite"
)

// HealthService is the gRPC health service name reported by the sheet server.
const HealthService = "sheet.editor"

const (
	defaultHTTPAddr   = ":8092"
	defaultHealthAddr = ":8093"
	defaultDBPath     = "data/sheet.db"
	defaultLocale     = "en-US"
	journalPrefix     = "commits"
)

// Config controls sheet server startup.
type Config struct {
	HTTPAddr          string
	HealthAddr        string
	DBPath            string
	CostTablePath     string
	LayoutPath        string
	JournalDir        string
	Debounce          time.Duration
	DefaultLocale     string
	MaxConnections    int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (c Config) normalized() Config {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(c.HealthAddr) == "" {
		c.HealthAddr = defaultHealthAddr
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = defaultDBPath
	}
	if strings.TrimSpace(c.DefaultLocale) == "" {
		c.DefaultLocale = defaultLocale
	}
	if c.Debounce < 0 {
		c.Debounce = 0
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = timeouts.Shutdown
	}
	return c
}

// Server hosts the sheet HTTP/WebSocket process and its health endpoint.
type Server struct {
	cfg Config

	store   *sqlite.Store
	journal *journal.Writer

	httpListener   net.Listener
	healthListener net.Listener
	httpServer     *http.Server
	grpcServer     *grpc.Server
	healthServer   *health.Server
	sheets         *ws.Server
}

// New opens dependencies and binds listeners.
func New(cfg Config) (*Server, error) {
	cfg = cfg.normalized()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sheet storage dir: %w", err)
		}
	}
	l, err := layout.Load(cfg.LayoutPath)
	if err != nil {
		return nil, fmt.Errorf("load sheet layout: %w", err)
	}
	table := costtable.LoadOrDefault(cfg.CostTablePath, log.Printf)

	s := &Server{cfg: cfg}
	s.store, err = sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sheet sqlite store: %w", err)
	}

	wsCfg := ws.Config{
		Store:         s.store,
		Layout:        l,
		Table:         table,
		Debounce:      cfg.Debounce,
		DefaultLocale: cfg.DefaultLocale,
	}
	if strings.TrimSpace(cfg.JournalDir) != "" {
		s.journal = journal.NewWriter(cfg.JournalDir, journalPrefix)
		wsCfg.Recorder = s.journal
	}

	mux := http.NewServeMux()
	s.sheets = ws.NewServer(wsCfg)
	mux.Handle("/ws", s.sheets.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	s.httpListener, err = net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	if cfg.MaxConnections > 0 {
		s.httpListener = netutil.LimitListener(s.httpListener, cfg.MaxConnections)
	}
	s.healthListener, err = net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.HealthAddr, err)
	}

	s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.healthServer = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)
	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	return s, nil
}

// HTTPAddr returns the bound websocket address.
func (s *Server) HTTPAddr() string {
	return s.httpListener.Addr().String()
}

// HealthAddr returns the bound gRPC health address.
func (s *Server) HealthAddr() string {
	return s.healthListener.Addr().String()
}

// Serve runs both listeners until ctx ends or one of them fails.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("sheet server listening on %s", s.HTTPAddr())
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("sheet health listening on %s", s.HealthAddr())
		if err := s.grpcServer.Serve(s.healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve health: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		// Hijacked websocket connections outlive Shutdown.
		sheetsErr := s.sheets.Close(shutdownCtx)
		s.grpcServer.GracefulStop()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		if sheetsErr != nil {
			return fmt.Errorf("close sheet sessions: %w", sheetsErr)
		}
		return nil
	})
	return g.Wait()
}

// Close releases storage and the journal.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.healthListener != nil {
		_ = s.healthListener.Close()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			log.Printf("close sheet journal: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close sheet sqlite store: %v", err)
		}
	}
}

// Run creates and serves a sheet server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	server, err := New(cfg)
	if err != nil {
		return fmt.Errorf("init sheet server: %w", err)
	}
	defer server.Close()

	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("serve sheet: %w", err)
	}
	return nil
}
