package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/driftkv/driftkv/internal/audit"
	"github.com/driftkv/driftkv/internal/buckettype"
	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/enumerator"
	"github.com/driftkv/driftkv/internal/metadata"
	"github.com/driftkv/driftkv/internal/metrics"
	"github.com/driftkv/driftkv/internal/middleware"
	"github.com/driftkv/driftkv/internal/protocol"
	"github.com/driftkv/driftkv/internal/stream"
)

// Server is the DriftKV listing front-end: the HTTP chunked transport, the
// binary protocol transport, and the shared core they both drive.
type Server struct {
	config         *config.Config
	httpServer     *http.Server
	protocolServer *protocol.Server
	metadataStore  metadata.Store
	sessionManager *stream.Manager
	auditManager   *audit.Manager
	registry       *prometheus.Registry
	startTime      time.Time
}

// New creates a new listing server from configuration
func New(cfg *config.Config) (*Server, error) {
	logger := logrus.StandardLogger()

	// Initialize metadata store
	var (
		store metadata.Store
		rawKV metadata.RawKV
		err   error
	)
	switch cfg.Metadata.Engine {
	case "pebble":
		var ps *metadata.PebbleStore
		ps, err = metadata.NewPebbleStore(metadata.PebbleOptions{
			DataDir: cfg.DataDir,
			Logger:  logger,
		})
		store, rawKV = ps, ps
	default:
		var bs *metadata.BadgerStore
		bs, err = metadata.NewBadgerStore(metadata.BadgerOptions{
			DataDir:           cfg.DataDir,
			SyncWrites:        cfg.Metadata.SyncWrites,
			CompactionEnabled: true,
			Logger:            logger,
		})
		store, rawKV = bs, bs
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata store: %w", err)
	}

	// Initialize enumeration engine
	enum, err := enumerator.New(cfg.Enumerator, rawKV, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create enumerator: %w", err)
	}

	// Metrics live on a per-server registry so embedded and test instances
	// never collide.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	streamMetrics := metrics.NewStreaming(registry)

	resolver := buckettype.NewResolver(store)
	sessionManager := stream.NewManager(resolver, enum, streamMetrics)

	// Initialize audit log
	var auditManager *audit.Manager
	if cfg.Audit.Enable {
		auditStore, err := audit.NewSQLiteStore(filepath.Join(cfg.DataDir, "audit.db"), logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create audit store: %w", err)
		}
		auditManager = audit.NewManager(auditStore, logger)
	}

	s := &Server{
		config:         cfg,
		metadataStore:  store,
		sessionManager: sessionManager,
		auditManager:   auditManager,
		registry:       registry,
		startTime:      time.Now(),
	}

	s.protocolServer = protocol.NewServer(sessionManager, auditManager, s.defaultTimeout())

	s.httpServer = &http.Server{
		Addr:        cfg.Listen,
		Handler:     handlers.RecoveryHandler()(middleware.Logging()(s.setupRoutes())),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: listing streams legitimately outlive any fixed
		// write deadline; the enumeration deadline bounds them instead.
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

func (s *Server) defaultTimeout() time.Duration {
	return time.Duration(s.config.Enumerator.DefaultTimeout) * time.Second
}

func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.config.Metrics.Enable {
		r.Handle(s.config.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	// Listing, typed and legacy untyped forms
	r.HandleFunc("/types/{type}/buckets/{bucket}/keys", s.handleListKeys).Methods("GET")
	r.HandleFunc("/types/{type}/buckets", s.handleListBuckets).Methods("GET")
	r.HandleFunc("/buckets/{bucket}/keys", s.handleListKeys).Methods("GET")
	r.HandleFunc("/buckets", s.handleListBuckets).Methods("GET")

	// Bucket-type administration
	r.HandleFunc("/types", s.handleListBucketTypes).Methods("GET")
	r.HandleFunc("/types/{type}", s.handleGetBucketType).Methods("GET")
	r.HandleFunc("/types/{type}", s.handleCreateBucketType).Methods("PUT")
	r.HandleFunc("/types/{type}", s.handleDeleteBucketType).Methods("DELETE")

	// Audit records
	r.HandleFunc("/audit/records", s.handleAuditRecords).Methods("GET")

	return r
}

// Start runs both transports until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		logrus.WithField("listen", s.config.Listen).Info("HTTP listener started")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	protoLn, err := net.Listen("tcp", s.config.ProtocolListen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ProtocolListen, err)
	}
	go func() {
		logrus.WithField("listen", s.config.ProtocolListen).Info("Protocol listener started")
		if err := s.protocolServer.Serve(ctx, protoLn); err != nil {
			errCh <- fmt.Errorf("protocol server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-ctx.Done():
		s.shutdown()
		return nil
	}
}

func (s *Server) shutdown() {
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown failed")
	}

	if err := s.auditManager.Close(); err != nil {
		logrus.WithError(err).Warn("Audit store close failed")
	}
	if err := s.metadataStore.Close(); err != nil {
		logrus.WithError(err).Warn("Metadata store close failed")
	}
}
