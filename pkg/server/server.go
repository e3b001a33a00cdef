package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/paddockdb/paddock/pkg/activities"
	"github.com/paddockdb/paddock/pkg/api"
	"github.com/paddockdb/paddock/pkg/client"
	"github.com/paddockdb/paddock/pkg/cms"
	"github.com/paddockdb/paddock/pkg/config"
	"github.com/paddockdb/paddock/pkg/history"
	"github.com/paddockdb/paddock/pkg/kube"
	"github.com/paddockdb/paddock/pkg/log"
	"github.com/paddockdb/paddock/pkg/metrics"
	"github.com/paddockdb/paddock/pkg/orchestrations"
	"github.com/paddockdb/paddock/pkg/runtime"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// Files kept under the data directory alongside the history store.
const (
	pidFileName = "server.pid"
	logFileName = "server.log"
)

// PIDPath returns the daemon PID file location under dataDir.
func PIDPath(dataDir string) string { return filepath.Join(dataDir, pidFileName) }

// LogPath returns the daemon log file location under dataDir.
func LogPath(dataDir string) string { return filepath.Join(dataDir, logFileName) }

// Server composes the control plane: the catalog, the history store, the
// orchestration runtime, and the HTTP API.
type Server struct {
	cfg       *config.Config
	logger    zerolog.Logger
	catalog   *cms.Store
	store     *history.BoltStore
	rt        *runtime.Runtime
	client    *client.Client
	api       *api.Server
	collector *metrics.Collector
}

// New wires every subsystem but starts nothing. The catalog schema must
// already exist; New fails with a pointer at paddock-migrate otherwise.
func New(cfg *config.Config, version string) (*Server, error) {
	logger := log.WithComponent("server")

	catalog, err := cms.Open(cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	verifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := catalog.VerifySchema(verifyCtx); err != nil {
		_ = catalog.Close()
		return nil, err
	}

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := history.NewBoltStore(cfg.Runtime.DataDir)
	if err != nil {
		_ = catalog.Close()
		return nil, err
	}
	metrics.SetVersion(version)
	metrics.SetComponent("store", true, "")

	kubeClient, err := kube.New(cfg.Kubernetes.Kubeconfig)
	if err != nil {
		_ = store.Close()
		_ = catalog.Close()
		return nil, err
	}

	workflows := workflow.NewRegistry()
	orchestrations.Register(workflows, orchestrations.DefaultOptions())

	registry := runtime.NewActivityRegistry()
	rt := runtime.New(store, workflows, registry, runtime.Config{
		OrchestrationWorkers: cfg.Runtime.OrchestrationWorkers,
		ActivityWorkers:      cfg.Runtime.ActivityWorkers,
		LeaseDuration:        cfg.Runtime.LeaseDuration,
		PollInterval:         cfg.Runtime.PollInterval,
		SweepInterval:        cfg.Runtime.SweepInterval,
	})

	cl := client.New(store, client.WithNotifier(rt.Notifier()))
	activities.New(kubeClient, catalog, cl).Register(registry)

	apiServer := api.NewServer(api.Config{
		Addr:      cfg.ListenAddr(),
		AuthToken: cfg.Server.AuthToken,
		Namespace: cfg.Kubernetes.Namespace,
		LogPath:   LogPath(cfg.Runtime.DataDir),
		Version:   version,
	}, cl, catalog)

	return &Server{
		cfg:       cfg,
		logger:    logger,
		catalog:   catalog,
		store:     store,
		rt:        rt,
		client:    cl,
		api:       apiServer,
		collector: metrics.NewCollector(store, catalog),
	}, nil
}

// Client returns the orchestration client bound to this server's store.
func (s *Server) Client() *client.Client { return s.client }

// Run starts the runtime, the metrics collector, and the API server, then
// blocks until ctx is cancelled or the listener fails. Subsystems stop in
// reverse start order so in-flight work drains before the stores close.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().
		Str("addr", s.cfg.ListenAddr()).
		Str("data_dir", s.cfg.Runtime.DataDir).
		Str("namespace", s.cfg.Kubernetes.Namespace).
		Int("orchestration_workers", s.cfg.Runtime.OrchestrationWorkers).
		Int("activity_workers", s.cfg.Runtime.ActivityWorkers).
		Msg("Starting paddock server")

	s.rt.Start()
	s.collector.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.api.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.api.Shutdown(shutdownCtx)
	})
	err := g.Wait()

	s.collector.Stop()
	s.rt.Stop()
	if cerr := s.store.Close(); cerr != nil {
		s.logger.Warn().Err(cerr).Msg("Failed to close history store")
	}
	metrics.SetComponent("store", false, "stopped")
	if cerr := s.catalog.Close(); cerr != nil {
		s.logger.Warn().Err(cerr).Msg("Failed to close catalog")
	}

	s.logger.Info().Msg("Server stopped")
	return err
}
