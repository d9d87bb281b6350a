package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-remote/controller"
	"github.com/ethereum-optimism/infra/op-remote/registry"
	"github.com/ethereum-optimism/infra/op-remote/service"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// Server implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = (*Server)(nil)

// Server executes test runs submitted by remote clients until stopped.
type Server struct {
	config     *ServerConfig
	version    string
	registry   *registry.Registry
	controller *controller.Controller
	httpServer *http.Server
	service    *service.Service
	listener   net.Listener
	tempDir    string

	running atomic.Bool
}

func NewServer(config *ServerConfig, version string) (*Server, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if config.Log == nil {
		config.Log = log.New()
	}

	config.Log.Debug("Creating server with config",
		"listenAddr", config.ListenAddr,
		"engines", config.EnginesConfig,
		"testDir", config.TestDir,
		"maxPollHold", config.MaxPollHold)

	reg, err := registry.NewRegistry(registry.Config{
		Log:               config.Log,
		EngineConfigFile:  config.EnginesConfig,
		WorkDir:           config.TestDir,
		GoBinary:          config.GoBinary,
		DefaultTimeout:    config.DefaultTimeout,
		DefaultProperties: config.DefaultProperties,
		DefaultIncludes:   config.DefaultIncludes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	s := &Server{config: config, version: version, registry: reg}

	artifactDir := config.ArtifactDir
	if artifactDir == "" {
		if artifactDir, err = os.MkdirTemp("", "op-remote-artifacts-"); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory: %w", err)
		}
		s.tempDir = artifactDir
	}

	store, err := controller.NewArtifactStore(artifactDir, controller.DefaultSuiteName, config.Log.New("component", "store"))
	if err != nil {
		return nil, err
	}
	s.controller, err = controller.New(controller.Config{
		Engines:     reg,
		Store:       store,
		MaxPollHold: config.MaxPollHold,
		Log:         config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           controller.NewHandler(s.controller),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.service = service.New(config.HealthzAddr, config.MetricsAddr)
	config.Log.Info("server.New: created registry and controller", "engines", reg.EngineNames())
	return s, nil
}

// Start opens the listener and serves the test API.
// Start implements the cliapp.Lifecycle interface.
func (s *Server) Start(ctx context.Context) error {
	l, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err))
	}
	s.listener = l
	s.running.Store(true)

	go func() {
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.config.Log.Error("Test API server failed", "err", err)
		}
	}()
	s.service.Start(ctx)

	s.config.Log.Info("op-remote server started", "addr", l.Addr().String(), "version", s.version,
		"default_engine", s.registry.DefaultEngine())
	return nil
}

// Stop shuts the API down and cancels a running engine.
// Stop implements the cliapp.Lifecycle interface.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.Load() {
		s.config.Log.Debug("Server already stopped, nothing to do")
		return nil
	}
	s.running.Store(false)
	s.config.Log.Info("Stopping op-remote server")

	err := s.httpServer.Shutdown(ctx)
	s.controller.Close()
	s.service.Shutdown()
	if s.tempDir != "" {
		if rmErr := os.RemoveAll(s.tempDir); rmErr != nil {
			s.config.Log.Warn("Failed to remove artifact directory", "dir", s.tempDir, "err", rmErr)
		}
	}

	s.config.Log.Info("op-remote server stopped")
	return err
}

// Stopped implements the cliapp.Lifecycle interface.
func (s *Server) Stopped() bool {
	return !s.running.Load()
}

// Addr returns the address the API listens on, empty before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Registry exposes the engine registry so engines can be added before Start
func (s *Server) Registry() *registry.Registry {
	return s.registry
}
