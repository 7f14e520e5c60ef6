package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	apihttp "github.com/GriffinCanCode/AgentOS/memmgr/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/api/rpc"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/bootinfo"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/slots"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/upload"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/window"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel/sim"
)

// Server wraps the HTTP and gRPC servers and their dependencies
type Server struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	kernel  *sim.Kernel
	alloc   *memory.Allocator
	uploads *upload.Store
	layout  apihttp.Layout

	router *gin.Engine
	http   *http.Server
	grpc   *grpc.Server
}

// New boots the simulated machine and builds both transports
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing memory manager",
		zap.String("http_addr", cfg.Server.Addr()),
		zap.String("grpc_addr", cfg.Server.GRPCAddr()),
		zap.String("manifest", cfg.Boot.ManifestPath),
	)

	manifest, err := bootinfo.LoadOrDefault(cfg.Boot.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load boot manifest: %w", err)
	}
	kern, info, err := bootinfo.Boot(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to boot: %w", err)
	}
	logger.Info("Booted simulated kernel",
		zap.Int("regions", len(manifest.Regions)),
		zap.Uint8("root_radix", manifest.RootRadix),
		zap.Uint64("empty_start", uint64(info.Empty.Start)),
		zap.Uint64("empty_end", uint64(info.Empty.End)),
	)

	alloc, err := memory.New(kern, info, memory.WithLogger(logger.Named("memory")))
	if err != nil {
		return nil, fmt.Errorf("failed to create allocator: %w", err)
	}

	layout, err := planLayout(info, *cfg)
	if err != nil {
		return nil, err
	}

	win, err := window.New(kern, window.Config{
		Base:      uintptr(cfg.Window.Base),
		RootDepth: info.RootDepth,
		Bounce:    layout.Bounce,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create page window: %w", err)
	}

	uploads := upload.New(win, alloc, slots.New("uploads", layout.UploadSlots),
		upload.WithLogger(logger.Named("upload")),
		upload.WithMaxBytes(cfg.Upload.MaxBytes),
	)

	metrics := monitoring.NewMetrics()
	if err := metrics.RegisterAllocator(alloc); err != nil {
		return nil, fmt.Errorf("failed to register allocator metrics: %w", err)
	}
	tracer := tracing.New("memmgr", logger.Logger)

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		kernel:  kern,
		alloc:   alloc,
		uploads: uploads,
		layout:  layout,
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	s.grpc = s.buildGRPC()

	logger.Info("Server initialized successfully",
		zap.Uint64("client_slots_start", uint64(layout.ClientSlots.Start)),
		zap.Uint64("client_slots_end", uint64(layout.ClientSlots.End)),
		zap.Uint64("bounce_slot", uint64(layout.Bounce)),
	)
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if rl := s.config.RateLimit; rl.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", rl.RequestsPerSecond),
			zap.Int("burst", rl.Burst),
		)
		cfg := middleware.DefaultRateLimitConfig()
		cfg.RequestsPerSecond = rl.RequestsPerSecond
		cfg.Burst = rl.Burst
		router.Use(middleware.RateLimit(cfg))
	}

	handlers := apihttp.NewHandlers(s.alloc, s.uploads,
		apihttp.WithMetrics(s.metrics),
		apihttp.WithLogger(s.logger.Named("http")),
		apihttp.WithLayout(s.layout),
	)
	handlers.Register(router)

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/metrics/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.metrics.Snapshot())
	})
	if s.config.Logging.LevelEndpoint {
		s.logger.Warn("Log level endpoint enabled", zap.String("path", "/debug/log-level"))
		router.GET("/debug/log-level", gin.WrapH(s.logger.Level()))
		router.PUT("/debug/log-level", gin.WrapH(s.logger.Level()))
	}

	return router
}

func (s *Server) buildGRPC() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		tracing.GRPCUnaryInterceptor(s.tracer),
		monitoring.UnaryServerInterceptor(s.metrics),
	))
	rpc.Register(srv, rpc.NewServer(s.alloc,
		rpc.WithMetrics(s.metrics),
		rpc.WithScope(memory.ClientScope(s.layout.ClientSlots)),
		rpc.WithLogger(s.logger.Named("rpc")),
	))
	return srv
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Allocator returns the untyped allocator
func (s *Server) Allocator() *memory.Allocator {
	return s.alloc
}

// Layout returns the slot layout
func (s *Server) Layout() apihttp.Layout {
	return s.layout
}

// Run serves HTTP and gRPC until ctx is done or either listener fails,
// then shuts both down.
func (s *Server) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr(), err)
	}
	grpcLis, err := net.Listen("tcp", s.config.Server.GRPCAddr())
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.GRPCAddr(), err)
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve is Run on existing listeners
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.Stringer("addr", httpLis.Addr()))
		if err := s.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("Starting gRPC server", zap.Stringer("addr", grpcLis.Addr()))
		if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown()
	})

	return g.Wait()
}

// Shutdown stops both servers, waiting up to the configured timeout for
// in-flight requests
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	err := s.http.Shutdown(ctx)
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}

	s.tracer.Close()
	_ = s.logger.Sync()
	if err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
