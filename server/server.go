package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/mailsync/api"
	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/cron"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, mailsyncDB *gorm.DB) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize jaeger tracer")
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize repositories
	repos := repository.InitRepositories(mailsyncDB)

	// Initialize services
	svcs, err := services.InitServices(cfg, repos, prometheus.DefaultRegisterer, appLogger)
	if err != nil {
		return nil, err
	}

	cronManager := cron.NewCronManager(cfg.Cron, appLogger, kubernetesClient(appLogger), svcs.Auditor, svcs.Monitor)

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		repositories: repos,
		cronManager:  cronManager,
		tracerCloser: closer,
		httpServer:   newHTTPServer(":"+cfg.AppConfig.APIPort, router, svcs.Hub.Close),
	}, nil
}

// newHTTPServer runs onShutdown when Shutdown starts, so long-lived streams
// end instead of holding the server open until the grace period expires.
func newHTTPServer(addr string, handler http.Handler, onShutdown ...func()) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	for _, fn := range onShutdown {
		srv.RegisterOnShutdown(fn)
	}
	return srv
}

// kubernetesClient returns nil outside a cluster, which puts the cron manager in local mode.
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Infof("not running in kubernetes, leader election disabled: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("failed to build kubernetes client, leader election disabled: %v", err)
		return nil
	}
	return client
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		err := tracing.PanicError(r)

		span := opentracing.GlobalTracer().StartSpan("panic." + name)
		defer span.Finish()
		ext.Error.Set(span, true)
		tracing.TraceErr(span, err)

		s.log.Errorf("Panic in %s: %v", name, err)
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	// Create root context for the application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api.RegisterRoutes(s.router, s.services, s.config.AppConfig.APIKey,
		time.Duration(s.config.AppConfig.SSEHeartbeat)*time.Second, s.log)

	s.services.Emitter.Start()
	s.services.Pool.Start()

	if s.config.AutoSync.Enabled {
		go s.wrapGoroutine("auto_sync", func() {
			if err := s.services.Initializer.Initialize(ctx); err != nil {
				s.log.Errorf("Auto-sync initialization stopped: %v", err)
			}
		})
	} else {
		s.log.Info("Auto-sync disabled, accounts must be started through the API")
	}

	if err := s.cronManager.Start(s.config.AppConfig.PodName, s.config.AppConfig.Namespace); err != nil {
		return errors.Wrap(err, "failed to start cron manager")
	}

	// Start HTTP server in a goroutine with panic recovery
	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("Mailsync is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown(cancel)
}

func (s *Server) waitForShutdown(cancel context.CancelFunc) error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR2)

	sig := <-stop
	s.log.Infof("Received %s, shutting down...", sig)

	grace := time.Duration(s.config.AppConfig.ShutdownTimeout) * time.Second

	// stop accepting control requests first; notification streams end via the hub
	httpCtx, httpCancel := context.WithTimeout(context.Background(), grace)
	defer httpCancel()
	if err := s.httpServer.Shutdown(httpCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	s.cronManager.Stop()

	// ends a pending auto-sync retry loop
	cancel()

	// in-flight ticks get their own grace period
	jobsCtx, jobsCancel := context.WithTimeout(context.Background(), grace)
	defer jobsCancel()
	if err := s.services.Initializer.Stop(jobsCtx); err != nil {
		s.log.Warnf("Sync jobs did not finish within %s: %v", grace, err)
	}

	s.services.Pool.CloseAll()

	if err := s.services.Emitter.Close(jobsCtx); err != nil {
		s.log.Warnf("Notification queue not drained: %v", err)
	}
	if s.services.Publisher != nil {
		if err := s.services.Publisher.Close(); err != nil {
			s.log.Warnf("RabbitMQ publisher close error: %v", err)
		}
	}

	if s.tracerCloser != nil {
		if err := s.tracerCloser.Close(); err != nil {
			s.log.Warnf("Tracer close error: %v", err)
		}
	}

	s.log.Info("Shutdown complete")
	_ = s.log.Sync()
	return nil
}
