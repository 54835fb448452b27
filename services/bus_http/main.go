package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"executor-go/commonlib/config"
	"executor-go/commonlib/log"
	"executor-go/commonlib/snowflake"
	"executor-go/services/bus_http/handler"
	"executor-go/services/bus_http/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcCtx, err := NewServiceContext(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init service context: %v\n", err)
		os.Exit(1)
	}
	defer svcCtx.Close()

	logger := svcCtx.Logger
	logger.Info("Starting bus HTTP service",
		log.String("name", cfg.Service.Name),
		log.String("version", cfg.Service.Version),
		log.Int64("node_id", cfg.Service.NodeID),
	)

	if err := svcCtx.Start(ctx); err != nil {
		logger.Error("Failed to start service", log.Err(err))
		return
	}

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := NewRouter(svcCtx.Handler, svcCtx.IDs, logger)

	server := &http.Server{
		Addr:         cfg.GetHTTPAddr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server started", log.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.Err(err))
		return
	}
	logger.Info("Server stopped")
}

// NewRouter builds the gin engine with middlewares and routes.
func NewRouter(h *handler.Handler, ids *snowflake.TypedID, logger log.Logger) *gin.Engine {
	router := gin.New()

	var newRequestID func() string
	if ids != nil {
		newRequestID = func() string { return ids.Generate(snowflake.IDTypeRequest) }
	}
	router.Use(middleware.RequestID(newRequestID))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))

	h.RegisterRoutes(router)
	return router
}
