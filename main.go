package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"

	"github.com/johnwmail/pastelite/config"
	"github.com/johnwmail/pastelite/handlers"
	"github.com/johnwmail/pastelite/internal/clock"
	"github.com/johnwmail/pastelite/internal/logging"
	"github.com/johnwmail/pastelite/internal/metrics"
	"github.com/johnwmail/pastelite/internal/reaper"
	"github.com/johnwmail/pastelite/internal/server"
	"github.com/johnwmail/pastelite/internal/services"
	"github.com/johnwmail/pastelite/internal/slug"
	"github.com/johnwmail/pastelite/storage"

	// Lambda imports (only used when in Lambda mode)
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
)

// Version/build info (set via -ldflags at build time)
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "none"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

// Lambda-specific variables
var (
	ginLambdaV1   *ginadapter.GinLambda
	ginLambdaV2   *ginadapter.GinLambdaV2
	ginLambdaOnce sync.Once
)

// isLambdaEnvironment detects if running in AWS Lambda
func isLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires the service and blocks until it stops. It returns the process
// exit code so deferred cleanup runs before main exits.
func run(args []string) int {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 2
	}
	cfg.Version = Version
	cfg.BuildTime = BuildTime
	cfg.CommitHash = CommitHash

	logger, closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		return 1
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("Starting pastelite",
		"version", Version,
		"build_time", BuildTime,
		"commit", CommitHash,
		"storage", cfg.StorageType,
		"test_mode", cfg.TestMode,
		"api_keys", len(cfg.APIKeyList()))

	// Set Gin mode based on environment
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "type", cfg.StorageType, "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing storage", "error", err)
		}
	}()

	svc := services.NewPasteService(store, slug.New(cfg.IDLength), logger, services.Options{
		BaseURL:          cfg.URL,
		OperationTimeout: cfg.OperationTimeout,
	})
	clk := clock.Real{}

	router := setupRouter(svc, cfg, clk, logger)

	if isLambdaEnvironment() {
		logger.Info("Starting in AWS Lambda mode")
		ginLambdaOnce.Do(func() {
			ginLambdaV1 = ginadapter.New(router)
			ginLambdaV2 = ginadapter.NewV2(router)
		})
		lambda.StartWithOptions(lambdaHandler, lambda.WithContext(ctx))
		return 0
	}

	logger.Info("Starting in HTTP server mode")
	if err := runHTTPServer(ctx, router, cfg, reaper.New(svc, clk, cfg.ReapInterval, logger), logger); err != nil {
		logger.Error("Server failed", "error", err)
		return 1
	}
	return 0
}

// lambdaHandler handles Lambda requests for both v1 and v2 formats
func lambdaHandler(ctx context.Context, event json.RawMessage) (interface{}, error) {
	var reqV2 events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(event, &reqV2); err == nil && reqV2.RequestContext.HTTP.Method != "" {
		slog.Debug("Handling as APIGatewayV2HTTPRequest",
			"method", reqV2.RequestContext.HTTP.Method, "path", reqV2.RawPath)
		return ginLambdaV2.ProxyWithContext(ctx, reqV2)
	}

	var reqV1 events.APIGatewayProxyRequest
	if err := json.Unmarshal(event, &reqV1); err == nil && reqV1.HTTPMethod != "" {
		slog.Debug("Handling as APIGatewayProxyRequest",
			"method", reqV1.HTTPMethod, "path", reqV1.Path)
		return ginLambdaV1.ProxyWithContext(ctx, reqV1)
	}

	slog.Warn("Unable to parse event as APIGateway v1 or v2 format")
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusBadRequest,
		Body:       "Unsupported event type - this function expects API Gateway or Lambda Function URL events",
		Headers: map[string]string{
			"Content-Type": "text/plain",
		},
	}, fmt.Errorf("unsupported event")
}

// setupRouter creates and configures the Gin router
func setupRouter(svc *services.PasteService, cfg *config.Config, clk clock.Clock, logger *slog.Logger) *gin.Engine {
	pasteHandler := handlers.NewPasteHandler(svc, cfg, clk, logger)
	metaHandler := handlers.NewMetaHandler(svc, cfg, clk, logger)
	systemHandler := handlers.NewSystemHandler(svc, logger)

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(requestID())
	router.Use(jsonRecovery(logger))
	if cfg.EnableMetrics {
		router.Use(metrics.Middleware())
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Paste API
	api := router.Group("/api")
	{
		api.POST("/pastes", pasteHandler.Create)
		api.GET("/pastes/:id", pasteHandler.Get)
		api.GET("/healthz", systemHandler.Healthz)
	}
	router.GET("/p/:id", pasteHandler.Raw)

	// Operator routes exist only when keys are configured
	if keys := cfg.APIKeyList(); len(keys) > 0 {
		ops := router.Group("/api/v1", apiKeyAuth(keys))
		{
			ops.GET("/meta/:id", metaHandler.GetMetadata)
			ops.POST("/burn/:id", metaHandler.Burn)
			ops.POST("/reap", metaHandler.Reap)
		}
	}

	router.GET("/health", systemHandler.Health)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	})

	return router
}

// requestID tags every request with an id, reusing a client-supplied one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 64 {
			id = xid.New().String()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// jsonRecovery returns a middleware that recovers from panics and ensures
// the response is JSON formatted.
func jsonRecovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic while handling request",
					"panic", r,
					"path", c.Request.URL.Path,
					"request_id", c.GetString("request_id"))
				c.Header("Content-Type", "application/json; charset=utf-8")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// apiKeyAuth returns a middleware that validates API keys supplied via
// Authorization: Bearer <key> or X-Api-Key: <key> headers and denies
// unauthorized requests with HTTP 401.
func apiKeyAuth(keys []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}

	return func(c *gin.Context) {
		var key string
		if auth := c.GetHeader("Authorization"); auth != "" {
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				key = strings.TrimSpace(auth[7:])
			}
		}
		if key == "" {
			key = strings.TrimSpace(c.GetHeader("X-Api-Key"))
		}

		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}

		if _, ok := allowed[key]; !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// runHTTPServer serves until ctx is cancelled, running the expiry sweeper
// alongside, then drains in-flight requests.
func runHTTPServer(ctx context.Context, router *gin.Engine, cfg *config.Config, sweeper *reaper.Reaper, logger *slog.Logger) error {
	srv := server.NewHTTPServer(fmt.Sprintf(":%d", cfg.Port), router, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	reapCtx, cancelReap := context.WithCancel(context.Background())
	reapDone := make(chan struct{})
	go func() {
		defer close(reapDone)
		sweeper.Run(reapCtx)
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := srv.Stop(shutdownCtx)
	cancelReap()
	<-reapDone

	if err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return nil
	}
	logger.Info("Server shutdown complete")
	return nil
}
