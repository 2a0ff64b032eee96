package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/app"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/handlers"
	"github.com/imrishuroy/go-payment-reconciler/internal/metrics"
	"github.com/imrishuroy/go-payment-reconciler/internal/middleware"
)

func setupRouter(cfg *config.Config, hc handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(metrics.PrometheusMiddleware("api"))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterRoutes(r, hc)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := app.SetupLogging(cfg.Log); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	r := setupRouter(cfg, handlers.HandlerConfig{
		Engine:   a.Engine,
		UPI:      cfg.UPI,
		Frontend: cfg.Frontend,
		Admin:    cfg.Admin,
	})

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.Server.RunLocal {
		log.WithField("addr", cfg.Server.Addr).Info("running local server")
		if err := r.Run(cfg.Server.Addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
