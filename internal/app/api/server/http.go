package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/docs"
	"github.com/fatflowers/dropship/internal/app/api/handlers"
	mw "github.com/fatflowers/dropship/internal/app/api/middleware"
	notificationlog "github.com/fatflowers/dropship/internal/app/service/notification_log"
	"github.com/fatflowers/dropship/internal/app/service/ordersync"
	"github.com/fatflowers/dropship/internal/app/service/reconciliation"
	"github.com/fatflowers/dropship/internal/app/service/statistics"
	cfgpkg "github.com/fatflowers/dropship/pkg/config"
	metrics "github.com/fatflowers/dropship/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	if origins := cfg.CORS.AllowOrigins; len(origins) > 0 {
		cc := cors.Config{
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", mw.TraceHeader},
			ExposeHeaders: []string{mw.TraceHeader},
			MaxAge:        12 * time.Hour,
		}
		if lo.Contains(origins, "*") {
			cc.AllowAllOrigins = true
		} else {
			cc.AllowOrigins = origins
		}
		r.Use(cors.New(cc))
	}
	return r
}

type routeDeps struct {
	fx.In

	Engine *gin.Engine
	Log    *zap.SugaredLogger
	Config *cfgpkg.Config
	DB     *gorm.DB
	Pay    *reconciliation.Engine
	Stats  *statistics.Service
	Audit  *notificationlog.Service
	Sync   *ordersync.Syncer
}

func registerRoutes(d routeDeps) {
	r, log, cfg := d.Engine, d.Log, d.Config
	// Prometheus metrics
	if cfg.MetricsAddr != "" {
		metrics.RegisterDomain(log)
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, d.DB)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))

	rl := cfg.RateLimit
	checkout := apiV1.Group("/checkout", mw.RateLimitMiddleware(rl.CheckoutRPS, rl.CheckoutBurst))
	handlers.RegisterCheckoutRoutes(checkout, d.Pay, log)
	orders := apiV1.Group("/orders", mw.RateLimitMiddleware(rl.CheckoutRPS, rl.CheckoutBurst))
	handlers.RegisterOrderRoutes(orders, d.Pay, log)

	payment := apiV1.Group("/payment", mw.RateLimitMiddleware(rl.WebhookRPS, rl.WebhookBurst))
	handlers.RegisterPaymentCallbackRoutes(payment, d.Pay, d.Audit, log)

	// Admin APIs are expected behind the operator network
	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), d.Pay, d.Stats, d.Sync, log)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
