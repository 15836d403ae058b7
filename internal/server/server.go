package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/storesplit/internal/access"
	allocationdomain "github.com/smallbiznis/storesplit/internal/allocation/domain"
	auditdomain "github.com/smallbiznis/storesplit/internal/audit/domain"
	"github.com/smallbiznis/storesplit/internal/config"
	obsmetrics "github.com/smallbiznis/storesplit/internal/observability/metrics"
	obstracing "github.com/smallbiznis/storesplit/internal/observability/tracing"
	"github.com/smallbiznis/storesplit/internal/providers/pdf"
	"github.com/smallbiznis/storesplit/internal/ratelimit"
	storedomain "github.com/smallbiznis/storesplit/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if p.Cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(p.Log, !p.Cfg.IsProduction()))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(p.ObsMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	allocationSvc allocationdomain.Service
	accessSvc     access.Service
	auditSvc      auditdomain.Service
	storeSvc      storedomain.Service
	pdfProvider   pdf.Provider
	limiter       *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	AllocationSvc allocationdomain.Service
	AccessSvc     access.Service
	StoreSvc      storedomain.Service
	AuditSvc      auditdomain.Service     `optional:"true"`
	PDFProvider   pdf.Provider            `optional:"true"`
	Limiter       *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		allocationSvc: p.AllocationSvc,
		accessSvc:     p.AccessSvc,
		auditSvc:      p.AuditSvc,
		storeSvc:      p.StoreSvc,
		pdfProvider:   p.PDFProvider,
		limiter:       p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.ActorRequired())
	write := s.WriteGuard()

	// -------- Store payments --------
	api.POST("/store-payments", write, s.CreateStorePayment)
	api.GET("/store-payments", s.ListStorePayments)
	api.GET("/store-payments/:id", s.GetStorePayment)
	api.GET("/store-payments/:id/voucher", s.GetStorePaymentVoucher)
	api.PUT("/store-payments/:id", write, s.UpdateStorePayment)
	api.DELETE("/store-payments/:id", write, s.DeleteStorePayment)

	// -------- Allocations --------
	api.DELETE("/store-payments/allocations/:id", write, s.RemoveStorePaymentAllocation)
	api.PATCH("/store-payments/allocations/:id/reimbursement", write, s.UpdateAllocationReimbursement)

	// -------- Stores --------
	api.POST("/stores", write, s.CreateStore)
	api.GET("/stores/:id", s.GetStore)
	api.POST("/stores/:id/bank-accounts", write, s.CreateBankAccount)
	api.GET("/stores/:id/bank-accounts", s.ListBankAccounts)
	api.GET("/stores/:id/cash-balance", s.GetStoreCashBalance)
	api.GET("/stores/:id/audit-logs", s.ListStoreAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
