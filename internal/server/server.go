package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/carebill/internal/audit"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/client"
	clientdomain "github.com/smallbiznis/carebill/internal/client/domain"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/delivery"
	deliverydomain "github.com/smallbiznis/carebill/internal/delivery/domain"
	"github.com/smallbiznis/carebill/internal/document"
	"github.com/smallbiznis/carebill/internal/invoice"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/internal/observability"
	obsmiddleware "github.com/smallbiznis/carebill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/carebill/internal/observability/tracing"
	"github.com/smallbiznis/carebill/internal/providers"
	"github.com/smallbiznis/carebill/internal/ratelimit"
	"github.com/smallbiznis/carebill/internal/rating"
	"github.com/smallbiznis/carebill/internal/seed"
	"github.com/smallbiznis/carebill/internal/timesheet"
	timesheetdomain "github.com/smallbiznis/carebill/internal/timesheet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultHTTPAddr = ":8080"

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	providers.Module,
	document.Module,
	rating.Module,
	client.Module,
	timesheet.Module,
	invoice.Module,
	delivery.Module,
	ratelimit.Module,
	seed.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = defaultHTTPAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	clientSvc       clientdomain.Service
	invoiceSvc      invoicedomain.Service
	timesheetSvc    timesheetdomain.Service
	queueSvc        deliverydomain.Service
	dispatchLimiter *ratelimit.DispatchLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	ClientSvc       clientdomain.Service
	InvoiceSvc      invoicedomain.Service
	TimesheetSvc    timesheetdomain.Service
	QueueSvc        deliverydomain.Service
	DispatchLimiter *ratelimit.DispatchLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		clientSvc:       p.ClientSvc,
		invoiceSvc:      p.InvoiceSvc,
		timesheetSvc:    p.TimesheetSvc,
		queueSvc:        p.QueueSvc,
		dispatchLimiter: p.DispatchLimiter,
	}

	svc.RegisterAPIRoutes()
	return svc
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api", s.RequireUser())

	invoices := api.Group("/invoices")
	{
		invoices.POST("/generate", s.authorize(authorization.ActionInvoiceGenerate), s.GenerateInvoices)
		invoices.GET("/:id", s.authorize(authorization.ActionInvoiceView), s.GetInvoiceByID)
		invoices.POST("/:id/approve", s.authorize(authorization.ActionInvoiceApprove), s.ApproveInvoice)
		invoices.POST("/:id/recalculate", s.authorize(authorization.ActionInvoiceRecalculate), s.RecalculateInvoice)
		invoices.PATCH("/:id/balance", s.authorize(authorization.ActionInvoiceUpdate), s.UpdateInvoiceBalance)
		invoices.POST("/:id/void", s.authorize(authorization.ActionInvoiceVoid), s.VoidInvoice)
	}

	timesheets := api.Group("/timesheets")
	{
		timesheets.POST("", s.authorize(authorization.ActionTimesheetCreate), s.CreateTimesheet)
		timesheets.POST("/overlaps", s.authorize(authorization.ActionTimesheetView), s.CheckTimesheetOverlaps)
		timesheets.GET("/:id", s.authorize(authorization.ActionTimesheetView), s.GetTimesheet)
		timesheets.PATCH("/:id", s.authorize(authorization.ActionTimesheetUpdate), s.UpdateTimesheet)
		timesheets.POST("/:id/approve", s.authorize(authorization.ActionTimesheetApprove), s.ApproveTimesheet)
		timesheets.DELETE("/:id", s.authorize(authorization.ActionTimesheetDelete), s.DeleteTimesheet)
	}

	queue := api.Group("/queue")
	{
		queue.GET("", s.authorize(authorization.ActionQueueView), s.ListQueue)
		queue.POST("/dispatch", s.authorize(authorization.ActionQueueDispatch), s.dispatchRateLimit(), s.DispatchQueue)
		queue.GET("/stuck", s.authorize(authorization.ActionQueueView), s.ListStuckQueue)
		queue.POST("/stuck/fail", s.authorize(authorization.ActionQueueRecover), s.FailStuckQueue)
		queue.DELETE("/:id", s.authorize(authorization.ActionQueueRemove), s.RemoveQueueItem)
		queue.POST("/:id/requeue", s.authorize(authorization.ActionQueueRequeue), s.RequeueItem)
	}

	api.POST("/payers", s.authorize(authorization.ActionClientManage), s.CreatePayer)
	clients := api.Group("/clients")
	{
		clients.POST("", s.authorize(authorization.ActionClientManage), s.CreateClient)
		clients.GET("/:id", s.authorize(authorization.ActionClientView), s.GetClient)
	}

	api.GET("/audit-logs", s.authorize(authorization.ActionAuditView), s.ListAuditLogs)
}

// recoveryThreshold is the default age past which a SENDING item counts as stuck.
func (s *Server) recoveryThreshold() time.Duration {
	if s.cfg.Jobs.RecoveryThreshold > 0 {
		return s.cfg.Jobs.RecoveryThreshold
	}
	return 15 * time.Minute
}
