// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	"github.com/aimarket/affiliate-engine/app/handlers"
	"github.com/aimarket/affiliate-engine/app/middleware"
	"github.com/aimarket/affiliate-engine/config"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app             *fiber.App
	cfg             *config.ProductionConfig
	clickHandler    handlers.ClickHandlerInterface
	convHandler     handlers.ConversionHandlerInterface
	ledgerHandler   handlers.LedgerHandlerInterface
	billingHandler  handlers.BillingHandlerInterface
	refCodeHandler  handlers.RefCodeHandlerInterface
	reportHandler   handlers.ReportHandlerInterface
	linkHandler     handlers.LinkHandlerInterface
	settingsHandler handlers.SettingsHandlerInterface
	authMiddleware  *middleware.AuthMiddleware
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	clickHandler handlers.ClickHandlerInterface,
	convHandler handlers.ConversionHandlerInterface,
	ledgerHandler handlers.LedgerHandlerInterface,
	billingHandler handlers.BillingHandlerInterface,
	refCodeHandler handlers.RefCodeHandlerInterface,
	reportHandler handlers.ReportHandlerInterface,
	linkHandler handlers.LinkHandlerInterface,
	settingsHandler handlers.SettingsHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Affiliate Engine API",
		ServerHeader: "Affiliate-Engine",
		ErrorHandler: errorHandler,
		BodyLimit:    1 * 1024 * 1024, // 1MB, tracking payloads are small
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:             app,
		cfg:             cfg,
		clickHandler:    clickHandler,
		convHandler:     convHandler,
		ledgerHandler:   ledgerHandler,
		billingHandler:  billingHandler,
		refCodeHandler:  refCodeHandler,
		reportHandler:   reportHandler,
		linkHandler:     linkHandler,
		settingsHandler: settingsHandler,
		authMiddleware:  authMiddleware,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	// Global middleware
	r.setupMiddleware()

	// API routes
	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	// General rate limiting on all API routes
	api.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: rateLimitReached,
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	// Ingest endpoints carry their own limiter. They take the firehose from
	// tracking pixels and advertiser servers, independent of dashboard traffic.
	ingest := api.Group("/",
		limiter.New(limiter.Config{
			Max:        r.cfg.Security.ClickRateLimit,
			Expiration: r.cfg.Security.RateLimitWindow,
			KeyGenerator: func(c fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: rateLimitReached,
		}))
	ingest.Post("/clicks", r.clickHandler.RecordClick)
	ingest.Post("/conversions", r.convHandler.IngestConversion)

	// Everything below is a dashboard or server-to-server surface
	api.Use(r.authMiddleware.RestrictIPs())
	api.Use(r.authMiddleware.Authenticate())

	clicks := api.Group("/clicks")
	clicks.Post("/list", r.clickHandler.ListClicks)
	clicks.Put("/validity", r.clickHandler.UpdateClickValidity)

	conversions := api.Group("/conversions")
	conversions.Post("/list", r.convHandler.ListConversions)
	conversions.Post("/:id/approve", r.convHandler.ApproveConversion)
	conversions.Post("/:id/reverse", r.convHandler.ReverseConversion)
	conversions.Post("/:id/bill", r.convHandler.BillConversion)
	conversions.Post("/:id/unbill", r.convHandler.UnbillConversion)
	conversions.Post("/:id/paid", r.convHandler.MarkConversionPaid)

	ledger := api.Group("/ledger")
	ledger.Post("/recharge", r.ledgerHandler.Recharge)
	ledger.Post("/spend", r.ledgerHandler.RecordSpend)
	ledger.Post("/adjustment", r.ledgerHandler.RecordAdjustment)
	ledger.Post("/refund", r.ledgerHandler.RecordRefund)
	ledger.Get("/:company_id/balance", r.ledgerHandler.GetBalance)
	ledger.Post("/history", r.ledgerHandler.GetTransactionHistory)
	ledger.Post("/summary", r.ledgerHandler.GetBillingSummary)

	billing := api.Group("/billing")
	billing.Post("/invoices", r.billingHandler.GenerateInvoice)
	billing.Post("/invoices/list", r.billingHandler.ListInvoices)
	billing.Post("/invoices/:id/paid", r.billingHandler.MarkInvoicePaid)
	billing.Post("/invoices/:id/cancel", r.billingHandler.CancelInvoice)
	billing.Post("/payouts", r.billingHandler.GeneratePayout)
	billing.Post("/payouts/list", r.billingHandler.ListPayouts)

	refCodes := api.Group("/ref-codes")
	refCodes.Post("/", r.refCodeHandler.CreateRefCode)
	refCodes.Put("/", r.refCodeHandler.UpdateRefCode)
	refCodes.Post("/list", r.refCodeHandler.ListRefCodes)

	reports := api.Group("/reports")
	reports.Post("/kpis", r.reportHandler.GetKPIs)
	reports.Post("/timeline", r.reportHandler.GetTimeline)
	reports.Post("/geo", r.reportHandler.GetGeoBreakdown)
	reports.Post("/devices", r.reportHandler.GetDeviceBreakdown)
	reports.Post("/top-ref-codes", r.reportHandler.GetTopRefCodes)
	reports.Post("/export", r.reportHandler.ExportReport)

	api.Post("/links/build", r.linkHandler.BuildLink)

	settings := api.Group("/settings")
	settings.Put("/webhook", r.settingsHandler.SaveWebhookSettings)
	settings.Get("/webhook/:company_id", r.settingsHandler.GetWebhookSettings)
	settings.Post("/webhook/deliveries", r.settingsHandler.ListWebhookDeliveries)
	settings.Put("/link", r.settingsHandler.SaveLinkSettings)
	settings.Get("/link/:company_id", r.settingsHandler.GetLinkSettings)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000, // 1 year
		HSTSExcludeSubdomains: false,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		XDNSPrefetchControl:   "off",
		XDownloadOptions:      "noopen",
		XPermittedCrossDomain: "none",
	}))

	// CORS middleware driven by configuration
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: r.cfg.Security.AllowedOrigins,
		AllowMethods: r.cfg.Security.AllowedMethods,
		AllowHeaders: r.cfg.Security.AllowedHeaders,
		ExposeHeaders: []string{
			"X-Request-ID",
			"Content-Disposition",
		},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	// Compression middleware for performance
	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			Next: func(c fiber.Ctx) bool {
				// XLSX exports are already deflate-compressed
				contentType := c.Get("Content-Type")
				return contentType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
			},
		}))
	}

	// Structured access logging
	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","pid":"${pid}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent},"referer":"${referer}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			// Skip logging for health checks in production
			return c.Path() == "/api/v1/health"
		},
	}))

	// Prometheus request metrics
	if r.cfg.Server.EnableMetrics {
		r.app.Use(middleware.Metrics())
	}

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			// Log panic with request context
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   "1.0.0",
			"service":   "affiliate-engine-api",
		},
	})
}

func rateLimitReached(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error: dto.ErrorDetail{
			Code: "RATE_LIMIT_EXCEEDED",
		},
	})
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	requestID := c.Locals("requestid")

	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestID,
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	// Default error code
	code := fiber.StatusInternalServerError

	// Retrieve the custom status code if it's a fiber.*Error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Log the error
	log.Printf("Error %d: %v", code, err)

	// Get RequestID for tracing
	requestID := c.Locals("requestid")

	// Return JSON error response
	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: "An internal server error occurred",
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestID,
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
