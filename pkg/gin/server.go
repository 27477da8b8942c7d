// Package gin serves the fund's HTTP API with the Gin framework.
package gin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/pkg/cow"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/price"
	"github.com/mmoncada1/Marina-Pickleball-Community-Fund/relayer"
)

// Relayer executes gasless swaps.
type Relayer interface {
	Submit(ctx context.Context, req *relayer.SwapRequest) (*relayer.SwapResponse, error)
	Status(ctx context.Context) (*relayer.Status, error)
}

// OrderStatuses reads settlement orders.
type OrderStatuses interface {
	OrderStatus(ctx context.Context, uid string) (*cow.OrderInfo, error)
}

// Progress reports campaign totals.
type Progress interface {
	Fetch(ctx context.Context, projectID int) fund.CampaignProgress
	ProjectID() int
}

// Prices reports the current exchange rate.
type Prices interface {
	Rate() price.Rate
}

// Services are the collaborators behind the API. A nil service disables its routes.
type Services struct {
	Relayer  Relayer
	Orders   OrderStatuses
	Progress Progress
	Prices   Prices
	ChainID  fund.ChainID
}

// ServerOptions is the options for the router.
type ServerOptions struct {
	Logger         *zap.Logger
	AllowedOrigins []string
	// SwapRate limits gasless-swap requests per client IP, zero disables
	SwapRate  rate.Limit
	SwapBurst int
	Metrics   bool
}

// Options is the type for the options for the router.
type Options func(*ServerOptions)

// WithLogger is an option for the router to set the logger.
func WithLogger(logger *zap.Logger) Options {
	return func(options *ServerOptions) {
		options.Logger = logger
	}
}

// WithAllowedOrigins is an option for the router to restrict CORS origins.
// Without it every origin is allowed.
func WithAllowedOrigins(origins ...string) Options {
	return func(options *ServerOptions) {
		options.AllowedOrigins = origins
	}
}

// WithSwapRateLimit is an option for the router to limit gasless swaps per client.
func WithSwapRateLimit(r rate.Limit, burst int) Options {
	return func(options *ServerOptions) {
		options.SwapRate = r
		options.SwapBurst = burst
	}
}

// WithMetrics is an option for the router to serve /metrics.
func WithMetrics() Options {
	return func(options *ServerOptions) {
		options.Metrics = true
	}
}

// NewRouter builds the API engine.
func NewRouter(ctx context.Context, services Services, opts ...Options) *gin.Engine {
	options := &ServerOptions{
		SwapBurst: 5,
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	r := gin.New()
	r.Use(
		RequestID(),
		corsMiddleware(options.AllowedOrigins),
		Recover(logger),
		AccessLog(logger),
	)

	h := &handlers{services: services, logger: logger}
	if h.services.ChainID == 0 {
		h.services.ChainID = fund.ChainID(8453)
	}

	r.GET("/health", h.health)
	if options.Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	if services.Relayer != nil {
		swap := []gin.HandlerFunc{}
		if options.SwapRate > 0 {
			store := NewStore(options.SwapRate, options.SwapBurst, 10*time.Minute)
			store.StartJanitor(ctx, time.Minute)
			swap = append(swap, RateLimit(store, logger))
		}
		api.POST("/gasless-swap", append(swap, h.gaslessSwap)...)
		api.GET("/relayer-status", h.relayerStatus)
	}
	if services.Orders != nil {
		api.GET("/cow-order-status", h.orderStatus)
	}
	if services.Progress != nil {
		api.GET("/juicebox-data", h.juiceboxData)
	}
	if services.Prices != nil {
		api.GET("/price", h.price)
	}
	return r
}

// NewServer wraps the router in an http.Server with fixed timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	config.AllowHeaders = append(config.AllowHeaders, HeaderRequestID)
	config.ExposeHeaders = []string{HeaderRequestID}
	config.MaxAge = 12 * time.Hour
	return cors.New(config)
}
