package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/history"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/metrics"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/service"
)

// DefaultMaxUploadSize bounds an uploaded description file.
const DefaultMaxUploadSize = 32 << 20

// Simulator is the part of the simulator the admin API drives.
type Simulator interface {
	Appliance() *model.Appliance
	LoadUpload(ctx context.Context, filename string, data []byte, psk string) error
	Sessions() []service.SessionInfo
}

// Config configures the admin router.
type Config struct {
	Simulator Simulator

	// Hub serves the admin WebSocket.
	Hub http.Handler

	// Journal backs /api/history. Optional.
	Journal *history.Journal

	// Metrics backs /metrics. Optional.
	Metrics *metrics.Metrics

	// StaticDir holds the admin UI build. Optional.
	StaticDir string

	// PSK replaces the key of every uploaded description when set.
	PSK string

	MaxUploadSize int64

	// AllowOrigins lists the CORS origins, "*" when empty.
	AllowOrigins []string

	Logger *slog.Logger
}

// Router holds the gin engine and its dependencies.
type Router struct {
	engine *gin.Engine
	config Config
	logger *slog.Logger
}

// NewRouter creates the admin router.
func NewRouter(config Config) (*Router, error) {
	if config.Simulator == nil {
		return nil, errors.New("admin: Simulator is required")
	}
	if config.Hub == nil {
		return nil, errors.New("admin: Hub is required")
	}
	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = DefaultMaxUploadSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.MaxMultipartMemory = config.MaxUploadSize
	setupMiddleware(engine, logger, config.AllowOrigins)

	r := &Router{engine: engine, config: config, logger: logger}
	r.setupRoutes()
	return r, nil
}

func (r *Router) setupRoutes() {
	r.engine.GET("/metrics", gin.WrapH(r.config.Metrics.Handler()))

	api := r.engine.Group("/api")
	{
		api.GET("/health", r.health)
		api.GET("/ws", gin.WrapH(r.config.Hub))
		api.POST("/file_upload", r.fileUpload)
		api.GET("/appliance", r.appliance)
		api.GET("/sessions", r.sessions)
		api.GET("/history", r.history)
	}

	r.engine.NoRoute(r.static)
}

// Handler returns the router as an http.Handler.
func (r *Router) Handler() http.Handler {
	return r.engine
}
