package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Davygupta47/notebook/internal/admission"
	"github.com/Davygupta47/notebook/internal/artifact"
	"github.com/Davygupta47/notebook/internal/jobs"
	"github.com/Davygupta47/notebook/internal/logging"
	"github.com/Davygupta47/notebook/internal/services"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

// Options wires the server to the rest of the service.
type Options struct {
	Runner  *jobs.Runner
	Encoder *jobs.Encoder
	Store   artifact.Store
	Gate    *admission.Gate
	Logger  *slog.Logger

	MaxUploadMB    int
	AllowedOrigins []string
	DefaultModel   string
	StorageBackend string
	PipelineKind   string
	Version        string
}

// Server holds the HTTP handlers.
type Server struct {
	opts   Options
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the router.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Runner == nil:
		return nil, errors.New("api: runner required")
	case opts.Encoder == nil:
		return nil, errors.New("api: encoder required")
	case opts.Store == nil:
		return nil, errors.New("api: artifact store required")
	case opts.Gate == nil:
		return nil, errors.New("api: admission gate required")
	case opts.MaxUploadMB <= 0:
		return nil, errors.New("api: upload ceiling must be positive")
	}
	s := &Server{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "api"),
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	// Match on the escaped path so an encoded "/" stays inside :job_id and is
	// rejected by id validation.
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(s.requestID(), s.accessLog(), gin.CustomRecovery(s.recover))
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(corsMiddleware(s.opts.AllowedOrigins))
	}

	r.GET("/health", s.health)

	apiRoutes := r.Group("/api")
	{
		apiRoutes.POST("/generate", s.generate)
		apiRoutes.GET("/download/:job_id", s.download)
		apiRoutes.GET("/status", s.status)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
		ExposeHeaders:    []string{"Content-Disposition", RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowOriginFunc = func(string) bool { return true }
			continue
		}
		cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
	}
	return cors.New(cfg)
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		c.Request = c.Request.WithContext(services.WithRequestID(ctx, id))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		case c.Request.URL.Path == "/health":
			level = slog.LevelDebug
		}
		logging.WithContext(c.Request.Context(), s.logger).Log(c.Request.Context(), level, "http request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", status),
			logging.Duration("duration", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *Server) recover(c *gin.Context, recovered any) {
	logging.WithContext(c.Request.Context(), s.logger).Error("handler panic",
		logging.Any("panic", recovered),
	)
	if !c.Writer.Written() {
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Abort()
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) status(c *gin.Context) {
	active := s.opts.Runner.Active()
	if active == nil {
		active = []jobs.Snapshot{}
	}
	c.JSON(http.StatusOK, StatusResponse{
		Service:        "notebookd",
		Version:        s.opts.Version,
		StorageBackend: s.opts.StorageBackend,
		Pipeline:       s.opts.PipelineKind,
		MaxUploadMB:    s.opts.MaxUploadMB,
		Gate: GateStatus{
			Capacity: s.opts.Gate.Capacity(),
			InFlight: s.opts.Gate.InFlight(),
			Waiting:  s.opts.Gate.Waiting(),
		},
		Jobs: active,
	})
}
