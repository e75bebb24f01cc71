// Package httpapi exposes search, scoring and chat over a JSON REST API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/career-match/internal/chat"
	"github.com/spigell/career-match/internal/logger"
	"github.com/spigell/career-match/internal/search"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	shutdownTimeout = 10 * time.Second
)

// Config configures the HTTP server.
type Config struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed-origins"`
	ReadTimeout    time.Duration `mapstructure:"read-timeout"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
}

// Server serves the API.
type Server struct {
	cfg     Config
	search  *search.Service
	chat    *chat.Service
	logger  *zap.Logger
	version string
	router  *gin.Engine
}

// New creates a Server. chatService may be nil, which disables the chat routes.
func New(cfg Config, searchService *search.Service, chatService *chat.Service, version string, l *zap.Logger) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{
		cfg:     cfg,
		search:  searchService,
		chat:    chatService,
		logger:  l,
		version: version,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(s.logger), gin.CustomRecovery(s.recover))

	corsCfg := cors.DefaultConfig()
	if len(s.cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.AllowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", requestIDHeader, chat.SessionHeader}
	corsCfg.ExposeHeaders = []string{requestIDHeader, chat.SessionHeader}
	r.Use(cors.New(corsCfg))

	api := r.Group("/api/v1")
	{
		api.GET("/health", s.health)

		api.POST("/interpret", s.interpret)
		api.POST("/score", s.score)
		api.POST("/rank", s.rank)
		api.POST("/search", s.searchListings)

		if s.chat != nil {
			api.POST("/chat", s.chatReply)
			api.POST("/chat/stream", s.chatStream)
			api.DELETE("/chat/:session", s.chatReset)
		}
	}

	return r
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func (s *Server) recover(c *gin.Context, recovered any) {
	s.logger.Error("panic while serving request",
		append(logger.SessionFields("", c.GetString(requestIDKey)), zap.Any("panic", recovered))...,
	)
	writeError(c, http.StatusInternalServerError, codeInternal, "internal error")
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String(logger.FieldRequest, c.GetString(requestIDKey)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			l.Warn("request failed", fields...)
			return
		}
		l.Debug("request served", fields...)
	}
}
