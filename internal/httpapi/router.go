// Package httpapi is the HTTP face of the service. Routes keep the names
// the existing web clients call.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/evaluator"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ExerciseStore interface {
	Create(req api.CreateExerciseRequest) (string, error)
	Get(id string) (api.Exercise, error)
	List() []api.Exercise
	Delete(id string) error
}

type Evaluator interface {
	Evaluate(ctx context.Context, req evaluator.Request, extra ...internal.ResultGatherer) (api.Feedback, error)
}

type LogRecorder interface {
	Append(userID string, content api.LogContent) error
	ExportAll(format api.ExportFormat) ([]byte, error)
}

type Config struct {
	Exercises ExerciseStore
	Evaluator Evaluator
	Logs      LogRecorder
	Logger    *slog.Logger

	// CorsOrigins empty allows every origin.
	CorsOrigins []string
	// RateRPS limits evaluation requests, zero disables the limit.
	RateRPS     float64
}

func init() {
	binding.EnableDecoderDisallowUnknownFields = true
}

type Server struct {
	Engine  *gin.Engine
	limiter *RateLimiter
	logger  *slog.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With(slog.String("component", "http"))

	s := &Server{logger: logger}
	if cfg.RateRPS > 0 {
		s.limiter = NewRateLimiter(cfg.RateRPS, cfg.RateRPS/2, int(cfg.RateRPS))
	}
	s.Engine = newRouter(cfg, s.limiter, logger)
	return s
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return c
}

func newRouter(cfg Config, limiter *RateLimiter, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(cors.New(corsConfig(cfg.CorsOrigins)))

	h := &handlers{
		exercises: cfg.Exercises,
		evaluator: cfg.Evaluator,
		logs:      cfg.Logs,
		logger:    logger,
	}

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/createExercise", h.createExercise)
	r.POST("/deleteExercise", h.deleteExercise)
	r.POST("/getFullExercise", h.getFullExercise)
	r.GET("/getAllExercises", h.getAllExercises)

	eval := r.Group("/")
	if limiter != nil {
		eval.Use(limiter.Middleware())
	}
	eval.POST("/evaluateExercise", h.evaluate(false))
	eval.POST("/evaluateExerciseWithoutStatic", h.evaluate(true))

	r.POST("/log", h.appendLog)
	r.GET("/downloadLogs", h.downloadLogs)

	r.NoRoute(func(c *gin.Context) {
		RespondError(c, http.StatusNotFound, "not_found", errors.New("no such route"))
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan struct{})
	defer close(stop)
	if s.limiter != nil {
		s.limiter.StartCleanup(10*time.Minute, stop)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
