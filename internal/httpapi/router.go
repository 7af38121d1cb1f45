// Package httpapi — HTTP-триггер прохода и служебные эндпоинты.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockwatch/internal/health"
	"github.com/vladislavdragonenkov/stockwatch/internal/service/watch"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	DefaultRunTimeout = 30 * time.Minute
)

// Runner запускает один проход по продавцам.
type Runner interface {
	Run(ctx context.Context) (watch.Summary, error)
}

// Config содержит зависимости роутера.
type Config struct {
	Runner         Runner
	RunTimeout     time.Duration
	AllowedOrigins []string
	Health         *health.Registry
	Metrics        http.Handler
	Logger         *log.Entry
}

type statusResponse struct {
	Status string `json:"status"`
}

// NewRouter собирает роутер: GET и POST / запускают проход, остальное служебное.
func NewRouter(cfg Config) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = log.WithField("component", "httpapi")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(cfg.Logger))
	r.Use(Recovery(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID},
		MaxAge:         300,
	}))

	trigger := &triggerHandler{runner: cfg.Runner, timeout: cfg.RunTimeout, logger: cfg.Logger}
	r.Get("/", trigger.ServeHTTP)
	r.Post("/", trigger.ServeHTTP)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.Health != nil {
		r.Handle("/healthz", cfg.Health)
		r.Get("/readyz", cfg.Health.ReadinessHandler)
	}
	r.Get("/livez", health.LivenessHandler)

	return r
}

type triggerHandler struct {
	runner  Runner
	timeout time.Duration
	logger  *log.Entry
}

// ServeHTTP запускает проход. Тело запроса игнорируется. Проход не прерывается
// при разрыве соединения клиентом и ограничен только timeout.
func (h *triggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	logger := h.logger.WithField("request_id", GetRequestID(r.Context()))
	summary, err := h.runner.Run(ctx)
	if err != nil {
		logger.WithError(err).WithField("run_id", summary.RunID).Error("watch run failed")
		writeStatus(w, http.StatusInternalServerError, statusError)
		return
	}

	logger.WithFields(log.Fields{
		"run_id":        summary.RunID,
		"events":        summary.ZeroStockEvents,
		"notifications": summary.LowStockNotifications,
		"failures":      summary.Failures,
	}).Info("watch run completed")
	writeStatus(w, http.StatusOK, statusSuccess)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(statusResponse{Status: status})
}
