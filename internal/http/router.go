package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// RouterOptions configures the middleware on the /weather subrouter.
type RouterOptions struct {
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration // 0 disables the deadline
}

// NewRouter mounts the dashboard, the weather API and the operational endpoints.
func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/", h.Dashboard).Methods("GET")
	router.HandleFunc("/search", h.Search).Methods("POST")
	router.HandleFunc("/recent", h.Recent).Methods("GET")
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	weatherRouter := router.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(RateLimitMiddleware(opts.Limiter))
	weatherRouter.Use(TimeoutMiddleware(opts.RequestTimeout))
	weatherRouter.HandleFunc("/{city}", h.GetWeather).Methods("GET")
	return router
}
