package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"auth-service/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions — зависимости, необходимые для сборки полного роутера сервиса.
type RouterOptions struct {
	Logger *slog.Logger
	// Ready сообщает о готовности зависимостей (например, ping базы данных);
	// используется эндпоинтом /healthz.
	Ready func(ctx context.Context) error
	// CORSOrigins — список разрешённых origin'ов; пустой список означает "*".
	CORSOrigins []string
	// RequestTimeout — дедлайн на обработку одного запроса.
	RequestTimeout time.Duration
}

// NewRouter собирает chi-роутер: служебные эндпоинты, метрики и API аутентификации.
func NewRouter(auth *AuthServer, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recover(opts.Logger))
	r.Use(middleware.Logging(opts.Logger))
	r.Use(middleware.CORS(opts.CORSOrigins))
	r.Use(middleware.Metrics)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.WithTimeout(opts.RequestTimeout))
	}

	// Kubernetes-style probes: /livez — процесс жив, /healthz — зависимости готовы.
	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(req.Context()); err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/auth", auth.Routes)

	return r
}
