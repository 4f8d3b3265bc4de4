package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"auth-service/internal/pkg/log"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Logging реализует логирование HTTP-запросов с контекстным логгером.
//
// Поведение и формат логов:
//   - Вытягивает X-Request-ID из заголовков, иначе генерирует UUID;
//   - Кладёт обогащённый *slog.Logger в context (pkg/log), чтобы он был
//     доступен глубже по стеку;
//   - После выполнения handler пишет одну строку: msg="http",
//     status=<код ответа>, dur=<время выполнения>.
//
// Безопасность:
//   - Логи не содержат чувствительных данных (только метод/путь/peer/request_id);
//   - Если базовый логгер не передан, используется slog.Default().
func Logging(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rid := r.Header.Get(requestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, rid)

			l := base.With(
				slog.String("request_id", rid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("peer", r.RemoteAddr),
			)
			ctx := log.Into(r.Context(), l)

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(ctx))

			l.Info("http",
				slog.Int("status", ww.status),
				slog.Duration("dur", time.Since(start)),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.status = statusCode
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(statusCode)
}
