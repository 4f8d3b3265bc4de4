// recover.go реализует перехват паник в обработчиках.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"auth-service/internal/pkg/log"
)

// Recover возвращает middleware, который перехватывает паники в обработчиках,
// логирует их и отвечает клиенту нейтральной 500-й без раскрытия деталей.
//
// Поведение:
//   - Паника в любом месте стека запроса приводит к логзаписи уровня Error
//     с путём и стеком;
//   - Если в контексте уже есть логгер (см. pkg/log), будет использован он;
//     иначе — переданный base (если не nil), либо slog.Default().
func Recover(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l := log.From(r.Context())
					if l == slog.Default() && base != nil {
						l = base
					}

					l.Error("panic_recovered",
						slog.String("path", r.URL.Path),
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
