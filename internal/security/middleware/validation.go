package middleware

import (
	"log/slog"
	"mime"
	"net/http"

	"github.com/aryan0dhankhar/portal/internal/httpx"
)

const maxBodyBytes = 1 << 20

// RequireContentType rejects POST bodies whose media type is not one of
// types, and caps the body size
func RequireContentType(log *slog.Logger, types ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || !contains(types, mediaType) {
				log.Warn("invalid content type",
					slog.String("path", r.URL.Path),
					slog.String("content_type", r.Header.Get("Content-Type")),
					slog.String("method", r.Method),
				)
				httpx.Detail(w, http.StatusUnsupportedMediaType, "Unsupported content type")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
