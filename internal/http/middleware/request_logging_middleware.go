package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type requestTagsKey struct{}

// requestTags is filled in by handlers deeper in the chain, which only see a
// derived context, so the logger hands them a pointer up front.
type requestTags struct {
	subjectID uint
	scope     string
}

func tagRequest(ctx context.Context, subjectID uint, scope string) {
	if tags, ok := ctx.Value(requestTagsKey{}).(*requestTags); ok {
		tags.subjectID = subjectID
		tags.scope = scope
	}
}

// StructuredRequestLogger emits one http.request line per request, carrying
// the employee subject and token scope when the request authenticated.
func StructuredRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tags := &requestTags{}
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(context.WithValue(r.Context(), requestTagsKey{}, tags))

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0),
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			slog.String("client_ip", r.RemoteAddr),
		}
		if route != r.URL.Path {
			attrs = append(attrs, slog.String("path", r.URL.Path))
		}
		if tags.subjectID != 0 {
			attrs = append(attrs, slog.Uint64("subject_id", uint64(tags.subjectID)), slog.String("scope", tags.scope))
		}
		if ra := ww.Header().Get("Retry-After"); ra != "" {
			attrs = append(attrs, slog.String("retry_after", ra))
		}
		slog.LogAttrs(r.Context(), requestLogLevel(status), "http.request", attrs...)
	})
}

func requestLogLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
