package connect

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"
)

// HealthPath answers liveness probes without authentication.
const HealthPath = "/healthz"

// NewRouter mounts svc behind the admin token check next to the health endpoint.
func NewRouter(svc *PlayerService, adminToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accessLog)

	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	path, handler := NewPlayerServiceHandler(svc, connect.WithInterceptors(NewAdminAuthInterceptor(adminToken)))
	r.Handle(path+"*", handler)
	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zlog.Debug().Msgf("http request: method=%s path=%s status=%d bytes=%d elapsed=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start))
	})
}
