// Package httpapi implements the two external HTTP collaborators
// described in spec §6: the multipart ingest endpoint and the
// content-passthrough endpoint. Routing uses chi, with CORS applied as
// middleware rather than a hand-set header.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nullstream/imgrelay/internal/metrics"
	"github.com/nullstream/imgrelay/internal/queue"
	"github.com/nullstream/imgrelay/internal/resolver"
)

// Server wires the ingest and content handlers onto a chi router.
type Server struct {
	router *chi.Mux
}

// NewServer constructs the HTTP router. tempDir is where accepted
// uploads are staged for workers to pick up; maxUploadBytes bounds the
// ingest body size.
func NewServer(queues *queue.Store, res *resolver.Resolver, tempDir string, maxUploadBytes int64, log *zap.Logger, m *metrics.Registry) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	ih := &ingestHandler{queues: queues, tempDir: tempDir, maxUploadBytes: maxUploadBytes, log: log}
	ch := &contentHandler{resolver: res, log: log}

	r.Post("/upload", ih.ServeHTTP)
	r.With(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})).Get("/content/{file_uuid}", ch.ServeHTTP)

	return &Server{router: r}
}

func (s *Server) Handler() http.Handler { return s.router }
