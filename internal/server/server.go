package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/narstation/narstation/internal/config"
	"github.com/narstation/narstation/internal/generator"
	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

type Generator interface {
	Generate(ctx context.Context) (*generator.Result, error)
	Last() *generator.Result
}

type Server struct {
	router       chi.Router
	log          *logrus.Logger
	generator    Generator
	genSemaphore *semaphore.Weighted
	config       *config.ServerConfig
	cache        *cache.Cache
	cron         *cron.Cron
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"service": "narstation",
		"stage":   s.config.Stage,
		"version": s.config.Version,
		"topic":   s.config.Topic,
	}
	if res := s.generator.Last(); res != nil {
		status["generatedAt"] = res.Page.GeneratedAt
		status["entries"] = len(res.Page.Entries)
	}
	s.writeJSON(w, status)
}

func New(log *logrus.Logger, gen Generator, serverCfg *config.ServerConfig) *Server {
	router := chi.NewRouter()
	server := &Server{
		router:       router,
		log:          log,
		generator:    gen,
		genSemaphore: semaphore.NewWeighted(1),
		config:       serverCfg,
		cache:        cache.New(5*time.Minute, 10*time.Minute),
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(server.logMiddleware)
	router.Use(server.recoverMiddleware)

	router.Use(middleware.Timeout(5 * time.Minute))

	router.NotFound(server.notFoundHandler)
	router.MethodNotAllowed(server.methodNotAllowedHandler)

	router.Get("/", server.indexHandler)
	router.Get("/feed.xml", server.feedHandler)
	router.Get("/downloads/{id}", server.downloadEntry)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/", server.statusHandler)
		r.With(server.cacheMiddleware).Group(func(r chi.Router) {
			r.Get("/entries", server.listEntries)
			r.Get("/entries/{id}", server.getEntry)
		})
		r.Post("/entries/_batch", server.batchGetEntries)

		r.With(server.authMiddleware).Put("/update", server.updateListing)
	})

	return server
}
