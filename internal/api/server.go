package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/swscloud/reviewd/internal/auth"
	"github.com/swscloud/reviewd/internal/config"
	"github.com/swscloud/reviewd/internal/kb"
	"github.com/swscloud/reviewd/internal/objstore"
	"github.com/swscloud/reviewd/internal/observability"
	"github.com/swscloud/reviewd/internal/pipeline"
	"github.com/swscloud/reviewd/internal/runs"
	"github.com/swscloud/reviewd/internal/store"
)

// Server bundles the HTTP handlers and their dependencies.
type Server struct {
	cfg     *config.Config
	st      *store.Store
	obj     objstore.Store
	signer  *objstore.Signer
	issuer  *auth.TokenIssuer
	runsvc  *runs.Service
	pool    *pipeline.Pool
	indexer *kb.Indexer
}

// NewServer wires the handler set.
func NewServer(cfg *config.Config, st *store.Store, obj objstore.Store, signer *objstore.Signer, issuer *auth.TokenIssuer, runsvc *runs.Service, pool *pipeline.Pool, indexer *kb.Indexer) *Server {
	return &Server{
		cfg:     cfg,
		st:      st,
		obj:     obj,
		signer:  signer,
		issuer:  issuer,
		runsvc:  runsvc,
		pool:    pool,
		indexer: indexer,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/files/*", s.handleSignedFile)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Get("/auth/me", s.handleMe)

			r.Post("/projects", s.handleCreateProject)
			r.Get("/projects", s.handleListProjects)
			r.Post("/projects/{projectID}/members", s.handleSetMember)
			r.Post("/projects/{projectID}/documents", s.handleCreateDocument)
			r.Get("/projects/{projectID}/documents", s.handleListDocuments)

			r.Post("/documents/{documentID}/versions/upload", s.handleUploadVersion)
			r.Get("/documents/{documentID}/versions", s.handleListVersions)

			r.Route("/versions/{versionID}", func(r chi.Router) {
				r.Get("/status", s.handleVersionStatus)
				r.Get("/pdf", s.handleVersionPDF)
				r.Get("/outline", s.handleVersionOutline)
				r.Get("/issues", s.handleVersionIssues)
				r.Get("/export", s.handleVersionExport)
				r.Post("/export", s.handleVersionExport)
				r.Post("/cancel", s.handleVersionCancel)
				r.Post("/reprocess", s.handleVersionReprocess)
				r.Post("/review-runs", s.handleCreateRun)
				r.Get("/review-runs", s.handleListRuns)
				r.Delete("/", s.handleDeleteVersion)
			})

			r.Route("/review-runs/{runID}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Post("/cancel", s.handleCancelRun)
				r.Get("/events", s.handleRunEvents)
			})

			r.Route("/issues/{issueID}", func(r chi.Router) {
				r.Get("/", s.handleGetIssue)
				r.Get("/actions", s.handleListIssueActions)
				r.Post("/actions", s.handleIssueAction)
			})

			r.Route("/kb/sources", func(r chi.Router) {
				r.Post("/upload", s.handleKBUpload)
				r.Get("/", s.handleKBList)
				r.Post("/{sourceID}/reindex", s.handleKBReindex)
			})
		})
	})
	return r
}

// Serve runs the HTTP server until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	observability.Info(ctx, "http server listening", slog.String("addr", s.cfg.HTTPAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
