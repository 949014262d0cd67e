package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

var servePort int

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func newRouter(e *env) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/drugs/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		rec, err := e.lookup.LookupOne(req.Context(), name)
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if rec == nil {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "drug not found", "drug": name})
			return
		}
		respondJSON(w, http.StatusOK, rec)
	})

	r.Post("/drugs/lookup", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Names []string `json:"names"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if len(body.Names) == 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "names is required"})
			return
		}
		found, notFound, err := e.lookup.LookupMany(req.Context(), body.Names)
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, struct {
			Found    []model.Record `json:"found"`
			NotFound []string       `json:"not_found,omitempty"`
		}{Found: found, NotFound: notFound})
	})

	r.Get("/search", func(w http.ResponseWriter, req *http.Request) {
		query := req.URL.Query().Get("q")
		if query == "" {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
			return
		}
		results, err := e.lookup.Search(req.Context(), query, 10)
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, results)
	})

	r.Post("/ingest/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		outcome, err := e.pipeline.IngestOne(req.Context(), name)
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		code := http.StatusOK
		if outcome.Status == model.IngestStatusNotFound {
			code = http.StatusNotFound
		}
		respondJSON(w, code, outcome)
	})

	r.Get("/audit", func(w http.ResponseWriter, req *http.Request) {
		entries, err := e.store.RecentIngestLog(req.Context(), 50)
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, entries)
	})

	return r
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for drug lookup and ingestion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      newRouter(e),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
