package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bitebase/catalog-cli/internal/catalog"
	"github.com/bitebase/catalog-cli/internal/search"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/locations", func(w http.ResponseWriter, req *http.Request) {
			locations, err := env.Store.AllIndexedLocations(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
		})

		r.Get("/search", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			limit, _ := strconv.Atoi(q.Get("limit"))
			if limit <= 0 {
				limit = cfg.Search.Limit
			}
			results, err := search.New(env.Store).Search(req.Context(), search.Query{
				Location: q.Get("location"),
				Name:     q.Get("name"),
				Category: q.Get("category"),
				Sort:     search.ParseSort(q.Get("sort")),
				Limit:    limit,
			})
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
		})

		r.Get("/restaurants/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			rest, err := env.Store.Get(req.Context(), id)
			if err != nil {
				if eris.Is(err, catalog.ErrNotFound) {
					writeError(w, http.StatusNotFound, err)
				} else {
					writeError(w, http.StatusInternalServerError, err)
				}
				return
			}
			ids, _ := env.Store.ExternalIDs(req.Context(), id)
			ratings, _ := env.Store.Ratings(req.Context(), id)
			categories, _ := env.Store.Categories(req.Context(), id)
			writeJSON(w, http.StatusOK, map[string]any{
				"restaurant":   rest,
				"external_ids": ids,
				"ratings":      ratings,
				"categories":   categories,
			})
		})

		r.Post("/restaurants/{id}/reindex", func(w http.ResponseWriter, req *http.Request) {
			res, err := env.newIndexer().Refresh(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if eris.Is(err, catalog.ErrNotFound) {
					writeError(w, http.StatusNotFound, err)
				} else {
					writeError(w, http.StatusBadGateway, err)
				}
				return
			}
			writeJSON(w, http.StatusOK, res)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
