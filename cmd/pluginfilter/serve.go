package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	pluginfilter "github.com/ferro-labs/plugin-filter"
	"github.com/ferro-labs/plugin-filter/internal/history"
	"github.com/ferro-labs/plugin-filter/internal/logging"
	"github.com/ferro-labs/plugin-filter/internal/report"
	"github.com/ferro-labs/plugin-filter/internal/version"
	"github.com/ferro-labs/plugin-filter/plugin"
)

// maxDocumentBytes caps the body accepted by POST /v1/validate.
const maxDocumentBytes = 10 << 20

func newServeCmd(opts *rootOptions) *cobra.Command {
	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the validation HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.resolveConfig(cmd)
			if err != nil {
				return err
			}
			f, err := pluginfilter.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			srv := &http.Server{
				Addr:              addr,
				Handler:           newRouter(f),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      10 * time.Minute,
				IdleTimeout:       60 * time.Second,
			}

			ctx, stop := commandContext(cmd)
			defer stop()

			go func() {
				<-ctx.Done()
				logging.Logger.Info("shutting down gracefully")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logging.Logger.Error("shutdown error", "error", err)
				}
			}()

			logging.Logger.Info("pluginfilter listening",
				"version", version.Short(),
				"addr", addr,
				"concurrency", cfg.Concurrency,
				"timeout", cfg.Timeout.String(),
				"history", cfg.History.Enabled(),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logging.Logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", addr, "listen address")
	return cmd
}

// validateResponse is the body returned by POST /v1/validate.
type validateResponse struct {
	RunID   string                `json:"run_id"`
	Desc    string                `json:"desc"`
	Plugins []plugin.Record       `json:"plugins"`
	Invalid []report.InvalidEntry `json:"invalid"`
}

// newRouter builds the HTTP router.
func newRouter(f *pluginfilter.Filter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/validate", validateHandler(f))
		r.Get("/history", historyHandler(f))
	})
	return r
}

func validateHandler(f *pluginfilter.Filter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error(), "invalid_request_error")
			return
		}
		doc, err := plugin.Parse(data)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
			return
		}

		_, rs := f.Check(r.Context(), doc)
		logging.FromContext(r.Context()).Info("validated plugin list",
			"plugins", len(doc.Plugins),
			"valid", len(rs.Valid),
			"invalid", len(rs.Invalid),
		)

		writeJSON(w, http.StatusOK, validateResponse{
			RunID:   logging.RunIDFromContext(r.Context()),
			Desc:    rs.Desc,
			Plugins: rs.Valid,
			Invalid: report.InvalidEntries(rs.Invalid),
		})
	}
}

func historyHandler(f *pluginfilter.Filter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reader := f.History()
		if reader == nil {
			writeError(w, http.StatusNotFound, "history store is not configured", "not_found")
			return
		}

		q := history.Query{RunID: r.URL.Query().Get("run_id")}
		var err error
		if q.Limit, err = intParam(r, "limit"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
			return
		}
		if q.Offset, err = intParam(r, "offset"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
			return
		}
		if v := r.URL.Query().Get("valid"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "valid must be a boolean", "invalid_request_error")
				return
			}
			q.Valid = &b
		}

		res, err := reader.List(r.Context(), q)
		if err != nil {
			logging.FromContext(r.Context()).Error("listing history failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list history", "server_error")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, message, errType string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
		},
	})
}
