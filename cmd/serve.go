package main

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/monitoring"
	"github.com/sells-group/activity-cli/internal/processor"
	"github.com/sells-group/activity-cli/internal/store"
)

var servePort int

// defaultLookbackHours is the /metrics window when none is given.
const defaultLookbackHours = 24

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for processing requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// processRequest is the body of POST /process and POST /regenerate.
type processRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Regenerate bool   `json:"regenerate"`
	Reason     string `json:"reason"`
	Type       string `json:"type"`
}

// buildRouter wires the HTTP API onto env.
func buildRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		hours := queryInt(req, "hours")
		if hours <= 0 {
			hours = defaultLookbackHours
		}
		snap, err := monitoring.NewCollector(env.Store).Collect(req.Context(), hours)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, snap)
	})

	r.Post("/process", func(w http.ResponseWriter, req *http.Request) {
		body, rng, ok := decodeRangeRequest(w, req)
		if !ok {
			return
		}
		res, err := env.Processor.Process(req.Context(), rng, processor.Options{
			Regenerate: body.Regenerate,
			Reason:     body.Reason,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, res)
	})

	r.Post("/regenerate", func(w http.ResponseWriter, req *http.Request) {
		body, rng, ok := decodeRangeRequest(w, req)
		if !ok {
			return
		}
		if body.Type == "" {
			body.Type = string(model.GenerationManual)
		}
		genType, err := parseGenerationType(body.Type)
		if err != nil {
			respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		reason := body.Reason
		if reason == "" {
			reason = "manual regeneration " + rng.From() + ".." + rng.To()
		}
		rec, err := env.Processor.Regenerate(req.Context(), rng, genType, reason)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, rec)
	})

	r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
		sessions, err := env.Store.ListSessions(req.Context(), queryInt(req, "limit"))
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, sessions)
	})

	r.Get("/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		sess, err := env.Store.GetSession(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, sess)
	})

	r.Get("/tags", func(w http.ResponseWriter, req *http.Request) {
		tags, err := env.Store.ListTags(req.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, tags)
	})

	r.Get("/tags/history", func(w http.ResponseWriter, req *http.Request) {
		recs, err := env.Store.ListGenerationRecords(req.Context(), queryInt(req, "limit"))
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, recs)
	})

	r.Get("/activities", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		rng, err := parseRange(q.Get("from"), q.Get("to"))
		if err != nil {
			respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		acts, err := env.Store.ListProcessed(req.Context(), rng)
		if err != nil {
			respondError(w, err)
			return
		}
		if q.Get("review") == "true" {
			acts = reviewQueue(acts)
		}
		respond(w, http.StatusOK, acts)
	})

	return r
}

func decodeRangeRequest(w http.ResponseWriter, req *http.Request) (processRequest, model.DateRange, bool) {
	var body processRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return body, model.DateRange{}, false
	}
	rng, err := parseRange(body.From, body.To)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return body, model.DateRange{}, false
	}
	return body, rng, true
}

func queryInt(req *http.Request, key string) int {
	n, _ := strconv.Atoi(req.URL.Query().Get(key))
	return n
}

// respondError maps domain errors onto status codes.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, processor.ErrRangeLocked):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	respond(w, status, map[string]string{"error": err.Error()})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
