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
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/engine"
	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/internal/monitoring"
	"github.com/sells-group/intent-core/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake and query API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng, err := buildEngine(st)
		if err != nil {
			return err
		}
		metrics := monitoring.NewMetrics()

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			metrics,
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		r := newRouter(st, eng, metrics)

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
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(st store.Store, eng *engine.Engine, metrics *monitoring.Metrics) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/intake/companies", handleIntakeCompanies(eng, metrics))
		r.Post("/intake/people", handleIntakePeople(eng, metrics))

		r.Get("/companies", handleListCompanies(st))
		r.Get("/companies/{id}", handleGetCompany(st))
		r.Get("/companies/{id}/pattern", handleGetPattern(st))
		r.Get("/companies/{id}/slots", handleListSlots(st))
		r.Get("/companies/{id}/people", handleListPeople(st))
		r.Get("/companies/{id}/score", handleGetScore(st))

		r.Get("/scores", handleListScores(st))
		r.Get("/holding", handleListHolding(st))
	})

	return r
}

func handleIntakeCompanies(eng *engine.Engine, metrics *monitoring.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var raws []model.RawCompany
		if err := json.NewDecoder(req.Body).Decode(&raws); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(raws) == 0 {
			writeError(w, http.StatusBadRequest, "empty batch")
			return
		}

		start := time.Now()
		res, err := eng.ProcessCompanies(req.Context(), raws, cfg.Batch.Concurrency)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		metrics.ObserveStage("intake_companies", time.Since(start))
		recordBatch(metrics, "company", res)

		writeJSON(w, http.StatusOK, res)
	}
}

func handleIntakePeople(eng *engine.Engine, metrics *monitoring.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var raws []model.RawPerson
		if err := json.NewDecoder(req.Body).Decode(&raws); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(raws) == 0 {
			writeError(w, http.StatusBadRequest, "empty batch")
			return
		}

		start := time.Now()
		res, err := eng.ProcessPeople(req.Context(), raws, cfg.Batch.Concurrency)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		metrics.ObserveStage("intake_people", time.Since(start))
		recordBatch(metrics, "person", res)

		writeJSON(w, http.StatusOK, res)
	}
}

func recordBatch(metrics *monitoring.Metrics, recordType string, res *engine.BatchResult) {
	for i := 0; i < res.Resolved; i++ {
		metrics.RecordProcessed(recordType, "resolved")
	}
	for i := 0; i < res.Created; i++ {
		metrics.RecordProcessed(recordType, "created")
	}
	for i := 0; i < res.Held; i++ {
		metrics.RecordProcessed(recordType, "held")
	}
	for i := 0; i < res.Failed; i++ {
		metrics.RecordProcessed(recordType, "failed")
	}
}

func handleListCompanies(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		companies, err := st.ListCompanies(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, companies)
	}
}

func handleGetCompany(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		c, err := st.GetCompany(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, "company not found")
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleGetPattern(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		p, err := st.CurrentEmailPattern(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if p == nil {
			writeError(w, http.StatusNotFound, "no email pattern on record")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleListSlots(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		slots, err := st.ListSlots(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

func handleListPeople(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		people, err := st.ListPeopleByCompany(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, people)
	}
}

func handleGetScore(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		s, err := st.GetScore(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s == nil {
			writeError(w, http.StatusNotFound, "no score on record")
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleListScores(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		filter := store.ScoreFilter{Limit: 100}
		q := req.URL.Query()
		if v := q.Get("tier"); v != "" {
			filter.Tier = model.ScoreTier(v)
		}
		if v := q.Get("min"); v != "" {
			fmt.Sscanf(v, "%f", &filter.MinScore)
		}

		scores, err := st.ListScores(req.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, scores)
	}
}

func handleListHolding(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		filter := store.HoldingFilter{Limit: 100}
		q := req.URL.Query()
		if v := q.Get("kind"); v != "" {
			filter.Kind = model.HoldingKind(v)
		}
		if v := q.Get("reason"); v != "" {
			filter.Reason = model.HoldingReason(v)
		}

		entries, err := st.ListHolding(req.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
