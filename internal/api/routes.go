package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard(cfg.Logger))

		r.Get("/montage", montageHandler(cfg))
		r.Head("/montage", montageHandler(cfg))
		r.Get("/montage.edl", edlHandler(cfg))
		r.Get("/runs", listRunsHandler(cfg))
		r.Get("/runs/{id}", getRunHandler(cfg))
		r.Get("/runs/{id}/units", listUnitsHandler(cfg))
		r.Get("/runs/{id}/calls", listCallsHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
			Journal: cfg.Repository != nil,
		}
		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Tools = make(map[string]bool, len(caps.Tools))
				for name, info := range caps.Tools {
					resp.Tools[name] = info.Available
				}
				resp.ProbedAt = caps.ProbedAt.Format(time.RFC3339)
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func montageHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.OutputPath == "" {
			WriteError(w, http.StatusNotFound, "no montage configured", "NOT_FOUND")
			return
		}
		if err := cfg.PlaybackServer.ServeFile(w, r, cfg.OutputPath); err != nil {
			cfg.Logger.Error("playback error", "error", err)
		}
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireJournal(w, cfg) {
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		runs, err := cfg.Repository.ListRuns(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}

		resp := RunsResponse{Runs: make([]RunResponse, len(runs))}
		for i, run := range runs {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireJournal(w, cfg) {
			return
		}
		id := chi.URLParam(r, "id")

		run, err := cfg.Repository.GetRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, RunToResponse(run))
	}
}

func listUnitsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireJournal(w, cfg) {
			return
		}
		id := chi.URLParam(r, "id")

		run, err := cfg.Repository.GetRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		units, err := cfg.Repository.ListUnits(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list units", "INTERNAL_ERROR")
			return
		}

		resp := UnitsResponse{RunID: id, Units: make([]UnitResponse, len(units))}
		for i, u := range units {
			resp.Units[i] = UnitToResponse(u)
			if u.Outcome == "matched" {
				resp.Matched++
			} else {
				resp.Fallback++
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listCallsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireJournal(w, cfg) {
			return
		}
		id := chi.URLParam(r, "id")

		stats, err := cfg.Repository.CountCalls(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to count calls", "INTERNAL_ERROR")
			return
		}

		resp := CallsResponse{RunID: id, Calls: make([]CallResponse, len(stats))}
		for i, s := range stats {
			resp.Calls[i] = CallResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func requireJournal(w http.ResponseWriter, cfg ServerConfig) bool {
	if cfg.Repository == nil {
		WriteError(w, http.StatusNotFound, "run journal not enabled; start preview with --journal", "JOURNAL_DISABLED")
		return false
	}
	return true
}
