// CLAUDE:SUMMARY Read-only JSON API over the registry index on chi with the shield middleware stack and Prometheus request counting.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/aipo/horosafe"
	"github.com/hazyhaar/aipo/registry/internal/model"
	"github.com/hazyhaar/aipo/shield"
)

// Handler returns the HTTP API:
//
//	GET /health
//	GET /metrics
//	GET /api/runs?stage=&limit=
//	GET /api/audit?action=&limit=
//	GET /api/metrics/history?name=&limit=
//	GET /api/traces/slow?trace_id=&limit=
//	GET /api/{locale}/patents/{id}
//	GET /api/{locale}/patents?q=&limit=
//	GET /api/{locale}/gaps
//	GET /api/{locale}/stats
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack() {
		r.Use(mw)
	}
	r.Use(s.countRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.RecentRuns(r.Context(), r.URL.Query().Get("stage"), queryInt(r, "limit", 20))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if runs == nil {
			runs = []*StageRun{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/api/audit", func(w http.ResponseWriter, r *http.Request) {
		action, ok := identParam(w, r, "action")
		if !ok {
			return
		}
		entries, err := s.RecentAudit(r.Context(), action, queryInt(r, "limit", 50))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if entries == nil {
			entries = []AuditEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Get("/api/metrics/history", func(w http.ResponseWriter, r *http.Request) {
		name, ok := identParam(w, r, "name")
		if !ok {
			return
		}
		history, err := s.MetricHistory(r.Context(), name, queryInt(r, "limit", 100))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if history == nil {
			history = []*Metric{}
		}
		writeJSON(w, http.StatusOK, history)
	})

	r.Get("/api/traces/slow", func(w http.ResponseWriter, r *http.Request) {
		traceID, ok := identParam(w, r, "trace_id")
		if !ok {
			return
		}
		slow, err := s.SlowQueries(r.Context(), traceID, queryInt(r, "limit", 20))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if slow == nil {
			slow = []TraceEntry{}
		}
		writeJSON(w, http.StatusOK, slow)
	})

	r.Route("/api/{locale}", func(r chi.Router) {
		r.Use(requireLocale)

		r.Get("/patents/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.Atoi(chi.URLParam(r, "id"))
			if err != nil || id <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id must be a positive integer"})
				return
			}
			p, err := s.GetPatent(r.Context(), chi.URLParam(r, "locale"), id)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, p)
		})

		r.Get("/patents", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query().Get("q")
			if q == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
				return
			}
			results, err := s.SearchPatents(r.Context(), chi.URLParam(r, "locale"), q, queryInt(r, "limit", 20))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if results == nil {
				results = []*SearchResult{}
			}
			writeJSON(w, http.StatusOK, results)
		})

		r.Get("/gaps", func(w http.ResponseWriter, r *http.Request) {
			gaps, err := s.ListGaps(r.Context(), chi.URLParam(r, "locale"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string][]int{"gaps": gaps})
		})

		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			st, err := s.Stats(r.Context(), chi.URLParam(r, "locale"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, st)
		})
	})

	return r
}

func requireLocale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !model.ValidLocale(chi.URLParam(r, "locale")) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "locale must be one of en, ru, hy"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// countRequests labels requests with the matched route pattern, not the
// raw path, to keep label cardinality bounded.
func (s *Service) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.metrics.ObserveRequest(route, sw.status)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrInvalidLocale):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrNoIndex):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// identParam reads an optional filter parameter. A non-empty value must be a
// plain identifier; otherwise 400 is written and ok is false.
func identParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return "", true
	}
	if err := horosafe.ValidateIdentifier(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", key, err))
		return "", false
	}
	return v, true
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
