// CLAUDE:SUMMARY HTTP surface of the tagqa service: chi routes, bearer-token auth against a bcrypt hash, JSON helpers.
package tagcheck

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/tagqa/kit"
	"github.com/hazyhaar/tagqa/shield"
)

// RegisterHTTP mounts the tagqa API on r. Every /api route requires the
// bearer token when http.token_hash is configured; routes that drive a
// browser are rate limited per client.
func (s *Service) RegisterHTTP(r chi.Router) {
	limit := shield.NewRateLimiter(s.cfg.HTTP.RateLimit, time.Minute).Middleware
	examineEP := s.examineEndpoint()
	monitorEP := s.monitorEndpoint()
	containersEP := s.containersEndpoint()
	monitorRunEP := s.monitorRunEndpoint()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Use(requestContext)

		r.With(limit).Post("/api/examinations", func(w http.ResponseWriter, r *http.Request) {
			var req ExaminationRequest
			if err := decodeBody(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			serve(w, r, examineEP, &req)
		})

		r.Route("/api/monitor-runs", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				runs, err := s.RecentMonitorRuns(r.Context(), queryInt(r, "limit", 20))
				if err != nil {
					writeError(w, statusFor(err), err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
			})
			r.With(limit).Post("/", func(w http.ResponseWriter, r *http.Request) {
				var req MonitorRequest
				if err := decodeBody(r, &req); err != nil {
					writeError(w, http.StatusBadRequest, err)
					return
				}
				serve(w, r, monitorEP, &req)
			})
			r.Get("/{runID}", func(w http.ResponseWriter, r *http.Request) {
				serve(w, r, monitorRunEP, &runIDReq{RunID: chi.URLParam(r, "runID")})
			})
		})

		r.With(limit).Get("/api/containers", func(w http.ResponseWriter, r *http.Request) {
			serve(w, r, containersEP, &urlReq{URL: r.URL.Query().Get("url")})
		})

		r.With(limit).Get("/api/data-layer", func(w http.ResponseWriter, r *http.Request) {
			view, err := s.ObserveDataLayer(r.Context(), r.URL.Query().Get("url"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, view)
		})

		r.Get("/api/recordings", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"recordings": s.Recordings()})
		})

		r.With(limit).Post("/api/recordings/{name}/replay", func(w http.ResponseWriter, r *http.Request) {
			view, err := s.ReplayRecording(r.Context(), chi.URLParam(r, "name"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, view)
		})

		r.Get("/api/records/{baseID}/{tableID}", func(w http.ResponseWriter, r *http.Request) {
			recs, err := s.PreviewRecords(r.Context(),
				chi.URLParam(r, "baseID"), chi.URLParam(r, "tableID"), r.URL.Query().Get("view"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"records": recs})
		})
	})
}

// requireToken checks the bearer token against the configured bcrypt hash.
func (s *Service) requireToken(next http.Handler) http.Handler {
	hash := []byte(s.cfg.HTTP.TokenHash)
	if len(hash) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" || bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tagqa"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func serve(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	resp, err := ep(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
