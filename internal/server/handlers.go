package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/thebtf/lishe/internal/bodymetrics"
	gormdb "github.com/thebtf/lishe/internal/db/gorm"
	"github.com/thebtf/lishe/internal/recommend"
	"github.com/thebtf/lishe/internal/validation"
	"github.com/thebtf/lishe/pkg/models"
)

// handleHealth handles liveness requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":      "ok",
		"version":     s.version,
		"sse_clients": s.deps.Events.ClientCount(),
	}
	if s.deps.Catalog != nil {
		resp["catalog_rows"] = s.deps.Catalog.Get().Len()
	}
	if s.deps.Notifier != nil {
		resp["notifier"] = map[string]string{
			"backend": s.deps.Notifier.Backend(),
			"breaker": s.deps.Notifier.State(),
		}
	}
	writeJSON(w, resp)
}

// handleVersion returns the server version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"version": s.version,
	})
}

type readyResponse struct {
	Status     string `json:"status"`
	Driver     string `json:"driver,omitempty"`
	Warning    string `json:"warning,omitempty"`
	P95Latency int64  `json:"p95_latency_ns"`
}

// handleReady reports database health. Degraded is still ready; unhealthy is 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		writeJSON(w, readyResponse{Status: gormdb.HealthHealthy})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	info := s.deps.DB.HealthCheck(ctx)

	resp := readyResponse{
		Status:     info.Status,
		Driver:     info.Driver,
		Warning:    info.Warning,
		P95Latency: int64(info.P95Latency),
	}
	if info.Status == gormdb.HealthUnhealthy {
		s.logger.Error().Str("error", info.Error).Msg("Database health check failed")
		writeJSONStatus(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.deps.Recommend.Engine().Tables().Goals)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.deps.Recommend.Engine().Tables().Groups)
}

type activityLevel struct {
	Level  bodymetrics.ActivityLevel `json:"level"`
	Label  string                    `json:"label"`
	Factor float64                   `json:"factor"`
}

func (s *Server) handleActivityLevels(w http.ResponseWriter, r *http.Request) {
	out := make([]activityLevel, 0, len(bodymetrics.Levels))
	for _, l := range bodymetrics.Levels {
		out = append(out, activityLevel{Level: l, Label: l.SwahiliLabel(), Factor: l.Factor()})
	}
	writeJSON(w, out)
}

// handleBodyMetrics computes BMI, BMR and TDEE without storing anything.
func (s *Server) handleBodyMetrics(w http.ResponseWriter, r *http.Request) {
	var p bodymetrics.Profile
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validation.Struct(p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, p.Compute())
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.deps.Users.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.deps.Users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, user)
}

func (s *Server) handleCreateRecommendation(w http.ResponseWriter, r *http.Request) {
	var req recommend.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.deps.Recommend.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Record == nil {
		status = http.StatusOK
	}
	writeJSONStatus(w, status, resp)
}

// emailParam reads the required email query parameter.
func emailParam(r *http.Request) (string, error) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		return "", &validation.Error{Fields: []validation.FieldError{{
			Field: "email", Tag: "required", Message: "email is required",
		}}}
	}
	return email, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	email, err := emailParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := s.deps.Recommend.History(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, recs)
}

func (s *Server) handleEligible(w http.ResponseWriter, r *http.Request) {
	email, err := emailParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := s.deps.Recommend.Eligible(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, recs)
}

func recordID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.ErrRecordNotFound
	}
	return id, nil
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req recommend.FeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.deps.Recommend.SubmitFeedback(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, rec)
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (s *Server) handleEmailRecommendation(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	sent, err := s.deps.Recommend.EmailRecommendation(r.Context(), id, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"sent": sent})
}
