package server

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/lishe/pkg/models"
)

// Export datasets.
const (
	DatasetUsers   = "users"
	DatasetHistory = "history"
	DatasetCatalog = "catalog"
)

// handleSweep runs a reminder sweep now and reports its counters.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reminders == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "reminders_disabled", "reminder scheduler is not configured")
		return
	}
	res, err := s.deps.Reminders.RunSweep(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleCatalogReload re-reads the catalog file. The old snapshot stays on failure.
func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Catalog.Reload()
	if err != nil {
		writeErrorMessage(w, http.StatusUnprocessableEntity, "catalog_reload_failed", err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"rows":    c.Len(),
		"skipped": c.Skipped(),
		"columns": c.Columns(),
	})
}

// handleExport streams a dataset as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")

	var rows [][]string
	switch dataset {
	case DatasetUsers:
		users, err := s.deps.Users.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		rows = userRows(users)
	case DatasetHistory:
		recs, err := s.deps.Records.ListAll(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		rows = historyRows(recs)
	case DatasetCatalog:
		setCSVHeaders(w, dataset)
		if err := s.deps.Catalog.Get().WriteCSV(w); err != nil {
			log.Error().Err(err).Msg("Catalog export failed")
		}
		return
	default:
		writeErrorMessage(w, http.StatusNotFound, "not_found", fmt.Sprintf("unknown dataset %q", dataset))
		return
	}

	setCSVHeaders(w, dataset)
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		log.Error().Err(err).Str("dataset", dataset).Msg("CSV export failed")
	}
}

func setCSVHeaders(w http.ResponseWriter, dataset string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dataset+".csv"))
}

// userRows never includes password hashes; models.User does not carry them.
func userRows(users []*models.User) [][]string {
	rows := [][]string{{"id", "email", "name", "is_admin", "created_at"}}
	for _, u := range users {
		rows = append(rows, []string{
			strconv.FormatInt(u.ID, 10),
			u.Email,
			u.Name,
			strconv.FormatBool(u.IsAdmin),
			u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func historyRows(recs []*models.RecommendationRecord) [][]string {
	rows := [][]string{{
		"id", "email", "user_name", "sex", "age", "height_m", "weight_kg",
		"bmi", "bmr", "tdee", "activity_level", "goal", "groups", "foods",
		"state", "created_at", "reminder_sent_at", "feedback_at", "rating",
		"eaten_foods", "note",
	}}
	for _, rec := range recs {
		groups := make([]string, 0, len(rec.Foods))
		for _, g := range rec.Foods {
			groups = append(groups, g.Group+":"+strings.Join(g.Foods, "|"))
		}
		rating := ""
		if rec.Rating != nil {
			rating = strconv.Itoa(*rec.Rating)
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Email,
			rec.UserName,
			rec.Sex,
			strconv.Itoa(rec.Age),
			formatFloat(rec.HeightM),
			formatFloat(rec.WeightKg),
			formatFloat(rec.BMI),
			formatFloat(rec.BMR),
			formatFloat(rec.TDEE),
			rec.ActivityLevel,
			rec.Goal,
			strings.Join(rec.Groups, ";"),
			strings.Join(groups, ";"),
			string(rec.State),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			formatTime(rec.ReminderSentAt),
			formatTime(rec.FeedbackAt),
			rating,
			strings.Join(rec.EatenFoods, ";"),
			rec.Note,
		})
	}
	return rows
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
