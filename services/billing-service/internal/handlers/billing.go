package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/backflowhq/platform/services/billing-service/internal/entitlements"
)

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := strings.TrimSpace(r.Header.Get("X-Company-Id"))
	if companyID == "" {
		companyID = strings.TrimSpace(r.URL.Query().Get("company_id"))
	}
	if companyID == "" {
		http.Error(w, "company_id required", http.StatusBadRequest)
		return
	}

	sub, err := h.repo.GetSubscription(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No subscription yet means free tier, not an error.
			writeJSON(w, http.StatusOK, map[string]any{
				"company_id":   companyID,
				"tier":         "free",
				"status":       "none",
				"entitlements": entitlements.LimitsForTier("free"),
			})
			return
		}
		http.Error(w, "failed to load subscription", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"company_id":   sub.CompanyID,
		"tier":         sub.Tier,
		"status":       sub.Status,
		"updated_at":   sub.UpdatedAt.UTC().Format(time.RFC3339),
		"entitlements": entitlements.LimitsForTier(sub.Tier),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
