/**
 * @description
 * This file contains the HTTP handler functions for the subscription-service.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate business logic in the service layer, and writing the HTTP
 * response. The authenticated owner id comes from the request context and is
 * passed explicitly into every service call.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/subtrack/subscription-service/internal/app"
	"github.com/subtrack/subscription-service/internal/domain"
	"github.com/subtrack/subscription-service/internal/store"
)

// SubscriptionService defines the service operations the handlers need.
type SubscriptionService interface {
	Add(ctx context.Context, ownerID string, input app.AddSubscriptionInput) (*app.MutationResult, error)
	SetStatus(ctx context.Context, ownerID string, id uuid.UUID, status domain.Status) (*app.MutationResult, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	ConvertTrialToPaid(ctx context.Context, ownerID string, id uuid.UUID, newEndDate *time.Time, billingCycle string) (*app.MutationResult, error)
	Categorize(ctx context.Context, ownerID string) (*app.CategorizedSubscriptions, error)
	Metrics(ctx context.Context, ownerID string) (domain.SavingsMetrics, error)
	Preferences(ctx context.Context, ownerID string) (domain.ReminderPreferences, error)
	UpdatePreferences(ctx context.Context, ownerID string, prefs domain.ReminderPreferences) (app.ScheduleOutcome, error)
}

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service SubscriptionService
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service SubscriptionService) *Handler {
	return &Handler{service: service}
}

// handleListSubscriptions returns the owner's categorized subscription views.
func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	views, err := h.service.Categorize(r.Context(), ownerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, views)
}

// handleAddSubscription creates a new tracked subscription.
func (h *Handler) handleAddSubscription(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var input app.AddSubscriptionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Add(r.Context(), ownerID, input)
	if err != nil {
		if errors.Is(err, app.ErrNoOwner) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// handleSetStatus transitions a subscription's lifecycle status.
func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid subscription id", http.StatusBadRequest)
		return
	}

	var req struct {
		Status domain.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.SetStatus(r.Context(), ownerID, id, req.Status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// handleConvert converts a trial into a paid subscription.
func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid subscription id", http.StatusBadRequest)
		return
	}

	var req struct {
		EndDate      *time.Time `json:"end_date"`
		BillingCycle string     `json:"billing_cycle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.ConvertTrialToPaid(r.Context(), ownerID, id, req.EndDate, req.BillingCycle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// handleDeleteSubscription removes a subscription and its reminders.
func (h *Handler) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid subscription id", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(r.Context(), ownerID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetForecast returns the owner's current forecast metrics snapshot.
func (h *Handler) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	metrics, err := h.service.Metrics(r.Context(), ownerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	level := domain.RiskLevelFor(metrics.WasteRiskScore)
	respondWithJSON(w, http.StatusOK, struct {
		domain.SavingsMetrics
		RiskLevel       domain.RiskLevel `json:"risk_level"`
		RiskDescription string           `json:"risk_description"`
	}{
		SavingsMetrics:  metrics,
		RiskLevel:       level,
		RiskDescription: level.Description(),
	})
}

// handleGetPreferences returns the owner's reminder preferences.
func (h *Handler) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	prefs, err := h.service.Preferences(r.Context(), ownerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, prefs)
}

// handleUpdatePreferences saves reminder preferences and batch-reschedules the
// owner's active subscriptions.
func (h *Handler) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var prefs domain.ReminderPreferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	outcome, err := h.service.UpdatePreferences(r.Context(), ownerID, prefs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	respondWithJSON(w, http.StatusOK, outcome)
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
