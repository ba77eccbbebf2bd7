package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subtrack/subscription-service/internal/app"
	"github.com/subtrack/subscription-service/internal/domain"
	"github.com/subtrack/subscription-service/internal/store"
)

// serviceStub records the last call per operation and returns canned results.
type serviceStub struct {
	addOwner  string
	addInput  app.AddSubscriptionInput
	addErr    error
	statusErr error
	deleteErr error
	lastID    uuid.UUID
	prefs     domain.ReminderPreferences
	prefsErr  error
}

func (s *serviceStub) Add(ctx context.Context, ownerID string, input app.AddSubscriptionInput) (*app.MutationResult, error) {
	s.addOwner, s.addInput = ownerID, input
	if s.addErr != nil {
		return nil, s.addErr
	}
	return &app.MutationResult{Persisted: true, RemindersScheduled: true}, nil
}

func (s *serviceStub) SetStatus(ctx context.Context, ownerID string, id uuid.UUID, status domain.Status) (*app.MutationResult, error) {
	s.lastID = id
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &app.MutationResult{Persisted: true, RemindersScheduled: true}, nil
}

func (s *serviceStub) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	s.lastID = id
	return s.deleteErr
}

func (s *serviceStub) ConvertTrialToPaid(ctx context.Context, ownerID string, id uuid.UUID, newEndDate *time.Time, billingCycle string) (*app.MutationResult, error) {
	s.lastID = id
	return &app.MutationResult{Persisted: true, RemindersScheduled: true}, nil
}

func (s *serviceStub) Categorize(ctx context.Context, ownerID string) (*app.CategorizedSubscriptions, error) {
	return &app.CategorizedSubscriptions{
		TotalMonthly: decimal.RequireFromString("15.99"),
		TotalSavings: decimal.Zero,
	}, nil
}

func (s *serviceStub) Metrics(ctx context.Context, ownerID string) (domain.SavingsMetrics, error) {
	return domain.SavingsMetrics{
		PotentialAnnualWaste:   decimal.RequireFromString("76.75"),
		ActualSavings:          decimal.Zero,
		MonthlySpendProjection: decimal.RequireFromString("6.40"),
		YearlySpendProjection:  decimal.RequireFromString("76.75"),
		WasteRiskScore:         6.5,
		ForgetRate:             0.40,
	}, nil
}

func (s *serviceStub) Preferences(ctx context.Context, ownerID string) (domain.ReminderPreferences, error) {
	if s.prefsErr != nil {
		return domain.ReminderPreferences{}, s.prefsErr
	}
	return domain.DefaultReminderPreferences(ownerID), nil
}

func (s *serviceStub) UpdatePreferences(ctx context.Context, ownerID string, prefs domain.ReminderPreferences) (app.ScheduleOutcome, error) {
	s.prefs = prefs
	return app.ScheduleOutcome{Scheduled: 2}, nil
}

func authedRequest(method, target string, body []byte) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	return r.WithContext(context.WithValue(r.Context(), ownerIDKey, "owner-1"))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleListSubscriptions_RequiresAuth(t *testing.T) {
	h := NewHandler(&serviceStub{})
	w := httptest.NewRecorder()

	h.handleListSubscriptions(w, httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without an owner in context, got %d", w.Code)
	}
}

func TestHandleListSubscriptions_ReturnsViews(t *testing.T) {
	h := NewHandler(&serviceStub{})
	w := httptest.NewRecorder()

	h.handleListSubscriptions(w, authedRequest(http.MethodGet, "/api/subscriptions", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON content type, got %q", ct)
	}
	var views app.CategorizedSubscriptions
	if err := json.Unmarshal(w.Body.Bytes(), &views); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if !views.TotalMonthly.Equal(decimal.RequireFromString("15.99")) {
		t.Fatalf("unexpected total monthly %s", views.TotalMonthly)
	}
}

func TestHandleAddSubscription_CreatesAndReturns201(t *testing.T) {
	stub := &serviceStub{}
	h := NewHandler(stub)
	w := httptest.NewRecorder()

	body := []byte(`{"name":"Streamly","start_date":"2025-03-01T00:00:00Z","end_date":"2025-03-31T00:00:00Z","monthly_price":"15.99"}`)
	h.handleAddSubscription(w, authedRequest(http.MethodPost, "/api/subscriptions", body))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if stub.addOwner != "owner-1" {
		t.Fatalf("owner was not forwarded, got %q", stub.addOwner)
	}
	if stub.addInput.Name != "Streamly" {
		t.Fatalf("input was not decoded, got %+v", stub.addInput)
	}
}

func TestHandleAddSubscription_BadBodyReturns400(t *testing.T) {
	h := NewHandler(&serviceStub{})
	w := httptest.NewRecorder()

	h.handleAddSubscription(w, authedRequest(http.MethodPost, "/api/subscriptions", []byte("{not json")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestHandleSetStatus_InvalidIDReturns400(t *testing.T) {
	h := NewHandler(&serviceStub{})
	w := httptest.NewRecorder()

	r := authedRequest(http.MethodPatch, "/api/subscriptions/not-a-uuid/status", []byte(`{"status":"canceled"}`))
	h.handleSetStatus(w, withURLParam(r, "id", "not-a-uuid"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid id, got %d", w.Code)
	}
}

func TestHandleSetStatus_UnknownIDReturns404(t *testing.T) {
	h := NewHandler(&serviceStub{statusErr: store.ErrNotFound})
	w := httptest.NewRecorder()

	id := uuid.New()
	r := authedRequest(http.MethodPatch, "/api/subscriptions/"+id.String()+"/status", []byte(`{"status":"canceled"}`))
	h.handleSetStatus(w, withURLParam(r, "id", id.String()))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown subscription, got %d", w.Code)
	}
}

func TestHandleDeleteSubscription_Returns204(t *testing.T) {
	stub := &serviceStub{}
	h := NewHandler(stub)
	w := httptest.NewRecorder()

	id := uuid.New()
	r := authedRequest(http.MethodDelete, "/api/subscriptions/"+id.String(), nil)
	h.handleDeleteSubscription(w, withURLParam(r, "id", id.String()))

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if stub.lastID != id {
		t.Fatal("delete was not forwarded with the parsed id")
	}
}

func TestHandleDeleteSubscription_UnknownIDReturns404(t *testing.T) {
	h := NewHandler(&serviceStub{deleteErr: store.ErrNotFound})
	w := httptest.NewRecorder()

	id := uuid.New()
	r := authedRequest(http.MethodDelete, "/api/subscriptions/"+id.String(), nil)
	h.handleDeleteSubscription(w, withURLParam(r, "id", id.String()))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleGetForecast_IncludesRiskLevel(t *testing.T) {
	h := NewHandler(&serviceStub{})
	w := httptest.NewRecorder()

	h.handleGetForecast(w, authedRequest(http.MethodGet, "/api/forecast", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload struct {
		WasteRiskScore  float64          `json:"waste_risk_score"`
		RiskLevel       domain.RiskLevel `json:"risk_level"`
		RiskDescription string           `json:"risk_description"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if payload.RiskLevel != domain.RiskHigh {
		t.Fatalf("expected a 6.5 score to read as High, got %s", payload.RiskLevel)
	}
	if payload.RiskDescription == "" {
		t.Fatal("expected a risk description alongside the level")
	}
}

func TestHandleUpdatePreferences_ForwardsDecodedPreferences(t *testing.T) {
	stub := &serviceStub{}
	h := NewHandler(stub)
	w := httptest.NewRecorder()

	body := []byte(`{"three_day_reminder":true,"one_day_reminder":false,"day_of_reminder":true,"hour":20,"minute":30}`)
	h.handleUpdatePreferences(w, authedRequest(http.MethodPut, "/api/preferences", body))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if stub.prefs.OneDay || !stub.prefs.ThreeDay || stub.prefs.Hour != 20 || stub.prefs.Minute != 30 {
		t.Fatalf("preferences were not decoded: %+v", stub.prefs)
	}
}

func TestHandleUpdatePreferences_ServiceErrorReturns400(t *testing.T) {
	h := NewHandler(&errPrefsService{})
	w := httptest.NewRecorder()

	body := []byte(`{"hour":24}`)
	h.handleUpdatePreferences(w, authedRequest(http.MethodPut, "/api/preferences", body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a rejected preference set, got %d", w.Code)
	}
}

// errPrefsService rejects preference updates and delegates the rest.
type errPrefsService struct {
	serviceStub
}

func (s *errPrefsService) UpdatePreferences(ctx context.Context, ownerID string, prefs domain.ReminderPreferences) (app.ScheduleOutcome, error) {
	return app.ScheduleOutcome{}, errors.New("invalid reminder time 24:00")
}
