package app

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subtrack/subscription-service/internal/domain"
)

type forecastSourceStub struct {
	active     []domain.Subscription
	historical []domain.Subscription
}

func (s *forecastSourceStub) ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	return s.active, nil
}

func (s *forecastSourceStub) ListHistoricalByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	return s.historical, nil
}

func newTestEngine(source *forecastSourceStub, now time.Time) *ForecastEngine {
	e := NewForecastEngine(source, testLogger())
	e.now = func() time.Time { return now }
	return e
}

func historicalSubscription(status domain.Status, endDate time.Time, monthly string) domain.Subscription {
	return domain.Subscription{
		ID:           uuid.New(),
		OwnerID:      "owner-1",
		Name:         "Streamly",
		EndDate:      endDate,
		MonthlyPrice: decimal.RequireFromString(monthly),
		Status:       status,
		Kind:         domain.KindTrial,
	}
}

func TestForgetRate_NoHistoryUsesDefault(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(&forecastSourceStub{}, now)

	metrics, err := e.Recompute(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("Recompute returned error: %v", err)
	}
	if metrics.ForgetRate != 0.40 {
		t.Fatalf("expected default forget rate 0.40, got %v", metrics.ForgetRate)
	}
}

func TestForgetRate_ThinHistoryStillUsesDefault(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &forecastSourceStub{}
	for i := 0; i < 4; i++ {
		source.historical = append(source.historical,
			historicalSubscription(domain.StatusExpired, now.AddDate(0, -1, 0), "10"))
	}
	e := newTestEngine(source, now)

	metrics, _ := e.Recompute(context.Background(), "owner-1")
	if metrics.ForgetRate != 0.40 {
		t.Fatalf("expected default rate with 4 outcomes, got %v", metrics.ForgetRate)
	}
}

func TestForgetRate_BlendsTowardObservedRate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &forecastSourceStub{}
	// 10 outcomes, all forgotten: weight 0.5, so 0.5*0.40 + 0.5*1.0 = 0.70.
	for i := 0; i < 10; i++ {
		source.historical = append(source.historical,
			historicalSubscription(domain.StatusExpired, now.AddDate(0, -1, 0), "10"))
	}
	e := newTestEngine(source, now)

	metrics, _ := e.Recompute(context.Background(), "owner-1")
	if math.Abs(metrics.ForgetRate-0.70) > 1e-9 {
		t.Fatalf("expected blended rate 0.70, got %v", metrics.ForgetRate)
	}
}

func TestForgetRate_FullHistoryIsFullyPersonalized(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &forecastSourceStub{}
	for i := 0; i < 40; i++ {
		status := domain.StatusCanceled
		if i%2 == 0 {
			status = domain.StatusExpired
		}
		source.historical = append(source.historical,
			historicalSubscription(status, now.AddDate(0, -1, 0), "10"))
	}
	e := newTestEngine(source, now)

	metrics, _ := e.Recompute(context.Background(), "owner-1")
	if math.Abs(metrics.ForgetRate-0.50) > 1e-9 {
		t.Fatalf("expected fully personalized rate 0.50, got %v", metrics.ForgetRate)
	}
}

func TestForgetRate_LateKeptDecisionCountsAsForgotten(t *testing.T) {
	end := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	late := historicalSubscription(domain.StatusKept, end, "10")
	lateDecision := end.Add(72 * time.Hour)
	late.DecidedAt = &lateDecision
	if !outcomeForgotten(&late) {
		t.Fatal("kept 3 days after the end date should count as forgotten")
	}

	onTime := historicalSubscription(domain.StatusKept, end, "10")
	promptDecision := end.Add(6 * time.Hour)
	onTime.DecidedAt = &promptDecision
	if outcomeForgotten(&onTime) {
		t.Fatal("kept within a day of the end date should not count as forgotten")
	}

	canceled := historicalSubscription(domain.StatusCanceled, end, "10")
	if outcomeForgotten(&canceled) {
		t.Fatal("a canceled record is never a forgotten charge")
	}
}

func TestActualSavings_OnlyCountsCancellationsThisYear(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &forecastSourceStub{
		historical: []domain.Subscription{
			historicalSubscription(domain.StatusCanceled, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "9.99"),
			historicalSubscription(domain.StatusCanceled, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), "50"),
			historicalSubscription(domain.StatusExpired, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "20"),
		},
	}
	e := newTestEngine(source, now)

	metrics, _ := e.Recompute(context.Background(), "owner-1")
	if !metrics.ActualSavings.Equal(decimal.RequireFromString("9.99")) {
		t.Fatalf("expected savings 9.99, got %s", metrics.ActualSavings)
	}
}

func TestRecompute_ProjectionsScaleWithRateAndSpend(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &forecastSourceStub{
		active: []domain.Subscription{
			historicalSubscription(domain.StatusActive, now.AddDate(0, 1, 0), "10"),
			historicalSubscription(domain.StatusActive, now.AddDate(0, 2, 0), "30"),
		},
	}
	e := newTestEngine(source, now)

	metrics, _ := e.Recompute(context.Background(), "owner-1")
	// Total monthly is 40 and the default rate applies.
	if !metrics.MonthlySpendProjection.Equal(decimal.RequireFromString("16")) {
		t.Fatalf("expected monthly projection 16, got %s", metrics.MonthlySpendProjection)
	}
	if !metrics.YearlySpendProjection.Equal(decimal.RequireFromString("192")) {
		t.Fatalf("expected yearly projection 192, got %s", metrics.YearlySpendProjection)
	}
	if !metrics.PotentialAnnualWaste.Equal(decimal.RequireFromString("192")) {
		t.Fatalf("expected annual waste 192, got %s", metrics.PotentialAnnualWaste)
	}
}

func TestWasteRiskScore_FactorsAreCapped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &forecastSourceStub{}
	// 20 expensive subscriptions all ending within the week saturate every
	// factor; with a rate of 1.0 the additive total exceeds the clamp.
	for i := 0; i < 20; i++ {
		source.active = append(source.active,
			historicalSubscription(domain.StatusActive, now.AddDate(0, 0, 2), "100"))
	}
	for i := 0; i < 40; i++ {
		source.historical = append(source.historical,
			historicalSubscription(domain.StatusExpired, now.AddDate(0, -1, 0), "10"))
	}
	e := newTestEngine(source, now)

	metrics, _ := e.Recompute(context.Background(), "owner-1")
	if metrics.WasteRiskScore != 10 {
		t.Fatalf("expected score clamped at 10, got %v", metrics.WasteRiskScore)
	}
}

func TestWasteRiskScore_EmptyPortfolioScoresRateOnly(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(&forecastSourceStub{}, now)

	metrics, _ := e.Recompute(context.Background(), "owner-1")
	if math.Abs(metrics.WasteRiskScore-1.2) > 1e-9 {
		t.Fatalf("expected score 1.2 (default rate times 3), got %v", metrics.WasteRiskScore)
	}
}

func TestRiskLevelBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{2.99, domain.RiskLow},
		{3, domain.RiskMedium},
		{5.99, domain.RiskMedium},
		{6, domain.RiskHigh},
		{7.99, domain.RiskHigh},
		{8, domain.RiskVeryHigh},
		{10, domain.RiskVeryHigh},
	}
	for _, c := range cases {
		if got := domain.RiskLevelFor(c.score); got != c.want {
			t.Errorf("RiskLevelFor(%v) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestCurrent_ReflectsLastRecompute(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &forecastSourceStub{
		active: []domain.Subscription{
			historicalSubscription(domain.StatusActive, now.AddDate(0, 1, 0), "25"),
		},
	}
	e := newTestEngine(source, now)

	if !e.Current().MonthlySpendProjection.Equal(decimal.Zero) {
		t.Fatal("expected zeroed metrics before the first recompute")
	}
	want, _ := e.Recompute(context.Background(), "owner-1")
	got := e.Current()
	if !got.MonthlySpendProjection.Equal(want.MonthlySpendProjection) || !got.ComputedAt.Equal(want.ComputedAt) {
		t.Fatal("Current did not return the last published snapshot")
	}
}
