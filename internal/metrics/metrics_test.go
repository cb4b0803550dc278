package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder("credits", reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	rec.RecordSpend("EARLY_ACCESS", OutcomeOK, 5)
	rec.RecordSpend("EARLY_ACCESS", OutcomeInsufficient, 5)
	rec.RecordUnlock(OutcomeAlreadyUnlocked)
	rec.RecordRefresh(3, 1, 0, 20*time.Millisecond)

	if got := testutil.ToFloat64(rec.spends.WithLabelValues("EARLY_ACCESS", OutcomeOK)); got != 1 {
		t.Fatalf("expected 1 successful spend, got %v", got)
	}
	if got := testutil.ToFloat64(rec.creditsSpent.WithLabelValues("EARLY_ACCESS")); got != 5 {
		t.Fatalf("expected 5 credits spent, got %v", got)
	}
	if got := testutil.ToFloat64(rec.refreshes.WithLabelValues(OutcomeRefreshed)); got != 3 {
		t.Fatalf("expected 3 refreshed users, got %v", got)
	}

	again, err := NewRecorder("credits", reg)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	again.RecordUnlock(OutcomeAlreadyUnlocked)
	if got := testutil.ToFloat64(rec.unlocks.WithLabelValues(OutcomeAlreadyUnlocked)); got != 2 {
		t.Fatalf("expected shared counter to reach 2, got %v", got)
	}

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "credits_spend_requests_total") {
		t.Fatalf("unexpected exposition (%d): %s", w.Code, w.Body.String())
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.RecordSpend("CUSTOM_CV", OutcomeOK, 3)
	rec.RecordStreak(OutcomeNoActivity)
	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil recorder, got %d", w.Code)
	}
}
