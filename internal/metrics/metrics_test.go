package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
		{42, "other"},
	}

	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/invoices/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invoices/abc", nil))

	ObserveSubmission("invoice", "flagged", 60)
	AlertsRaisedTotal.WithLabelValues("medium").Inc()
	ObserveLookup("local", true)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		`kestrel_http_requests_total{method="GET",route="/invoices/{id}",status="4xx"}`,
		`kestrel_submissions_total{kind="invoice",status="flagged"}`,
		`kestrel_fraud_score_bucket{kind="invoice"`,
		`kestrel_alerts_raised_total{severity="medium"}`,
		`kestrel_cache_lookups_total{layer="local",result="hit"}`,
		"kestrel_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %s", want)
		}
	}
}
