package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheus_ExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheus(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	rec.SubmissionDispatched("nursing")
	rec.ValidationFailed("checksum")
	rec.ValidationFailed("checksum")
	rec.PaymentTransition("Pending", "Completed")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`formengine_submissions_dispatched_total{form="nursing"} 1`,
		`formengine_validation_failures_total{rule="checksum"} 2`,
		`formengine_payment_transitions_total{from="Pending",to="Completed"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in scrape output:\n%s", want, body)
		}
	}
}

func TestPrometheus_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheus(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheus(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestOrNop(t *testing.T) {
	OrNop(nil).SubmissionFailed("f", "network")
}
