package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(srv.URL, append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	if _, err := New("not a url"); err == nil {
		t.Fatalf("expected invalid url error")
	}
}

func TestFetchForm_AttachesTokenAndParses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/forms/abc", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		_, _ = io.WriteString(w, `{"_id":"abc","formName":"Demo","fields":[{"name":"email","type":"email","required":true}]}`)
	})
	client := newTestClient(t, mux, WithTokenSource(staticToken("tok")))

	form, err := client.FetchForm(context.Background(), "abc")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if form.ID != "abc" || form.Name != "Demo" || len(form.Fields()) != 1 {
		t.Fatalf("unexpected form %+v", form)
	}
}

func TestCheckUnique(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/forms/check-aadhaar", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if diff := cmp.Diff(map[string]string{"formId": "f1", "value": "123"}, body); diff != "" {
			t.Errorf("body mismatch (-want +got):\n%s", diff)
		}
		_, _ = io.WriteString(w, `{"exists":true,"submissionId":"s9"}`)
	})
	client := newTestClient(t, mux, WithProbeRate(100, 1))

	got, err := client.CheckUnique(context.Background(), UniqueAadhaar, "f1", "123", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if diff := cmp.Diff(Uniqueness{Exists: true, SubmissionID: "s9"}, got); diff != "" {
		t.Fatalf("uniqueness mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckUnique_SendsExcludedSubmission(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/forms/check-phone", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if diff := cmp.Diff(map[string]string{"formId": "f1", "value": "9876543210", "submissionId": "s1"}, body); diff != "" {
			t.Errorf("body mismatch (-want +got):\n%s", diff)
		}
		_, _ = io.WriteString(w, `{"exists":false}`)
	})
	client := newTestClient(t, mux)

	if _, err := client.CheckUnique(context.Background(), UniquePhone, "f1", "9876543210", "s1"); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestSubmit_MultipartPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/submit-form/f1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") != "key-1" {
			t.Errorf("missing idempotency key")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("form"); got != "f1" {
			t.Errorf("form part: %q", got)
		}
		if got := r.FormValue("submissionId"); got != "old" {
			t.Errorf("submissionId part: %q", got)
		}
		var responses map[string]any
		if err := json.Unmarshal([]byte(r.FormValue("responses")), &responses); err != nil {
			t.Errorf("responses json: %v", err)
		}
		if responses["full_name"] != "Asha" {
			t.Errorf("responses: %+v", responses)
		}
		file, header, err := r.FormFile("passport_photo")
		if err != nil {
			t.Errorf("file part: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if header.Filename != "me.jpg" || string(data) != "jpeg" {
				t.Errorf("file part: %s %q", header.Filename, data)
			}
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"submission":{"_id":"s1"},"paymentRequired":true}`)
	})
	client := newTestClient(t, mux)

	got, err := client.Submit(context.Background(), SubmitRequest{
		FormID:         "f1",
		Responses:      map[string]any{"full_name": "Asha"},
		SubmissionID:   "old",
		Files:          []FilePart{{Field: "passport_photo", Filename: "me.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")}},
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if diff := cmp.Diff(SubmitResponse{SubmissionID: "s1", PaymentRequired: true}, got); diff != "" {
		t.Fatalf("submit response mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmit_ConflictMapsToAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/submit-form/f1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"message":"Slot is full","field":"time_slot"}`)
	})
	client := newTestClient(t, mux)

	_, err := client.Submit(context.Background(), SubmitRequest{FormID: "f1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.IsConflict() || apiErr.Field != "time_slot" || apiErr.Message != "Slot is full" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestPaymentEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/payment/create-order/s1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"order":{"id":"order_1","amount":50000,"currency":"INR"}}`)
	})
	mux.HandleFunc("/api/payment/payment-success/s1", func(w http.ResponseWriter, r *http.Request) {
		var proof PaymentProof
		_ = json.NewDecoder(r.Body).Decode(&proof)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": proof.Signature == "sig"})
	})
	mux.HandleFunc("/api/submissions/s1/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"paymentRequired":true,"paymentStatus":"Pending","formName":"Demo"}`)
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	order, err := client.CreateOrder(ctx, "s1")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if diff := cmp.Diff(Order{ID: "order_1", Amount: 50000, Currency: "INR"}, order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	if err := client.VerifyPayment(ctx, "s1", PaymentProof{PaymentID: "p", OrderID: "order_1", Signature: "sig"}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := client.VerifyPayment(ctx, "s1", PaymentProof{Signature: "forged"}); err == nil {
		t.Fatalf("expected rejected verification")
	}

	status, err := client.Status(ctx, "s1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if diff := cmp.Diff(Status{PaymentRequired: true, PaymentStatus: "Pending", FormName: "Demo"}, status); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestCapacityEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/forms/f1/capacity", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"counts":{"09:00-12:00":25}}`)
	})
	mux.HandleFunc("/api/forms/f1/exam-date-count", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") != "2026-01-10" {
			t.Errorf("date query: %q", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"count":7}`)
	})
	mux.HandleFunc("/api/forms/f1/exam-dates", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"examDates":["2026-01-10"]}`)
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	counts, err := client.CapacitySnapshot(ctx, "f1")
	if err != nil || counts["09:00-12:00"] != 25 {
		t.Fatalf("snapshot: %v %v", counts, err)
	}
	count, err := client.ExamDateCount(ctx, "f1", "2026-01-10")
	if err != nil || count != 7 {
		t.Fatalf("count: %d %v", count, err)
	}
	dates, err := client.ExamDates(ctx, "f1")
	if err != nil || len(dates) != 1 {
		t.Fatalf("dates: %v %v", dates, err)
	}
}

func TestTimeoutBoundsRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/submissions/slow/status", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client := newTestClient(t, mux, WithTimeout(50*time.Millisecond))

	if _, err := client.Status(context.Background(), "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
