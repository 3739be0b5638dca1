package mockbackend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/session"
)

func slotForm() schema.FormSchema {
	return schema.FormSchema{
		ID:              "exam",
		Name:            "Exam Booking",
		PaymentRequired: true,
		PaymentDetails:  &schema.PaymentDetails{Amount: 500, Currency: "INR"},
		Sections: []schema.Section{{Fields: []schema.Field{
			{Name: "aadhaar_number", Type: schema.FieldTypeText, Required: true},
			{Name: "contact_number", Type: schema.FieldTypeText, Required: true},
			{Name: "time_slot", Type: schema.FieldTypeRadio, Options: []schema.Option{{Label: "Morning", Value: "09:00-12:00"}}},
			{Name: "exam_date", Type: schema.FieldTypeSelect, Options: []schema.Option{{Label: "10 Jan", Value: "2026-01-10"}}},
		}}},
	}
}

func newClient(t *testing.T, srv *Server, opts ...backend.Option) *backend.Client {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client, err := backend.New(ts.URL, append([]backend.Option{backend.WithHTTPClient(ts.Client())}, opts...)...)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return client
}

func submission(i int) backend.SubmitRequest {
	return backend.SubmitRequest{
		FormID: "exam",
		Responses: map[string]any{
			"aadhaar_number": fmt.Sprintf("2345678901%02d", i),
			"contact_number": fmt.Sprintf("98765432%02d", i),
			"time_slot":      "09:00-12:00",
		},
	}
}

func TestSubmit_RejectsTwentySixthReservation(t *testing.T) {
	srv := New(schema.NewStore(slotForm()))
	client := newClient(t, srv)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := client.Submit(ctx, submission(i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("reservation within ceiling failed: %v", err)
	}

	_, err := client.Submit(ctx, submission(25))
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	want := backend.APIError{Status: http.StatusConflict, Message: "Selected slot is full. Please choose another slot.", Field: "time_slot"}
	if diff := cmp.Diff(want, *apiErr); diff != "" {
		t.Fatalf("conflict mismatch (-want +got):\n%s", diff)
	}

	counts, err := client.CapacitySnapshot(ctx, "exam")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if counts["09:00-12:00"] != 25 {
		t.Fatalf("expected 25 reservations, got %d", counts["09:00-12:00"])
	}
}

func TestSubmit_IdempotencyKeyReplays(t *testing.T) {
	srv := New(schema.NewStore(slotForm()))
	client := newClient(t, srv)
	ctx := context.Background()

	req := submission(1)
	req.IdempotencyKey = "retry-1"
	first, err := client.Submit(ctx, req)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := client.Submit(ctx, req)
	if err != nil {
		t.Fatalf("replayed submit: %v", err)
	}
	if first.SubmissionID != second.SubmissionID || len(srv.Submissions("exam")) != 1 {
		t.Fatalf("expected a single submission, got %v and %v", first, second)
	}
}

func TestReservationsAreCountedPerResource(t *testing.T) {
	form := slotForm()
	form.Sections[0].Fields[2].Options = []schema.Option{{Value: "2026-01-10"}}
	srv := New(schema.NewStore(form), WithCeilings(1, 1))
	client := newClient(t, srv)
	ctx := context.Background()

	slot := submission(1)
	slot.Responses["time_slot"] = "2026-01-10"
	if _, err := client.Submit(ctx, slot); err != nil {
		t.Fatalf("slot booking: %v", err)
	}

	exam := submission(2)
	delete(exam.Responses, "time_slot")
	exam.Responses["exam_date"] = "2026-01-10"
	if _, err := client.Submit(ctx, exam); err != nil {
		t.Fatalf("exam date sharing a slot label must not be full: %v", err)
	}

	if n, _ := client.ExamDateCount(ctx, "exam", "2026-01-10"); n != 1 {
		t.Fatalf("exam date count %d", n)
	}
	counts, _ := client.CapacitySnapshot(ctx, "exam")
	if diff := cmp.Diff(map[string]int{"2026-01-10": 1}, counts); diff != "" {
		t.Fatalf("slot counts mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckUnique_SkipsExcludedSubmission(t *testing.T) {
	srv := New(schema.NewStore(slotForm()))
	client := newClient(t, srv)
	ctx := context.Background()

	resumed, err := client.Submit(ctx, submission(4))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	got, err := client.CheckUnique(ctx, backend.UniqueAadhaar, "exam", "234567890104", resumed.SubmissionID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if got.Exists {
		t.Fatalf("own submission must not conflict, got %+v", got)
	}

	other := submission(4)
	other.Responses["contact_number"] = "9000000004"
	dup, err := client.Submit(ctx, other)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	got, err = client.CheckUnique(ctx, backend.UniqueAadhaar, "exam", "234567890104", resumed.SubmissionID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if diff := cmp.Diff(backend.Uniqueness{Exists: true, SubmissionID: dup.SubmissionID}, got); diff != "" {
		t.Fatalf("uniqueness mismatch (-want +got):\n%s", diff)
	}
}

func TestResumeAndUpdateInPlace(t *testing.T) {
	srv := New(schema.NewStore(slotForm()))
	client := newClient(t, srv)
	ctx := context.Background()

	created, err := client.Submit(ctx, submission(3))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	res, err := client.Resume(ctx, "exam", "234567890103", "9876543203")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !res.Success || res.SubmissionID != created.SubmissionID || res.Responses["time_slot"] != "09:00-12:00" {
		t.Fatalf("unexpected resume result %+v", res)
	}

	unique, err := client.CheckUnique(ctx, backend.UniqueAadhaar, "exam", "234567890103", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if diff := cmp.Diff(backend.Uniqueness{Exists: true, SubmissionID: created.SubmissionID}, unique); diff != "" {
		t.Fatalf("uniqueness mismatch (-want +got):\n%s", diff)
	}

	update := submission(3)
	update.SubmissionID = created.SubmissionID
	update.Responses["exam_date"] = "2026-01-10"
	updated, err := client.Submit(ctx, update)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.SubmissionID != created.SubmissionID {
		t.Fatalf("expected in-place update, got %s", updated.SubmissionID)
	}
	counts, _ := client.CapacitySnapshot(ctx, "exam")
	if diff := cmp.Diff(map[string]int{"09:00-12:00": 1}, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	if n, _ := client.ExamDateCount(ctx, "exam", "2026-01-10"); n != 1 {
		t.Fatalf("exam date count %d", n)
	}
}

func TestPaymentFlow(t *testing.T) {
	srv := New(schema.NewStore(slotForm()))
	client := newClient(t, srv)
	ctx := context.Background()

	created, err := client.Submit(ctx, submission(4))
	if err != nil || !created.PaymentRequired {
		t.Fatalf("submit: %+v %v", created, err)
	}
	order, err := client.CreateOrder(ctx, created.SubmissionID)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if order.Amount != 50000 || order.Currency != "INR" {
		t.Fatalf("unexpected order %+v", order)
	}

	if err := client.VerifyPayment(ctx, created.SubmissionID, backend.PaymentProof{OrderID: order.ID, PaymentID: "pay_1", Signature: "forged"}); err == nil {
		t.Fatalf("expected forged signature to fail")
	}
	proof := backend.PaymentProof{OrderID: order.ID, PaymentID: "pay_1", Signature: srv.Sign(order.ID, "pay_1")}
	if err := client.VerifyPayment(ctx, created.SubmissionID, proof); err != nil {
		t.Fatalf("verify: %v", err)
	}
	status, err := client.Status(ctx, created.SubmissionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if diff := cmp.Diff(backend.Status{PaymentRequired: true, PaymentStatus: PaymentCompleted, FormName: "Exam Booking"}, status); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	srv := New(schema.NewStore(slotForm()), WithAdmin("ops@example.com", "secret"))
	client := newClient(t, srv)
	holder := session.NewHolder()

	if _, err := holder.Login(context.Background(), client, "ops@example.com", "wrong"); err == nil {
		t.Fatalf("expected bad credentials to fail")
	}
	sess, err := holder.Login(context.Background(), client, "ops@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Role != "admin" || sess.Email != "ops@example.com" || sess.ExpiresAt.IsZero() {
		t.Fatalf("unexpected session %+v", sess)
	}

	authed := newClient(t, srv, backend.WithTokenSource(holder))
	if _, err := authed.FetchForm(context.Background(), "exam"); err != nil {
		t.Fatalf("authenticated fetch: %v", err)
	}

	bad := session.NewHolder()
	bad.Set(session.Session{Token: "not-a-jwt"})
	rejected := newClient(t, srv, backend.WithTokenSource(bad))
	var apiErr *backend.APIError
	if _, err := rejected.FetchForm(context.Background(), "exam"); !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	var rendered string
	srv := New(schema.NewStore(slotForm()), WithPreview(func(form schema.FormSchema) ([]byte, error) {
		rendered = form.ID
		return []byte("<form>" + form.Name + "</form>"), nil
	}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/preview/exam")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "<form>Exam Booking</form>" || rendered != "exam" {
		t.Fatalf("unexpected preview %d %q", resp.StatusCode, body)
	}

	missing, err := ts.Client().Get(ts.URL + "/preview/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}
