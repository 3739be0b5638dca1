package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-formengine/pkg/schema"
)

const defaultTimeout = 15 * time.Second

// TokenSource yields the bearer token for authenticated requests. An empty
// token means the request goes out unauthenticated.
type TokenSource interface {
	Token() string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout bounds every request. Zero disables the per-request bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithTokenSource attaches bearer tokens from src.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) {
		c.tokens = src
	}
}

// WithProbeRate limits advisory probes (uniqueness and capacity) to r
// requests per second with the given burst. A zero rate removes the limit.
func WithProbeRate(r float64, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client talks to the registration backend.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	tokens  TokenSource
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New constructs a client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("backend: invalid base url %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		http:    http.DefaultClient,
		timeout: defaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Login exchanges credentials for a token. It satisfies session.Authenticator.
func (c *Client) Login(ctx context.Context, email, password string) (string, string, error) {
	var out struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/admin/login", body, &out, false); err != nil {
		return "", "", err
	}
	return out.Token, out.Role, nil
}

// FetchForm loads and validates the schema of formID.
func (c *Client) FetchForm(ctx context.Context, formID string) (schema.FormSchema, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/forms/"+url.PathEscape(formID), nil, "", false)
	if err != nil {
		return schema.FormSchema{}, err
	}
	form, err := schema.Parse(raw, "form "+formID)
	if err != nil {
		return schema.FormSchema{}, fmt.Errorf("backend: %w", err)
	}
	if form.ID == "" {
		form.ID = formID
	}
	return form, nil
}

// CheckUnique asks whether value is already registered for formID by a
// submission other than excludeID.
func (c *Client) CheckUnique(ctx context.Context, kind UniqueKind, formID, value, excludeID string) (Uniqueness, error) {
	var out Uniqueness
	body := map[string]string{"formId": formID, "value": value}
	if excludeID != "" {
		body["submissionId"] = excludeID
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/forms/check-"+string(kind), body, &out, true)
	return out, err
}

// CapacitySnapshot returns occupancy counts keyed by resource value.
func (c *Client) CapacitySnapshot(ctx context.Context, formID string) (map[string]int, error) {
	var out struct {
		Counts map[string]int `json:"counts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/forms/"+url.PathEscape(formID)+"/capacity", nil, &out, true); err != nil {
		return nil, err
	}
	if out.Counts == nil {
		out.Counts = make(map[string]int)
	}
	return out.Counts, nil
}

// ExamDateCount returns the number of submissions booked on date.
func (c *Client) ExamDateCount(ctx context.Context, formID, date string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	path := "/api/forms/" + url.PathEscape(formID) + "/exam-date-count?date=" + url.QueryEscape(date)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// ExamDates lists the exam dates offered by formID.
func (c *Client) ExamDates(ctx context.Context, formID string) ([]string, error) {
	var out struct {
		ExamDates []string `json:"examDates"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/forms/"+url.PathEscape(formID)+"/exam-dates", nil, &out, false); err != nil {
		return nil, err
	}
	return out.ExamDates, nil
}

// Submit sends one multipart submission.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	payload, contentType, err := encodeSubmission(req)
	if err != nil {
		return SubmitResponse{}, err
	}

	raw, err := c.doRequest(ctx, http.MethodPost, "/api/submit-form/"+url.PathEscape(req.FormID), payload, contentType, false, func(r *http.Request) {
		if req.IdempotencyKey != "" {
			r.Header.Set("Idempotency-Key", req.IdempotencyKey)
		}
	})
	if err != nil {
		return SubmitResponse{}, err
	}

	var out struct {
		Submission struct {
			ID    string `json:"_id"`
			AltID string `json:"id"`
		} `json:"submission"`
		PaymentRequired bool `json:"paymentRequired"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return SubmitResponse{}, fmt.Errorf("backend: decode submit response: %w", err)
	}
	id := out.Submission.ID
	if id == "" {
		id = out.Submission.AltID
	}
	if id == "" {
		return SubmitResponse{}, errors.New("backend: submit response carries no submission id")
	}
	return SubmitResponse{SubmissionID: id, PaymentRequired: out.PaymentRequired}, nil
}

// CreateOrder requests a payment order for submissionID.
func (c *Client) CreateOrder(ctx context.Context, submissionID string) (Order, error) {
	var out struct {
		Order Order `json:"order"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/payment/create-order/"+url.PathEscape(submissionID), struct{}{}, &out, false); err != nil {
		return Order{}, err
	}
	if out.Order.ID == "" {
		return Order{}, errors.New("backend: order response carries no order id")
	}
	return out.Order, nil
}

// VerifyPayment forwards a gateway completion payload.
func (c *Client) VerifyPayment(ctx context.Context, submissionID string, proof PaymentProof) error {
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/payment/payment-success/"+url.PathEscape(submissionID), proof, &out, false); err != nil {
		return err
	}
	if !out.Success {
		return &APIError{Status: http.StatusOK, Message: firstNonEmpty(out.Message, "payment verification rejected")}
	}
	return nil
}

// Status returns the payment status of submissionID.
func (c *Client) Status(ctx context.Context, submissionID string) (Status, error) {
	var out Status
	err := c.doJSON(ctx, http.MethodGet, "/api/submissions/"+url.PathEscape(submissionID)+"/status", nil, &out, false)
	return out, err
}

// Resume looks up an incomplete submission for the identity pair.
func (c *Client) Resume(ctx context.Context, formID, aadhaar, phone string) (ResumeResult, error) {
	var out ResumeResult
	body := map[string]string{"aadhaar": aadhaar, "phone": phone}
	err := c.doJSON(ctx, http.MethodPost, "/api/forms/"+url.PathEscape(formID)+"/resume", body, &out, false)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, probe bool) error {
	var payload io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode %s: %w", path, err)
		}
		payload = bytes.NewReader(data)
		contentType = "application/json"
	}
	raw, err := c.do(ctx, method, path, payload, contentType, probe)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, probe bool) ([]byte, error) {
	return c.doRequest(ctx, method, path, body, contentType, probe, nil)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string, probe bool, decorate func(*http.Request)) ([]byte, error) {
	if probe && c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("backend: probe rate limit: %w", err)
		}
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if decorate != nil {
		decorate(req)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read %s: %w", path, err)
	}
	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func decodeAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload errorPayload
	if err := json.Unmarshal(data, &payload); err == nil {
		apiErr.Message = firstNonEmpty(payload.Message, payload.Error)
		apiErr.Field = payload.Field
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

func encodeSubmission(req SubmitRequest) (io.Reader, string, error) {
	if strings.TrimSpace(req.FormID) == "" {
		return nil, "", errors.New("backend: submit requires a form id")
	}
	responses, err := json.Marshal(req.Responses)
	if err != nil {
		return nil, "", fmt.Errorf("backend: encode responses: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("form", req.FormID); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("responses", string(responses)); err != nil {
		return nil, "", err
	}
	if req.SubmissionID != "" {
		if err := writer.WriteField("submissionId", req.SubmissionID); err != nil {
			return nil, "", err
		}
	}
	for _, file := range req.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Filename))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("backend: attach %s: %w", file.Field, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("backend: attach %s: %w", file.Field, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
