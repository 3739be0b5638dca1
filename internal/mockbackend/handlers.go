package mockbackend

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/capacity"
	"github.com/goliatone/go-formengine/pkg/resume"
	"github.com/goliatone/go-formengine/pkg/schema"
	"github.com/goliatone/go-formengine/pkg/validation"
)

const maxUploadBytes = 32 << 20

func (s *Server) form(c *gin.Context) (schema.FormSchema, bool) {
	id := c.Param("formId")
	form, ok := s.forms.Form(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": fmt.Sprintf("Form %s not found", id)})
		return schema.FormSchema{}, false
	}
	return form, true
}

func (s *Server) fetchForm(c *gin.Context) {
	form, ok := s.form(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, form)
}

func (s *Server) previewForm(c *gin.Context) {
	form, ok := s.form(c)
	if !ok {
		return
	}
	out, err := s.preview(form)
	if err != nil {
		s.logger.Error("preview failed", zap.String("form", form.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not render form"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", out)
}

type uniqueRequest struct {
	FormID       string `json:"formId"`
	Value        string `json:"value"`
	SubmissionID string `json:"submissionId"`
}

func (s *Server) checkUnique(kind backend.UniqueKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req uniqueRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.FormID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "formId and value are required"})
			return
		}
		form, ok := s.forms.Form(req.FormID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "Form not found"})
			return
		}
		var names []string
		for _, field := range form.Fields() {
			if k, ok := validation.UniqueKindFor(field); ok && k == kind {
				names = append(names, field.Name)
			}
		}

		value := strings.TrimSpace(req.Value)
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, id := range s.order {
			sub := s.submissions[id]
			if sub.FormID != req.FormID || sub.ID == req.SubmissionID {
				continue
			}
			for _, name := range names {
				if str, _ := sub.Responses[name].(string); strings.TrimSpace(str) == value {
					c.JSON(http.StatusOK, backend.Uniqueness{Exists: true, SubmissionID: sub.ID})
					return
				}
			}
		}
		c.JSON(http.StatusOK, backend.Uniqueness{})
	}
}

func (s *Server) capacitySnapshot(c *gin.Context) {
	form, ok := s.form(c)
	if !ok {
		return
	}
	s.mu.Lock()
	counts := make(map[string]int)
	for r, n := range s.counts[form.ID] {
		if r.resource == capacity.ResourceSlot {
			counts[r.value] = n
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (s *Server) examDateCount(c *gin.Context) {
	form, ok := s.form(c)
	if !ok {
		return
	}
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "date is required"})
		return
	}
	s.mu.Lock()
	count := s.counts[form.ID][reservation{resource: capacity.ResourceExamDate, value: date}]
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (s *Server) examDates(c *gin.Context) {
	form, ok := s.form(c)
	if !ok {
		return
	}
	dates := []string{}
	for _, field := range form.Fields() {
		if resource, ok := capacity.Classify(field); ok && resource == capacity.ResourceExamDate {
			for _, opt := range field.Options {
				dates = append(dates, opt.Value)
			}
			break
		}
	}
	if len(dates) == 0 {
		dates = append(dates, s.fallbackDates...)
	}
	c.JSON(http.StatusOK, gin.H{"examDates": dates})
}

type resumeRequest struct {
	Aadhaar string `json:"aadhaar"`
	Phone   string `json:"phone"`
}

func (s *Server) resumeLookup(c *gin.Context) {
	form, ok := s.form(c)
	if !ok {
		return
	}
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid resume payload"})
		return
	}
	aadhaarField, phoneField := resume.IdentityFieldsOf(form)
	if aadhaarField == "" || phoneField == "" {
		c.JSON(http.StatusOK, backend.ResumeResult{})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		sub := s.submissions[s.order[i]]
		if sub.FormID != form.ID {
			continue
		}
		if sub.PaymentStatus != PaymentPending && sub.PaymentStatus != PaymentFailed {
			continue
		}
		a, _ := sub.Responses[aadhaarField].(string)
		p, _ := sub.Responses[phoneField].(string)
		if a == req.Aadhaar && p == req.Phone {
			c.JSON(http.StatusOK, backend.ResumeResult{
				Success:      true,
				SubmissionID: sub.ID,
				Responses:    cloneResponses(sub.Responses),
			})
			return
		}
	}
	c.JSON(http.StatusOK, backend.ResumeResult{})
}

func (s *Server) submit(c *gin.Context) {
	form, ok := s.form(c)
	if !ok {
		return
	}
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Expected a multipart submission"})
		return
	}
	if id := c.PostForm("form"); id != "" && id != form.ID {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Form id mismatch"})
		return
	}
	responses := make(map[string]any)
	if raw := c.PostForm("responses"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &responses); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "responses must be JSON"})
			return
		}
	}

	files := make(map[string]StoredFile)
	for _, field := range form.Fields() {
		if field.Type != schema.FieldTypeFile {
			continue
		}
		if headers := c.Request.MultipartForm.File[field.Name]; len(headers) > 0 {
			h := headers[0]
			files[field.Name] = StoredFile{Filename: h.Filename, ContentType: h.Header.Get("Content-Type"), Size: h.Size}
		}
	}

	var wanted []reservation
	fieldFor := make(map[reservation]string)
	for _, field := range form.Fields() {
		resource, ok := capacity.Classify(field)
		if !ok {
			continue
		}
		value, _ := responses[field.Name].(string)
		if strings.TrimSpace(value) == "" {
			continue
		}
		r := reservation{resource: resource, value: value}
		wanted = append(wanted, r)
		fieldFor[r] = field.Name
	}

	key := c.GetHeader("Idempotency-Key")
	resumeID := c.PostForm("submissionId")

	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if id, seen := s.idempotent[key]; seen {
			sub := s.submissions[id]
			c.JSON(http.StatusCreated, submitResponse(sub))
			return
		}
	}

	var existing *Submission
	if resumeID != "" {
		if sub, ok := s.submissions[resumeID]; ok && sub.FormID == form.ID && sub.PaymentStatus != PaymentCompleted {
			existing = sub
		}
	}

	counts := s.counts[form.ID]
	if counts == nil {
		counts = make(map[reservation]int)
		s.counts[form.ID] = counts
	}
	for _, r := range wanted {
		count := counts[r]
		if existing != nil && holds(existing.reservations, r) {
			count--
		}
		if ceiling := s.ceilings[r.resource]; count >= ceiling {
			reached := &capacity.ReachedError{Field: fieldFor[r], Value: r.value, Resource: r.resource, Count: count, Ceiling: ceiling}
			s.logger.Info("reservation rejected",
				zap.String("form", form.ID),
				zap.String("field", reached.Field),
				zap.String("value", r.value),
				zap.Int("count", count),
			)
			c.JSON(http.StatusConflict, gin.H{"message": reached.Message(), "field": reached.Field})
			return
		}
	}

	now := s.now()
	sub := existing
	if sub == nil {
		sub = &Submission{ID: uuid.NewString(), FormID: form.ID, CreatedAt: now}
		s.submissions[sub.ID] = sub
		s.order = append(s.order, sub.ID)
	} else {
		for _, r := range sub.reservations {
			counts[r]--
		}
	}
	for _, r := range wanted {
		counts[r]++
	}
	sub.reservations = wanted
	sub.Responses = responses
	sub.Files = files
	sub.UpdatedAt = now
	sub.PaymentRequired = form.PaymentRequired
	if form.PaymentRequired {
		sub.PaymentStatus = PaymentPending
	} else {
		sub.PaymentStatus = PaymentNotRequired
	}
	if key != "" {
		s.idempotent[key] = sub.ID
	}

	s.logger.Info("submission accepted",
		zap.String("form", form.ID),
		zap.String("submission", sub.ID),
		zap.Bool("resumed", existing != nil),
	)
	c.JSON(http.StatusCreated, submitResponse(sub))
}

func (s *Server) createOrder(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[c.Param("submissionId")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Submission not found"})
		return
	}
	if !sub.PaymentRequired {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Payment is not required for this submission"})
		return
	}
	form, _ := s.forms.Form(sub.FormID)
	order := backend.Order{ID: "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14], Currency: "INR"}
	if details := form.PaymentDetails; details != nil {
		order.Amount = math.Round(details.Amount * 100)
		if details.Currency != "" {
			order.Currency = details.Currency
		}
	}
	sub.OrderID = order.ID
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) verifyPayment(c *gin.Context) {
	var proof backend.PaymentProof
	if err := c.ShouldBindJSON(&proof); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payment payload"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[c.Param("submissionId")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Submission not found"})
		return
	}
	if sub.OrderID == "" || proof.OrderID != sub.OrderID || proof.Signature != s.Sign(proof.OrderID, proof.PaymentID) {
		sub.PaymentStatus = PaymentFailed
		sub.UpdatedAt = s.now()
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payment signature"})
		return
	}
	sub.PaymentStatus = PaymentCompleted
	sub.PaymentID = proof.PaymentID
	sub.UpdatedAt = s.now()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) status(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[c.Param("submissionId")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Submission not found"})
		return
	}
	form, _ := s.forms.Form(sub.FormID)
	c.JSON(http.StatusOK, backend.Status{
		PaymentRequired: sub.PaymentRequired,
		PaymentStatus:   sub.PaymentStatus,
		FormName:        form.Name,
	})
}

func submitResponse(sub *Submission) gin.H {
	return gin.H{
		"submission":      gin.H{"_id": sub.ID, "formId": sub.FormID},
		"paymentRequired": sub.PaymentRequired,
	}
}

func holds(list []reservation, r reservation) bool {
	for _, existing := range list {
		if existing == r {
			return true
		}
	}
	return false
}

func cloneResponses(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
