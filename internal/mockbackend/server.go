// Package mockbackend is an in-memory reference backend for the form
// engine. It serves every endpoint the engine client calls and performs
// the capacity reservation atomically at submit time. Nothing persists.
package mockbackend

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/capacity"
	"github.com/goliatone/go-formengine/pkg/schema"
)

// Payment status values reported by the status endpoint.
const (
	PaymentNotRequired = "NotRequired"
	PaymentPending     = "Pending"
	PaymentCompleted   = "Completed"
	PaymentFailed      = "Failed"
)

// StoredFile is the metadata kept for an uploaded file part.
type StoredFile struct {
	Filename    string
	ContentType string
	Size        int64
}

// Submission is one accepted form submission.
type Submission struct {
	ID              string
	FormID          string
	Responses       map[string]any
	Files           map[string]StoredFile
	PaymentRequired bool
	PaymentStatus   string
	OrderID         string
	PaymentID       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	reservations    []reservation
}

type reservation struct {
	resource capacity.Resource
	value    string
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCeilings overrides the slot and exam-date ceilings.
func WithCeilings(slot, examDate int) Option {
	return func(s *Server) {
		if slot > 0 {
			s.ceilings[capacity.ResourceSlot] = slot
		}
		if examDate > 0 {
			s.ceilings[capacity.ResourceExamDate] = examDate
		}
	}
}

// WithAdmin sets the credentials accepted by the login endpoint.
func WithAdmin(email, password string) Option {
	return func(s *Server) {
		s.adminEmail = email
		s.adminPassword = password
	}
}

// WithSigningKey sets the HMAC key for tokens and payment signatures.
func WithSigningKey(key []byte) Option {
	return func(s *Server) {
		if len(key) > 0 {
			s.key = key
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithExamDates sets the dates offered for forms whose exam-date field
// declares no options.
func WithExamDates(dates ...string) Option {
	return func(s *Server) {
		s.fallbackDates = append([]string(nil), dates...)
	}
}

// PreviewFunc renders a blank session of form as HTML.
type PreviewFunc func(form schema.FormSchema) ([]byte, error)

// WithPreview serves GET /preview/:formId through fn.
func WithPreview(fn PreviewFunc) Option {
	return func(s *Server) {
		s.preview = fn
	}
}

// Server holds every form, submission and reservation in memory.
type Server struct {
	forms         *schema.Store
	ceilings      map[capacity.Resource]int
	adminEmail    string
	adminPassword string
	key           []byte
	now           func() time.Time
	logger        *zap.Logger
	preview       PreviewFunc
	fallbackDates []string

	mu          sync.Mutex
	submissions map[string]*Submission
	order       []string
	counts      map[string]map[reservation]int // form id -> (resource, value) -> count
	idempotent  map[string]string              // idempotency key -> submission id
}

// New returns a server for forms.
func New(forms *schema.Store, opts ...Option) *Server {
	if forms == nil {
		forms = schema.NewStore()
	}
	s := &Server{
		forms: forms,
		ceilings: map[capacity.Resource]int{
			capacity.ResourceSlot:     capacity.DefaultSlotCeiling,
			capacity.ResourceExamDate: capacity.DefaultExamDateCeiling,
		},
		adminEmail:    "admin@example.com",
		adminPassword: "admin",
		key:           []byte("formengine-mock"),
		now:           time.Now,
		logger:        zap.NewNop(),
		submissions:   make(map[string]*Submission),
		counts:        make(map[string]map[reservation]int),
		idempotent:    make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the gin engine serving every route.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	s.Routes(router)
	return router
}

// Routes registers the API on r.
func (s *Server) Routes(r gin.IRouter) {
	api := r.Group("/api")
	api.Use(s.optionalAuth())
	{
		api.POST("/admin/login", s.login)

		api.GET("/forms/:formId", s.fetchForm)
		api.POST("/forms/check-aadhaar", s.checkUnique(backend.UniqueAadhaar))
		api.POST("/forms/check-phone", s.checkUnique(backend.UniquePhone))
		api.POST("/forms/check-bnrc", s.checkUnique(backend.UniqueBNRC))
		api.GET("/forms/:formId/capacity", s.capacitySnapshot)
		api.GET("/forms/:formId/exam-date-count", s.examDateCount)
		api.GET("/forms/:formId/exam-dates", s.examDates)
		api.POST("/forms/:formId/resume", s.resumeLookup)

		api.POST("/submit-form/:formId", s.submit)

		api.POST("/payment/create-order/:submissionId", s.createOrder)
		api.POST("/payment/payment-success/:submissionId", s.verifyPayment)
		api.GET("/submissions/:submissionId/status", s.status)
	}
	if s.preview != nil {
		r.GET("/preview/:formId", s.previewForm)
	}
}

// Submission returns a copy of the submission with id.
func (s *Server) Submission(id string) (Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return Submission{}, false
	}
	out := *sub
	out.reservations = nil
	return out, true
}

// Submissions returns copies of every submission of formID in arrival order.
func (s *Server) Submissions(formID string) []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Submission
	for _, id := range s.order {
		sub := s.submissions[id]
		if sub.FormID == formID {
			cp := *sub
			cp.reservations = nil
			out = append(out, cp)
		}
	}
	return out
}

// SetPaymentStatus forces the payment status of a submission, standing in
// for a gateway webhook.
func (s *Server) SetPaymentStatus(id, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return false
	}
	sub.PaymentStatus = status
	sub.UpdatedAt = s.now()
	return true
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", s.now().Sub(start)),
		)
	}
}
