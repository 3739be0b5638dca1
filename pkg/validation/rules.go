package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formengine/pkg/backend"
	"github.com/goliatone/go-formengine/pkg/response"
	"github.com/goliatone/go-formengine/pkg/schema"
)

// Rule names the category of a validation failure.
type Rule string

const (
	RulePresence   Rule = "presence"
	RuleFormat     Rule = "format"
	RuleChecksum   Rule = "checksum"
	RuleUniqueness Rule = "uniqueness"
	RuleCapacity   Rule = "capacity"
)

// DefaultMinimumAge is the youngest accepted applicant age in years.
const DefaultMinimumAge = 20

const dateLayout = "2006-01-02"

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern   = regexp.MustCompile(`^[6-9]\d{9}$`)
	aadhaarPattern = regexp.MustCompile(`(?i)(aadhaar|aadhar|adhar|adhaar)`)
	bnrcPattern    = regexp.MustCompile(`(?i)bnrc`)
	digitsPattern  = regexp.MustCompile(`^\d+$`)
	twelveDigits   = regexp.MustCompile(`^\d{12}$`)

	phoneKeywords = []string{"phone", "contact", "mobile"}
	dobKeywords   = []string{"dob", "date_of_birth", "birth_date", "birthdate"}
)

// FieldError is one field-scoped validation failure.
type FieldError struct {
	Field   string
	Rule    Rule
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("validation: %s (%s): %s", e.Field, e.Rule, e.Message)
}

// IsPhoneLike reports fields validated as Indian mobile numbers.
func IsPhoneLike(field schema.Field) bool {
	return field.Type != schema.FieldTypeFile && containsAny(strings.ToLower(field.Name), phoneKeywords)
}

// IsAadhaarLike reports fields holding the 12-digit national id.
func IsAadhaarLike(field schema.Field) bool {
	return field.Type != schema.FieldTypeFile && aadhaarPattern.MatchString(field.Name)
}

// IsBNRC reports the registration-number field checked for uniqueness.
func IsBNRC(field schema.Field) bool {
	return field.Type != schema.FieldTypeFile && bnrcPattern.MatchString(field.Name)
}

// IsDateOfBirth reports fields subject to the minimum-age rule.
func IsDateOfBirth(field schema.Field) bool {
	return field.Type != schema.FieldTypeFile && containsAny(strings.ToLower(field.Name), dobKeywords)
}

// UniqueKindFor returns the uniqueness endpoint that guards field.
func UniqueKindFor(field schema.Field) (backend.UniqueKind, bool) {
	switch {
	case IsAadhaarLike(field):
		return backend.UniqueAadhaar, true
	case IsPhoneLike(field):
		return backend.UniquePhone, true
	case IsBNRC(field):
		return backend.UniqueBNRC, true
	default:
		return "", false
	}
}

// ValidPhone reports whether value is a 10-digit mobile number starting
// with 6-9.
func ValidPhone(value string) bool {
	return phonePattern.MatchString(value)
}

// AadhaarMessage returns the checksum-stage message for value, or "" when
// value is a valid 12-digit Aadhaar.
func AadhaarMessage(value string) string {
	switch {
	case !digitsPattern.MatchString(value):
		return "Aadhaar must contain only digits."
	case !twelveDigits.MatchString(value):
		return "Aadhaar must be exactly 12 digits."
	case !VerhoeffValid(value):
		return "Invalid Aadhaar number. Please enter a valid 12-digit Aadhaar."
	default:
		return ""
	}
}

// checkLocal runs presence, format and checksum rules. The first failing
// rule wins. Disabled fields are not checked.
func checkLocal(field schema.Field, value any, disabled bool, now time.Time, minAge int) *FieldError {
	if disabled {
		return nil
	}
	fail := func(rule Rule, msg string) *FieldError {
		return &FieldError{Field: field.Name, Rule: rule, Message: msg}
	}

	if response.IsEmpty(value) {
		if field.Required {
			return fail(RulePresence, field.DisplayLabel()+" is required.")
		}
		return nil
	}

	str, ok := value.(string)
	if !ok {
		return nil
	}

	if msg := formatMessage(field, str, now, minAge); msg != "" {
		return fail(RuleFormat, msg)
	}
	if IsAadhaarLike(field) {
		if msg := AadhaarMessage(str); msg != "" {
			return fail(RuleChecksum, msg)
		}
	}
	return nil
}

func formatMessage(field schema.Field, value string, now time.Time, minAge int) string {
	label := field.DisplayLabel()

	if field.Type == schema.FieldTypeEmail && !emailPattern.MatchString(value) {
		return "Invalid email format."
	}
	if IsPhoneLike(field) && !IsAadhaarLike(field) && !phonePattern.MatchString(value) {
		return "Invalid contact number."
	}
	if IsDateOfBirth(field) {
		dob, err := time.Parse(dateLayout, strings.TrimSpace(value))
		if err != nil {
			return "Invalid date of birth."
		}
		if ageOn(dob, now) < minAge {
			return fmt.Sprintf("You must be at least %d years old.", minAge)
		}
	}

	switch field.Type {
	case schema.FieldTypeText, schema.FieldTypeEmail, schema.FieldTypePassword, schema.FieldTypeTextarea:
		length := utf8.RuneCountInString(value)
		if field.MinLength != nil && length < *field.MinLength {
			return fmt.Sprintf("%s must be at least %d characters.", label, *field.MinLength)
		}
		if field.MaxLength != nil && length > *field.MaxLength {
			return fmt.Sprintf("%s must be at most %d characters.", label, *field.MaxLength)
		}
	case schema.FieldTypeNumber, schema.FieldTypeRange:
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return label + " must be a number."
		}
		if field.Min != nil && n < *field.Min {
			return fmt.Sprintf("%s must be at least %s.", label, formatFloat(*field.Min))
		}
		if field.Max != nil && n > *field.Max {
			return fmt.Sprintf("%s must be at most %s.", label, formatFloat(*field.Max))
		}
	}
	return ""
}

func ageOn(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func containsAny(name string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
