package widgets

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-formengine/pkg/schema"
)

// FileGuidance is the advisory upload constraint shown next to a file field.
// The backend remains the authority.
type FileGuidance struct {
	ContentType string
	Extension   string
	MaxBytes    int64
}

// Hint renders the guidance as a short sentence.
func (g FileGuidance) Hint() string {
	return fmt.Sprintf("%s only, up to %s.", strings.ToUpper(strings.TrimPrefix(g.Extension, ".")), humanSize(g.MaxBytes))
}

var (
	documentGuidance = FileGuidance{ContentType: "application/pdf", Extension: ".pdf", MaxBytes: 2 << 20}
	imageGuidance    = FileGuidance{ContentType: "image/jpeg", Extension: ".jpg", MaxBytes: 500 << 10}

	documentKeywords = []string{"certificate", "marksheet", "degree"}
	imageKeywords    = []string{"photo", "signature", "id_proof", "id-proof", "idproof"}
)

// Guidance returns the advisory constraint for a file field, keyed off its
// name. Non-file fields and unmatched names report false.
func Guidance(field schema.Field) (FileGuidance, bool) {
	if field.Type != schema.FieldTypeFile {
		return FileGuidance{}, false
	}
	name := strings.ToLower(field.Name)
	if containsAny(name, documentKeywords) {
		return documentGuidance, true
	}
	if containsAny(name, imageKeywords) {
		return imageGuidance, true
	}
	return FileGuidance{}, false
}

func containsAny(name string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
