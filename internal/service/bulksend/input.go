package bulksend

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Input limits.
const (
	MaxSubjectLength        = 255
	MaxBodyLength           = 50000
	MaxRecipientsTextLength = 100000
	MaxRecipientsFileSize   = 5 * 1024 * 1024
)

// JobInput is the operator's request to start a bulk send.
type JobInput struct {
	Sender         string `json:"sender_email" validate:"required,email"`
	Subject        string `json:"subject" validate:"subjectline,max=255"`
	Body           string `json:"body" validate:"notblank,max=50000"`
	BatchSize      int    `json:"batch_size" validate:"omitempty,min=1,max=500"`
	RecipientsText string `json:"recipients_text" validate:"max=100000"`

	// RecipientsFile is an optional CSV or TXT upload.
	RecipientsFile     io.Reader `json:"-" validate:"-"`
	RecipientsFileName string    `json:"-" validate:"omitempty,recipientfile"`
	RecipientsFileSize int64     `json:"-" validate:"min=0,max=5242880"`
}

// ValidationError lists operator-facing messages keyed by form field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid job input: " + strings.Join(parts, "; ")
}

var fieldMessages = map[string]string{
	"sender_email":    "Please enter a valid sender email.",
	"subject":         "Subject is required.",
	"body":            "Body is required.",
	"batch_size":      "Batch size must be between 1 and 500.",
	"recipients_text": fmt.Sprintf("Recipient text must be at most %d characters.", MaxRecipientsTextLength),
	"recipients_csv":  "Upload a .csv or .txt file of at most 5 MB.",
}

var inputValidator = newInputValidator()

func newInputValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// A subject must survive sanitizing; control characters alone do not count.
	_ = v.RegisterValidation("subjectline", func(fl validator.FieldLevel) bool {
		return SanitizeSubject(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("recipientfile", func(fl validator.FieldLevel) bool {
		ext := strings.ToLower(filepath.Ext(fl.Field().String()))
		return ext == ".csv" || ext == ".txt"
	})
	return v
}

// Validate checks the input and returns a *ValidationError describing every
// bad field.
func (in *JobInput) Validate() error {
	fields := map[string]string{}

	if err := inputValidator.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			field := fe.Field()
			switch fe.StructField() {
			case "Subject":
				if fe.Tag() == "max" {
					fields["subject"] = fmt.Sprintf("Subject must be at most %d characters.", MaxSubjectLength)
					continue
				}
			case "Body":
				if fe.Tag() == "max" {
					fields["body"] = fmt.Sprintf("Body must be at most %d characters.", MaxBodyLength)
					continue
				}
			case "RecipientsFileName", "RecipientsFileSize":
				field = "recipients_csv"
			}
			if msg, ok := fieldMessages[field]; ok {
				fields[field] = msg
			} else {
				fields[field] = fe.Error()
			}
		}
	}

	if strings.TrimSpace(in.RecipientsText) == "" && in.RecipientsFile == nil {
		fields["recipients_text"] = "Please provide recipients by pasting emails or uploading a CSV file."
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// SanitizeSubject removes CR, LF and other control characters so the subject
// cannot inject headers, and trims surrounding space.
func SanitizeSubject(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
