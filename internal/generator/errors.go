package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eansheet/eansheet/internal/codes"
)

var (
	ErrEmptyInput    = errors.New("generator: no codes to generate")
	ErrBusy          = errors.New("generator: generation already in progress")
	ErrConnectivity  = errors.New("generator: backend unreachable")
	ErrTimeout       = errors.New("generator: backend did not answer in time")
	ErrInvalidPreset = errors.New("generator: invalid preset")
	ErrInvalidTheme  = errors.New("generator: invalid theme")
)

// BackendError reports a non-success answer from the barcode backend.
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("generator: backend returned status %d", e.Status)
	}
	return fmt.Sprintf("generator: backend returned status %d: %s", e.Status, e.Detail)
}

// Message turns err into the text shown to the user.
func Message(err error) string {
	var backendErr *BackendError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyInput):
		return "No EAN codes!"
	case errors.Is(err, ErrBusy):
		return "A PDF is already being generated."
	case errors.Is(err, ErrTimeout):
		return "The barcode service may be warming up. Please try again in a moment."
	case errors.Is(err, ErrInvalidPreset):
		return "Unknown layout preset."
	case errors.Is(err, codes.ErrUnsupportedFile):
		return "Only .csv and .txt files can be imported."
	case errors.Is(err, codes.ErrFileTooLarge):
		return "The imported file is too large."
	case errors.As(err, &backendErr):
		detail := strings.TrimSpace(backendErr.Detail)
		if detail == "" {
			detail = fmt.Sprintf("status %d", backendErr.Status)
		}
		return "Backend error: " + detail
	case errors.Is(err, context.Canceled):
		return "Generation cancelled."
	default:
		return "Could not connect to backend!"
	}
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	var backendErr *BackendError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrEmptyInput):
		return "empty"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &backendErr):
		return "backend_error"
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
