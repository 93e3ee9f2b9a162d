package form

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eansheet/eansheet/internal/codes"
	"github.com/eansheet/eansheet/internal/generator"
)

// StatusFor maps a submission error to the HTTP status reported to the caller.
func StatusFor(err error) int {
	var backendErr *generator.BackendError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, generator.ErrEmptyInput),
		errors.Is(err, generator.ErrInvalidPreset),
		errors.Is(err, codes.ErrUnsupportedFile):
		return http.StatusBadRequest
	case errors.Is(err, codes.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, generator.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, generator.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &backendErr), errors.Is(err, generator.ErrConnectivity):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// pdfCapture holds the generated document until the response is written.
type pdfCapture struct {
	name string
	data []byte
}

func (c *pdfCapture) Save(name string, pdf []byte) error {
	c.name = name
	c.data = pdf
	return nil
}

type toastCapture struct {
	message string
	ttl     time.Duration
}

func (t *toastCapture) Notify(message string, ttl time.Duration) {
	t.message = message
	t.ttl = ttl
}

func writePDF(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", contentDisposition(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// contentDisposition always quotes the filename; mime.FormatMediaType only
// quotes values containing tspecials.
func contentDisposition(name string) string {
	if strings.ContainsAny(name, "\"\\\r\n") || !isASCII(name) {
		return mime.FormatMediaType("attachment", map[string]string{"filename": name})
	}
	return `attachment; filename="` + name + `"`
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
