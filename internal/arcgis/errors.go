package arcgis

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAuthentication is returned when the portal rejects the credentials.
	ErrAuthentication = errors.New("arcgis authentication failed")

	// ErrPublish is returned when the service refuses one or more features.
	ErrPublish = errors.New("feature upload failed")
)

// APIError is the {"error": {...}} envelope the REST API returns, often
// with HTTP status 200.
type APIError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("arcgis error %d: %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	return msg
}

// HTTPError carries status and body for non-2xx responses.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %s %s status=%d body=%s", e.Method, e.URL, e.StatusCode, snippet(e.Body, 500))
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// editError is the per-feature error inside edit results.
type editError struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

func (e *editError) String() string {
	if e == nil {
		return "unknown error"
	}
	return fmt.Sprintf("code %d: %s", e.Code, e.Description)
}
