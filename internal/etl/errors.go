package etl

import (
	"errors"
	"fmt"
	"strings"
)

// Fatal run failures. Callers classify with errors.Is.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSchemaConformance = errors.New("layer schema does not match mapping")
)

// Reason classifies a per-record validation failure.
type Reason string

const (
	ReasonMissingRequired    Reason = "missing required field"
	ReasonTypeMismatch       Reason = "type mismatch"
	ReasonInvalidCoordinates Reason = "invalid coordinates"
	ReasonInvalidGeometry    Reason = "invalid geometry"
)

// ValidationError describes why one field of one record was rejected.
// Value holds the original, unconverted input.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Reason  Reason `json:"reason"`
	Message string `json:"message,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Reason, e.Message)
}

// JoinReasons renders errs as a single line for logs and reject files.
func JoinReasons(errs []ValidationError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}
