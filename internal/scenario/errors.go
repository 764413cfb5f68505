package scenario

import (
	"fmt"

	"github.com/permlug/digestload/internal/metrics"
)

// RequestError describes a failed step: a non-200 response (StatusCode and
// Body set) or a request that never produced one (Err set).
type RequestError struct {
	Tag        metrics.Tag
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Tag, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Tag, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.Tag, e.StatusCode)
}

func (e *RequestError) Unwrap() error { return e.Err }
