package platformerrors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const ProblemContentType = "application/problem+json"

// Problem is an RFC 7807 problem document.
type Problem struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Status    int            `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	Instance  string         `json:"instance,omitempty"`
	Code      string         `json:"code,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// detail keys that are safe to expose to clients.
var publicDetailKeys = map[string]struct{}{
	"retry_after_seconds": {},
	"sqlstate":            {},
	"field":               {},
	"limit":               {},
	"message_id":          {},
}

// NewProblem converts a PlatformError into a problem document.
func NewProblem(err *PlatformError, instance string) Problem {
	status := ErrorTypeToHTTPStatus(err.Type)
	problem := Problem{
		Type:      "about:blank#" + strings.ToLower(string(err.Type)),
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    RootMessage(err),
		Instance:  instance,
		Code:      err.UUID,
		RequestID: err.RequestID,
	}

	// Session and auth failures are uniform: no internal reason leaks.
	if status == http.StatusUnauthorized {
		problem.Type = "about:blank#unauthorized"
		problem.Detail = "authentication required"
		problem.Code = ""
		return problem
	}
	if status >= http.StatusInternalServerError && err.Type != ErrorTypeServiceUnavailable {
		problem.Detail = "internal error"
	}

	for k, v := range collectContext(err) {
		if _, ok := publicDetailKeys[k]; !ok {
			continue
		}
		if problem.Details == nil {
			problem.Details = make(map[string]any)
		}
		problem.Details[k] = v
	}
	return problem
}

func collectContext(err *PlatformError) map[string]any {
	merged := make(map[string]any)
	for cur := err; cur != nil; cur = GetPlatformError(cur.Err) {
		for k, v := range cur.Context {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
		if cur.Err == nil {
			break
		}
	}
	return merged
}

// WriteProblem renders err as application/problem+json and aborts the gin chain.
func WriteProblem(c *gin.Context, err error, log zerolog.Logger) {
	platformErr := GetPlatformError(err)
	if platformErr == nil {
		platformErr = NewError(c.Request.Context(), LayerHandler, ErrorTypeInternal, "unexpected error", err, "")
	}
	if platformErr.RequestID == "" {
		platformErr.RequestID = RequestIDFromContext(c.Request.Context())
	}
	LogError(log, platformErr)

	problem := NewProblem(platformErr, c.Request.URL.Path)
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", ProblemContentType)
	c.AbortWithStatusJSON(problem.Status, problem)
}
