package platformerrors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypeToHTTPStatus(t *testing.T) {
	cases := map[ErrorType]int{
		ErrorTypeValidation:         http.StatusBadRequest,
		ErrorTypeUnauthorized:       http.StatusUnauthorized,
		ErrorTypeExpired:            http.StatusUnauthorized,
		ErrorTypeForbidden:          http.StatusForbidden,
		ErrorTypeNotFound:           http.StatusNotFound,
		ErrorTypeConflict:           http.StatusConflict,
		ErrorTypeUnprocessable:      http.StatusUnprocessableEntity,
		ErrorTypeRateLimited:        http.StatusTooManyRequests,
		ErrorTypeInternal:           http.StatusInternalServerError,
		ErrorTypeDatabaseError:      http.StatusInternalServerError,
		ErrorTypeServiceUnavailable: http.StatusServiceUnavailable,
	}
	for errorType, want := range cases {
		assert.Equal(t, want, ErrorTypeToHTTPStatus(errorType), errorType)
	}
}

func TestAsErrorKeepsTypeAndCode(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	inner := NewErrorWithContext(ctx, LayerRepository, ErrorTypeConflict, "duplicate", nil, "code-1", map[string]any{"sqlstate": "23505"})

	wrapped := AsError(ctx, LayerDomain, inner, "create membership")
	require.NotNil(t, wrapped)
	assert.Equal(t, ErrorTypeConflict, wrapped.Type)
	assert.Equal(t, "code-1", wrapped.UUID)
	assert.Equal(t, "req-1", wrapped.RequestID)
	assert.Equal(t, "23505", wrapped.Context["sqlstate"])
	assert.True(t, IsErrorType(wrapped, ErrorTypeConflict))
	assert.Equal(t, "duplicate", RootMessage(wrapped))
}

func TestAsErrorPlainErrors(t *testing.T) {
	assert.Nil(t, AsError(context.Background(), LayerDomain, nil, "noop"))
	assert.Equal(t, ErrorTypeInternal, AsError(context.Background(), LayerDomain, errors.New("boom"), "x").Type)
	assert.Equal(t, ErrorTypeTimeout, AsError(context.Background(), LayerDomain, context.DeadlineExceeded, "x").Type)
}

func TestNewProblemHidesAuthReasons(t *testing.T) {
	err := NewError(context.Background(), LayerDomain, ErrorTypeExpired, "session expired at 10:00", nil, "sess-exp")
	problem := NewProblem(err, "/auth/me")
	assert.Equal(t, http.StatusUnauthorized, problem.Status)
	assert.Equal(t, "authentication required", problem.Detail)
	assert.Empty(t, problem.Code)
}

func TestNewProblemExposesPublicDetailsOnly(t *testing.T) {
	err := NewErrorWithContext(context.Background(), LayerHandler, ErrorTypeRateLimited, "slow down", nil, "rl",
		map[string]any{"retry_after_seconds": 2, "identity": "10.0.0.1"})
	problem := NewProblem(err, "/auth/login")
	assert.Equal(t, http.StatusTooManyRequests, problem.Status)
	assert.Equal(t, 2, problem.Details["retry_after_seconds"])
	assert.NotContains(t, problem.Details, "identity")
}

func TestWriteProblem(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/threads/x/tree", nil)

	WriteProblem(c, NewError(c.Request.Context(), LayerDomain, ErrorTypeNotFound, "thread not found", nil, "nf"), zerolog.Nop())

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, ProblemContentType, recorder.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", recorder.Header().Get("Cache-Control"))

	var body Problem
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "thread not found", body.Detail)
	assert.Equal(t, "/threads/x/tree", body.Instance)
	assert.True(t, c.IsAborted())
}
