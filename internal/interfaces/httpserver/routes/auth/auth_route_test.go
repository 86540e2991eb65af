package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadline/internal/interfaces/httpserver/handlers/authhandler"
	"threadline/internal/interfaces/httpserver/middlewares"
	"threadline/internal/utils/platformerrors"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cookies := middlewares.NewCookies(middlewares.CookieConfig{SessionName: "tl_session", CSRFName: "tl_csrf", CSRFHeader: "X-CSRF-Token"})
	r := gin.New()
	NewAuthRoute(authhandler.NewAuthHandler(nil, cookies)).RegisterRouter(r)
	return r
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) platformerrors.Problem {
	t.Helper()
	var p platformerrors.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestLoginRejectsMissingCode(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"redirect_uri":"https://app.example/cb"}`))
	req.Header.Set("Content-Type", "application/json")
	newRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, "code", p.Details["field"])
}

func TestLoginRejectsMalformedJSON(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"code":`))
	req.Header.Set("Content-Type", "application/json")
	newRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMeRequiresSession(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "authentication required", decodeProblem(t, w).Detail)
}

func TestLogoutWithoutSessionClearsCookies(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	cleared := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		cleared[c.Name] = c.MaxAge < 0
	}
	assert.True(t, cleared["tl_session"])
	assert.True(t, cleared["tl_csrf"])
}
