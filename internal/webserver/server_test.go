package webserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/packflow/config"
)

const testSecret = "test-secret"

func newTestServer() *AdminServer {
	cfg := *config.DefaultAppConfig
	cfg.Web.Secret = testSecret
	Init(&cfg, "ctx-value")
	ApiGET("/whoami", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"user": CurrentOpr(c).Username,
			"ctx":  c.Get(AppContextKey),
		})
	})
	ApiPUT("/dispatch-only", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, RequireRoles("dispatch"))
	ApiPOST("/auth/login", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	return server
}

func do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	Echo().ServeHTTP(rec, req)
	return rec
}

func TestTokenRoundTrip(t *testing.T) {
	tok, err := IssueToken(testSecret, "asha", "production", time.Hour)
	require.NoError(t, err)
	claims, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, "asha", claims.Username)
	assert.Equal(t, "production", claims.Role)

	_, err = ParseToken("other", tok)
	assert.Error(t, err)

	expired, err := IssueToken(testSecret, "asha", "production", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, expired)
	assert.Error(t, err)
}

func TestMissingTokenIsUnauthorizedEnvelope(t *testing.T) {
	newTestServer()
	rec := do(t, http.MethodGet, ApiPrefix+"/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"code":"UNAUTHORIZED","message":"invalid or expired token"}`, rec.Body.String())

	rec = do(t, http.MethodGet, ApiPrefix+"/whoami", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginIsPublic(t *testing.T) {
	newTestServer()
	rec := do(t, http.MethodPost, ApiPrefix+"/auth/login", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthenticatedRequest(t *testing.T) {
	newTestServer()
	tok, err := IssueToken(testSecret, "ravi", "sales", time.Hour)
	require.NoError(t, err)

	rec := do(t, http.MethodGet, ApiPrefix+"/whoami", tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"ravi","ctx":"ctx-value"}`, rec.Body.String())
}

func TestRequireRoles(t *testing.T) {
	newTestServer()
	sales, _ := IssueToken(testSecret, "ravi", "sales", time.Hour)
	dispatch, _ := IssueToken(testSecret, "meera", "dispatch", time.Hour)
	admin, _ := IssueToken(testSecret, "root", "admin", time.Hour)

	assert.Equal(t, http.StatusForbidden, do(t, http.MethodPut, ApiPrefix+"/dispatch-only", sales).Code)
	assert.Equal(t, http.StatusNoContent, do(t, http.MethodPut, ApiPrefix+"/dispatch-only", dispatch).Code)
	assert.Equal(t, http.StatusNoContent, do(t, http.MethodPut, ApiPrefix+"/dispatch-only", admin).Code)
}

func TestPing(t *testing.T) {
	newTestServer()
	rec := do(t, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
