package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotContains(t, hash, "hunter2")

	assert.True(t, VerifyPassword("hunter2", hash))
	assert.False(t, VerifyPassword("hunter3", hash))
	assert.False(t, VerifyPassword("hunter2", "garbage"))
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := HashPassword("same")
	require.NoError(t, err)
	h2, err := HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestIssueAndVerifyToken(t *testing.T) {
	issuer := NewIssuer("test-secret", 0)

	token, err := issuer.Issue(42, "user@example.com")
	require.NoError(t, err)

	userID, claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.WithinDuration(t, time.Now().Add(TokenTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewIssuer("secret-a", 0).Issue(1, "a@example.com")
	require.NoError(t, err)

	_, _, err = NewIssuer("secret-b", 0).Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("test-secret", -time.Hour)
	token, err := issuer.Issue(1, "a@example.com")
	require.NoError(t, err)

	_, _, err = issuer.Verify(token)
	assert.Error(t, err)
}

func newAuthRouter(issuer *Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", issuer.Middleware(), func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
	return r
}

func TestMiddlewareAcceptsBearerHeader(t *testing.T) {
	issuer := NewIssuer("test-secret", 0)
	token, err := issuer.Issue(7, "x@example.com")
	require.NoError(t, err)

	r := newAuthRouter(issuer)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":7`)
}

func TestMiddlewareAcceptsTokenQueryParam(t *testing.T) {
	issuer := NewIssuer("test-secret", 0)
	token, err := issuer.Issue(7, "x@example.com")
	require.NoError(t, err)

	r := newAuthRouter(issuer)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareRejectsMissingAndInvalidTokens(t *testing.T) {
	r := newAuthRouter(NewIssuer("test-secret", 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
