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

func testIssuer() *Issuer {
	return NewIssuer("faceattend", "test-key", time.Minute, time.Hour)
}

func TestIssueAndParse(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("kiosk-7", RoleKiosk)
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := iss.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "kiosk-7", claims.KioskID)
	assert.Equal(t, RoleKiosk, claims.Role)

	_, err = iss.Parse(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrWrongTokenType, "refresh tokens cannot authorize requests")
}

func TestParseRejects(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("kiosk-7", RoleKiosk)
	require.NoError(t, err)

	other := NewIssuer("faceattend", "other-key", time.Minute, time.Hour)
	_, err = other.Parse(pair.AccessToken)
	assert.Error(t, err)

	wrongName := NewIssuer("someone-else", "test-key", time.Minute, time.Hour)
	_, err = wrongName.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrIssuerMismatch)

	later := testIssuer()
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = later.Parse(pair.AccessToken)
	assert.Error(t, err, "expired")
}

func TestRefresh(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("kiosk-1", RoleKiosk)
	require.NoError(t, err)

	next, err := iss.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	claims, err := iss.Parse(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "kiosk-1", claims.KioskID)

	_, err = iss.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestKioskAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := testIssuer()
	r := gin.New()
	r.GET("/who", KioskAuth(iss), func(c *gin.Context) {
		c.String(http.StatusOK, KioskID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	pair, err := iss.Issue("kiosk-3", RoleKiosk)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kiosk-3", w.Body.String())
}
