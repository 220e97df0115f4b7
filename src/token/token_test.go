package token_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gin-gonic/gin"

	"FoodFinder/src/token"
)

func newAuthenticator(c *qt.C, ttl time.Duration) *token.Authenticator {
	c.Helper()
	hash, err := token.HashPassword("s3cret")
	c.Assert(err, qt.IsNil)
	auth, err := token.NewAuthenticator("test-key", map[string]string{"alice": hash}, ttl)
	c.Assert(err, qt.IsNil)
	return auth
}

func newRouter(auth *token.Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/get_token", auth.GetToken)
	r.GET("/private", auth.JwtMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, token.UserFrom(c))
	})
	return r
}

func TestNewAuthenticatorValidation(t *testing.T) {
	c := qt.New(t)

	_, err := token.NewAuthenticator("", nil, time.Hour)
	c.Assert(err, qt.ErrorMatches, "auth.signing_key is not set")

	_, err = token.NewAuthenticator("k", nil, 0)
	c.Assert(err, qt.ErrorMatches, "auth.token_ttl must be positive, got 0s")
}

func TestGetToken(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "valid credentials", body: `{"username":"alice","password":"s3cret"}`, status: http.StatusOK},
		{name: "wrong password", body: `{"username":"alice","password":"nope"}`, status: http.StatusUnauthorized},
		{name: "unknown user", body: `{"username":"bob","password":"s3cret"}`, status: http.StatusUnauthorized},
		{name: "malformed body", body: `{`, status: http.StatusBadRequest},
		{name: "missing password", body: `{"username":"alice"}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			r := newRouter(newAuthenticator(c, time.Hour))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/get_token", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			c.Assert(w.Code, qt.Equals, tt.status)
			if tt.status == http.StatusOK {
				c.Assert(w.Body.String(), qt.Contains, `"token":`)
			}
		})
	}
}

func TestJwtMiddleware(t *testing.T) {
	c := qt.New(t)

	auth := newAuthenticator(c, time.Hour)
	r := newRouter(auth)

	valid, err := auth.Issue("alice")
	c.Assert(err, qt.IsNil)

	expired, err := newAuthenticator(c, time.Nanosecond).Issue("alice")
	c.Assert(err, qt.IsNil)
	time.Sleep(1100 * time.Millisecond)

	other, err := token.NewAuthenticator("other-key", nil, time.Hour)
	c.Assert(err, qt.IsNil)
	forged, err := other.Issue("alice")
	c.Assert(err, qt.IsNil)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer " + valid, status: http.StatusOK, body: "alice"},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not-a-jwt", status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + forged, status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			c.Assert(w.Code, qt.Equals, tt.status)
			if tt.body != "" {
				c.Assert(w.Body.String(), qt.Equals, tt.body)
			}
		})
	}
}
