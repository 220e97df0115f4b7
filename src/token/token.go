package token

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// userKey is the gin context key holding the authenticated username.
const userKey = "user"

type User struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Authenticator checks credentials against bcrypt hashes and issues HS256
// bearer tokens.
type Authenticator struct {
	signingKey []byte
	users      map[string]string
	ttl        time.Duration
	logger     *slog.Logger
}

func NewAuthenticator(signingKey string, users map[string]string, ttl time.Duration) (*Authenticator, error) {
	if signingKey == "" {
		return nil, errors.New("auth.signing_key is not set")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("auth.token_ttl must be positive, got %s", ttl)
	}
	return &Authenticator{
		signingKey: []byte(signingKey),
		users:      users,
		ttl:        ttl,
		logger:     slog.Default(),
	}, nil
}

// WithLogger sets the logger for the authenticator
func (a *Authenticator) WithLogger(l *slog.Logger) *Authenticator {
	tmp := *a
	tmp.logger = l
	return &tmp
}

func (a *Authenticator) Issue(username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"exp":      time.Now().Add(a.ttl).Unix(),
	})
	return token.SignedString(a.signingKey)
}

// Parse validates a token and returns the username it was issued for.
func (a *Authenticator) Parse(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	username, _ := claims["username"].(string)
	if username == "" {
		return "", errors.New("token carries no username")
	}
	return username, nil
}

func (a *Authenticator) GetToken(c *gin.Context) {
	var user User
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	storedPassword, ok := a.users[user.Username]
	if !ok || !checkPasswordHash(user.Password, storedPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	tokenString, err := a.Issue(user.Username)
	if err != nil {
		a.logger.ErrorContext(c.Request.Context(), "Failed to sign token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": tokenString})
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (a *Authenticator) JwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Forbidden"})
			return
		}

		username, err := a.Parse(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			a.logger.InfoContext(c.Request.Context(), "Rejected bearer token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Forbidden"})
			return
		}

		c.Set(userKey, username)
		c.Next()
	}
}

// UserFrom returns the username set by JwtMiddleware, or "" on public routes.
func UserFrom(c *gin.Context) string {
	return c.GetString(userKey)
}
