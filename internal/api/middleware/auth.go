// Package middleware holds the gin middleware shared by the API modules
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethanbaker/agentlink/pkg/flow"
	"github.com/ethanbaker/agentlink/pkg/sdk"
	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	// SessionCookie carries the user JWT for browser requests
	SessionCookie = "session"

	emailClaim = "email"
	userKey    = "agentlink.user"
)

var ErrMissingToken = errors.New("missing bearer token")

// Authenticator verifies HS256 user tokens
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator for the shared secret
func NewAuthenticator(secret string) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("AUTH_JWT_SECRET not set in environment")
	}
	return &Authenticator{secret: []byte(secret)}, nil
}

// Sign issues a token for user valid for ttl
func (a *Authenticator) Sign(user flow.User, ttl time.Duration) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		Subject(user.ID).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(emailClaim, user.Email).
		Build()
	if err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, a.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Parse verifies a raw token and returns the user it names
func (a *Authenticator) Parse(raw string) (*flow.User, error) {
	token, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, a.secret), jwt.WithValidate(true))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	user := &flow.User{ID: token.Subject()}
	if user.ID == "" {
		return nil, errors.New("invalid token: missing subject")
	}

	if value, ok := token.Get(emailClaim); ok {
		user.Email, _ = value.(string)
	}
	return user, nil
}

func tokenFromRequest(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return "", ErrMissingToken
		}
		return strings.TrimSpace(raw), nil
	}

	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, nil
	}
	return "", ErrMissingToken
}

// Handler rejects requests without a valid user token
func (a *Authenticator) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(sdk.NewFailResponse(http.StatusUnauthorized, "Authentication required").AsGinResponse())
			return
		}

		user, err := a.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(sdk.NewFailResponse(http.StatusUnauthorized, "Authentication required").AsGinResponse())
			return
		}

		c.Set(userKey, *user)
		c.Next()
	}
}

// CurrentUser returns the user set by Handler
func CurrentUser(c *gin.Context) (flow.User, bool) {
	value, ok := c.Get(userKey)
	if !ok {
		return flow.User{}, false
	}
	user, ok := value.(flow.User)
	return user, ok
}
