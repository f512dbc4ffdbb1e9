package webserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

const userContextKey = "user"

// publicPaths skip token verification
var publicPaths = map[string]bool{
	ApiPrefix + "/auth/login": true,
}

// OprClaims is the token payload of a logged in operator
type OprClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for the operator valid for expire
func IssueToken(secret, username, role string, expire time.Duration) (string, error) {
	now := time.Now()
	claims := OprClaims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expire)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies a signed token and returns its claims
func ParseToken(secret, tokenString string) (*OprClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OprClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*OprClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func jwtMiddleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey: userContextKey,
		Skipper: func(c echo.Context) bool {
			return publicPaths[c.Path()]
		},
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return ParseToken(secret, auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		},
	})
}

// CurrentOpr returns the claims of the authenticated operator, nil when anonymous
func CurrentOpr(c echo.Context) *OprClaims {
	claims, _ := c.Get(userContextKey).(*OprClaims)
	return claims
}

// RequireRoles rejects operators whose role is not listed. admin always passes.
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := CurrentOpr(c)
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "login required")
			}
			if claims.Role == "admin" {
				return next(c)
			}
			for _, r := range roles {
				if claims.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "operator role not allowed")
		}
	}
}
