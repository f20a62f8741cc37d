// Package auth resolves the caller's identity from a bearer token and guards
// routes by role.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// Claims is the token payload. Subject carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	Skipper    middleware.Skipper
}

type identityKey struct{}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func setIdentity(c echo.Context, id Identity) {
	c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
}

func validRole(role string) bool {
	switch role {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// websocket upgrades, so access_token is accepted as a query parameter too.
func bearerToken(c echo.Context) (string, *echo.HTTPError) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		if tok := c.QueryParam("access_token"); tok != "" {
			return tok, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tok) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(tok), nil
}

// ParseToken validates an HS256 token and returns the identity it carries.
func ParseToken(cfg JWTConfig, tokenStr string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil || !validRole(claims.Role) {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return Identity{UserID: uid, Role: claims.Role}, nil
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			tok, herr := bearerToken(c)
			if herr != nil {
				return herr
			}
			id, err := ParseToken(cfg, tok)
			if err != nil {
				return err
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

// DevUserID is the identity assumed by DevAuthMiddleware when no user header
// is sent.
var DevUserID = uuid.MustParse("00000000-0000-0000-0000-00000000d0c0")

// DevAuthMiddleware trusts X-Dev-User-ID and X-Dev-Role headers, defaulting
// to an admin. A bearer token, when present, is still validated.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	jwtMW := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withJWT := jwtMW(next)
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			if c.Request().Header.Get("Authorization") != "" || c.QueryParam("access_token") != "" {
				return withJWT(c)
			}

			id := Identity{UserID: DevUserID, Role: RoleAdmin}
			if raw := c.Request().Header.Get("X-Dev-User-ID"); raw != "" {
				uid, err := uuid.Parse(raw)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid X-Dev-User-ID")
				}
				id.UserID = uid
			}
			if role := c.Request().Header.Get("X-Dev-Role"); role != "" {
				if !validRole(role) {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid X-Dev-Role")
				}
				id.Role = role
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}
