package auth

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenCookie carries a JWT when the Authorization header is unavailable,
// as is the case for browser WebSocket handshakes.
const DefaultAccessTokenCookie = "access_token"

// Claims represents JWT claims issued by the auth service.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// GenerateToken creates a new JWT token for the given user.
func GenerateToken(cfg *JWTConfig, userID, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a JWT token.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}

	return claims, nil
}

// JWTResolver authenticates bearer tokens from the Authorization header or a cookie.
type JWTResolver struct {
	cfg    *JWTConfig
	cookie string
}

// NewJWTResolver builds a resolver; cookie defaults to DefaultAccessTokenCookie.
func NewJWTResolver(cfg *JWTConfig, cookie string) *JWTResolver {
	if cookie == "" {
		cookie = DefaultAccessTokenCookie
	}
	return &JWTResolver{cfg: cfg, cookie: cookie}
}

// Resolve implements Resolver.
func (r *JWTResolver) Resolve(_ context.Context, req *stdhttp.Request) (Identity, error) {
	token := bearerToken(req)
	if token == "" {
		if c, err := req.Cookie(r.cookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return Identity{}, ErrNoCredentials
	}

	claims, err := ValidateToken(r.cfg, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	name := claims.Name
	if name == "" {
		name = claims.UserID
	}
	return Identity{ID: claims.UserID, Name: name}, nil
}

func bearerToken(req *stdhttp.Request) string {
	header := req.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
