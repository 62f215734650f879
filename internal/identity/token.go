package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/deveshyaara/Healthlink-RPC-sub001/pkg/types"
)

// CallerClaims are the JWT claims a session token carries
type CallerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates session tokens that map API callers to
// enrolled ledger identities
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a token issuer with the given HMAC secret and token
// lifetime
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a session token for the enrolled caller
func (t *TokenIssuer) Issue(callerID string, role types.Role) (string, error) {
	now := time.Now()
	claims := &CallerClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   callerID,
			Issuer:    "healthlink-gateway",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", types.NewInternalError("failed to sign token", err)
	}
	return signed, nil
}

// Validate parses a session token and returns the caller id and role it
// was issued for
func (t *TokenIssuer) Validate(tokenString string) (string, types.Role, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CallerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", "", types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("failed to parse token: %v", err))
	}

	claims, ok := token.Claims.(*CallerClaims)
	if !ok || !token.Valid {
		return "", "", types.NewValidationError(types.ErrCodeInvalidInput, "invalid token claims")
	}

	role := types.Role(claims.Role)
	if !types.IsValidRole(role) {
		return "", "", types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("token carries unknown role %q", claims.Role))
	}
	return claims.Subject, role, nil
}
