package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"vaultcore/observability/logging"
)

const adminClockSkew = 2 * time.Minute

// adminAuthorizer validates HS256 tokens for the price-administration
// methods. Scopes travel in the "scope" claim, space separated or as an
// array.
type adminAuthorizer struct {
	secret []byte
}

func newAdminAuthorizer(secret string) *adminAuthorizer {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil
	}
	return &adminAuthorizer{secret: []byte(trimmed)}
}

// requireAdmin checks the Authorization header for a JWT carrying the
// vault.admin scope. Admin methods never accept the static bearer token.
func (s *Server) requireAdmin(r *http.Request) *RPCError {
	if s.admin == nil {
		return &RPCError{Code: codeUnauthorized, Message: "admin authentication not configured"}
	}
	token := extractBearer(r.Header.Get("Authorization"))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	claims, err := s.admin.parseToken(token)
	if err != nil {
		s.logger.Warn("admin token rejected", "error", err, logging.MaskField("token", token))
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	if !hasScopes(extractScopes(claims), []string{adminScope}) {
		return &RPCError{Code: codeUnauthorized, Message: "insufficient scope"}
	}
	return nil
}

func (a *adminAuthorizer) parseToken(tokenString string) (jwt.MapClaims, error) {
	if a == nil || len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(adminClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func extractScopes(claims jwt.MapClaims) []string {
	raw, ok := claims["scope"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		return strings.Fields(trimmed)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
