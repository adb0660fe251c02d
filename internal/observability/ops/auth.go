package ops

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid bearer token")
)

// authenticate accepts "Authorization: Bearer <token>" or "?token=<token>",
// where the token is either the static Token or an HS256 JWT signed with
// JWTSecret.
func (s *Server) authenticate(next http.Handler) http.Handler {
	if s.cfg.Token == "" && s.cfg.JWTSecret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.verify(bearer(r)); err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) string {
	if got := r.URL.Query().Get("token"); got != "" {
		return got
	}
	const p = "Bearer "
	ah := r.Header.Get("Authorization")
	if !strings.HasPrefix(ah, p) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(ah, p))
}

func (s *Server) verify(token string) error {
	if token == "" {
		return errMissingToken
	}
	if s.cfg.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) == 1 {
		return nil
	}
	if s.cfg.JWTSecret == "" {
		return errInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})}
	if s.cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.JWTIssuer))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if !parsed.Valid {
		return errInvalidToken
	}
	return nil
}
