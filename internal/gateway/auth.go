package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joao-fontenele/shopflow/internal/httpx"
)

var errInvalidToken = errors.New("invalid or expired token")

// Claims is the identity carried by bearer tokens issued to shoppers and
// operators.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	logger *slog.Logger
}

func NewAuthenticator(secret string, logger *slog.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), logger: logger}
}

// Issue signs a token for userID valid for ttl.
func (a *Authenticator) Issue(userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	if claims.UserID <= 0 {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Middleware replaces any client-supplied identity headers with the identity
// proven by the bearer token. Requests without a token pass through
// anonymous; a token that fails verification is rejected.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(httpx.HeaderUserID)
		r.Header.Del(httpx.HeaderUserRole)

		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			httpx.WriteJSON(w, a.logger, http.StatusUnauthorized, map[string]string{"error": "malformed authorization header"})
			return
		}

		claims, err := a.Parse(strings.TrimSpace(raw))
		if err != nil {
			httpx.WriteJSON(w, a.logger, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}

		r.Header.Set(httpx.HeaderUserID, strconv.FormatInt(claims.UserID, 10))
		if claims.Role != "" {
			r.Header.Set(httpx.HeaderUserRole, claims.Role)
		}
		next.ServeHTTP(w, r)
	})
}
