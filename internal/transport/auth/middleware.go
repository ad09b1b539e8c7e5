package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"brokerage_ledger/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

type ctxKey string

const sessionKey ctxKey = "session"

type RoleFinder interface {
	FindRole(ctx context.Context, userID string) (models.Role, error)
}

type Claims struct {
	Email       string `json:"email"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Authenticator turns a bearer token into a models.Session. Roles missing from
// the token are looked up in the database and cached in redis when a client
// is configured.
type Authenticator struct {
	Secret   []byte
	Roles    RoleFinder
	Cache    *redis.Client
	CacheTTL time.Duration
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		raw := bearer(r)
		if raw == "" {
			unauthorized(w, "authorization token not provided")
			return
		}

		s, err := a.Session(r.Context(), raw)
		if err != nil {
			log.Printf("[AUTH][ERR] %v", err)
			unauthorized(w, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// Session validates the token and resolves the user's role.
func (a *Authenticator) Session(ctx context.Context, raw string) (models.Session, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Session{}, err
	}
	if claims.Subject == "" {
		return models.Session{}, errors.New("token has no subject")
	}

	s := models.Session{UserID: claims.Subject, Email: claims.Email}
	if role, err := models.ParseRole(claims.AppMetadata.Role); err == nil {
		s.Role = role
		return s, nil
	}

	role, err := a.lookupRole(ctx, claims.Subject)
	if err != nil {
		return models.Session{}, fmt.Errorf("role of %s: %w", claims.Subject, err)
	}
	s.Role = role
	return s, nil
}

func (a *Authenticator) lookupRole(ctx context.Context, userID string) (models.Role, error) {
	key := "user:" + userID + ":role"
	if a.Cache != nil {
		v, err := a.Cache.Get(ctx, key).Result()
		if err == nil {
			if role, perr := models.ParseRole(v); perr == nil {
				return role, nil
			}
			log.Printf("[AUTH][CACHE][WARN] bad cached role user=%s value=%q", userID, v)
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("[AUTH][CACHE][ERR] get user=%s: %v", userID, err)
		}
	}

	if a.Roles == nil {
		return "", errors.New("no role source configured")
	}
	found, err := a.Roles.FindRole(ctx, userID)
	if err != nil {
		return "", err
	}
	role, err := models.ParseRole(string(found))
	if err != nil {
		return "", err
	}

	if a.Cache != nil {
		ttl := a.CacheTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		if err := a.Cache.Set(ctx, key, string(role), ttl).Err(); err != nil {
			log.Printf("[AUTH][CACHE][ERR] set user=%s: %v", userID, err)
		}
	}
	return role, nil
}

// RequireWrite rejects sessions whose role cannot change ledger data.
func RequireWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := SessionFrom(r.Context())
		if err != nil {
			unauthorized(w, err.Error())
			return
		}
		if !s.Role.CanWrite() {
			writeJSON(w, http.StatusForbidden, "role "+string(s.Role)+" cannot modify payment plans")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFrom(ctx context.Context) (models.Session, error) {
	s, ok := ctx.Value(sessionKey).(models.Session)
	if !ok || s.UserID == "" {
		return models.Session{}, errors.New("session not found in context")
	}
	return s, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(tok)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, msg)
}

func writeJSON(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "message": msg})
}
