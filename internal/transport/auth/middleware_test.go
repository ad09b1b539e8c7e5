package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"brokerage_ledger/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("test-secret")

type fakeRoles struct {
	role  models.Role
	err   error
	calls int
}

func (f *fakeRoles) FindRole(ctx context.Context, userID string) (models.Role, error) {
	f.calls++
	return f.role, f.err
}

func sign(t *testing.T, sub, role string, key []byte, method jwt.SigningMethod) string {
	t.Helper()
	c := Claims{Email: "agent@example.com"}
	c.AppMetadata.Role = role
	c.Subject = sub
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	tok, err := jwt.NewWithClaims(method, c).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestMiddleware_setsSessionFromClaims(t *testing.T) {
	roles := &fakeRoles{}
	a := &Authenticator{Secret: secret, Roles: roles}

	var got models.Session
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := SessionFrom(r.Context())
		if err != nil {
			t.Fatalf("expected session, got err: %v", err)
		}
		got = s
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/plans/x/ledger", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, "u-1", "admin", secret, jwt.SigningMethodHS256))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.UserID != "u-1" || got.Role != models.RoleAdmin || got.Email != "agent@example.com" {
		t.Fatalf("unexpected session %+v", got)
	}
	if roles.calls != 0 {
		t.Fatalf("role lookup should be skipped when the token carries one")
	}
}

func TestMiddleware_fallsBackToRoleLookup(t *testing.T) {
	roles := &fakeRoles{role: models.RoleTecnico}
	a := &Authenticator{Secret: secret, Roles: roles}

	s, err := a.Session(context.Background(), sign(t, "u-2", "", secret, jwt.SigningMethodHS256))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Role != models.RoleTecnico || roles.calls != 1 {
		t.Fatalf("expected tecnico from lookup, got %+v calls=%d", s, roles.calls)
	}
}

func TestMiddleware_rejectsBadTokens(t *testing.T) {
	a := &Authenticator{Secret: secret, Roles: &fakeRoles{err: errors.New("no row")}}
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not be reached")
	}))

	cases := map[string]string{
		"missing":     "",
		"wrong key":   "Bearer " + sign(t, "u-1", "admin", []byte("other"), jwt.SigningMethodHS256),
		"wrong alg":   "Bearer " + sign(t, "u-1", "admin", secret, jwt.SigningMethodHS384),
		"no role":     "Bearer " + sign(t, "u-1", "", secret, jwt.SigningMethodHS256),
		"not a token": "Bearer abc.def",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/plans/x", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
		})
	}
}

func TestMiddleware_allowsOptions(t *testing.T) {
	a := &Authenticator{Secret: secret}
	reached := false
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/plans", nil))
	if rr.Code != http.StatusNoContent || !reached {
		t.Fatalf("expected OPTIONS to pass through, got %d", rr.Code)
	}
}

func TestRequireWrite(t *testing.T) {
	h := RequireWrite(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for role, want := range map[models.Role]int{
		models.RoleSuperadmin: http.StatusOK,
		models.RoleAdmin:      http.StatusOK,
		models.RoleTecnico:    http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/plans", nil)
		req = req.WithContext(WithSession(req.Context(), models.Session{UserID: "u", Role: role}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("role %s: expected %d, got %d", role, want, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/plans", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rr.Code)
	}
}
