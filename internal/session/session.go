// Package session derives an immutable patient session from each request and hands
// it to handlers explicitly through the request context.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("session: missing token")
	ErrInvalidToken = errors.New("session: invalid token")
	ErrExpired      = errors.New("session: token expired")
)

// Session is a read-only snapshot of the authenticated patient for one request.
type Session struct {
	token     string
	patientID string
	expiresAt time.Time
}

// New builds a session snapshot. Intended for tests and internal wiring.
func New(token, patientID string, expiresAt time.Time) Session {
	return Session{token: token, patientID: patientID, expiresAt: expiresAt}
}

// Token is the raw bearer token forwarded to the booking backend.
func (s Session) Token() string { return s.token }

// PatientID identifies the patient; it scopes per-patient state such as booking selections.
func (s Session) PatientID() string { return s.patientID }

// ExpiresAt is zero when the token carries no expiry.
func (s Session) ExpiresAt() time.Time { return s.expiresAt }

// patientClaims matches tokens minted by the backend ({"id": "<user id>"}).
type patientClaims struct {
	PatientID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Parser turns bearer tokens into sessions.
type Parser struct {
	secret []byte
	now    func() time.Time
}

// NewParser verifies HMAC signatures when secret is set. Without a secret tokens are
// decoded unverified; the backend stays the authority on every forwarded call.
func NewParser(secret string) *Parser {
	p := &Parser{now: time.Now}
	if secret != "" {
		p.secret = []byte(secret)
	}
	return p
}

// WithClock overrides the time source used for expiry checks.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	if now != nil {
		p.now = now
	}
	return p
}

// Parse validates token and returns the session it describes.
func (p *Parser) Parse(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrMissingToken
	}

	claims := patientClaims{}
	if p.secret != nil {
		parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return p.secret, nil
		}, jwt.WithTimeFunc(p.now))
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrExpired
		}
		if err != nil || !parsed.Valid {
			return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
			return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
		if !p.now().Before(expiresAt) {
			return Session{}, ErrExpired
		}
	}

	patientID := claims.PatientID
	if patientID == "" {
		patientID = claims.Subject
	}
	if patientID == "" {
		return Session{}, fmt.Errorf("%w: no patient id claim", ErrInvalidToken)
	}
	return New(token, patientID, expiresAt), nil
}

type contextKey string

const sessionKey contextKey = "patientSession"

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the request's session if one was established.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// TokenFromRequest reads the patient token from the "token" header the web client
// sends, falling back to an Authorization bearer token.
func TokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("token")); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// Middleware attaches a session when the request carries a usable token. Anonymous
// requests pass through; a token that fails to parse is rejected.
func Middleware(p *Parser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			s, err := p.Parse(token)
			if err != nil {
				http.Error(w, `{"error": "invalid session"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// Require rejects requests without a session.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			http.Error(w, `{"error": "login required"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
