package httpserver

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionCookie carries the submission's workspace id from /submit to /result
	SessionCookie = "glidein_session"
	// SessionLifetime bounds how long a result link can be fetched through the session
	SessionLifetime = 24 * time.Hour

	sessionIssuer = "glidein-submit-web"
	keyLength     = 32
)

var errNoSession = errors.New("no submission session")

// GenerateSigningKey generates a new random session signing key
func GenerateSigningKey() ([]byte, error) {
	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return key, nil
}

// LoadSigningKey reads a session key file. Surrounding whitespace is ignored.
func LoadSigningKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session key: %w", err)
	}
	key := []byte(strings.TrimSpace(string(data)))
	if len(key) < 16 {
		return nil, fmt.Errorf("session key %s is too short", path)
	}
	return key, nil
}

// SessionSigner issues and checks HS256 session tokens whose subject is a workspace id
type SessionSigner struct {
	key []byte
	now func() time.Time
}

// NewSessionSigner creates a signer for key
func NewSessionSigner(key []byte) *SessionSigner {
	return &SessionSigner{key: key, now: time.Now}
}

// Issue returns a signed token for workspaceID
func (s *SessionSigner) Issue(workspaceID string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   workspaceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(SessionLifetime)),
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns its workspace id
func (s *SessionSigner) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("invalid session: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("invalid session: no workspace")
	}
	return claims.Subject, nil
}

// setSession attaches a session cookie for workspaceID to the response
func (s *Server) setSession(w http.ResponseWriter, r *http.Request, workspaceID string) error {
	token, err := s.sessions.Issue(workspaceID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionLifetime.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// sessionWorkspace returns the workspace id in the request's session cookie
func (s *Server) sessionWorkspace(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", errNoSession
	}
	return s.sessions.Verify(cookie.Value)
}
