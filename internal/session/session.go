package session

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/hlog"
)

// CookieName is the cookie carrying the signed session token.
const CookieName = "session"

// SignInPath is where unauthenticated visitors are sent.
const SignInPath = "/signin"

// User is the signed-in visitor. An empty Username means nobody is signed in.
type User struct {
	Username string
}

// Manager issues and verifies HS256 session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	adminUser     string
	adminPassword string
}

// NewManager creates a session manager. Credentials checks succeed only for
// adminUser/adminPassword; an empty password disables sign-in.
func NewManager(secret string, ttl time.Duration, adminUser, adminPassword string) *Manager {
	return &Manager{
		secret:        []byte(secret),
		ttl:           ttl,
		now:           time.Now,
		adminUser:     adminUser,
		adminPassword: adminPassword,
	}
}

// Issue mints a token for username.
func (m *Manager) Issue(username string) (string, error) {
	if username == "" {
		return "", errors.New("username required")
	}

	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its user.
func (m *Manager) Parse(tokenStr string) (User, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return User{}, err
	}
	return User{Username: claims.Subject}, nil
}

// Current resolves the user of r. Any problem with the cookie yields User{}.
func (m *Manager) Current(r *http.Request) User {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return User{}
	}

	user, err := m.Parse(cookie.Value)
	if err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("rejected session token")
		return User{}
	}
	return user
}

// RequireUser redirects to the sign-in page unless a user is signed in.
func (m *Manager) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")

		if m.Current(r).Username == "" {
			http.Redirect(w, r, SignInPath, http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// CheckCredentials reports whether username/password match the admin account.
func (m *Manager) CheckCredentials(username, password string) bool {
	if m.adminPassword == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(m.adminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(m.adminPassword)) == 1
	return userOK && passOK
}

// SetCookie stores token in the session cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
