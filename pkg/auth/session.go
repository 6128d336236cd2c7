package auth

import (
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// SessionName is the name of the operator session cookie.
const SessionName = "intake-session"

// SessionKeyID holds the operator session id inside the cookie.
const SessionKeyID = "session_id"

// DefaultSessionMaxAge matches a working shift.
const DefaultSessionMaxAge = 12 * 60 * 60

// SessionStore keeps the operator session id in a signed cookie. The
// connection and identity stay server side in the session service.
type SessionStore struct {
	store *sessions.CookieStore
}

// NewSessionStore creates a cookie store signed with secret. The secret can be
// any passphrase; it is SHA-256 hashed to derive a 32-byte key and must be the
// same across restarts for cookies to survive them.
//
// Cookies are HttpOnly and SameSite=Strict. secure restricts them to HTTPS.
func NewSessionStore(secret string, secure bool) *SessionStore {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   DefaultSessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
	return &SessionStore{store: store}
}

// SessionID returns the session id carried by the request cookie.
func (s *SessionStore) SessionID(r *http.Request) (uuid.UUID, bool) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return uuid.Nil, false
	}
	raw, ok := session.Values[SessionKeyID].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Bind writes a cookie carrying id.
func (s *SessionStore) Bind(w http.ResponseWriter, r *http.Request, id uuid.UUID) error {
	// Get returns a fresh session alongside a decode error for stale cookies.
	session, _ := s.store.Get(r, SessionName)
	session.Values[SessionKeyID] = id.String()
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("save session cookie: %w", err)
	}
	return nil
}

// Clear expires the cookie.
func (s *SessionStore) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, SessionName)
	delete(session.Values, SessionKeyID)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("clear session cookie: %w", err)
	}
	return nil
}
