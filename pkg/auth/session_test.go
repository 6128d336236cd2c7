package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestSessionStore_BindAndRead(t *testing.T) {
	store := NewSessionStore("test-secret", true)
	id := uuid.New()

	cookie := cookieFor(t, store, id)
	if cookie.Name != SessionName {
		t.Errorf("expected cookie %q, got %q", SessionName, cookie.Name)
	}
	if !cookie.HttpOnly || !cookie.Secure {
		t.Error("expected HttpOnly and Secure cookie")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Errorf("expected SameSite=Strict, got %v", cookie.SameSite)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/current", nil)
	req.AddCookie(cookie)
	got, ok := store.SessionID(req)
	if !ok || got != id {
		t.Errorf("expected %s, got %s (%v)", id, got, ok)
	}
}

func TestSessionStore_SameSecretAcrossRestarts(t *testing.T) {
	id := uuid.New()
	cookie := cookieFor(t, NewSessionStore("shared", false), id)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	if got, ok := NewSessionStore("shared", false).SessionID(req); !ok || got != id {
		t.Error("expected a new store with the same secret to read the cookie")
	}
}

func TestSessionStore_Clear(t *testing.T) {
	store := NewSessionStore("test-secret", false)
	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/current", nil)
	req.AddCookie(cookieFor(t, store, uuid.New()))
	rec := httptest.NewRecorder()

	if err := store.Clear(rec, req); err != nil {
		t.Fatalf("clear: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected an expiring cookie, got %+v", cookies)
	}
}

func TestSessionStore_NoCookie(t *testing.T) {
	if _, ok := NewSessionStore("s", false).SessionID(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Error("expected no session id")
	}
}
