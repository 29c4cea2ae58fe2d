package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/example/railbot/internal/conversation"
	"github.com/example/railbot/internal/internaltypes"
	"github.com/example/railbot/internal/rail"
	"github.com/example/railbot/internal/slots"
	"go.uber.org/zap"
)

type fakeReleaser struct {
	channels []string
	all      int
}

func (f *fakeReleaser) ReleaseChannel(ctx context.Context, channelID string) (*conversation.Message, error) {
	f.channels = append(f.channels, channelID)
	return &conversation.Message{Text: "Released " + channelID}, nil
}

func (f *fakeReleaser) ReleaseAll() (int, int) {
	f.all++
	return 2, 1
}

func newTestServer(t *testing.T) (*Server, *fakeReleaser) {
	t.Helper()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	sm := slots.NewManager(3)
	sm.Acquire(7, "owner-1", "555", rail.SRT)
	rel := &fakeReleaser{}
	return &Server{
		Auth:         NewSessions([]byte(strings.Repeat("h", 32)), []byte(strings.Repeat("b", 32))),
		PasswordHash: hash,
		Slots:        sm,
		Releaser:     rel,
		Log:          zap.NewNop(),
	}, rel
}

func login(t *testing.T, h http.Handler, pw string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"password": {pw}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func withCookies(req *http.Request, rr *httptest.ResponseRecorder) *http.Request {
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestHomeRequiresLogin(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
		t.Fatalf("status = %d location = %q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name   string
		pw     string
		status int
		cookie bool
	}{
		{"correct password", "s3cret", http.StatusFound, true},
		{"wrong password", "nope", http.StatusUnauthorized, false},
		{"empty password", "", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			rr := login(t, s.Routes(), tt.pw)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if got := len(rr.Result().Cookies()) > 0; got != tt.cookie {
				t.Fatalf("cookie set = %v, want %v", got, tt.cookie)
			}
		})
	}
}

func TestHomeListsSlots(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	auth := login(t, h, "s3cret")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withCookies(httptest.NewRequest(http.MethodGet, "/", nil), auth))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"1 of 3 in use", "owner-1", "555", "SRT"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q", want)
		}
	}
}

func TestRelease(t *testing.T) {
	s, rel := newTestServer(t)
	h := s.Routes()
	auth := login(t, h, "s3cret")

	form := url.Values{"channel_id": {"<#555>"}}
	req := httptest.NewRequest(http.MethodPost, "/slots/release", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withCookies(req, auth))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(rel.channels) != 1 || rel.channels[0] != "555" {
		t.Fatalf("released = %v", rel.channels)
	}
	if !strings.Contains(rr.Body.String(), "Released 555") {
		t.Fatalf("flash missing")
	}

	bad := url.Values{"channel_id": {"general"}}
	req = httptest.NewRequest(http.MethodPost, "/slots/release", strings.NewReader(bad.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, withCookies(req, auth))
	if rr.Code != http.StatusBadRequest || len(rel.channels) != 1 {
		t.Fatalf("status = %d released = %v", rr.Code, rel.channels)
	}
}

func TestReleaseAll(t *testing.T) {
	s, rel := newTestServer(t)
	h := s.Routes()
	auth := login(t, h, "s3cret")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withCookies(httptest.NewRequest(http.MethodGet, "/slots/release-all", nil), auth))
	if rr.Code != http.StatusMethodNotAllowed || rel.all != 0 {
		t.Fatalf("GET status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, withCookies(httptest.NewRequest(http.MethodPost, "/slots/release-all", nil), auth))
	if rr.Code != http.StatusOK || rel.all != 1 {
		t.Fatalf("POST status = %d calls = %d", rr.Code, rel.all)
	}
}

func TestSessionExpires(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Routes()
	auth := login(t, h, "s3cret")

	s.Auth.now = func() time.Time { return time.Now().Add(sessionTTL + time.Minute) }
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withCookies(httptest.NewRequest(http.MethodGet, "/", nil), auth))
	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want redirect", rr.Code)
	}
}

func TestLogout(t *testing.T) {
	s, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/logout", nil))
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("cookies = %+v", cookies)
	}
}

func TestAuthenticate(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.authenticate("s3cret"); err != nil {
		t.Fatalf("authenticate() error = %v", err)
	}
	if err := s.authenticate("nope"); !errors.Is(err, internaltypes.ErrUnauthorized) {
		t.Fatalf("authenticate() error = %v, want ErrUnauthorized", err)
	}
	s.PasswordHash = ""
	if err := s.authenticate(""); !errors.Is(err, internaltypes.ErrUnauthorized) {
		t.Fatalf("authenticate() with no hash error = %v, want ErrUnauthorized", err)
	}
}
