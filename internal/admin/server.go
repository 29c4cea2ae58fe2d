// Package admin serves the operator console: a password-protected page that
// shows the booking slots and can force-release them.
package admin

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/example/railbot/internal/bot"
	"github.com/example/railbot/internal/conversation"
	"github.com/example/railbot/internal/internaltypes"
	"github.com/example/railbot/internal/slots"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var fs embed.FS

// Releaser frees booking slots. *bot.Service implements it.
type Releaser interface {
	ReleaseChannel(ctx context.Context, channelID string) (*conversation.Message, error)
	ReleaseAll() (slotsFreed, conversations int)
}

var _ Releaser = (*bot.Service)(nil)

type Server struct {
	Auth         *Sessions
	PasswordHash string
	Slots        *slots.Manager
	Releaser     Releaser
	Log          *zap.Logger
}

type tmplData struct {
	Title    string
	Flash    string
	Slots    []slots.Info
	Capacity int
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.Handle("/", s.Auth.RequireAuth(http.HandlerFunc(s.handleHome)))
	mux.Handle("/slots/release", s.Auth.RequireAuth(http.HandlerFunc(s.handleRelease)))
	mux.Handle("/slots/release-all", s.Auth.RequireAuth(http.HandlerFunc(s.handleReleaseAll)))

	return mux
}

func (s *Server) home(flash string) tmplData {
	return tmplData{Title: "Booking slots", Flash: flash, Slots: s.Slots.List(), Capacity: s.Slots.Capacity()}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.render(w, http.StatusOK, "templates/slots.html", s.home(""))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, http.StatusOK, "templates/login.html", tmplData{Title: "Login"})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.authenticate(r.FormValue("password")); err != nil {
			s.Log.Warn("console login rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
			s.render(w, http.StatusUnauthorized, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid password"})
			return
		}
		if err := s.Auth.Set(w, r); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) authenticate(pw string) error {
	if s.PasswordHash == "" || !CheckPassword(s.PasswordHash, pw) {
		return internaltypes.ErrUnauthorized
	}
	return nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.Clear(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ch, ok := bot.ChannelRef(strings.TrimSpace(r.FormValue("channel_id")))
	if !ok {
		s.render(w, http.StatusBadRequest, "templates/slots.html", s.home("Invalid channel id"))
		return
	}
	m, err := s.Releaser.ReleaseChannel(r.Context(), ch)
	if err != nil {
		s.Log.Error("console release", zap.String("channel_id", ch), zap.Error(err))
		s.render(w, http.StatusInternalServerError, "templates/slots.html", s.home("Release failed"))
		return
	}
	s.Log.Info("console release", zap.String("channel_id", ch))
	s.render(w, http.StatusOK, "templates/slots.html", s.home(m.Text))
}

func (s *Server) handleReleaseAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, convs := s.Releaser.ReleaseAll()
	s.Log.Info("console release all", zap.Int("slots", n), zap.Int("conversations", convs))
	s.render(w, http.StatusOK, "templates/slots.html", s.home("All slots released"))
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data tmplData) {
	t, err := template.ParseFS(fs, "templates/base.html", name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Start serves h on addr until ctx is done.
func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("console listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
