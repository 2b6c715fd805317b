package loginapp

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/models"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const (
	tokenCookie = "token"

	// MsgLoginFailed is shown when the backend gives no usable answer
	MsgLoginFailed = "Error al iniciar sesión"
)

type pageData struct {
	User          *models.User
	Username      string
	Message       string
	UsernameField string
	PasswordField string
}

// Frontend renders the login page and talks to the backend API
type Frontend struct {
	// UsernameField and PasswordField are the name attributes of the inputs
	UsernameField string
	PasswordField string

	backendURL string
	client     *http.Client
	log        *zap.Logger
}

// NewFrontend creates a frontend that authenticates against backendURL
func NewFrontend(backendURL string, log *zap.Logger) *Frontend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Frontend{
		UsernameField: "username",
		PasswordField: "password",
		backendURL:    strings.TrimRight(backendURL, "/"),
		client:        &http.Client{Timeout: 10 * time.Second},
		log:           log,
	}
}

// Handler returns the frontend routes
func (f *Frontend) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/", f.Index).Methods("GET")
	router.HandleFunc("/login", f.Login).Methods("POST")
	router.HandleFunc("/logout", f.Logout).Methods("POST")
	return router
}

// Index shows the welcome card for a signed-in visitor and the form otherwise
func (f *Frontend) Index(w http.ResponseWriter, r *http.Request) {
	data := f.page()

	if cookie, err := r.Cookie(tokenCookie); err == nil && cookie.Value != "" {
		user, err := f.currentUser(r.Context(), cookie.Value)
		if err != nil {
			f.log.Info("discarding session cookie", zap.Error(err))
			clearTokenCookie(w)
		}
		data.User = user
	}

	f.render(w, http.StatusOK, data)
}

// Login forwards the submitted credentials to the backend
func (f *Frontend) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	creds := LoginRequest{
		Username: r.PostForm.Get(f.UsernameField),
		Password: r.PostForm.Get(f.PasswordField),
	}

	resp, status, err := f.backendLogin(r.Context(), creds)
	if err != nil {
		f.log.Warn("backend login failed", zap.Error(err))
		data := f.page()
		data.Username = creds.Username
		data.Message = MsgLoginFailed
		f.render(w, http.StatusBadGateway, data)
		return
	}

	if !resp.Success || resp.Token == "" {
		data := f.page()
		data.Username = creds.Username
		data.Message = resp.Message
		if data.Message == "" {
			data.Message = MsgLoginFailed
		}
		f.render(w, status, data)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    resp.Token,
		Path:     "/",
		MaxAge:   int(tokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout drops the session cookie and returns to the form
func (f *Frontend) Logout(w http.ResponseWriter, r *http.Request) {
	clearTokenCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (f *Frontend) page() pageData {
	return pageData{UsernameField: f.UsernameField, PasswordField: f.PasswordField}
}

func (f *Frontend) render(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		f.log.Error("failed to render page", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (f *Frontend) backendLogin(ctx context.Context, creds LoginRequest) (*LoginResponse, int, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.backendURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to call backend: %w", err)
	}
	defer resp.Body.Close()

	var out LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, fmt.Errorf("failed to decode backend response (status %d): %w", resp.StatusCode, err)
	}
	return &out, resp.StatusCode, nil
}

func (f *Frontend) currentUser(ctx context.Context, token string) (*models.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.backendURL+"/api/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend rejected token with status %d", resp.StatusCode)
	}

	var out LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode backend response: %w", err)
	}
	if out.User == nil {
		return nil, fmt.Errorf("backend returned no user")
	}
	return out.User, nil
}

func clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
