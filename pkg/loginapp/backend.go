// Package loginapp is the application the login suite runs against: a JSON
// backend issuing JWTs and a server-rendered frontend with the login form.
package loginapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/models"
)

const tokenTTL = 24 * time.Hour

// Messages returned by the backend
const (
	MsgMissingFields      = "Username y password son requeridos"
	MsgInvalidCredentials = "Credenciales inválidas"
	MsgLoginOK            = "Login exitoso"
	MsgInternalError      = "Error interno del servidor"
	MsgUnauthorized       = "Token inválido o expirado"
)

var errInvalidToken = errors.New("invalid token")

// Claims are carried by issued tokens
type Claims struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /api/login
type LoginResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Token   string       `json:"token,omitempty"`
	User    *models.User `json:"user,omitempty"`
}

// Backend serves the authentication API
type Backend struct {
	store  UserStore
	secret []byte
	log    *zap.Logger
	now    func() time.Time
}

// NewBackend creates a backend authenticating against store
func NewBackend(store UserStore, secret string, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		store:  store,
		secret: []byte(secret),
		log:    log,
		now:    time.Now,
	}
}

// Handler returns the backend routes wrapped in a permissive CORS policy
func (b *Backend) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", b.Health).Methods("GET")
	router.HandleFunc("/api/login", b.Login).Methods("POST")
	router.HandleFunc("/api/me", b.Me).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(router)
}

// Health reports that the server is up
func (b *Backend) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"message": "Server is running",
	})
}

// Login verifies credentials and issues a token
func (b *Backend) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, LoginResponse{Message: MsgMissingFields})
		return
	}
	if req.Username == "" || req.Password == "" {
		respondJSON(w, http.StatusBadRequest, LoginResponse{Message: MsgMissingFields})
		return
	}

	user, err := b.store.UserByName(r.Context(), req.Username)
	if err != nil {
		b.log.Error("login lookup failed", zap.String("username", req.Username), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, LoginResponse{Message: MsgInternalError})
		return
	}
	if user == nil || !CheckPassword(user.PasswordHash, req.Password) {
		b.log.Info("rejected login", zap.String("username", req.Username))
		respondJSON(w, http.StatusUnauthorized, LoginResponse{Message: MsgInvalidCredentials})
		return
	}

	token, err := b.IssueToken(user)
	if err != nil {
		b.log.Error("failed to issue token", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, LoginResponse{Message: MsgInternalError})
		return
	}

	b.log.Info("login succeeded", zap.String("username", user.Username))
	respondJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		Message: MsgLoginOK,
		Token:   token,
		User:    user,
	})
}

// Me returns the user identified by the bearer token
func (b *Backend) Me(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{Message: MsgUnauthorized})
		return
	}

	claims, err := b.ValidateToken(raw)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{Message: MsgUnauthorized})
		return
	}

	user, err := b.store.UserByName(r.Context(), claims.Username)
	if err != nil {
		b.log.Error("user lookup failed", zap.String("username", claims.Username), zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, LoginResponse{Message: MsgInternalError})
		return
	}
	if user == nil {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{Message: MsgUnauthorized})
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{Success: true, User: user})
}

// IssueToken signs an HS256 token for user valid for 24 hours
func (b *Backend) IssueToken(user *models.User) (string, error) {
	now := b.now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token issued by IssueToken
func (b *Backend) ValidateToken(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return b.secret, nil
	}, jwt.WithTimeFunc(b.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
