// Package loginapptest starts the demo login application on loopback
// listeners for tests.
package loginapptest

import (
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"dev/bravebird/login-e2e-go/pkg/loginapp"
	"dev/bravebird/login-e2e-go/pkg/models"
)

// Secret signs tokens issued by servers started with Start
const Secret = "test-secret"

// App is a running backend/frontend pair
type App struct {
	Backend  *httptest.Server
	Frontend *httptest.Server
}

// Target returns a target pointing at the app with the admin credentials
func (a *App) Target() models.Target {
	return models.Target{
		Name:          "loginapp",
		FrontendURL:   a.Frontend.URL + "/",
		BackendURL:    a.Backend.URL,
		Username:      "admin",
		Password:      "admin123",
		WrongPassword: "wrongpassword",
	}
}

// Start serves the demo accounts until the test ends
func Start(t testing.TB) *App {
	t.Helper()

	store, err := loginapp.NewDemoStore()
	if err != nil {
		t.Fatalf("failed to create user store: %v", err)
	}
	return StartWithStore(t, store)
}

// StartWithStore serves accounts from store until the test ends
func StartWithStore(t testing.TB, store loginapp.UserStore) *App {
	t.Helper()

	log := zaptest.NewLogger(t)
	backend := httptest.NewServer(loginapp.NewBackend(store, Secret, log.Named("backend")).Handler())
	t.Cleanup(backend.Close)

	frontend := httptest.NewServer(loginapp.NewFrontend(backend.URL, log.Named("frontend")).Handler())
	t.Cleanup(frontend.Close)

	return &App{Backend: backend, Frontend: frontend}
}
