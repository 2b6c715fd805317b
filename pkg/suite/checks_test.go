package suite

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dev/bravebird/login-e2e-go/pkg/models"
)

// Defects the stub frontend can be asked to show
const (
	flawNone          = ""
	flawTitleCase     = "title-case"
	flawUserInfoCase  = "user-info-case"
	flawUserInfoOther = "user-info-other"
	flawErrorText     = "error-text"
	flawOptional      = "optional-fields"
	flawLogout        = "logout"
)

func stubLoginPage(w http.ResponseWriter, flaw, message string) {
	title := "Iniciar Sesión"
	if flaw == flawTitleCase {
		title = "iniciar sesión"
	}
	required := "required"
	if flaw == flawOptional {
		required = ""
	}
	if message != "" {
		message = fmt.Sprintf(`<div class="message error">%s</div>`, message)
	}
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><body>
<h1>%s</h1>
<form method="post" action="/login" class="login-form">
  <input type="text" id="username" name="username" data-testid="username-input" %s>
  <input type="password" id="password" name="password" %s>
  <button type="submit">Entrar</button>
</form>
%s
</body></html>`, title, required, required, message)
}

func stubWelcomePage(w http.ResponseWriter, flaw, username string) {
	switch flaw {
	case flawUserInfoCase:
		username = strings.ToUpper(username)
	case flawUserInfoOther:
		username = "invitado"
	}
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><body>
<h2>¡Bienvenido!</h2>
<div class="user-info">Usuario: %s</div>
<form method="post" action="/logout"><button type="submit" class="logout-button">Salir</button></form>
</body></html>`, username)
}

// startStubFrontend serves a login page that behaves like the demo
// application apart from flaw
func startStubFrontend(t *testing.T, flaw string) models.Target {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("user"); err == nil && c.Value != "" {
			stubWelcomePage(w, flaw, c.Value)
			return
		}
		stubLoginPage(w, flaw, "")
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "admin123" {
			message := "Credenciales inválidas"
			if flaw == flawErrorText {
				message = "Intenta de nuevo"
			}
			stubLoginPage(w, flaw, message)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "user", Value: "admin", Path: "/"})
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "user", Path: "/", MaxAge: -1})
		if flaw == flawLogout {
			fmt.Fprint(w, `<!DOCTYPE html><html><body><p>Hasta luego</p></body></html>`)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return models.Target{
		FrontendURL:   srv.URL + "/",
		BackendURL:    srv.URL,
		Username:      "admin",
		Password:      "admin123",
		WrongPassword: "nope",
	}
}

func runChecks(t *testing.T, target models.Target, names ...string) map[string]models.CheckResult {
	t.Helper()

	checks, err := Lookup(names)
	require.NoError(t, err)

	opener := &countingOpener{t: t}
	result, err := NewRunner(opener.open, target,
		WithTimeout(300*time.Millisecond),
		WithLogger(zaptest.NewLogger(t))).Run(context.Background(), checks)
	require.NoError(t, err)
	assert.Equal(t, opener.opened.Load(), opener.closed.Load())

	byName := make(map[string]models.CheckResult)
	for _, cr := range result.CheckResults {
		byName[cr.Check] = cr
	}
	return byName
}

var browserChecks = []string{
	CheckLoginPageLoads,
	CheckFormElementsExist,
	CheckSuccessfulLogin,
	CheckWrongPassword,
	CheckEmptyFields,
	CheckLogout,
	CheckUsernameAttributes,
}

func TestStubFrontendPassesEveryCheck(t *testing.T) {
	results := runChecks(t, startStubFrontend(t, flawNone), browserChecks...)

	require.Len(t, results, len(browserChecks))
	for name, cr := range results {
		assert.Equal(t, models.StatusSuccess, cr.Status, "%s: %s", name, cr.Message)
	}
}

func TestChecksDetectFlawedPages(t *testing.T) {
	tests := []struct {
		name    string
		flaw    string
		check   string
		message string
	}{
		{
			name:    "title with wrong case",
			flaw:    flawTitleCase,
			check:   CheckLoginPageLoads,
			message: `page title "iniciar sesión" does not contain "Iniciar Sesión"`,
		},
		{
			name:    "username with wrong case",
			flaw:    flawUserInfoCase,
			check:   CheckSuccessfulLogin,
			message: `user info "Usuario: ADMIN" does not contain "admin"`,
		},
		{
			name:    "another username",
			flaw:    flawUserInfoOther,
			check:   CheckSuccessfulLogin,
			message: `user info "Usuario: invitado" does not contain "admin"`,
		},
		{
			name:    "error without explanation",
			flaw:    flawErrorText,
			check:   CheckWrongPassword,
			message: `error message "Intenta de nuevo" does not contain "inválidas" or "error"`,
		},
		{
			name:    "fields not required",
			flaw:    flawOptional,
			check:   CheckEmptyFields,
			message: "empty username field passed validation",
		},
		{
			name:    "logout without login form",
			flaw:    flawLogout,
			check:   CheckLogout,
			message: "login form after logout did not appear",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := runChecks(t, startStubFrontend(t, tt.flaw), tt.check)

			cr, ok := results[tt.check]
			require.True(t, ok)
			assert.Equal(t, models.StatusFailed, cr.Status)
			assert.Contains(t, cr.Message, tt.message)
		})
	}
}

func TestWrongPasswordErrorIgnoresCase(t *testing.T) {
	frontend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		message := ""
		if r.Method == http.MethodPost {
			message = "ERROR: CREDENCIALES INVÁLIDAS"
		}
		stubLoginPage(w, flawNone, message)
	}))
	t.Cleanup(frontend.Close)

	target := models.Target{
		FrontendURL:   frontend.URL + "/",
		BackendURL:    frontend.URL,
		Username:      "admin",
		WrongPassword: "nope",
	}
	results := runChecks(t, target, CheckWrongPassword)
	assert.Equal(t, models.StatusSuccess, results[CheckWrongPassword].Status, results[CheckWrongPassword].Message)
}
