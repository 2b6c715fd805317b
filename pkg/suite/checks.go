package suite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dev/bravebird/login-e2e-go/pkg/browser"
)

// Check names
const (
	CheckBackendHealth      = "backend_health"
	CheckLoginPageLoads     = "login_page_loads"
	CheckFormElementsExist  = "login_form_elements_exist"
	CheckSuccessfulLogin    = "successful_login"
	CheckWrongPassword      = "failed_login_wrong_password"
	CheckEmptyFields        = "failed_login_empty_fields"
	CheckLogout             = "logout"
	CheckUsernameAttributes = "username_field_attributes"
)

const healthTimeout = 5 * time.Second

// DOM contract of the login page
var (
	locTitle       = browser.Tag("h1")
	locUsername    = browser.ID("username")
	locPassword    = browser.ID("password")
	locSubmit      = browser.CSS("button[type='submit']")
	locWelcome     = browser.TextContaining("Bienvenido")
	locUserInfo    = browser.Class("user-info")
	locError       = browser.Class("error")
	locLogout      = browser.Class("logout-button")
	locLoginForm   = browser.Class("login-form")
	usernameTestID = "username-input"
)

// Checks returns the default checks in execution order
func Checks() []Check {
	return []Check{
		{
			Name:        CheckBackendHealth,
			Description: "backend /health answers 200 with status OK",
			Run:         checkBackendHealth,
		},
		{
			Name:         CheckLoginPageLoads,
			Description:  "login page title contains Iniciar Sesión",
			NeedsBrowser: true,
			Run:          checkLoginPageLoads,
		},
		{
			Name:         CheckFormElementsExist,
			Description:  "username, password and submit controls exist with the right types",
			NeedsBrowser: true,
			Run:          checkFormElementsExist,
		},
		{
			Name:         CheckSuccessfulLogin,
			Description:  "valid credentials show the welcome card with the username",
			NeedsBrowser: true,
			Run:          checkSuccessfulLogin,
		},
		{
			Name:         CheckWrongPassword,
			Description:  "a wrong password shows an error message",
			NeedsBrowser: true,
			Run:          checkWrongPassword,
		},
		{
			Name:         CheckEmptyFields,
			Description:  "submitting an empty form is blocked by field validation",
			NeedsBrowser: true,
			Run:          checkEmptyFields,
		},
		{
			Name:         CheckLogout,
			Description:  "logging out returns to the login form",
			NeedsBrowser: true,
			Run:          checkLogout,
		},
		{
			Name:         CheckUsernameAttributes,
			Description:  "username input carries id, type and data-testid",
			NeedsBrowser: true,
			Run:          checkUsernameAttributes,
		},
	}
}

func checkBackendHealth(ctx context.Context, env *Env) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	url := strings.TrimRight(env.Target.BackendURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failf(err, "invalid backend url")
	}

	resp, err := env.HTTP.Do(req)
	if err != nil {
		return failf(err, "backend is not reachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failf(nil, "backend health returned status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return failf(err, "backend health returned invalid JSON")
	}
	if body.Status != "OK" {
		return failf(nil, "backend health status is %q, want %q", body.Status, "OK")
	}
	return nil
}

func checkLoginPageLoads(ctx context.Context, env *Env) error {
	if err := env.openLoginPage(ctx); err != nil {
		return err
	}

	title, err := env.wait(ctx, locTitle, "page title")
	if err != nil {
		return err
	}
	return env.expectText(ctx, title, "page title", "Iniciar Sesión")
}

func checkFormElementsExist(ctx context.Context, env *Env) error {
	if err := env.openLoginPage(ctx); err != nil {
		return err
	}

	username, err := env.wait(ctx, locUsername, "username field")
	if err != nil {
		return err
	}
	if err := env.expectAttr(ctx, username, "username field", "type", "text"); err != nil {
		return err
	}

	password, err := env.find(ctx, locPassword, "password field")
	if err != nil {
		return err
	}
	if err := env.expectAttr(ctx, password, "password field", "type", "password"); err != nil {
		return err
	}

	_, err = env.find(ctx, locSubmit, "login button")
	return err
}

func checkSuccessfulLogin(ctx context.Context, env *Env) error {
	if err := env.openLoginPage(ctx); err != nil {
		return err
	}
	if err := env.submitCredentials(ctx, env.Target.Username, env.Target.Password); err != nil {
		return err
	}

	if _, err := env.wait(ctx, locWelcome, "welcome message after login"); err != nil {
		return err
	}

	info, err := env.find(ctx, locUserInfo, "user info")
	if err != nil {
		return err
	}
	return env.expectText(ctx, info, "user info", env.Target.Username)
}

func checkWrongPassword(ctx context.Context, env *Env) error {
	if err := env.openLoginPage(ctx); err != nil {
		return err
	}
	if err := env.submitCredentials(ctx, env.Target.Username, env.Target.WrongPassword); err != nil {
		return err
	}

	msg, err := env.wait(ctx, locError, "error message with invalid credentials")
	if err != nil {
		return err
	}
	return env.expectTextFold(ctx, msg, "error message", "inválidas", "error")
}

func checkEmptyFields(ctx context.Context, env *Env) error {
	if err := env.openLoginPage(ctx); err != nil {
		return err
	}

	before, err := env.Session.URL(ctx)
	if err != nil {
		return failf(err, "could not read page address")
	}

	button, err := env.wait(ctx, locSubmit, "login button")
	if err != nil {
		return err
	}
	if err := button.Click(ctx); err != nil {
		return failf(err, "could not click login button")
	}

	username, err := env.find(ctx, locUsername, "username field after submitting an empty form")
	if err != nil {
		return err
	}
	valid, err := username.Valid(ctx)
	if err != nil {
		return failf(err, "could not read username field validity")
	}
	if valid {
		return failf(nil, "empty username field passed validation")
	}

	after, err := env.Session.URL(ctx)
	if err != nil {
		return failf(err, "could not read page address")
	}
	if after != before {
		return failf(nil, "empty form navigated from %s to %s", before, after)
	}
	return nil
}

func checkLogout(ctx context.Context, env *Env) error {
	if err := env.openLoginPage(ctx); err != nil {
		return err
	}
	if err := env.submitCredentials(ctx, env.Target.Username, env.Target.Password); err != nil {
		return err
	}
	if _, err := env.wait(ctx, locWelcome, "welcome message after login"); err != nil {
		return err
	}

	logout, err := env.find(ctx, locLogout, "logout button")
	if err != nil {
		return err
	}
	if err := logout.Click(ctx); err != nil {
		return failf(err, "could not click logout button")
	}

	_, err = env.wait(ctx, locLoginForm, "login form after logout")
	return err
}

func checkUsernameAttributes(ctx context.Context, env *Env) error {
	if err := env.openLoginPage(ctx); err != nil {
		return err
	}

	username, err := env.wait(ctx, locUsername, "username field")
	if err != nil {
		return err
	}
	for _, attr := range []struct{ name, want string }{
		{"id", "username"},
		{"type", "text"},
		{"data-testid", usernameTestID},
	} {
		if err := env.expectAttr(ctx, username, "username field", attr.name, attr.want); err != nil {
			return err
		}
	}
	return nil
}

// openLoginPage loads the frontend and signs out a session left over from
// an earlier check sharing the browser.
func (env *Env) openLoginPage(ctx context.Context) error {
	if err := env.Session.Navigate(ctx, env.Target.FrontendURL); err != nil {
		return failf(err, "could not load %s", env.Target.FrontendURL)
	}

	logout, err := env.Session.Find(ctx, locLogout)
	if errors.Is(err, browser.ErrNotFound) {
		return nil
	}
	if err != nil {
		return failf(err, "could not inspect login page")
	}

	env.Log.Debug("signing out leftover session")
	if err := logout.Click(ctx); err != nil {
		return failf(err, "could not sign out leftover session")
	}
	_, err = env.wait(ctx, locLoginForm, "login form after signing out leftover session")
	return err
}

func (env *Env) submitCredentials(ctx context.Context, username, password string) error {
	userInput, err := env.wait(ctx, locUsername, "username field")
	if err != nil {
		return err
	}
	passInput, err := env.find(ctx, locPassword, "password field")
	if err != nil {
		return err
	}
	button, err := env.find(ctx, locSubmit, "login button")
	if err != nil {
		return err
	}

	if err := fill(ctx, userInput, username); err != nil {
		return failf(err, "could not type username")
	}
	if err := fill(ctx, passInput, password); err != nil {
		return failf(err, "could not type password")
	}
	if err := button.Click(ctx); err != nil {
		return failf(err, "could not click login button")
	}
	return nil
}

func fill(ctx context.Context, el browser.Element, text string) error {
	if err := el.Clear(ctx); err != nil {
		return err
	}
	return el.SendKeys(ctx, text)
}

func (env *Env) wait(ctx context.Context, loc browser.Locator, what string) (browser.Element, error) {
	el, err := browser.WaitElement(ctx, env.Session, loc, env.Timeout)
	if err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			return nil, failf(err, "%s did not appear within %s", what, env.Timeout)
		}
		return nil, failf(err, "waiting for %s failed", what)
	}
	return el, nil
}

func (env *Env) find(ctx context.Context, loc browser.Locator, what string) (browser.Element, error) {
	el, err := env.Session.Find(ctx, loc)
	if err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			return nil, failf(err, "%s not found", what)
		}
		return nil, failf(err, "looking up %s failed", what)
	}
	return el, nil
}

// expectText requires sub verbatim in the element text
func (env *Env) expectText(ctx context.Context, el browser.Element, what, sub string) error {
	text, err := el.Text(ctx)
	if err != nil {
		return failf(err, "could not read %s text", what)
	}
	if !strings.Contains(text, sub) {
		return failf(nil, "%s %q does not contain %q", what, text, sub)
	}
	return nil
}

// expectTextFold requires any of subs in the element text, ignoring case
func (env *Env) expectTextFold(ctx context.Context, el browser.Element, what string, subs ...string) error {
	text, err := el.Text(ctx)
	if err != nil {
		return failf(err, "could not read %s text", what)
	}
	if !browser.ContainsAny(text, subs...) {
		return failf(nil, "%s %q does not contain %s", what, text, quoteAll(subs))
	}
	return nil
}

func (env *Env) expectAttr(ctx context.Context, el browser.Element, what, name, want string) error {
	got, ok, err := el.Attribute(ctx, name)
	if err != nil {
		return failf(err, "could not read %s attribute %s", what, name)
	}
	if !ok {
		return failf(nil, "%s has no %s attribute", what, name)
	}
	if got != want {
		return failf(nil, "%s attribute %s is %q, want %q", what, name, got, want)
	}
	return nil
}

func quoteAll(subs []string) string {
	quoted := make([]string, len(subs))
	for i, s := range subs {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, " or ")
}
