// Package login wraps a browser session opened on a site and submits its
// login form.
package login

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/browser"
)

// OperationError is returned by Client operations that fail while driving
// the page. Op names the operation and Err is the underlying cause.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Option configures a Client
type Option func(*Client)

// WithFieldNames sets the name attributes of the username and password inputs
func WithFieldNames(username, password string) Option {
	return func(c *Client) {
		c.usernameField = username
		c.passwordField = password
	}
}

// WithLogger sets the logger used for progress messages
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// Client is a browser session positioned on a site
type Client struct {
	site          string
	session       browser.Session
	usernameField string
	passwordField string
	log           *zap.Logger
}

// New opens a session with opener and navigates it to site. The caller must
// Close the returned client.
func New(ctx context.Context, opener browser.Opener, site string, opts ...Option) (*Client, error) {
	c := &Client{
		site:          site,
		usernameField: "username",
		passwordField: "password",
		log:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.log.Info("connecting", zap.String("site", site))
	session, err := opener(ctx)
	if err != nil {
		return nil, &OperationError{Op: "connect", Err: err}
	}
	c.log.Info("connected")

	if err := session.Navigate(ctx, site); err != nil {
		if cerr := session.Close(); cerr != nil {
			c.log.Warn("failed to close session", zap.Error(cerr))
		}
		return nil, &OperationError{Op: "navigate", Err: err}
	}

	c.session = session
	return c, nil
}

// Session returns the underlying browser session
func (c *Client) Session() browser.Session {
	return c.session
}

// Site returns the address the client was opened on
func (c *Client) Site() string {
	return c.site
}

func (c *Client) FindByID(ctx context.Context, id string) (browser.Element, error) {
	return c.session.Find(ctx, browser.ID(id))
}

func (c *Client) FindByName(ctx context.Context, name string) (browser.Element, error) {
	return c.session.Find(ctx, browser.Name(name))
}

func (c *Client) FindByClass(ctx context.Context, class string) (browser.Element, error) {
	return c.session.Find(ctx, browser.Class(class))
}

func (c *Client) FindAllByClass(ctx context.Context, class string) ([]browser.Element, error) {
	return c.session.FindAll(ctx, browser.Class(class))
}

// FindByXPath returns every element matching expr
func (c *Client) FindByXPath(ctx context.Context, expr string) ([]browser.Element, error) {
	return c.session.FindAll(ctx, browser.XPath(expr))
}

// Login types the credentials into the inputs named by the configured field
// names and submits the form with Enter from the password input. Success or
// failure of the authentication itself shows only on the resulting page.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if err := c.login(ctx, username, password); err != nil {
		return &OperationError{Op: "login", Err: err}
	}
	return nil
}

func (c *Client) login(ctx context.Context, username, password string) error {
	userInput, err := c.FindByName(ctx, c.usernameField)
	if err != nil {
		return err
	}
	if err := userInput.SendKeys(ctx, username); err != nil {
		return err
	}

	passInput, err := c.FindByName(ctx, c.passwordField)
	if err != nil {
		return err
	}
	if err := passInput.SendKeys(ctx, password); err != nil {
		return err
	}

	return passInput.PressEnter(ctx)
}

// Close releases the browser session
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}
