// Package browser opens browser sessions and exposes the small set of DOM
// operations the login suite relies on. Three drivers are available: go-rod
// over the Chrome DevTools Protocol, WebDriver against a Selenium grid, and a
// JS-less HTTP session backed by goquery.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the class of errors returned by browser drivers.
var Error = errs.Class("browser")

var (
	ErrNotFound    = errors.New("element not found")
	ErrTimeout     = errors.New("condition wait timed out")
	ErrUnsupported = errors.New("operation not supported by driver")
	ErrStale       = errors.New("element is no longer attached to the page")
)

// Driver names a session implementation
type Driver string

const (
	DriverRod       Driver = "rod"
	DriverWebDriver Driver = "webdriver"
	DriverHTTP      Driver = "http"
)

// Valid reports whether the driver is known
func (d Driver) Valid() bool {
	switch d {
	case DriverRod, DriverWebDriver, DriverHTTP:
		return true
	}
	return false
}

// Session is a live browser instance used to drive and inspect a web page.
type Session interface {
	// Navigate loads url and waits for the document to load
	Navigate(ctx context.Context, url string) error
	// URL returns the address of the current document
	URL(ctx context.Context) (string, error)
	// Find returns the first element matching loc without waiting.
	// It returns ErrNotFound when nothing matches.
	Find(ctx context.Context, loc Locator) (Element, error)
	// FindAll returns every element matching loc without waiting
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
	// WaitFor polls cond until it holds or timeout elapses
	WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error
	// Screenshot captures the visible page as PNG
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the session and everything it owns
	Close() error
}

// Element is a handle to a DOM element inside a Session.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it is present
	Attribute(ctx context.Context, name string) (string, bool, error)
	SendKeys(ctx context.Context, text string) error
	Clear(ctx context.Context) error
	Click(ctx context.Context) error
	PressEnter(ctx context.Context) error
	// Valid reports the element's HTML constraint validity
	Valid(ctx context.Context) (bool, error)
}

// Options configures how a session is opened
type Options struct {
	Driver           Driver `yaml:"driver"`
	RemoteURL        string `yaml:"remote_url"`
	Managed          bool   `yaml:"managed"`
	Bin              string `yaml:"bin"`
	Headless         bool   `yaml:"headless"`
	Maximize         bool   `yaml:"maximize"`
	WindowWidth      int    `yaml:"window_width"`
	WindowHeight     int    `yaml:"window_height"`
	Lang             string `yaml:"lang"`
	IgnoreCertErrors bool   `yaml:"ignore_cert_errors"`
	NoSandbox        bool   `yaml:"no_sandbox"`

	// HTTPClient is used by the http driver. A client with a fresh cookie
	// jar is created when nil.
	HTTPClient *http.Client `yaml:"-"`
}

// DefaultOptions returns options for a headless local Chrome at 1920x1080
func DefaultOptions() Options {
	return Options{
		Driver:           DriverRod,
		Headless:         true,
		WindowWidth:      1920,
		WindowHeight:     1080,
		Lang:             "en",
		IgnoreCertErrors: true,
		NoSandbox:        true,
	}
}

// Opener creates sessions. Callers own the returned session and must close it.
type Opener func(ctx context.Context) (Session, error)

// NewOpener returns an Opener bound to opts
func NewOpener(opts Options, log *zap.Logger) Opener {
	return func(ctx context.Context) (Session, error) {
		return Open(ctx, opts, log)
	}
}

// Open creates a session with the configured driver
func Open(ctx context.Context, opts Options, log *zap.Logger) (Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Driver == "" {
		opts.Driver = DriverRod
	}
	if opts.WindowWidth <= 0 || opts.WindowHeight <= 0 {
		opts.WindowWidth, opts.WindowHeight = 1920, 1080
	}

	log = log.With(zap.String("driver", string(opts.Driver)), zap.String("remote", opts.RemoteURL))
	log.Info("connecting")

	var (
		session Session
		err     error
	)
	switch opts.Driver {
	case DriverRod:
		session, err = openRod(ctx, opts, log)
	case DriverWebDriver:
		session, err = openWebDriver(ctx, opts, log)
	case DriverHTTP:
		session, err = openHTTP(ctx, opts, log)
	default:
		return nil, Error.New("unknown driver %q", opts.Driver)
	}
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to open %s session: %w", opts.Driver, err))
	}

	log.Info("connected")
	return session, nil
}
