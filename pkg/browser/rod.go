package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

type rodSession struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher // set for locally launched browsers
	log      *zap.Logger
}

func openRod(ctx context.Context, opts Options, log *zap.Logger) (Session, error) {
	browser, l, err := connectRod(opts)
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	err = page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.WindowWidth,
		Height:            opts.WindowHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	return &rodSession{browser: browser, page: page, launcher: l, log: log}, nil
}

// connectRod launches or attaches to Chrome depending on opts.RemoteURL
func connectRod(opts Options) (*rod.Browser, *launcher.Launcher, error) {
	if opts.RemoteURL != "" && opts.Managed {
		l, err := launcher.NewManaged(opts.RemoteURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reach launcher manager: %w", err)
		}
		configureLauncher(l, opts)
		client, err := l.Client()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to launch remote browser: %w", err)
		}
		browser := rod.New().Client(client)
		if err := browser.Connect(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
		}
		return browser, nil, nil
	}

	if opts.RemoteURL != "" {
		controlURL := opts.RemoteURL
		if !strings.HasPrefix(controlURL, "ws://") && !strings.HasPrefix(controlURL, "wss://") {
			resolved, err := launcher.ResolveURL(controlURL)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to resolve control url: %w", err)
			}
			controlURL = resolved
		}
		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
		}
		return browser, nil, nil
	}

	l := launcher.New()
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	} else if chromeBin := os.Getenv("CHROME_BIN"); chromeBin != "" {
		l = l.Bin(chromeBin)
	}
	configureLauncher(l, opts)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	return browser, l, nil
}

func configureLauncher(l *launcher.Launcher, opts Options) {
	l.Headless(opts.Headless)
	l.Set("disable-gpu")
	l.Set("disable-dev-shm-usage")
	if opts.NoSandbox {
		l.Set(flags.NoSandbox)
	}
	if opts.IgnoreCertErrors {
		l.Set("ignore-certificate-errors")
		l.Set("ignore-ssl-errors", "yes")
	}
	if opts.Lang != "" {
		l.Set("lang", opts.Lang)
	}
	if opts.Maximize {
		l.Set("start-maximized")
	} else {
		l.Set("window-size", fmt.Sprintf("%d,%d", opts.WindowWidth, opts.WindowHeight))
	}
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return Error.Wrap(fmt.Errorf("failed to navigate to %s: %w", url, err))
	}
	if err := page.WaitLoad(); err != nil {
		return Error.Wrap(fmt.Errorf("failed waiting for %s to load: %w", url, err))
	}
	return nil
}

func (s *rodSession) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", Error.Wrap(err)
	}
	return info.URL, nil
}

func (s *rodSession) Find(ctx context.Context, loc Locator) (Element, error) {
	elements, err := s.elements(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return elements[0], nil
}

func (s *rodSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	return s.elements(ctx, loc)
}

func (s *rodSession) elements(ctx context.Context, loc Locator) ([]Element, error) {
	page := s.page.Context(ctx)

	var (
		found rod.Elements
		err   error
	)
	if css, ok := loc.CSS(); ok {
		found, err = page.Elements(css)
	} else {
		found, err = page.ElementsX(loc.XPath())
	}
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to query %s: %w", loc, err))
	}

	result := make([]Element, 0, len(found))
	for _, el := range found {
		result = append(result, &rodElement{el: el})
	}
	return result, nil
}

func (s *rodSession) WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error {
	return poll(ctx, s, cond, timeout)
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := s.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to take screenshot: %w", err))
	}
	return data, nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	if err != nil {
		s.log.Warn("failed to close browser", zap.Error(err))
		return Error.Wrap(err)
	}
	return nil
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", Error.Wrap(err)
	}
	return strings.TrimSpace(text), nil
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	value, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, Error.Wrap(err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (e *rodElement) SendKeys(ctx context.Context, text string) error {
	return Error.Wrap(e.el.Context(ctx).Input(text))
}

func (e *rodElement) Clear(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(el.Type(input.Backspace))
}

func (e *rodElement) Click(ctx context.Context) error {
	return Error.Wrap(e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

func (e *rodElement) PressEnter(ctx context.Context) error {
	return Error.Wrap(e.el.Context(ctx).Type(input.Enter))
}

func (e *rodElement) Valid(ctx context.Context) (bool, error) {
	obj, err := e.el.Context(ctx).Eval(`() => this.validity ? this.validity.valid : true`)
	if err != nil {
		return false, Error.Wrap(err)
	}
	return obj.Value.Bool(), nil
}
