package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"go.uber.org/zap"
)

// DefaultSeleniumURL is the hub address used when no remote URL is configured
const DefaultSeleniumURL = "http://selenium:4444/wd/hub"

const webDriverPollInterval = 250 * time.Millisecond

type webDriverSession struct {
	wd  selenium.WebDriver
	log *zap.Logger
}

func openWebDriver(ctx context.Context, opts Options, log *zap.Logger) (Session, error) {
	remote := opts.RemoteURL
	if remote == "" {
		remote = DefaultSeleniumURL
	}

	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chromeCapabilities(opts))

	type result struct {
		wd  selenium.WebDriver
		err error
	}
	done := make(chan result, 1)
	go func() {
		wd, err := selenium.NewRemote(caps, remote)
		done <- result{wd, err}
	}()

	var wd selenium.WebDriver
	select {
	case <-ctx.Done():
		// The remote session may still come up; quit it once it does.
		go func() {
			if r := <-done; r.err == nil {
				_ = r.wd.Quit()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("failed to create remote session at %s: %w", remote, r.err)
		}
		wd = r.wd
	}

	var err error
	if opts.Maximize {
		err = wd.MaximizeWindow("")
	} else {
		err = wd.ResizeWindow("", opts.WindowWidth, opts.WindowHeight)
	}
	if err != nil {
		_ = wd.Quit()
		return nil, fmt.Errorf("failed to size window: %w", err)
	}

	return &webDriverSession{wd: wd, log: log}, nil
}

func chromeCapabilities(opts Options) chrome.Capabilities {
	args := []string{}
	if opts.IgnoreCertErrors {
		args = append(args, "--ignore-ssl-errors=yes", "--ignore-certificate-errors")
	}
	if opts.NoSandbox {
		args = append(args, "--no-sandbox")
	}
	if opts.Lang != "" {
		args = append(args, "--lang="+opts.Lang)
	}
	if opts.Headless {
		args = append(args, "--headless")
	}
	if !opts.Maximize {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", opts.WindowWidth, opts.WindowHeight))
	}

	return chrome.Capabilities{
		Args: args,
		Prefs: map[string]interface{}{
			"profile.default_content_setting_values.automatic_downloads": 1,
			"download.prompt_for_download":                               false,
			"download.directory_upgrade":                                 true,
		},
	}
}

func (s *webDriverSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.wd.Get(url); err != nil {
		return Error.Wrap(fmt.Errorf("failed to navigate to %s: %w", url, err))
	}
	return nil
}

func (s *webDriverSession) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	url, err := s.wd.CurrentURL()
	if err != nil {
		return "", Error.Wrap(err)
	}
	return url, nil
}

func (s *webDriverSession) Find(ctx context.Context, loc Locator) (Element, error) {
	elements, err := s.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return elements[0], nil
}

func (s *webDriverSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	by, value := selenium.ByXPATH, loc.XPath()
	if css, ok := loc.CSS(); ok {
		by, value = selenium.ByCSSSelector, css
	}

	found, err := s.wd.FindElements(by, value)
	if err != nil {
		// Some drivers report an empty match as a "no such element" error.
		if strings.Contains(err.Error(), "no such element") {
			return nil, nil
		}
		return nil, Error.Wrap(fmt.Errorf("failed to query %s: %w", loc, err))
	}

	result := make([]Element, 0, len(found))
	for _, el := range found {
		result = append(result, &webDriverElement{wd: s.wd, el: el})
	}
	return result, nil
}

// WaitFor delegates polling to selenium's WaitWithTimeoutAndInterval
func (s *webDriverSession) WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error {
	var (
		lastErr error
		condErr error
	)
	err := s.wd.WaitWithTimeoutAndInterval(func(selenium.WebDriver) (bool, error) {
		if err := ctx.Err(); err != nil {
			condErr = err
			return false, err
		}
		ok, err := cond(ctx, s)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				lastErr = err
				return false, nil
			}
			condErr = err
			return false, err
		}
		return ok, nil
	}, timeout, webDriverPollInterval)
	if err == nil {
		return nil
	}
	if condErr != nil {
		return condErr
	}
	// Anything else is selenium's own "timeout after" error.
	return timeoutError(context.DeadlineExceeded, timeout, lastErr)
}

func (s *webDriverSession) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.wd.Screenshot()
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("failed to take screenshot: %w", err))
	}
	return data, nil
}

func (s *webDriverSession) Close() error {
	if err := s.wd.Quit(); err != nil {
		s.log.Warn("failed to quit webdriver session", zap.Error(err))
		return Error.Wrap(err)
	}
	return nil
}

type webDriverElement struct {
	wd selenium.WebDriver
	el selenium.WebElement
}

func (e *webDriverElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.el.Text()
	if err != nil {
		return "", Error.Wrap(err)
	}
	return strings.TrimSpace(text), nil
}

// Attribute reads the DOM attribute through a script since GetAttribute
// cannot tell an absent attribute apart from a failed call.
func (e *webDriverElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	value, err := e.wd.ExecuteScript("return arguments[0].getAttribute(arguments[1]);", []interface{}{e.el, name})
	if err != nil {
		return "", false, Error.Wrap(err)
	}
	if value == nil {
		return "", false, nil
	}
	return fmt.Sprint(value), true, nil
}

func (e *webDriverElement) SendKeys(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return Error.Wrap(e.el.SendKeys(text))
}

func (e *webDriverElement) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return Error.Wrap(e.el.Clear())
}

func (e *webDriverElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return Error.Wrap(e.el.Click())
}

func (e *webDriverElement) PressEnter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return Error.Wrap(e.el.SendKeys(selenium.EnterKey))
}

func (e *webDriverElement) Valid(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	value, err := e.wd.ExecuteScript("return arguments[0].validity ? arguments[0].validity.valid : true;", []interface{}{e.el})
	if err != nil {
		return false, Error.Wrap(err)
	}
	valid, ok := value.(bool)
	if !ok {
		return false, Error.New("unexpected validity value %v", value)
	}
	return valid, nil
}
