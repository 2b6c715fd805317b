package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/loginapp/loginapptest"
)

func httpOpener(t *testing.T) browser.Opener {
	return browser.NewOpener(browser.Options{Driver: browser.DriverHTTP}, zaptest.NewLogger(t))
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	app := loginapptest.Start(t)

	client, err := New(ctx, httpOpener(t), app.Frontend.URL+"/", WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer client.Close()

	h1, err := client.Session().Find(ctx, browser.Tag("h1"))
	require.NoError(t, err)
	text, err := h1.Text(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Iniciar Sesión")

	require.NoError(t, client.Login(ctx, "admin", "admin123"))

	info, err := browser.WaitElement(ctx, client.Session(), browser.Class("user-info"), 5*time.Second)
	require.NoError(t, err)
	text, err = info.Text(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "admin")
}

func TestLoginWrongPasswordShowsError(t *testing.T) {
	ctx := context.Background()
	app := loginapptest.Start(t)

	client, err := New(ctx, httpOpener(t), app.Frontend.URL+"/")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Login(ctx, "admin", "wrongpassword"))

	el, err := client.FindByClass(ctx, "error")
	require.NoError(t, err)
	text, err := el.Text(ctx)
	require.NoError(t, err)
	assert.True(t, browser.ContainsAny(text, "inválidas", "error"), text)
}

func TestLoginMissingFieldIsOperationError(t *testing.T) {
	ctx := context.Background()
	app := loginapptest.Start(t)

	// the page has no input named "user"
	client, err := New(ctx, httpOpener(t), app.Frontend.URL+"/", WithFieldNames("user", "password"))
	require.NoError(t, err)
	defer client.Close()

	err = client.Login(ctx, "admin", "admin123")
	require.Error(t, err)

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "login", opErr.Op)
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.Contains(t, err.Error(), "login: ")
}

func TestFinders(t *testing.T) {
	ctx := context.Background()
	app := loginapptest.Start(t)

	client, err := New(ctx, httpOpener(t), app.Frontend.URL+"/")
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, app.Frontend.URL+"/", client.Site())

	_, err = client.FindByID(ctx, "username")
	assert.NoError(t, err)
	_, err = client.FindByName(ctx, "password")
	assert.NoError(t, err)
	_, err = client.FindByClass(ctx, "login-form")
	assert.NoError(t, err)

	groups, err := client.FindAllByClass(ctx, "form-group")
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	_, err = client.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, browser.ErrNotFound)

	// the http driver cannot evaluate XPath
	_, err = client.FindByXPath(ctx, "//h1")
	assert.ErrorIs(t, err, browser.ErrUnsupported)
}

type fakeSession struct {
	browser.Session
	navigateErr error
	closeErr    error
	closed      bool
}

func (f *fakeSession) Navigate(context.Context, string) error { return f.navigateErr }
func (f *fakeSession) Close() error {
	f.closed = true
	return f.closeErr
}

func TestNewFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("connect", func(t *testing.T) {
		boom := errors.New("grid unavailable")
		_, err := New(ctx, func(context.Context) (browser.Session, error) { return nil, boom }, "http://example.test")

		var opErr *OperationError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, "connect", opErr.Op)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("navigate closes session", func(t *testing.T) {
		boom := errors.New("dns failure")
		session := &fakeSession{navigateErr: boom}
		_, err := New(ctx, func(context.Context) (browser.Session, error) { return session, nil }, "http://example.test")

		var opErr *OperationError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, "navigate", opErr.Op)
		assert.True(t, session.closed)
	})

	t.Run("close failure is logged", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		session := &fakeSession{navigateErr: errors.New("dns failure"), closeErr: errors.New("grid gone")}
		_, err := New(ctx, func(context.Context) (browser.Session, error) { return session, nil }, "http://example.test",
			WithLogger(zap.New(core)))
		require.Error(t, err)

		entries := logs.FilterMessage("failed to close session").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "grid gone", entries[0].ContextMap()["error"])
	})
}

func TestCloseIsIdempotent(t *testing.T) {
	session := &fakeSession{}
	client, err := New(context.Background(), func(context.Context) (browser.Session, error) { return session, nil }, "http://example.test")
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.True(t, session.closed)
}
