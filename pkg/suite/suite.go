// Package suite holds the end-to-end checks for the login page and the
// runner that executes them against a target.
package suite

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/models"
)

// DefaultTimeout bounds every condition wait inside a check
const DefaultTimeout = 10 * time.Second

// Env is what a check runs against
type Env struct {
	// Session is nil for checks that do not need a browser
	Session browser.Session
	Target  models.Target
	Timeout time.Duration
	HTTP    *http.Client
	Log     *zap.Logger
}

// Check is a single assertion scenario
type Check struct {
	Name         string
	Description  string
	NeedsBrowser bool
	Run          func(ctx context.Context, env *Env) error
}

// Failure reports a failed assertion or a wait that timed out
type Failure struct {
	Check   string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	var b strings.Builder
	if f.Check != "" {
		b.WriteString(f.Check)
		b.WriteString(": ")
	}
	b.WriteString(f.Message)
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

func failf(err error, format string, args ...interface{}) *Failure {
	return &Failure{Message: fmt.Sprintf(format, args...), Err: err}
}

// Lookup returns the checks with the given names in the order given. An
// empty list selects every check.
func Lookup(names []string) ([]Check, error) {
	all := Checks()
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]Check, len(all))
	for _, c := range all {
		byName[c.Name] = c
	}

	selected := make([]Check, 0, len(names))
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown check %q", name)
		}
		selected = append(selected, c)
	}
	return selected, nil
}

// Names returns the names of checks
func Names(checks []Check) []string {
	names := make([]string, len(checks))
	for i, c := range checks {
		names[i] = c.Name
	}
	return names
}
