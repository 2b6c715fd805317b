package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocatorCSS(t *testing.T) {
	tests := []struct {
		name   string
		loc    Locator
		want   string
		wantOK bool
	}{
		{name: "simple id", loc: ID("username"), want: "#username", wantOK: true},
		{name: "id needing quoting", loc: ID("user.name"), want: "[id='user.name']", wantOK: true},
		{name: "name", loc: Name("password"), want: "[name='password']", wantOK: true},
		{name: "class", loc: Class("user-info"), want: ".user-info", wantOK: true},
		{name: "class with leading dot", loc: Class(".error"), want: ".error", wantOK: true},
		{name: "css passthrough", loc: CSS("button[type='submit']"), want: "button[type='submit']", wantOK: true},
		{name: "tag", loc: Tag("h1"), want: "h1", wantOK: true},
		{name: "test id", loc: TestID("username-input"), want: "[data-testid='username-input']", wantOK: true},
		{name: "quote in value", loc: Name("it's"), want: `[name='it\'s']`, wantOK: true},
		{name: "xpath has no css form", loc: XPath("//h1"), wantOK: false},
		{name: "text has no css form", loc: TextContaining("Bienvenido"), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.loc.CSS()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLocatorXPath(t *testing.T) {
	tests := []struct {
		name string
		loc  Locator
		want string
	}{
		{name: "xpath passthrough", loc: XPath("//form//button"), want: "//form//button"},
		{name: "text", loc: TextContaining("Bienvenido"), want: "//*[contains(text(), 'Bienvenido')]"},
		{name: "id", loc: ID("username"), want: "//*[@id='username']"},
		{name: "name", loc: Name("user"), want: "//*[@name='user']"},
		{name: "tag", loc: Tag("h1"), want: "//h1"},
		{name: "test id", loc: TestID("username-input"), want: "//*[@data-testid='username-input']"},
		{name: "single quote uses double quotes", loc: TextContaining("it's"), want: `//*[contains(text(), "it's")]`},
		{
			name: "both quotes use concat",
			loc:  TextContaining(`a'b"c`),
			want: `//*[contains(text(), concat('a', "'", 'b"c'))]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.XPath())
		})
	}
}

func TestLocatorString(t *testing.T) {
	assert.Equal(t, `id="username"`, ID("username").String())
	assert.Equal(t, `class name="user-info"`, Class("user-info").String())
}

func TestDriverValid(t *testing.T) {
	assert.True(t, DriverRod.Valid())
	assert.True(t, DriverWebDriver.Valid())
	assert.True(t, DriverHTTP.Valid())
	assert.False(t, Driver("playwright").Valid())
}
