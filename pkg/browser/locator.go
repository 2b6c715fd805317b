package browser

import (
	"fmt"
	"regexp"
	"strings"
)

// By is an element lookup strategy
type By string

const (
	ByID          By = "id"
	ByName        By = "name"
	ByClassName   By = "class name"
	ByCSSSelector By = "css selector"
	ByTagName     By = "tag name"
	ByXPath       By = "xpath"
	ByTestID      By = "data-testid"
	ByText        By = "text" // element whose own text contains the value
)

// Locator identifies elements on a page
type Locator struct {
	By    By
	Value string
}

// ID locates an element by its id attribute
func ID(id string) Locator {
	return Locator{By: ByID, Value: id}
}

// Name locates form controls by their name attribute
func Name(name string) Locator {
	return Locator{By: ByName, Value: name}
}

// Class locates elements carrying a CSS class
func Class(class string) Locator {
	return Locator{By: ByClassName, Value: class}
}

func CSS(selector string) Locator {
	return Locator{By: ByCSSSelector, Value: selector}
}

func Tag(tag string) Locator {
	return Locator{By: ByTagName, Value: tag}
}

func XPath(expr string) Locator {
	return Locator{By: ByXPath, Value: expr}
}

// TestID locates an element by its data-testid attribute
func TestID(testID string) Locator {
	return Locator{By: ByTestID, Value: testID}
}

// TextContaining locates elements whose own text contains s
func TextContaining(s string) Locator {
	return Locator{By: ByText, Value: s}
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%q", l.By, l.Value)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// CSS returns an equivalent CSS selector. ok is false for strategies CSS
// cannot express (xpath and text).
func (l Locator) CSS() (selector string, ok bool) {
	switch l.By {
	case ByID:
		if identPattern.MatchString(l.Value) {
			return "#" + l.Value, true
		}
		return fmt.Sprintf("[id='%s']", escapeAttrValue(l.Value)), true
	case ByName:
		return fmt.Sprintf("[name='%s']", escapeAttrValue(l.Value)), true
	case ByClassName:
		return "." + strings.TrimPrefix(l.Value, "."), true
	case ByCSSSelector, ByTagName:
		return l.Value, true
	case ByTestID:
		return fmt.Sprintf("[data-testid='%s']", escapeAttrValue(l.Value)), true
	}
	return "", false
}

// XPath returns an equivalent XPath expression
func (l Locator) XPath() string {
	switch l.By {
	case ByXPath:
		return l.Value
	case ByText:
		return fmt.Sprintf("//*[contains(text(), %s)]", xpathLiteral(l.Value))
	case ByID:
		return fmt.Sprintf("//*[@id=%s]", xpathLiteral(l.Value))
	case ByName:
		return fmt.Sprintf("//*[@name=%s]", xpathLiteral(l.Value))
	case ByTestID:
		return fmt.Sprintf("//*[@data-testid=%s]", xpathLiteral(l.Value))
	case ByTagName:
		return "//" + l.Value
	case ByClassName:
		return fmt.Sprintf("//*[contains(concat(' ', normalize-space(@class), ' '), %s)]",
			xpathLiteral(" "+l.Value+" "))
	}
	return ""
}

// escapeAttrValue escapes a value for use in CSS attribute selectors
func escapeAttrValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)
	return s
}

// xpathLiteral quotes s as an XPath string literal
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}
