package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxDocumentSize = 10 << 20

// httpSession renders nothing and runs no scripts. It loads documents over
// HTTP, keeps typed input values on the side and submits forms the way a
// browser would, including required-field validation.
type httpSession struct {
	client *http.Client
	log    *zap.Logger

	mu     sync.Mutex
	closed bool
	url    *url.URL
	doc    *goquery.Document
	gen    int
	values map[*html.Node]string
}

func openHTTP(ctx context.Context, opts Options, log *zap.Logger) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		client = &copied
	}
	if client.Jar == nil {
		client.Jar = jar
	}

	return &httpSession{
		client: client,
		log:    log,
		values: make(map[*html.Node]string),
	}, nil
}

func (s *httpSession) Navigate(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.resolve(target)
	if err != nil {
		return Error.Wrap(fmt.Errorf("failed to navigate to %s: %w", target, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := s.load(req); err != nil {
		return Error.Wrap(fmt.Errorf("failed to navigate to %s: %w", target, err))
	}
	return nil
}

func (s *httpSession) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", Error.New("session closed")
	}
	if s.url == nil {
		return "about:blank", nil
	}
	return s.url.String(), nil
}

func (s *httpSession) Find(ctx context.Context, loc Locator) (Element, error) {
	elements, err := s.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return elements[0], nil
}

func (s *httpSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, Error.New("session closed")
	}
	if s.doc == nil {
		return nil, nil
	}

	var sel *goquery.Selection
	switch {
	case loc.By == ByText:
		sel = s.doc.Find("*").FilterFunction(func(_ int, el *goquery.Selection) bool {
			return ownTextContains(el.Get(0), loc.Value)
		})
	default:
		css, ok := loc.CSS()
		if !ok {
			return nil, fmt.Errorf("%w: %s lookups need a scripting browser", ErrUnsupported, loc.By)
		}
		sel = s.doc.Find(css)
	}

	result := make([]Element, 0, sel.Length())
	for _, node := range sel.Nodes {
		result = append(result, &httpElement{s: s, node: node, gen: s.gen})
	}
	return result, nil
}

func (s *httpSession) WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error {
	return poll(ctx, s, cond, timeout)
}

func (s *httpSession) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("%w: screenshots need a rendering browser", ErrUnsupported)
}

func (s *httpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.doc = nil
	s.values = nil
	s.client.CloseIdleConnections()
	return nil
}

// resolve interprets target relative to the current document
func (s *httpSession) resolve(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if s.url != nil {
		u = s.url.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u, nil
}

// load performs req and replaces the current document with the response.
// Callers hold s.mu.
func (s *httpSession) load(req *http.Request) error {
	if s.closed {
		return Error.New("session closed")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	s.log.Debug("loaded document",
		zap.String("method", req.Method),
		zap.String("url", resp.Request.URL.String()),
		zap.Int("status", resp.StatusCode))

	s.url = resp.Request.URL
	s.doc = doc
	s.gen++
	s.values = make(map[*html.Node]string)
	return nil
}

// submit sends form the way a browser does after an implicit or explicit
// submission. Returns without navigating when a required field is empty.
// Callers hold s.mu.
func (s *httpSession) submit(ctx context.Context, form, submitter *html.Node) error {
	fields := url.Values{}

	controls := s.doc.FindNodes(form).Find("input, textarea, select")
	for _, node := range controls.Nodes {
		if hasAttr(node, "disabled") {
			continue
		}
		if hasAttr(node, "required") && s.value(node) == "" {
			s.log.Debug("form submission blocked by empty required field", zap.String("field", attr(node, "name")))
			return nil
		}

		name := attr(node, "name")
		if name == "" {
			continue
		}
		switch inputType(node) {
		case "submit", "button", "reset", "image", "file":
			continue
		case "checkbox", "radio":
			if !hasAttr(node, "checked") {
				continue
			}
			value := attr(node, "value")
			if value == "" {
				value = "on"
			}
			fields.Add(name, value)
			continue
		}
		fields.Add(name, s.value(node))
	}
	if submitter != nil && attr(submitter, "name") != "" {
		fields.Add(attr(submitter, "name"), attr(submitter, "value"))
	}

	action, err := s.resolve(attr(form, "action"))
	if err != nil {
		return fmt.Errorf("invalid form action: %w", err)
	}

	var req *http.Request
	if strings.EqualFold(attr(form, "method"), http.MethodPost) {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, action.String(), strings.NewReader(fields.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		action.RawQuery = fields.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, action.String(), nil)
		if err != nil {
			return err
		}
	}
	return s.load(req)
}

// value returns the current value of a form control. Callers hold s.mu.
func (s *httpSession) value(node *html.Node) string {
	if v, ok := s.values[node]; ok {
		return v
	}
	if node.DataAtom == atom.Textarea {
		return s.doc.FindNodes(node).Text()
	}
	return attr(node, "value")
}

type httpElement struct {
	s    *httpSession
	node *html.Node
	gen  int
}

// lock acquires the session lock and checks the element still belongs to
// the current document. The caller must unlock on success.
func (e *httpElement) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.s.mu.Lock()
	if e.s.closed {
		e.s.mu.Unlock()
		return Error.New("session closed")
	}
	if e.gen != e.s.gen {
		e.s.mu.Unlock()
		return ErrStale
	}
	return nil
}

func (e *httpElement) Text(ctx context.Context) (string, error) {
	if err := e.lock(ctx); err != nil {
		return "", err
	}
	defer e.s.mu.Unlock()

	return strings.Join(strings.Fields(e.s.doc.FindNodes(e.node).Text()), " "), nil
}

func (e *httpElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.lock(ctx); err != nil {
		return "", false, err
	}
	defer e.s.mu.Unlock()

	if name == "value" && isTextControl(e.node) {
		return e.s.value(e.node), true, nil
	}
	for _, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

func (e *httpElement) SendKeys(ctx context.Context, text string) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.s.mu.Unlock()

	if !isTextControl(e.node) {
		return fmt.Errorf("%w: cannot type into <%s>", ErrUnsupported, e.node.Data)
	}
	e.s.values[e.node] = e.s.value(e.node) + text
	return nil
}

func (e *httpElement) Clear(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.s.mu.Unlock()

	if !isTextControl(e.node) {
		return fmt.Errorf("%w: cannot clear <%s>", ErrUnsupported, e.node.Data)
	}
	e.s.values[e.node] = ""
	return nil
}

func (e *httpElement) Click(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.s.mu.Unlock()

	switch {
	case isSubmitter(e.node):
		form := enclosingForm(e.node)
		if form == nil {
			return nil
		}
		return Error.Wrap(e.s.submit(ctx, form, e.node))
	case e.node.DataAtom == atom.A && hasAttr(e.node, "href"):
		u, err := e.s.resolve(attr(e.node, "href"))
		if err != nil {
			return Error.Wrap(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return Error.Wrap(err)
		}
		return Error.Wrap(e.s.load(req))
	}
	return nil
}

func (e *httpElement) PressEnter(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.s.mu.Unlock()

	if e.node.DataAtom != atom.Input && !isSubmitter(e.node) {
		return nil
	}
	form := enclosingForm(e.node)
	if form == nil {
		return nil
	}
	var submitter *html.Node
	if isSubmitter(e.node) {
		submitter = e.node
	}
	return Error.Wrap(e.s.submit(ctx, form, submitter))
}

func (e *httpElement) Valid(ctx context.Context) (bool, error) {
	if err := e.lock(ctx); err != nil {
		return false, err
	}
	defer e.s.mu.Unlock()

	if !isTextControl(e.node) || hasAttr(e.node, "disabled") {
		return true, nil
	}
	value := e.s.value(e.node)
	if hasAttr(e.node, "required") && value == "" {
		return false, nil
	}
	if n, ok := intAttr(e.node, "minlength"); ok && value != "" && len([]rune(value)) < n {
		return false, nil
	}
	return true, nil
}

func attr(node *html.Node, key string) string {
	for _, a := range node.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(node *html.Node, key string) bool {
	for _, a := range node.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

func intAttr(node *html.Node, key string) (int, bool) {
	if !hasAttr(node, key) {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(attr(node, key), "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

func inputType(node *html.Node) string {
	if node.DataAtom != atom.Input {
		return ""
	}
	t := strings.ToLower(attr(node, "type"))
	if t == "" {
		return "text"
	}
	return t
}

func isTextControl(node *html.Node) bool {
	switch node.DataAtom {
	case atom.Textarea:
		return true
	case atom.Input:
		switch inputType(node) {
		case "submit", "button", "reset", "image", "file", "checkbox", "radio", "hidden":
			return false
		}
		return true
	}
	return false
}

func isSubmitter(node *html.Node) bool {
	switch node.DataAtom {
	case atom.Button:
		t := strings.ToLower(attr(node, "type"))
		return t == "" || t == "submit"
	case atom.Input:
		t := inputType(node)
		return t == "submit" || t == "image"
	}
	return false
}

func enclosingForm(node *html.Node) *html.Node {
	for n := node.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == atom.Form {
			return n
		}
	}
	return nil
}

// ownTextContains reports whether a text node directly under node contains s
func ownTextContains(node *html.Node, s string) bool {
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.Contains(c.Data, s) {
			return true
		}
	}
	return false
}
