package client

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"
)

// Method is one of the HTTP methods the client can send.
type Method string

// Supported methods.
const (
	MethodGet     Method = http.MethodGet
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
	MethodDelete  Method = http.MethodDelete
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
)

// ParseMethod maps a method token onto a supported Method.
// Tokens are case-sensitive, as in HTTP.
func ParseMethod(token string) (Method, error) {
	switch m := Method(token); m {
	case MethodGet, MethodHead, MethodOptions, MethodDelete, MethodPost, MethodPut:
		return m, nil
	default:
		return "", &UnsupportedMethodError{Method: token}
	}
}

// HasBody reports whether requests with this method carry a payload.
func (m Method) HasBody() bool {
	return m == MethodPost || m == MethodPut
}

// BasicAuth holds credentials for the Authorization header.
type BasicAuth struct {
	Username string
	Password string
}

// Header returns the Authorization header value. Non-ASCII characters are
// replaced with '?' before encoding.
func (a BasicAuth) Header() string {
	return "Basic " + base64.StdEncoding.EncodeToString(asciiBytes(a.Username+":"+a.Password))
}

// Coordinates describe a single request. They are read, never modified,
// by Invoke.
type Coordinates struct {
	// Scheme is the URL scheme, e.g. "https".
	Scheme string

	// Host is the authority, optionally with a port.
	Host string

	// Path is a template that may contain {name} placeholders.
	Path string

	// PathParams maps placeholder names to their literal replacements.
	PathParams map[string]string

	// Method is the HTTP method token.
	Method string

	// Auth enables Basic authentication when non-nil.
	Auth *BasicAuth

	// Headers are added to the request.
	Headers http.Header

	// Cookies are attached to the request.
	Cookies []*http.Cookie

	// Query holds query parameters; each value is sent separately.
	Query url.Values
}

// WithQuery returns a copy of c whose query has name set to value.
// The receiver's query map is left untouched.
func (c Coordinates) WithQuery(name, value string) Coordinates {
	q := make(url.Values, len(c.Query)+1)
	for k, vs := range c.Query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set(name, value)
	c.Query = q
	return c
}

// Body is a request payload. The caller picks the variant; the client
// never inspects the runtime type of the value.
type Body interface {
	encode() ([]byte, string, error)
}

// TextBody is sent as text/plain.
type TextBody string

func (b TextBody) encode() ([]byte, string, error) {
	return []byte(b), "text/plain", nil
}

// RawBody is sent unchanged with its own media type. An empty
// ContentType sends no Content-Type header.
type RawBody struct {
	Data        []byte
	ContentType string
}

func (b RawBody) encode() ([]byte, string, error) {
	return b.Data, b.ContentType, nil
}

// JSONBody is sent as indented application/json.
type JSONBody struct {
	Value any
}

func (b JSONBody) encode() ([]byte, string, error) {
	data, err := Marshal(b.Value)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// Marshal encodes v as JSON indented by two spaces.
func Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// SubstitutePath replaces every {key} in template with its value from
// params. Keys are applied in sorted order; placeholders without a value
// are left as they are.
func SubstitutePath(template string, params map[string]string) string {
	if len(params) == 0 {
		return template
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	path := template
	for _, key := range keys {
		path = strings.ReplaceAll(path, "{"+key+"}", params[key])
	}
	return path
}

// BuildURL resolves the coordinates into an absolute URL with query.
func BuildURL(c Coordinates) (*url.URL, error) {
	path := SubstitutePath(c.Path, c.PathParams)
	raw := c.Scheme + "://" + c.Host + path

	if c.Scheme == "" {
		return nil, &MalformedRequestError{URL: raw, Err: errors.New("scheme is required")}
	}
	if c.Host == "" {
		return nil, &MalformedRequestError{URL: raw, Err: errors.New("host is required")}
	}

	base, err := url.Parse(c.Scheme + "://" + c.Host)
	if err != nil {
		return nil, &MalformedRequestError{URL: raw, Err: err}
	}
	if base.Host == "" || base.Path != "" || base.RawQuery != "" || base.Fragment != "" || base.User != nil {
		return nil, &MalformedRequestError{URL: raw, Err: fmt.Errorf("invalid host %q", c.Host)}
	}

	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := &url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   path,
	}
	if len(c.Query) > 0 {
		u.RawQuery = c.Query.Encode()
	}

	if _, err := url.Parse(u.String()); err != nil {
		return nil, &MalformedRequestError{URL: raw, Err: err}
	}
	return u, nil
}

func asciiBytes(s string) []byte {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r < utf8.RuneSelf {
			b = append(b, byte(r))
		} else {
			b = append(b, '?')
		}
	}
	return b
}
