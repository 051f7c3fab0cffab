package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/webreq/pkg/client"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlags binds config keys to the named flags.
func bindFlags(v *viper.Viper, lookup func(string) *pflag.Flag, keys map[string]string) {
	for key, name := range keys {
		_ = v.BindPFlag(key, lookup(name))
	}
}

// requestFlags describe one request on the command line.
type requestFlags struct {
	method     string
	scheme     string
	host       string
	path       string
	pathParams []string
	query      []string
	headers    []string
	cookies    []string
	user       string
	password   string
	data       string
	jsonData   string
}

func (f *requestFlags) register(flags *pflag.FlagSet, defaultMethod string) {
	flags.StringVarP(&f.method, "method", "X", defaultMethod, "HTTP method: GET, HEAD, OPTIONS, DELETE, POST or PUT")
	flags.StringVar(&f.scheme, "scheme", "https", "URL scheme")
	flags.StringVar(&f.host, "host", "", "host, optionally with port (required)")
	flags.StringVar(&f.path, "path", "/", "path template with {name} placeholders")
	flags.StringArrayVarP(&f.pathParams, "path-param", "p", nil, "placeholder value as name=value (repeatable)")
	flags.StringArrayVarP(&f.query, "query", "q", nil, "query parameter as name=value (repeatable)")
	flags.StringArrayVarP(&f.headers, "header", "H", nil, "header as name=value (repeatable)")
	flags.StringArrayVar(&f.cookies, "cookie", nil, "cookie as name=value (repeatable)")
	flags.StringVarP(&f.user, "user", "u", "", "Basic auth username (needs --password)")
	flags.StringVar(&f.password, "password", "", "Basic auth password (needs --user)")
	flags.StringVarP(&f.data, "data", "d", "", "text body (sent as text/plain)")
	flags.StringVar(&f.jsonData, "json", "", "JSON body (sent as application/json)")
}

// coordinates converts the flags into request coordinates.
func (f *requestFlags) coordinates() (client.Coordinates, error) {
	if f.host == "" {
		return client.Coordinates{}, errors.New("--host is required")
	}

	coords := client.Coordinates{
		Scheme: f.scheme,
		Host:   f.host,
		Path:   f.path,
		Method: strings.ToUpper(f.method),
	}

	params, err := parsePairs("path-param", f.pathParams)
	if err != nil {
		return client.Coordinates{}, err
	}
	if len(params) > 0 {
		coords.PathParams = make(map[string]string, len(params))
		for _, p := range params {
			coords.PathParams[p[0]] = p[1]
		}
	}

	query, err := parsePairs("query", f.query)
	if err != nil {
		return client.Coordinates{}, err
	}
	if len(query) > 0 {
		coords.Query = url.Values{}
		for _, p := range query {
			coords.Query.Add(p[0], p[1])
		}
	}

	headers, err := parsePairs("header", f.headers)
	if err != nil {
		return client.Coordinates{}, err
	}
	if len(headers) > 0 {
		coords.Headers = http.Header{}
		for _, p := range headers {
			coords.Headers.Add(p[0], p[1])
		}
	}

	cookies, err := parsePairs("cookie", f.cookies)
	if err != nil {
		return client.Coordinates{}, err
	}
	for _, p := range cookies {
		coords.Cookies = append(coords.Cookies, &http.Cookie{Name: p[0], Value: p[1]})
	}

	if f.user != "" && f.password != "" {
		coords.Auth = &client.BasicAuth{Username: f.user, Password: f.password}
	}

	return coords, nil
}

// body returns the payload chosen by --data or --json.
func (f *requestFlags) body() (client.Body, error) {
	switch {
	case f.data != "" && f.jsonData != "":
		return nil, errors.New("--data and --json are mutually exclusive")
	case f.jsonData != "":
		if !json.Valid([]byte(f.jsonData)) {
			return nil, errors.New("--json is not valid JSON")
		}
		return client.JSONBody{Value: json.RawMessage(f.jsonData)}, nil
	case f.data != "":
		return client.TextBody(f.data), nil
	default:
		return nil, nil
	}
}

// parsePairs splits name=value arguments. Values may contain '='.
func parsePairs(flag string, values []string) ([][2]string, error) {
	pairs := make([][2]string, 0, len(values))
	for _, raw := range values {
		name, value, ok := strings.Cut(raw, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--%s %q: expected name=value", flag, raw)
		}
		pairs = append(pairs, [2]string{name, value})
	}
	return pairs, nil
}
