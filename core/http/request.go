package http

import (
	"net/url"
	"strings"
)

// Well-known header names
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderConnection    = "Connection"
	HeaderCookie        = "Cookie"
	HeaderSetCookie     = "Set-Cookie"
)

// Header is a single request header as received on the wire.
type Header struct {
	Name  string
	Value string
}

// Headers keeps headers in arrival order. Duplicates are retained.
type Headers []Header

// Get returns the value of the first header matching name case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Values returns every value of headers matching name, in arrival order.
func (h Headers) Values(name string) []string {
	var values []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// Param is one decoded key/value pair of a query string.
type Param struct {
	Key   string
	Value string
}

// Query is an ordered multimap of query parameters.
type Query []Param

// Get returns the first value for key.
func (q Query) Get(key string) (string, bool) {
	for _, p := range q {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Values returns all values for key in order of appearance.
func (q Query) Values(key string) []string {
	var values []string
	for _, p := range q {
		if p.Key == key {
			values = append(values, p.Value)
		}
	}
	return values
}

// ParseQuery decodes a form-urlencoded query string keeping order and
// duplicate keys. Pairs with invalid percent-escapes keep their raw text.
func ParseQuery(raw string) Query {
	var q Query
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		q = append(q, Param{Key: unescape(key), Value: unescape(value)})
	}
	return q
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// Request is one fully received HTTP/1.1 request. It owns all of its memory
// and is not modified after ParseRequest returns it.
type Request struct {
	Method  string
	Path    string
	Query   Query
	Proto   string
	Headers Headers
	Body    []byte
}

// Header returns the first value of the named header.
func (r *Request) Header(name string) string {
	v, _ := r.Headers.Get(name)
	return v
}
