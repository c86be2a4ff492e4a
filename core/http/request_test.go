package http

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHeadersLookup(t *testing.T) {
	headers := Headers{
		{Name: "Content-Type", Value: "text/plain"},
		{Name: "cookie", Value: "a=1"},
		{Name: "COOKIE", Value: "b=2"},
	}

	if v, ok := headers.Get("content-type"); !ok || v != "text/plain" {
		t.Errorf("Get(content-type) = %q, %v", v, ok)
	}
	if v, ok := headers.Get("Cookie"); !ok || v != "a=1" {
		t.Errorf("Get(Cookie) = %q, %v, want first value", v, ok)
	}
	if _, ok := headers.Get("Host"); ok {
		t.Error("Get(Host) found a missing header")
	}
	if diff := cmp.Diff([]string{"a=1", "b=2"}, headers.Values("Cookie")); diff != "" {
		t.Errorf("Values(Cookie) mismatch (-want +got):\n%s", diff)
	}

	req := &Request{Headers: headers}
	if req.Header("CONTENT-TYPE") != "text/plain" {
		t.Errorf("Request.Header = %q", req.Header("CONTENT-TYPE"))
	}
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want Query
	}{
		{"", nil},
		{"a=1", Query{{Key: "a", Value: "1"}}},
		{"a=1&a=2&b", Query{{Key: "a", Value: "1"}, {Key: "a", Value: "2"}, {Key: "b", Value: ""}}},
		{"greeting=Hi%2C+there&name=%3Cb%3E", Query{{Key: "greeting", Value: "Hi, there"}, {Key: "name", Value: "<b>"}}},
		{"k=v=w", Query{{Key: "k", Value: "v=w"}}},
		{"&&x=1&", Query{{Key: "x", Value: "1"}}},
	}

	for _, tt := range tests {
		got := ParseQuery(tt.raw)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseQuery(%q) mismatch (-want +got):\n%s", tt.raw, diff)
		}
	}

	q := ParseQuery("a=1&b=2&a=3")
	if v, ok := q.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v", v, ok)
	}
	if _, ok := q.Get("c"); ok {
		t.Error("Get(c) found a missing key")
	}
	if diff := cmp.Diff([]string{"1", "3"}, q.Values("a")); diff != "" {
		t.Errorf("Values(a) mismatch (-want +got):\n%s", diff)
	}
}
