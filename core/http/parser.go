package http

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var crlf = []byte("\r\n")

var (
	// ErrIncomplete means the buffered bytes are a valid prefix of a request
	// and more data has to arrive before a verdict is possible.
	ErrIncomplete = errors.New("incomplete HTTP request")

	// ErrInvalidRequest is wrapped by every error that proves the buffered
	// bytes can never become a valid request.
	ErrInvalidRequest = errors.New("invalid HTTP request")

	ErrInvalidRequestLine       = fmt.Errorf("%w: malformed request line", ErrInvalidRequest)
	ErrMissingColon             = fmt.Errorf("%w: header line without colon", ErrInvalidRequest)
	ErrEmptyHeaderName          = fmt.Errorf("%w: empty header name", ErrInvalidRequest)
	ErrInvalidContentLength     = fmt.Errorf("%w: invalid Content-Length", ErrInvalidRequest)
	ErrConflictingContentLength = fmt.Errorf("%w: conflicting Content-Length values", ErrInvalidRequest)
)

// ParseRequest tries to read one request from the start of data.
//
// It returns ErrIncomplete while data is a prefix of a request, an error
// wrapping ErrInvalidRequest once data violates the grammar, and otherwise
// the request with the number of bytes it occupies. Bytes past that count
// belong to whatever follows and are left untouched.
//
// Without a Content-Length header the body is everything buffered after the
// header block.
func ParseRequest(data []byte) (*Request, int, error) {
	lineEnd := bytes.Index(data, crlf)
	if lineEnd == -1 {
		return nil, 0, ErrIncomplete
	}

	req := &Request{}
	if err := parseRequestLine(req, string(data[:lineEnd])); err != nil {
		return nil, 0, err
	}

	pos := lineEnd + len(crlf)
	for {
		end := bytes.Index(data[pos:], crlf)
		if end == -1 {
			return nil, 0, ErrIncomplete
		}
		line := data[pos : pos+end]
		pos += end + len(crlf)

		if len(line) == 0 {
			break
		}

		h, err := parseHeaderLine(line)
		if err != nil {
			return nil, 0, err
		}
		req.Headers = append(req.Headers, h)
	}

	available := len(data) - pos
	bodyLen, err := contentLength(req.Headers, available)
	if err != nil {
		return nil, 0, err
	}
	if bodyLen > available {
		return nil, 0, ErrIncomplete
	}

	req.Body = make([]byte, bodyLen)
	copy(req.Body, data[pos:pos+bodyLen])

	return req, pos + bodyLen, nil
}

// parseRequestLine parses METHOD SP REQUEST-TARGET SP HTTP-VERSION
func parseRequestLine(req *Request, line string) error {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidRequestLine, line)
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if method == "" || target == "" || proto == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRequestLine, line)
	}

	req.Method = method
	req.Proto = proto

	path, rawQuery, found := strings.Cut(target, "?")
	req.Path = path
	if found {
		req.Query = ParseQuery(rawQuery)
	}
	return nil
}

// parseHeaderLine splits on the first colon and trims both halves
func parseHeaderLine(line []byte) (Header, error) {
	colon := bytes.IndexByte(line, ':')
	if colon == -1 {
		return Header{}, fmt.Errorf("%w: %q", ErrMissingColon, line)
	}

	name := bytes.TrimSpace(line[:colon])
	if len(name) == 0 {
		return Header{}, fmt.Errorf("%w: %q", ErrEmptyHeaderName, line)
	}

	return Header{
		Name:  string(name),
		Value: string(bytes.TrimSpace(line[colon+1:])),
	}, nil
}

// contentLength resolves the expected body length. Repeated Content-Length
// headers must agree.
func contentLength(headers Headers, available int) (int, error) {
	values := headers.Values(HeaderContentLength)
	if len(values) == 0 {
		return available, nil
	}

	n, err := strconv.ParseUint(values[0], 10, 63)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidContentLength, values[0])
	}
	for _, v := range values[1:] {
		m, err := strconv.ParseUint(v, 10, 63)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidContentLength, v)
		}
		if m != n {
			return 0, fmt.Errorf("%w: %q and %q", ErrConflictingContentLength, values[0], v)
		}
	}

	if n > uint64(maxInt) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidContentLength, values[0])
	}
	return int(n), nil
}

const maxInt = int(^uint(0) >> 1)
