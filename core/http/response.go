package http

import "strconv"

// Response assembles a complete HTTP/1.1 response: status line, headers in
// insertion order, blank line and body.
type Response struct {
	status  int
	headers Headers
	body    []byte
}

// NewResponse starts a response with the given status code.
func NewResponse(status int) *Response {
	return &Response{status: status}
}

// OK starts a 200 response
func OK() *Response {
	return NewResponse(200)
}

// NotFound starts a 404 response
func NotFound() *Response {
	return NewResponse(404)
}

// Header appends a header. Repeated names are all written.
func (r *Response) Header(name, value string) *Response {
	r.headers = append(r.headers, Header{Name: name, Value: value})
	return r
}

// Body sets the body and a matching Content-Length header.
func (r *Response) Body(contentType string, body []byte) *Response {
	r.body = body
	if contentType != "" {
		r.Header(HeaderContentType, contentType)
	}
	return r.Header(HeaderContentLength, strconv.Itoa(len(body)))
}

// Status returns the status code
func (r *Response) Status() int {
	return r.status
}

// Bytes renders the response
func (r *Response) Bytes() []byte {
	size := len("HTTP/1.1 000 \r\n\r\n") + len(StatusText(r.status)) + len(r.body)
	for _, h := range r.headers {
		size += len(h.Name) + len(h.Value) + len(": \r\n")
	}

	buf := make([]byte, 0, size)
	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(r.status), 10)
	buf = append(buf, ' ')
	buf = append(buf, StatusText(r.status)...)
	buf = append(buf, crlf...)
	for _, h := range r.headers {
		buf = append(buf, h.Name...)
		buf = append(buf, ": "...)
		buf = append(buf, h.Value...)
		buf = append(buf, crlf...)
	}
	buf = append(buf, crlf...)
	return append(buf, r.body...)
}

// StatusText returns the reason phrase for the status codes this server emits.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 413:
		return "Content Too Large"
	case 500:
		return "Internal Server Error"
	default:
		return "Unknown"
	}
}
