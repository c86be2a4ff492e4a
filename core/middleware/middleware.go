package middleware

import (
	"bytes"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/tcp-http/core"
	"github.com/searchktools/tcp-http/core/http"
)

// Middleware decorates a handler
type Middleware func(core.Handler) core.Handler

// Chain wraps h so that the first middleware runs outermost.
func Chain(h core.Handler, mws ...Middleware) core.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// AccessLog logs one line per handled request
func AccessLog(logger zerolog.Logger) Middleware {
	return func(next core.Handler) core.Handler {
		return core.HandlerFunc(func(req *http.Request) []byte {
			start := time.Now()
			resp := next.Handle(req)

			logger.Info().
				Str("method", req.Method).
				Str("path", req.Path).
				Int("status", StatusCode(resp)).
				Int("bytes", len(resp)).
				Dur("latency", time.Since(start)).
				Msg("request")
			return resp
		})
	}
}

// StatusCode reads the status code from a rendered response, or 0 when the
// bytes do not start with an HTTP/1.x status line.
func StatusCode(resp []byte) int {
	if !bytes.HasPrefix(resp, []byte("HTTP/1.")) || len(resp) < 12 || resp[8] != ' ' {
		return 0
	}
	code, err := strconv.Atoi(string(resp[9:12]))
	if err != nil {
		return 0
	}
	return code
}
