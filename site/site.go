// Package site serves the demo pages: a templated greeting, a GIF and the
// server clock.
package site

import (
	"embed"
	"encoding/base64"
	"html"
	"io/fs"
	stdhttp "net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/tcp-http/config"
	"github.com/searchktools/tcp-http/core/http"
)

//go:embed assets
var embedded embed.FS

// Asset file names
const (
	HelloFile = "hello.html"
	TimeFile  = "time.template.html"
	GrootFile = "groot.gif"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeGIF  = "image/gif"

	nameCookie      = "name"
	defaultGreeting = "Hello"
	defaultName     = "World"

	// month/day/year, e.g. 10/19/2026 14:03:09
	timeLayout = "01/02/2006 15:04:05"
)

// Options configure a Handler
type Options struct {
	// CookieMode is one of config.CookieModePlain, CookieModeCookie or
	// CookieModeBase64. Empty means base64.
	CookieMode string

	// AssetsDir overrides the embedded pages when set
	AssetsDir string

	// Now defaults to time.Now
	Now func() time.Time
}

// Handler renders the site. It implements core.Handler.
type Handler struct {
	assets fs.FS
	mode   string
	now    func() time.Time
	routes map[string]func(*http.Request) *http.Response
	logger zerolog.Logger
}

// New creates a site handler
func New(opts Options, logger zerolog.Logger) *Handler {
	h := &Handler{
		mode:   opts.CookieMode,
		now:    opts.Now,
		logger: logger,
	}
	if h.mode == "" {
		h.mode = config.CookieModeBase64
	}
	if h.now == nil {
		h.now = time.Now
	}

	if opts.AssetsDir != "" {
		h.assets = os.DirFS(opts.AssetsDir)
	} else {
		sub, err := fs.Sub(embedded, "assets")
		if err != nil {
			panic(err)
		}
		h.assets = sub
	}

	h.routes = map[string]func(*http.Request) *http.Response{
		"/":           h.hello,
		"/hello.html": h.hello,
		"/groot.gif":  h.groot,
		"/time.html":  h.clock,
	}
	return h
}

// Handle routes by path only; the method is not consulted.
func (h *Handler) Handle(req *http.Request) []byte {
	route, ok := h.routes[req.Path]
	if !ok {
		return http.NotFound().Bytes()
	}
	return route(req).Bytes()
}

func (h *Handler) hello(req *http.Request) *http.Response {
	page, err := fs.ReadFile(h.assets, HelloFile)
	if err != nil {
		return h.assetError(HelloFile, err)
	}

	greeting, ok := req.Query.Get("greeting")
	if !ok {
		greeting = defaultGreeting
	}

	resp := http.OK()
	name, fromQuery := req.Query.Get("name")
	switch {
	case fromQuery:
		if cookie := h.encodeName(name); cookie != "" {
			resp.Header(http.HeaderSetCookie, nameCookie+"="+cookie)
		}
	case h.mode != config.CookieModePlain:
		name, ok = h.cookieName(req)
		if !ok {
			name = defaultName
		}
	default:
		name = defaultName
	}

	body := strings.NewReplacer(
		"{{Hello}}", html.EscapeString(greeting),
		"{{World}}", html.EscapeString(name),
	).Replace(string(page))

	return resp.Body(contentTypeHTML, []byte(body))
}

func (h *Handler) groot(*http.Request) *http.Response {
	gif, err := fs.ReadFile(h.assets, GrootFile)
	if err != nil {
		return h.assetError(GrootFile, err)
	}
	return http.OK().Body(contentTypeGIF, gif)
}

func (h *Handler) clock(*http.Request) *http.Response {
	page, err := fs.ReadFile(h.assets, TimeFile)
	if err != nil {
		return h.assetError(TimeFile, err)
	}
	body := strings.ReplaceAll(string(page), "{{ServerTime}}", h.now().Format(timeLayout))
	return http.OK().Body(contentTypeHTML, []byte(body))
}

func (h *Handler) assetError(name string, err error) *http.Response {
	h.logger.Error().Err(err).Str("asset", name).Msg("failed to read asset")
	return http.NewResponse(500).Body("", nil)
}

// encodeName returns the cookie value remembering name, or "" when the
// mode keeps no memory.
func (h *Handler) encodeName(name string) string {
	switch h.mode {
	case config.CookieModeCookie:
		return url.QueryEscape(name)
	case config.CookieModeBase64:
		return base64.StdEncoding.EncodeToString([]byte(name))
	default:
		return ""
	}
}

// cookieName recovers the remembered name from the first valid name cookie.
func (h *Handler) cookieName(req *http.Request) (string, bool) {
	for _, line := range req.Headers.Values(http.HeaderCookie) {
		cookies, err := stdhttp.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name != nameCookie {
				continue
			}
			switch h.mode {
			case config.CookieModeCookie:
				if name, err := url.QueryUnescape(c.Value); err == nil {
					return name, true
				}
			case config.CookieModeBase64:
				if raw, err := base64.StdEncoding.DecodeString(c.Value); err == nil {
					return string(raw), true
				}
			}
		}
	}
	return "", false
}
