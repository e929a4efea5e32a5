package client

import (
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
)

// target is a parsed "scheme://host[:port]/path[?query]" URL, resolved
// just far enough to drive Options (spec's SPEC_FULL non-goal explicitly
// scopes full RFC 3986 parsing out — scheme/host/port/path/query only).
type target struct {
	Scheme string
	Host   string
	Port   int
	Path   string // includes query string, suitable for the request line
}

// parseTargetURL splits raw into its scheme/host/port/path components.
func parseTargetURL(raw string) (target, error) {
	rest := raw
	scheme := "http"
	if idx := strings.Index(rest, "://"); idx >= 0 {
		scheme = strings.ToLower(rest[:idx])
		rest = rest[idx+3:]
	}

	path := "/"
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		path = rest[idx:]
		rest = rest[:idx]
	}
	if rest == "" {
		return target{}, errors.NewValidationError("url missing host: " + raw)
	}

	host := rest
	port := 0
	if idx := strings.LastIndexByte(rest, ':'); idx >= 0 {
		if p, err := strconv.Atoi(rest[idx+1:]); err == nil {
			host = rest[:idx]
			port = p
		}
	}
	if port == 0 {
		if scheme == "https" || scheme == "wss" {
			port = 443
		} else {
			port = 80
		}
	}

	return target{Scheme: scheme, Host: host, Port: port, Path: path}, nil
}

func (t target) String() string {
	return t.Scheme + "://" + t.Host + ":" + strconv.Itoa(t.Port) + t.Path
}

// resolveRedirect applies an HTTP redirect Location against the request
// that produced it: an absolute URL replaces the target outright, while any
// other Location keeps the current scheme/host/port and becomes the new
// path (spec §4.H "Redirects"). A Location without a leading "/" is rooted
// at "/"; it is not resolved against the base path.
func resolveRedirect(base target, location string) (target, error) {
	if strings.Contains(location, "://") {
		return parseTargetURL(location)
	}
	if location == "" {
		return target{}, errors.NewValidationError("empty redirect location")
	}
	if location[0] != '/' {
		location = "/" + location
	}
	next := base
	next.Path = location
	return next, nil
}
