package router

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// AuthChecker verifies decoded Basic-Auth credentials. user/pass are the
// decoded username/password; ok reports whether they're valid, and
// principal is the identity to attach to the request on success (spec
// §4.D "Successful credentials are attached to the request").
type AuthChecker func(user, pass string) (principal string, ok bool)

// SingleCredentialChecker builds an AuthChecker that accepts exactly one
// (user, pass) pair, using constant-time comparison.
func SingleCredentialChecker(user, pass string) AuthChecker {
	return func(u, p string) (string, bool) {
		uok := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
		pok := subtle.ConstantTimeCompare([]byte(p), []byte(pass)) == 1
		if uok && pok {
			return user, true
		}
		return "", false
	}
}

// MultiCredentialChecker builds an AuthChecker from a user->password map.
func MultiCredentialChecker(creds map[string]string) AuthChecker {
	return func(u, p string) (string, bool) {
		want, ok := creds[u]
		if !ok {
			return "", false
		}
		if subtle.ConstantTimeCompare([]byte(p), []byte(want)) == 1 {
			return u, true
		}
		return "", false
	}
}

// BasicAuthRealm is the realm string used in the WWW-Authenticate
// challenge header on a 401 (spec §4.D "set_basic_auth(path_prefix,
// realm, ...)").
var BasicAuthRealm = "restricted"

// checkAuth enforces the route's auth requirement. On failure it
// populates res with 401 + WWW-Authenticate and returns false; on success
// it attaches the authenticated principal to req and returns true.
func (r *Router) checkAuth(level AuthLevel, req *httpcodec.Request, res *httpcodec.Response) bool {
	if r.authChecker == nil {
		return r.fail401(res)
	}

	header := req.Headers.Get("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return r.fail401(res)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return r.fail401(res)
	}
	user, pass, found := strings.Cut(string(decoded), ":")
	if !found {
		return r.fail401(res)
	}

	principal, ok := r.authChecker(user, pass)
	if !ok {
		return r.fail401(res)
	}
	if level == AuthAdmin && r.isAdmin != nil && !r.isAdmin(principal) {
		return r.fail401(res)
	}
	req.Principal = principal
	return true
}

func (r *Router) fail401(res *httpcodec.Response) bool {
	res.Status = httpcodec.StatusUnauthorized
	res.Headers.Set("WWW-Authenticate", `Basic realm="`+BasicAuthRealm+`"`)
	res.SetContentWithType([]byte("401 Unauthorized"), "text/plain")
	return false
}
