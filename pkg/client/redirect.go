package client

import (
	"context"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/buffer"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/compress"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// defaultMaxRedirects matches common browser/client defaults and is the
// spec §8 "redirect chain length equal to max_redirects" cap.
const defaultMaxRedirects = 10

// cookieJar forwards cookies across redirects within one call chain (spec
// §9 "Cookie handling across redirects is shallow ... follow RFC 6265
// conservatively"): a plain host-keyed map of name/value pairs, no
// path/domain/expiry matching beyond same-host forwarding.
type cookieJar struct {
	byHost map[string]map[string]string
}

func newCookieJar() *cookieJar {
	return &cookieJar{byHost: map[string]map[string]string{}}
}

func (j *cookieJar) apply(req *httpcodec.Request, t target) {
	jar, ok := j.byHost[t.Host]
	if !ok || len(jar) == 0 {
		return
	}
	var b strings.Builder
	first := true
	for name, value := range jar {
		if !first {
			b.WriteString("; ")
		}
		first = false
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(value)
	}
	if existing := req.Headers.Get("Cookie"); existing != "" {
		req.Headers.Set("Cookie", existing+"; "+b.String())
	} else {
		req.Headers.Set("Cookie", b.String())
	}
}

func (j *cookieJar) store(host string, setCookieValues []string) {
	if len(setCookieValues) == 0 {
		return
	}
	jar, ok := j.byHost[host]
	if !ok {
		jar = map[string]string{}
		j.byHost[host] = jar
	}
	for _, sc := range setCookieValues {
		first := strings.SplitN(sc, ";", 2)[0]
		eq := strings.IndexByte(first, '=')
		if eq <= 0 {
			continue
		}
		jar[strings.TrimSpace(first[:eq])] = strings.TrimSpace(first[eq+1:])
	}
}

// isRedirectStatus reports the 3xx codes spec §4.H follows automatically.
func isRedirectStatus(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// doFollowingRedirects sends req and, while the response is a redirect
// status and the client has redirects enabled, follows Location up to
// MaxRedirects hops (spec §4.H "Redirects", §8 "redirect chain length
// equal to max_redirects -> last response returned; one more -> final
// response's error reflects the redirect loop cap").
//
// 303 always downgrades to GET with no body; 301/302 downgrade a POST to
// GET (the long-standing browser-compatible behavior most HTTP clients
// implement, despite RFC 7231 technically allowing method preservation);
// 307/308 always preserve the original method and body.
func (c *Client) doFollowingRedirects(ctx context.Context, req *httpcodec.Request, t target, opts Options) (*Response, error) {
	method := req.Method
	body := req.Body
	headers := req.Headers

	for hop := 0; ; hop++ {
		reqBytes, err := requestBytes(req)
		if err != nil {
			return nil, err
		}
		opts.Scheme, opts.Host, opts.Port = t.Scheme, t.Host, t.Port

		res, err := c.Do(ctx, reqBytes, opts)
		if err != nil {
			return res, err
		}
		c.cookies.store(t.Host, res.Headers["Set-Cookie"])
		decompressResponseBody(res)

		if !c.followRedirects || !isRedirectStatus(res.StatusCode) {
			return res, nil
		}
		if hop >= c.maxRedirects {
			return res, errors.NewProtocolError("too many redirects (max "+strconv.Itoa(c.maxRedirects)+")", nil)
		}
		location := firstHeader(res.Headers, "Location")
		if location == "" {
			return res, nil
		}
		nextTarget, err := resolveRedirect(t, location)
		if err != nil {
			return res, nil
		}
		t = nextTarget

		nextMethod := method
		nextBody := body
		if res.StatusCode == 303 || ((res.StatusCode == 301 || res.StatusCode == 302) && method == httpcodec.MethodPost) {
			nextMethod = httpcodec.MethodGet
			nextBody = httpcodec.EmptyBody()
		}
		method = nextMethod
		body = nextBody

		req = httpcodec.NewRequest(method, t.Path)
		req.Scheme, req.Host, req.Port = t.Scheme, t.Host, t.Port
		req.Headers = headers.Clone()
		req.Headers.Set("Host", hostHeader(t))
		req.Body = body
		if body.Kind == httpcodec.BodyBuffer {
			req.Headers.Set("Content-Length", strconv.Itoa(len(body.Bytes)))
		} else {
			req.Headers.Del("Content-Length")
		}
		c.cookies.apply(req, t)
	}
}

func firstHeader(h map[string][]string, name string) string {
	for k, vs := range h {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// decompressResponseBody transparently inflates res.Body in place when
// Content-Encoding names a supported coding (spec §4.G client side).
func decompressResponseBody(res *Response) {
	if res == nil || res.Body == nil {
		return
	}
	enc := firstHeader(res.Headers, "Content-Encoding")
	if enc == "" || strings.EqualFold(enc, "identity") {
		return
	}
	if !compress.IsSupported(enc) {
		return
	}
	out, err := compress.Decompress(enc, res.Body.Bytes())
	if err != nil {
		return
	}
	res.Body.Close()
	res.Body = buffer.NewWithData(out)
	res.BodyBytes = int64(len(out))
}
