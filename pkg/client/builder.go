package client

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// RequestBuilder is the fluent, single-use request surface (spec §4.H,
// grounded on the original implementation's request_builder chaining
// surface): configure one request with .Header/.Headers/.Body/.Form/
// .Timeout, then terminate with .Get()/.Post()/... or .Send(method).
// A builder must not be reused after a terminator runs.
type RequestBuilder struct {
	client  *Client
	rawURL  string
	headers *httpcodec.Headers
	body    []byte
	ctype   string
	timeout time.Duration
}

// Request begins building a request against rawURL (spec §6
// "request(url) returning a builder").
func (c *Client) Request(rawURL string) *RequestBuilder {
	return &RequestBuilder{
		client:  c,
		rawURL:  rawURL,
		headers: httpcodec.NewHeaders(),
	}
}

// Header sets one request header, overwriting any prior value for name.
func (b *RequestBuilder) Header(name, value string) *RequestBuilder {
	b.headers.Set(name, value)
	return b
}

// Headers sets every (name, value) pair in m.
func (b *RequestBuilder) Headers(m map[string]string) *RequestBuilder {
	for k, v := range m {
		b.headers.Set(k, v)
	}
	return b
}

// Body sets a raw request body and its Content-Type.
func (b *RequestBuilder) Body(data []byte, contentType string) *RequestBuilder {
	b.body = data
	b.ctype = contentType
	return b
}

// Form encodes pairs as application/x-www-form-urlencoded and uses that as
// the body (spec §6 "form submission").
func (b *RequestBuilder) Form(pairs []httpcodec.KV) *RequestBuilder {
	b.body = []byte(httpcodec.EncodeFormEncoded(pairs))
	b.ctype = "application/x-www-form-urlencoded"
	return b
}

// Timeout overrides both the read and write timeout for this one request.
func (b *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	b.timeout = d
	return b
}

func (b *RequestBuilder) Get() (*Response, error)     { return b.Send(context.Background(), httpcodec.MethodGet) }
func (b *RequestBuilder) Post() (*Response, error)     { return b.Send(context.Background(), httpcodec.MethodPost) }
func (b *RequestBuilder) Put() (*Response, error)      { return b.Send(context.Background(), httpcodec.MethodPut) }
func (b *RequestBuilder) Patch() (*Response, error)    { return b.Send(context.Background(), httpcodec.MethodPatch) }
func (b *RequestBuilder) Delete() (*Response, error)   { return b.Send(context.Background(), httpcodec.MethodDelete) }
func (b *RequestBuilder) Head() (*Response, error)     { return b.Send(context.Background(), httpcodec.MethodHead) }
func (b *RequestBuilder) OptionsReq() (*Response, error) {
	return b.Send(context.Background(), httpcodec.MethodOptions)
}

// Send is the generic terminator every shorthand above delegates to,
// applying redirect-following (§4.H) and response auto-decompression
// (§4.G) on top of the low-level Client.Do wire primitive.
func (b *RequestBuilder) Send(ctx context.Context, method httpcodec.Method) (*Response, error) {
	t, err := parseTargetURL(b.rawURL)
	if err != nil {
		return nil, err
	}
	opts := b.client.baseOptions()
	if b.timeout > 0 {
		opts.ReadTimeout = b.timeout
		opts.WriteTimeout = b.timeout
	}

	req := httpcodec.NewRequest(method, t.Path)
	req.Scheme = t.Scheme
	req.Host = t.Host
	req.Port = t.Port
	req.Headers = b.headers
	if !req.Headers.Has("Host") {
		req.Headers.Set("Host", hostHeader(t))
	}
	if b.client.userAgent != "" && !req.Headers.Has("User-Agent") {
		req.Headers.Set("User-Agent", b.client.userAgent)
	}
	if b.client.autoDecompress && !req.Headers.Has("Accept-Encoding") {
		req.Headers.Set("Accept-Encoding", "gzip, deflate")
	}
	b.client.cookies.apply(req, t)

	if b.body != nil {
		req.SetContentWithType(b.body, b.ctype)
	} else if method != httpcodec.MethodGet && method != httpcodec.MethodHead {
		req.Headers.Set("Content-Length", "0")
	}

	return b.client.doFollowingRedirects(ctx, req, t, opts)
}

func hostHeader(t target) string {
	if (t.Scheme == "http" && t.Port == 80) || (t.Scheme == "https" && t.Port == 443) {
		return t.Host
	}
	return t.Host + ":" + strconv.Itoa(t.Port)
}

func requestBytes(req *httpcodec.Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := httpcodec.WriteRequest(&buf, req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
