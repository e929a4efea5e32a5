package router

import (
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// CORSConfig controls the headers injected by the CORS guard (spec §4.D
// "CORS"), grounded on original_source/examples/http_server/
// server_cors_example.cpp.
type CORSConfig struct {
	AllowOrigin  string   // default "*"
	AllowMethods []string // default the full method set this router supports
	AllowHeaders []string // default ["Content-Type", "Authorization"]
	MaxAge       int      // seconds, default 86400
}

func (c CORSConfig) withDefaults() CORSConfig {
	if c.AllowOrigin == "" {
		c.AllowOrigin = "*"
	}
	if len(c.AllowMethods) == 0 {
		c.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(c.AllowHeaders) == 0 {
		c.AllowHeaders = []string{"Content-Type", "Authorization"}
	}
	if c.MaxAge == 0 {
		c.MaxAge = 86400
	}
	return c
}

// applyCORSHeaders injects the standard CORS response headers on every
// response (spec §4.D: "inject ... on every response").
func applyCORSHeaders(res *httpcodec.Response, cfg CORSConfig) {
	res.Headers.Set("Access-Control-Allow-Origin", cfg.AllowOrigin)
	res.Headers.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
	res.Headers.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
	res.Headers.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
}
