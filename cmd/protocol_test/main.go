// Command protocol_test exercises the fluent client surface end to end:
// building a request, following redirects, and forwarding cookies across
// hops against a configurable target.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	rawhttp "github.com/WhileEndless/go-rawhttp/v2"
)

func main() {
	url := pflag.StringP("url", "u", "http://127.0.0.1:8080/", "request URL")
	maxRedirects := pflag.Int("max-redirects", 10, "maximum redirect hops to follow")
	insecure := pflag.Bool("insecure", false, "skip TLS certificate verification")
	pflag.Parse()

	fmt.Println("=== Request Builder / Redirect Test ===")

	c := rawhttp.NewClient()
	c.SetMaxRedirects(*maxRedirects)
	c.SetVerifySSL(!*insecure)

	res, err := c.Request(*url).Header("X-Test", "protocol_test").Get()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Status: %d\n", res.StatusCode)
	fmt.Printf("HTTP Version: %s\n", res.HTTPVersion)
	fmt.Printf("Body Size: %d bytes\n", res.BodyBytes)
	if enc := res.Headers["Content-Encoding"]; len(enc) > 0 {
		fmt.Printf("Content-Encoding (pre-decompression): %v\n", enc)
	}
}
