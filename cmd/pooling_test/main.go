// Command pooling_test exercises pkg/client's connection pool behavior
// through an upstream proxy, including that distinct proxy configurations
// do not share pooled connections.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	rawhttp "github.com/WhileEndless/go-rawhttp/v2"
)

var (
	host      = pflag.StringP("host", "H", "example.com", "target host")
	port      = pflag.IntP("port", "p", 443, "target port")
	scheme    = pflag.StringP("scheme", "s", "https", "scheme")
	proxyHost = pflag.String("proxy-host", "127.0.0.1", "HTTP proxy host")
	proxyPort = pflag.Int("proxy-port", 8080, "HTTP proxy port")
	insecure  = pflag.Bool("insecure", true, "skip TLS certificate verification")
)

func main() {
	pflag.Parse()

	fmt.Println("Test 1: connection pooling through a proxy")
	testPoolingWithProxy()

	fmt.Println("\n============================================================\n")

	fmt.Println("Test 2: distinct proxy configurations do not share connections")
	testDifferentProxiesNoSharing()
}

func testPoolingWithProxy() {
	sender := rawhttp.NewSender()
	ctx := context.Background()

	opts := rawhttp.Options{
		Host:            *host,
		Port:            *port,
		Scheme:          *scheme,
		ReuseConnection: true,
		Proxy: &rawhttp.ProxyConfig{
			Type: "http",
			Host: *proxyHost,
			Port: *proxyPort,
		},
		InsecureTLS: *insecure,
	}

	rawReq := []byte(fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\nConnection: keep-alive\r\n\r\n", *host))

	resp1, err := sender.Do(ctx, rawReq, opts)
	if err != nil {
		fmt.Printf("Error on request 1: %v\n", err)
		return
	}
	fmt.Printf("Request 1:\n")
	fmt.Printf("  Connected IP: %s:%d\n", resp1.ConnectedIP, resp1.ConnectedPort)
	fmt.Printf("  Connection Reused: %v\n", resp1.ConnectionReused)
	fmt.Printf("  Proxy: %s (%v)\n", resp1.ProxyAddr, resp1.ProxyUsed)
	resp1.Body.Close()
	resp1.Raw.Close()

	time.Sleep(200 * time.Millisecond)

	resp2, err := sender.Do(ctx, rawReq, opts)
	if err != nil {
		fmt.Printf("Error on request 2: %v\n", err)
		return
	}
	fmt.Printf("\nRequest 2:\n")
	fmt.Printf("  Connected IP: %s:%d\n", resp2.ConnectedIP, resp2.ConnectedPort)
	fmt.Printf("  Connection Reused: %v\n", resp2.ConnectionReused)
	fmt.Printf("  Proxy: %s (%v)\n", resp2.ProxyAddr, resp2.ProxyUsed)
	resp2.Body.Close()
	resp2.Raw.Close()

	if resp2.ConnectionReused {
		fmt.Println("\nSUCCESS: connection was reused through the proxy")
	} else {
		fmt.Println("\nFAILURE: connection was not reused through the proxy")
	}
}

func testDifferentProxiesNoSharing() {
	sender1 := rawhttp.NewSender()
	sender2 := rawhttp.NewSender()
	ctx := context.Background()

	opts1 := rawhttp.Options{
		Host:            *host,
		Port:            *port,
		Scheme:          *scheme,
		ReuseConnection: true,
		Proxy: &rawhttp.ProxyConfig{
			Type: "http",
			Host: *proxyHost,
			Port: *proxyPort,
		},
		InsecureTLS: *insecure,
	}

	opts2 := rawhttp.Options{
		Host:            *host,
		Port:            *port,
		Scheme:          *scheme,
		ReuseConnection: true,
		InsecureTLS:     *insecure,
	}

	rawReq := []byte(fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\n\r\n", *host))

	resp1, err := sender1.Do(ctx, rawReq, opts1)
	if err != nil {
		fmt.Printf("Error on request with proxy: %v\n", err)
		return
	}
	fmt.Printf("Request with Proxy:\n")
	fmt.Printf("  Proxy Used: %v (%s)\n", resp1.ProxyUsed, resp1.ProxyAddr)
	resp1.Body.Close()
	resp1.Raw.Close()

	resp2, err := sender2.Do(ctx, rawReq, opts2)
	if err != nil {
		fmt.Printf("Error on request without proxy: %v\n", err)
		return
	}
	fmt.Printf("\nRequest without Proxy:\n")
	fmt.Printf("  Proxy Used: %v\n", resp2.ProxyUsed)
	resp2.Body.Close()
	resp2.Raw.Close()

	if resp1.ProxyUsed != resp2.ProxyUsed {
		fmt.Println("\nSUCCESS: proxy and direct connections tracked separately")
	} else {
		fmt.Println("\nFAILURE: proxy configuration not tracked properly")
	}
}
