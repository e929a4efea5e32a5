// Command simple_pool_test exercises pkg/client's per-host connection pool
// against a single target: two requests should reuse one TCP connection.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	rawhttp "github.com/WhileEndless/go-rawhttp/v2"
)

func main() {
	host := pflag.StringP("host", "H", "127.0.0.1", "target host")
	port := pflag.IntP("port", "p", 8080, "target port")
	scheme := pflag.StringP("scheme", "s", "http", "scheme (http or https)")
	insecure := pflag.Bool("insecure", false, "skip TLS certificate verification")
	pflag.Parse()

	fmt.Println("=== Connection Pooling Test (single host, no proxy) ===")

	sender := rawhttp.NewSender()
	ctx := context.Background()

	opts := rawhttp.Options{
		Host:            *host,
		Port:            *port,
		Scheme:          *scheme,
		ReuseConnection: true,
		InsecureTLS:     *insecure,
	}

	rawReq := []byte(fmt.Sprintf("GET / HTTP/1.1\r\nHost: %s\r\n\r\n", *host))

	fmt.Println("Making request 1...")
	resp1, err := sender.Do(ctx, rawReq, opts)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  Connection Reused: %v\n", resp1.ConnectionReused)
	fmt.Printf("  Body Size: %d bytes\n", resp1.BodyBytes)
	resp1.Body.Close()
	resp1.Raw.Close()

	time.Sleep(100 * time.Millisecond)

	fmt.Println("Making request 2...")
	resp2, err := sender.Do(ctx, rawReq, opts)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  Connection Reused: %v\n", resp2.ConnectionReused)
	fmt.Printf("  Body Size: %d bytes\n", resp2.BodyBytes)
	resp2.Body.Close()
	resp2.Raw.Close()

	if !resp2.ConnectionReused {
		fmt.Println("FAILURE: connection pooling did not reuse the connection")
		os.Exit(1)
	}
	fmt.Println("SUCCESS: connection pooling works")
}
