package client

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"testing"
)

// listenLoopback opens a local TCP listener for a single-request fake
// server, skipping the test if the sandbox disallows raw sockets (mirrors
// tests/integration's listenTCP helper).
func listenLoopback(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("network sockets not permitted in sandbox: %v", err)
	}
	return ln
}

func TestRequestBuilderSendSetsDefaultHeaders(t *testing.T) {
	ln := listenLoopback(t)
	defer ln.Close()

	captured := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}
			lines = append(lines, line)
			if line == "\r\n" {
				break
			}
		}
		captured <- strings.Join(lines, "")
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	c := New()
	c.SetFollowRedirects(false)
	res, err := c.Request("http://127.0.0.1:" + strconv.Itoa(addr.Port) + "/widgets").
		Header("X-Test", "1").
		Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("StatusCode: got %d", res.StatusCode)
	}

	raw := <-captured
	if !strings.HasPrefix(raw, "GET /widgets HTTP/1.1\r\n") {
		t.Fatalf("request line: got %q", raw)
	}
	if !strings.Contains(raw, "User-Agent: go-rawhttp/2.0\r\n") {
		t.Fatalf("missing default User-Agent: %q", raw)
	}
	if !strings.Contains(raw, "Accept-Encoding: gzip, deflate\r\n") {
		t.Fatalf("missing default Accept-Encoding: %q", raw)
	}
	if !strings.Contains(raw, "X-Test: 1\r\n") {
		t.Fatalf("missing caller-supplied header: %q", raw)
	}
}

func TestRequestBuilderPostSetsContentLength(t *testing.T) {
	ln := listenLoopback(t)
	defer ln.Close()

	captured := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}
			lines = append(lines, line)
			if line == "\r\n" {
				break
			}
		}
		captured <- strings.Join(lines, "")
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	c := New()
	_, err := c.Request("http://127.0.0.1:" + strconv.Itoa(addr.Port) + "/items").
		Body([]byte(`{"a":1}`), "application/json").
		Post()
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	raw := <-captured
	if !strings.HasPrefix(raw, "POST /items HTTP/1.1\r\n") {
		t.Fatalf("request line: got %q", raw)
	}
	if !strings.Contains(raw, "Content-Length: 7\r\n") {
		t.Fatalf("missing Content-Length: %q", raw)
	}
	if !strings.Contains(raw, "Content-Type: application/json\r\n") {
		t.Fatalf("missing Content-Type: %q", raw)
	}
}

