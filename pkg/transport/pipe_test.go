package transport

import (
	"io"
	"net"
	"testing"
	"time"
)

func echoOnce(t *testing.T, ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	go func() {
		defer conn.Close()
		io.Copy(conn, conn)
	}()
}

func TestSocketPipeRoundTrip(t *testing.T) {
	echoLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer echoLn.Close()
	go echoOnce(t, echoLn)

	backend, err := net.Dial("tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatalf("dial backend: %v", err)
	}
	client, proxySide := net.Pipe()

	pipe := NewSocketPipe(proxySide, backend)
	done := make(chan struct{})
	go func() {
		pipe.Run()
		close(done)
	}()

	msg := []byte("hello socket pipe")
	if _, err := client.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, len(msg))
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != string(msg) {
		t.Fatalf("got %q want %q", buf, msg)
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipe did not finish after client close")
	}

	if pipe.BytesSourceToTarget() != int64(len(msg)) {
		t.Fatalf("BytesSourceToTarget = %d, want %d", pipe.BytesSourceToTarget(), len(msg))
	}
	if pipe.BytesTargetToSource() != int64(len(msg)) {
		t.Fatalf("BytesTargetToSource = %d, want %d", pipe.BytesTargetToSource(), len(msg))
	}
}

func TestSocketPipeCancelClosesBoth(t *testing.T) {
	a, b := net.Pipe()
	c, d := net.Pipe()

	pipe := NewSocketPipe(a, c)
	done := make(chan struct{})
	go func() {
		pipe.Run()
		close(done)
	}()

	pipe.Cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipe did not finish after cancel")
	}

	if _, err := b.Write([]byte("x")); err == nil {
		t.Fatal("expected write on b's peer to fail after cancel")
	}
	if _, err := d.Write([]byte("x")); err == nil {
		t.Fatal("expected write on d's peer to fail after cancel")
	}
}

func TestSocketPipeOnEndFiresOnce(t *testing.T) {
	a, b := net.Pipe()
	c, d := net.Pipe()
	_ = b
	_ = d

	pipe := NewSocketPipe(a, c)
	var calls int
	pipe.SetOnEnd(func() { calls++ })

	done := make(chan struct{})
	go func() {
		pipe.Run()
		close(done)
	}()
	pipe.Cancel()
	<-done

	// A second Cancel is a no-op and does not fire on-end again.
	pipe.Cancel()
	if calls != 1 {
		t.Fatalf("on-end called %d times, want 1", calls)
	}
}
