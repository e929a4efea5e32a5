package client

import (
	"bufio"
	"crypto/tls"
	"net"
	"strconv"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/websocket"
)

// Websocket dials target, performs the RFC 6455 client handshake, and
// returns a live connection with client-masked writes (spec §6
// "websocket(url) -> optional<ws>"). The caller owns calling Start() (in
// its own goroutine) to begin the read loop once OnMessage/OnClose/
// OnError are wired up.
func (c *Client) Websocket(url string) (*websocket.Conn, error) {
	t, err := parseTargetURL(url)
	if err != nil {
		return nil, err
	}
	wsScheme := "ws"
	if t.Scheme == "https" || t.Scheme == "wss" {
		wsScheme = "wss"
	}

	var conn net.Conn
	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	if wsScheme == "wss" {
		conn, err = tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: !c.verifySSL, ServerName: t.Host})
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, errors.NewConnectionError(t.Host, t.Port, err)
	}

	clientKey := websocket.NewClientKey()
	req := httpcodec.NewRequest(httpcodec.MethodGet, t.Path)
	req.Headers.Set("Host", hostHeader(t))
	req.Headers.Set("Upgrade", "websocket")
	req.Headers.Set("Connection", "Upgrade")
	req.Headers.Set("Sec-WebSocket-Key", clientKey)
	req.Headers.Set("Sec-WebSocket-Version", "13")

	reqBytes, err := requestBytes(req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Write(reqBytes); err != nil {
		conn.Close()
		return nil, errors.NewIOError("writing websocket handshake", err)
	}

	r := bufio.NewReader(conn)
	res, _, err := httpcodec.ParseResponseHead(r, httpcodec.Limits{})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if res.Status != httpcodec.StatusSwitchingProtocols {
		conn.Close()
		return nil, errors.NewProtocolError("websocket handshake rejected", nil)
	}
	if !websocket.VerifyServerAccept(clientKey, res.Headers.Get("Sec-WebSocket-Accept")) {
		conn.Close()
		return nil, errors.NewProtocolError("invalid Sec-WebSocket-Accept", nil)
	}

	return websocket.NewConn(conn, r, true), nil
}
