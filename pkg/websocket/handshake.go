package websocket

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// magicGUID is the fixed suffix RFC 6455 §1.3 mixes into the handshake key.
const magicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes Sec-WebSocket-Accept from a client's Sec-WebSocket-Key
// (spec §4.F "Compute Sec-WebSocket-Accept = base64(SHA1(key + GUID))").
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + magicGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ValidateUpgradeRequest checks the request carries a well-formed WebSocket
// upgrade (spec §4.F "Server handshake"). Returns the client's
// Sec-WebSocket-Key on success.
func ValidateUpgradeRequest(req *httpcodec.Request) (string, error) {
	if req.Method != httpcodec.MethodGet {
		return "", errors.NewProtocolError("websocket upgrade requires GET", nil)
	}
	if !headerContainsToken(req.Headers.Get("Upgrade"), "websocket") {
		return "", errors.NewProtocolError("missing Upgrade: websocket", nil)
	}
	if !headerContainsToken(req.Headers.Get("Connection"), "upgrade") {
		return "", errors.NewProtocolError("missing Connection: Upgrade", nil)
	}
	if req.Headers.Get("Sec-WebSocket-Version") != "13" {
		return "", errors.NewProtocolError("unsupported Sec-WebSocket-Version", nil)
	}
	key := req.Headers.Get("Sec-WebSocket-Key")
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(decoded) != 16 {
		return "", errors.NewProtocolError("invalid Sec-WebSocket-Key", err)
	}
	return key, nil
}

func headerContainsToken(csv, token string) bool {
	for _, part := range strings.Split(csv, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// BuildUpgradeResponse produces the 101 response for a validated upgrade
// request.
func BuildUpgradeResponse(clientKey string) *httpcodec.Response {
	res := httpcodec.NewResponse(httpcodec.StatusSwitchingProtocols)
	res.Headers.Set("Upgrade", "websocket")
	res.Headers.Set("Connection", "Upgrade")
	res.Headers.Set("Sec-WebSocket-Accept", AcceptKey(clientKey))
	return res
}

// NewClientKey generates a fresh random 16-byte Sec-WebSocket-Key for a
// client-initiated handshake (spec §4.F "Client handshake").
func NewClientKey() string {
	raw := make([]byte, 16)
	rand.Read(raw)
	return base64.StdEncoding.EncodeToString(raw)
}

// VerifyServerAccept checks the server's Sec-WebSocket-Accept against the
// key the client sent (spec §4.F "verifies the server's Accept value
// matches the expected SHA1 digest").
func VerifyServerAccept(clientKey, serverAccept string) bool {
	return AcceptKey(clientKey) == serverAccept
}
