// Package compress implements the gzip/deflate negotiation and threshold
// policy from spec §4.G. Both codecs are stdlib (compress/gzip,
// compress/flate); see DESIGN.md for why no third-party codec is used —
// the pack's only compression-capable teacher (jason-cq-nats-server) also
// reaches for compress/flate directly.
package compress

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/constants"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
)

// Encoding is a negotiated content-coding.
type Encoding string

const (
	EncodingNone    Encoding = ""
	EncodingGzip    Encoding = "gzip"
	EncodingDeflate Encoding = "deflate"
)

// Threshold is the minimum response body size eligible for outbound
// compression (spec §4.G, §9 "hard-coded... an implementation should
// expose them" — exposed here as an overridable var).
var Threshold = constants.CompressionThreshold

// NegotiateEncoding parses an Accept-Encoding header value and returns the
// preferred supported encoding, preferring gzip over deflate per spec §4.G.
func NegotiateEncoding(acceptEncoding string) Encoding {
	if acceptEncoding == "" {
		return EncodingNone
	}
	hasGzip, hasDeflate := false, false
	for _, tok := range strings.Split(acceptEncoding, ",") {
		tok = strings.TrimSpace(strings.SplitN(tok, ";", 2)[0])
		switch strings.ToLower(tok) {
		case "gzip", "*":
			hasGzip = true
		case "deflate":
			hasDeflate = true
		}
	}
	switch {
	case hasGzip:
		return EncodingGzip
	case hasDeflate:
		return EncodingDeflate
	default:
		return EncodingNone
	}
}

// ShouldCompress reports whether a response body of bodyLen bytes should
// be compressed given the client's Accept-Encoding, per the §4.G /
// §8 boundary rule: bodies < Threshold are never compressed.
func ShouldCompress(bodyLen int, acceptEncoding string) (Encoding, bool) {
	if bodyLen < Threshold {
		return EncodingNone, false
	}
	enc := NegotiateEncoding(acceptEncoding)
	return enc, enc != EncodingNone
}

// Compress encodes data with enc.
func Compress(enc Encoding, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch enc {
	case EncodingGzip:
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(data); err != nil {
			return nil, errors.NewIOError("gzip compress", err)
		}
		if err := gw.Close(); err != nil {
			return nil, errors.NewIOError("gzip compress close", err)
		}
	case EncodingDeflate:
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, errors.NewIOError("deflate compress", err)
		}
		if _, err := fw.Write(data); err != nil {
			return nil, errors.NewIOError("deflate compress", err)
		}
		if err := fw.Close(); err != nil {
			return nil, errors.NewIOError("deflate compress close", err)
		}
	default:
		return data, nil
	}
	return buf.Bytes(), nil
}

// Decompress decodes data encoded with contentEncoding ("gzip"/"deflate").
// An unknown encoding is a validation error the server maps to 415 and the
// client surfaces as a transport error (spec §4.G "Unknown encodings
// cause 415").
func Decompress(contentEncoding string, data []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.NewProtocolError("invalid gzip body", err)
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		if err != nil {
			return nil, errors.NewProtocolError("gzip decompress failed", err)
		}
		return out, nil
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(data))
		defer fr.Close()
		out, err := io.ReadAll(fr)
		if err != nil {
			return nil, errors.NewProtocolError("deflate decompress failed", err)
		}
		return out, nil
	case "", "identity":
		return data, nil
	default:
		return nil, errors.NewValidationError("unsupported Content-Encoding: " + contentEncoding)
	}
}

// IsSupported reports whether contentEncoding is a known decodable coding.
func IsSupported(contentEncoding string) bool {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity", "gzip", "deflate":
		return true
	default:
		return false
	}
}
