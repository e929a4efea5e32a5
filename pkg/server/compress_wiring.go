package server

import (
	"strconv"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/compress"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
)

// compressIfEligible applies spec §4.G outbound compression: bodies at or
// above compress.Threshold are gzip/deflate-encoded when the request's
// Accept-Encoding allows it, gzip preferred over deflate. Streaming
// responses are never touched here — they bypass WriteResponse entirely
// via StreamWriter, so this only ever sees a buffered Body.
func compressIfEligible(req *httpcodec.Request, res *httpcodec.Response) {
	if res.Streaming || res.Body.Kind != httpcodec.BodyBuffer {
		return
	}
	enc, ok := compress.ShouldCompress(len(res.Body.Bytes), req.Headers.Get("Accept-Encoding"))
	if !ok {
		return
	}
	encoded, err := compress.Compress(enc, res.Body.Bytes)
	if err != nil {
		return
	}
	res.Body = httpcodec.BufferBody(encoded)
	res.Headers.Set("Content-Length", strconv.Itoa(len(encoded)))
	res.Headers.Set("Content-Encoding", string(enc))
	res.Headers.Add("Vary", "Accept-Encoding")
}

// decompressIfNeeded transparently inflates a request body per spec §4.G
// inbound rules: an absent/identity Content-Encoding is a no-op, an
// unsupported coding is reported to the caller so the pipeline can answer
// 415, and the decompressed size is still bound by maxBody.
func decompressIfNeeded(req *httpcodec.Request, body []byte, maxBody int64) ([]byte, error) {
	enc := req.Headers.Get("Content-Encoding")
	if !compress.IsSupported(enc) {
		return nil, errors.NewValidationError("unsupported Content-Encoding: " + enc)
	}
	out, err := compress.Decompress(enc, body)
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > maxBody {
		return nil, errors.NewLimitExceededError("body", "decompressed body exceeds configured maximum")
	}
	return out, nil
}
