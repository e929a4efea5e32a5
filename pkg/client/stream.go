package client

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v2/pkg/errors"
)

const streamChunkSize = 32 * 1024

// StreamCallback receives one chunk of a response body as it is read back
// out of the client's body buffer. Returning a non-nil error aborts the
// stream early.
type StreamCallback func(chunk []byte) error

// ProgressCallback reports download progress: bytesRead so far and the
// total size if known from Content-Length (-1 otherwise).
type ProgressCallback func(bytesRead, total int64)

// Stream sends the built request and, once the response is complete,
// replays its body through cb in fixed-size chunks rather than handing
// back the whole buffer at once (spec §6 "get(url, stream_callback)").
// The underlying read from the wire is still fully buffered by Client.Do
// before Stream runs — true wire-level backpressure for client downloads
// is future work; see DESIGN.md.
func (b *RequestBuilder) Stream(cb StreamCallback) (*Response, error) {
	res, err := b.Get()
	if err != nil {
		return res, err
	}
	return res, streamBody(res, cb)
}

func streamBody(res *Response, cb StreamCallback) error {
	if res.Body == nil {
		return nil
	}
	rc, err := res.Body.Reader()
	if err != nil {
		return errors.NewIOError("opening response body for streaming", err)
	}
	defer rc.Close()

	buf := make([]byte, streamChunkSize)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if cbErr := cb(buf[:n]); cbErr != nil {
				return cbErr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return errors.NewIOError("reading response body for streaming", rerr)
		}
	}
}

// Download fetches url and writes its body to path, reporting progress
// through onProgress if non-nil (spec §6 "download(url, path, progress)").
func (c *Client) Download(url string, path string, onProgress ProgressCallback) (*Response, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.NewIOError("creating download destination", err)
	}
	defer f.Close()

	res, err := c.Request(url).Get()
	if err != nil {
		return res, err
	}
	var total int64 = -1
	if n, perr := strconv.ParseInt(strings.TrimSpace(firstHeader(res.Headers, "Content-Length")), 10, 64); perr == nil {
		total = n
	}
	var written int64

	err = streamBody(res, func(chunk []byte) error {
		if _, werr := f.Write(chunk); werr != nil {
			return errors.NewIOError("writing download chunk", werr)
		}
		written += int64(len(chunk))
		if onProgress != nil {
			onProgress(written, total)
		}
		return nil
	})
	return res, err
}
