package httpcodec

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteRequest serializes req as a full HTTP/1.1 request (request line,
// headers, body) to w. The body, if a stream, is copied through as-is; the
// caller is responsible for framing headers (Content-Length or chunked)
// matching the Body.Kind before calling WriteRequest.
func WriteRequest(w io.Writer, req *Request) error {
	var head strings.Builder
	target := req.GetURI()
	if target == "" {
		target = "/"
	}
	head.WriteString(fmt.Sprintf("%s %s HTTP/1.1\r\n", req.Method.String(), target))
	req.Headers.WriteTo(&head)
	head.WriteString("\r\n")

	if _, err := io.WriteString(w, head.String()); err != nil {
		return err
	}
	return writeBody(w, req.Body)
}

// WriteResponse serializes resp as a full HTTP/1.1 response. If
// resp.Streaming is set, headers are forced to Transfer-Encoding: chunked
// and the body (if a buffer) is emitted as a single chunk followed by the
// terminal zero chunk (spec §4.B "Emission").
func WriteResponse(w io.Writer, resp *Response) error {
	var head strings.Builder
	head.WriteString(fmt.Sprintf("HTTP/1.1 %s\r\n", resp.Status.StatusLine()))

	if resp.Streaming {
		resp.Headers.Del("Content-Length")
		resp.Headers.Set("Transfer-Encoding", "chunked")
	} else if resp.Status.ForbidsBody() {
		resp.Headers.Del("Content-Length")
	}
	resp.Headers.WriteTo(&head)
	head.WriteString("\r\n")

	if _, err := io.WriteString(w, head.String()); err != nil {
		return err
	}

	if resp.Status.ForbidsBody() {
		return nil
	}
	if resp.Streaming {
		return writeChunkedBody(w, resp.Body)
	}
	return writeBody(w, resp.Body)
}

func writeBody(w io.Writer, b Body) error {
	switch b.Kind {
	case BodyEmpty:
		return nil
	case BodyBuffer:
		_, err := w.Write(b.Bytes)
		return err
	case BodyBoundedStream, BodyChunkedStream:
		_, err := io.Copy(w, b.Stream)
		return err
	}
	return nil
}

func writeChunkedBody(w io.Writer, b Body) error {
	switch b.Kind {
	case BodyEmpty:
		_, err := io.WriteString(w, "0\r\n\r\n")
		return err
	case BodyBuffer:
		if err := WriteChunk(w, b.Bytes); err != nil {
			return err
		}
		return WriteFinalChunk(w)
	default:
		buf := make([]byte, 32*1024)
		for {
			n, err := b.Stream.Read(buf)
			if n > 0 {
				if werr := WriteChunk(w, buf[:n]); werr != nil {
					return werr
				}
			}
			if err == io.EOF {
				return WriteFinalChunk(w)
			}
			if err != nil {
				return err
			}
		}
	}
}

// WriteChunk emits one chunk ("hex CRLF data CRLF") for a streaming
// response (spec §4.E "each write(bytes) call emits one chunk").
func WriteChunk(w io.Writer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, strconv.FormatInt(int64(len(data)), 16)+"\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// WriteFinalChunk emits the terminal "0\r\n\r\n" that ends a chunked body
// (spec §4.E "end() emits the terminal zero chunk").
func WriteFinalChunk(w io.Writer) error {
	_, err := io.WriteString(w, "0\r\n\r\n")
	return err
}
