package httpcodec

import "io"

// BodyKind discriminates the four message-body shapes from spec §3.
type BodyKind int

const (
	// BodyEmpty carries no content.
	BodyEmpty BodyKind = iota
	// BodyBuffer is an owned, fully in-memory byte slice of known length.
	BodyBuffer
	// BodyBoundedStream is a stream whose length is known via Content-Length.
	BodyBoundedStream
	// BodyChunkedStream is a stream whose length is unknown until EOF.
	BodyChunkedStream
)

// Body models a message body uniformly across parse and emit paths. Only
// one of Bytes/Stream is meaningful, selected by Kind.
type Body struct {
	Kind   BodyKind
	Bytes  []byte        // valid when Kind == BodyBuffer
	Stream io.Reader     // valid when Kind == BodyBoundedStream or BodyChunkedStream
	Length int64         // valid (>=0) when Kind == BodyBuffer or BodyBoundedStream
}

// EmptyBody returns a Body with no content.
func EmptyBody() Body {
	return Body{Kind: BodyEmpty}
}

// BufferBody wraps an owned byte slice as a Body.
func BufferBody(b []byte) Body {
	return Body{Kind: BodyBuffer, Bytes: b, Length: int64(len(b))}
}

// BoundedStreamBody wraps r as a Body of known length.
func BoundedStreamBody(r io.Reader, length int64) Body {
	return Body{Kind: BodyBoundedStream, Stream: r, Length: length}
}

// ChunkedStreamBody wraps r as a Body whose length is unknown until EOF.
func ChunkedStreamBody(r io.Reader) Body {
	return Body{Kind: BodyChunkedStream, Stream: r}
}
