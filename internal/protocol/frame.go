package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize caps a declared frame length. Agent-declared lengths
// above the cap are rejected before any body buffer is allocated.
const DefaultMaxFrameSize = 1024 * 1024 // 1MB

const headerSize = 4

var (
	// ErrFrameTooLarge is returned when a frame declares (or a caller tries
	// to write) a body larger than the configured maximum.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrTruncatedFrame is returned when the stream ends after a frame
	// header but before the declared body length was read.
	ErrTruncatedFrame = errors.New("stream ended mid-frame")
)

// Reader reads length-prefixed frames from a byte stream. The underlying
// reader may deliver any number of bytes per call; a frame body is returned
// only once it has been fully assembled.
//
// A Reader is owned by a single goroutine.
type Reader struct {
	r      io.Reader
	max    uint32
	header [headerSize]byte
}

// NewReader returns a Reader over r. maxFrameSize of 0 selects
// DefaultMaxFrameSize.
func NewReader(r io.Reader, maxFrameSize uint32) *Reader {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Reader{r: r, max: maxFrameSize}
}

// ReadFrame returns the next frame body. It returns io.EOF when the stream
// ends before a complete header (the peer closed cleanly),
// ErrTruncatedFrame when it ends inside a body, and ErrFrameTooLarge when
// the declared length exceeds the maximum.
func (r *Reader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	size := binary.LittleEndian.Uint32(r.header[:])
	if size > r.max {
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrFrameTooLarge, size, r.max)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: expected %d body bytes", ErrTruncatedFrame, size)
		}
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}

// Writer writes length-prefixed frames. Header and body go out in a single
// Write call. If the underlying writer has a Flush method it is called after
// every frame.
//
// A Writer is owned by a single goroutine.
type Writer struct {
	w   io.Writer
	max uint32
	buf []byte
}

// NewWriter returns a Writer over w. maxFrameSize of 0 selects
// DefaultMaxFrameSize.
func NewWriter(w io.Writer, maxFrameSize uint32) *Writer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Writer{w: w, max: maxFrameSize}
}

// WriteFrame writes body as one frame.
func (w *Writer) WriteFrame(body []byte) error {
	if uint64(len(body)) > uint64(w.max) {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, len(body), w.max)
	}

	w.buf = binary.LittleEndian.AppendUint32(w.buf[:0], uint32(len(body)))
	w.buf = append(w.buf, body...)
	if _, err := w.w.Write(w.buf); err != nil {
		return err
	}
	if f, ok := w.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
