package protocol

import (
	"errors"
	"io"
)

// Sender encodes messages and writes them as frames.
type Sender struct {
	w *Writer
}

// NewSender returns a Sender writing frames to w.
func NewSender(w io.Writer, maxFrameSize uint32) *Sender {
	return &Sender{w: NewWriter(w, maxFrameSize)}
}

// SendFromAgent writes one agent event.
func (s *Sender) SendFromAgent(msg FromAgent) error {
	body, err := EncodeFromAgent(msg)
	if err != nil {
		return err
	}
	return s.w.WriteFrame(body)
}

// SendToAgent writes one host command.
func (s *Sender) SendToAgent(msg ToAgent) error {
	body, err := EncodeToAgent(msg)
	if err != nil {
		return err
	}
	return s.w.WriteFrame(body)
}

// Receiver reads frames and decodes them into messages.
type Receiver struct {
	r *Reader
}

// NewReceiver returns a Receiver reading frames from r.
func NewReceiver(r io.Reader, maxFrameSize uint32) *Receiver {
	return &Receiver{r: NewReader(r, maxFrameSize)}
}

// RecvFromAgent returns the next agent event. io.EOF means the agent
// closed its output cleanly.
func (r *Receiver) RecvFromAgent() (FromAgent, error) {
	body, err := r.r.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeFromAgent(body)
}

// RecvToAgent returns the next host command. io.EOF means the host closed
// the command pipe.
func (r *Receiver) RecvToAgent() (ToAgent, error) {
	body, err := r.r.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeToAgent(body)
}

// IsViolation reports whether err means the peers have desynchronized:
// an oversized frame or an undecodable body. Transport errors and io.EOF
// are not violations.
func IsViolation(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrUnknownVariant) ||
		errors.Is(err, ErrFrameTooLarge)
}
