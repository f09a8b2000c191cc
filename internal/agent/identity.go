package agent

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xfeldman/vros/internal/openvr"
	"github.com/xfeldman/vros/internal/protocol"
)

// DefaultNameBufferSize is the first guess for a display name buffer.
const DefaultNameBufferSize = 64

// maxNameAttempts bounds the display-name length discovery: the first call
// with the guessed size, then one retry with the size the runtime reported.
const maxNameAttempts = 2

// ErrNameLookupExhausted is returned when the runtime still reports the
// name buffer as too small after maxNameAttempts calls.
var ErrNameLookupExhausted = errors.New("application name buffer still too small")

// LookupError is a failed application lookup. It only affects the update
// being resolved; the loop keeps running.
type LookupError struct {
	Op   string
	PID  uint32
	Code openvr.ApplicationError
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s for pid %d: %s", e.Op, e.PID, e.Code)
}

func (e *LookupError) Unwrap() error { return e.Code }

// ResolveApplication returns the application rendering the scene, or nil
// when there is none.
func ResolveApplication(sess openvr.Session, nameBufferSize int) (*protocol.Application, error) {
	pid := sess.SceneProcessID()
	if pid == 0 {
		return nil, nil
	}

	key, code := sess.ApplicationKeyByProcessID(pid)
	switch code {
	case openvr.ApplicationErrorNone:
	case openvr.ApplicationErrorNoApplication:
		return nil, nil
	default:
		return nil, &LookupError{Op: "application key", PID: pid, Code: code}
	}

	name, ok, err := applicationName(sess, pid, key, nameBufferSize)
	if err != nil || !ok {
		return nil, err
	}
	return &protocol.Application{
		Key:  strings.ToValidUTF8(key, "\uFFFD"),
		Name: name,
	}, nil
}

// applicationName fetches the display name for key. ok is false when the
// runtime no longer knows the application.
func applicationName(sess openvr.Session, pid uint32, key string, size int) (name string, ok bool, err error) {
	if size <= 0 {
		size = DefaultNameBufferSize
	}
	buf := make([]byte, size)

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		n, code := sess.ApplicationPropertyString(key, openvr.ApplicationPropertyName, buf)
		switch {
		case code == openvr.ApplicationErrorNone && int(n) <= len(buf):
			return cString(buf[:n]), true, nil
		case code == openvr.ApplicationErrorNone, code == openvr.ApplicationErrorBufferTooSmall:
			buf = make([]byte, n)
		case code == openvr.ApplicationErrorNoApplication:
			return "", false, nil
		default:
			return "", false, &LookupError{Op: "application name", PID: pid, Code: code}
		}
	}
	return "", false, fmt.Errorf("application name for pid %d: %w after %d attempts",
		pid, ErrNameLookupExhausted, maxNameAttempts)
}

// cString converts a NUL-terminated runtime string to valid UTF-8.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
