package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

var (
	// ErrMalformed is returned for a body that is not a well-formed message:
	// truncated, wrong field count or type, invalid UTF-8, or trailing bytes.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownVariant is returned for a body whose tag names no known
	// variant of the expected message family.
	ErrUnknownVariant = errors.New("unknown message variant")

	// ErrUnencodable is returned when asked to encode a value that is not a
	// member of the message family (including a nil message).
	ErrUnencodable = errors.New("unencodable message")
)

// EncodeFromAgent serializes msg into a frame body.
func EncodeFromAgent(msg FromAgent) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	var err error
	switch m := msg.(type) {
	case InitializationCompleted:
		err = encodeHeader(enc, tagInitializationCompleted, 0)
	case InitializationError:
		err = firstErr(
			encodeHeader(enc, tagInitializationError, 2),
			enc.EncodeString(m.Name),
			enc.EncodeUint(uint64(m.Code)),
		)
	case ApplicationName:
		err = encodeHeader(enc, tagApplicationName, 1)
		if err == nil {
			err = encodeApplication(enc, m.Application)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnencodable, msg)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", Describe(msg), err)
	}
	return buf.Bytes(), nil
}

// DecodeFromAgent reconstructs a FromAgent message from a frame body. On
// failure it returns an error wrapping ErrMalformed or ErrUnknownVariant and
// never a partial message.
func DecodeFromAgent(body []byte) (FromAgent, error) {
	r := bytes.NewReader(body)
	dec := msgpack.NewDecoder(r)

	t, fields, err := decodeHeader(dec)
	if err != nil {
		return nil, err
	}

	var msg FromAgent
	switch t {
	case tagInitializationCompleted:
		if fields != 0 {
			return nil, arityError(t, fields)
		}
		msg = InitializationCompleted{}
	case tagInitializationError:
		if fields != 2 {
			return nil, arityError(t, fields)
		}
		name, err := decodeString(dec)
		if err != nil {
			return nil, err
		}
		code, err := decodeUint(dec)
		if err != nil {
			return nil, err
		}
		if code > math.MaxUint32 {
			return nil, fmt.Errorf("%w: code %d overflows uint32", ErrMalformed, code)
		}
		msg = InitializationError{Name: name, Code: uint32(code)}
	case tagApplicationName:
		if fields != 1 {
			return nil, arityError(t, fields)
		}
		app, err := decodeApplication(dec)
		if err != nil {
			return nil, err
		}
		msg = ApplicationName{Application: app}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, t)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())
	}
	return msg, nil
}

// EncodeToAgent serializes a host command into a frame body.
func EncodeToAgent(msg ToAgent) ([]byte, error) {
	switch msg.(type) {
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnencodable, msg)
	}
}

// DecodeToAgent reconstructs a host command from a frame body. The command
// set is empty, so any well-formed envelope yields ErrUnknownVariant.
func DecodeToAgent(body []byte) (ToAgent, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(body))

	t, _, err := decodeHeader(dec)
	if err != nil {
		return nil, err
	}
	switch t {
	default:
		return nil, fmt.Errorf("%w: command %s", ErrUnknownVariant, t)
	}
}

func encodeHeader(enc *msgpack.Encoder, t tag, fields int) error {
	if err := enc.EncodeArrayLen(fields + 1); err != nil {
		return err
	}
	return enc.EncodeUint(uint64(t))
}

// decodeHeader reads the envelope array and its tag, returning the number
// of fields that follow the tag.
func decodeHeader(dec *msgpack.Decoder) (tag, int, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return 0, 0, malformed(err)
	}
	if n < 1 {
		return 0, 0, fmt.Errorf("%w: envelope has %d elements", ErrMalformed, n)
	}
	t, err := decodeUint(dec)
	if err != nil {
		return 0, 0, err
	}
	return tag(t), n - 1, nil
}

func encodeApplication(enc *msgpack.Encoder, app *Application) error {
	if app == nil {
		return enc.EncodeArrayLen(0)
	}
	return firstErr(
		enc.EncodeArrayLen(2),
		enc.EncodeString(app.Key),
		enc.EncodeString(app.Name),
	)
}

func decodeApplication(dec *msgpack.Decoder) (*Application, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, malformed(err)
	}
	switch n {
	case 0:
		return nil, nil
	case 2:
	default:
		return nil, fmt.Errorf("%w: application has %d fields", ErrMalformed, n)
	}
	key, err := decodeString(dec)
	if err != nil {
		return nil, err
	}
	name, err := decodeString(dec)
	if err != nil {
		return nil, err
	}
	return &Application{Key: key, Name: name}, nil
}

// decodeString accepts only the str family. The library would also take
// nil and bin values.
func decodeString(dec *msgpack.Decoder) (string, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return "", malformed(err)
	}
	if !msgpcode.IsString(c) {
		return "", fmt.Errorf("%w: expected string, got code 0x%02x", ErrMalformed, c)
	}
	s, err := dec.DecodeString()
	if err != nil {
		return "", malformed(err)
	}
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: invalid UTF-8 string", ErrMalformed)
	}
	return s, nil
}

// decodeUint accepts only non-negative integers.
func decodeUint(dec *msgpack.Decoder) (uint64, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return 0, malformed(err)
	}
	switch {
	case c <= msgpcode.PosFixedNumHigh:
	case c == msgpcode.Uint8, c == msgpcode.Uint16, c == msgpcode.Uint32, c == msgpcode.Uint64:
	default:
		return 0, fmt.Errorf("%w: expected unsigned integer, got code 0x%02x", ErrMalformed, c)
	}
	v, err := dec.DecodeUint64()
	if err != nil {
		return 0, malformed(err)
	}
	return v, nil
}

func arityError(t tag, fields int) error {
	return fmt.Errorf("%w: %s with %d fields", ErrMalformed, t, fields)
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
