package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func fromAgentSamples() []FromAgent {
	return []FromAgent{
		InitializationCompleted{},
		InitializationError{Name: "VRInitError_Init_HmdNotFound", Code: 108},
		InitializationError{},
		InitializationError{Name: "VRInitError_Unknown", Code: 0xFFFFFFFF},
		ApplicationName{},
		ApplicationName{Application: &Application{Key: "steam.app.438100", Name: "VRChat"}},
		ApplicationName{Application: &Application{}},
		ApplicationName{Application: &Application{Key: "system.generated.ゲーム", Name: "ゲーム 🎮"}},
	}
}

func TestFromAgentRoundTrip(t *testing.T) {
	for _, msg := range fromAgentSamples() {
		t.Run(Describe(msg), func(t *testing.T) {
			body, err := EncodeFromAgent(msg)
			require.NoError(t, err)

			got, err := DecodeFromAgent(body)
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	msg := ApplicationName{Application: &Application{Key: "a", Name: "A"}}
	first, err := EncodeFromAgent(msg)
	require.NoError(t, err)
	second, err := EncodeFromAgent(msg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeFromAgentRejectsNil(t *testing.T) {
	_, err := EncodeFromAgent(nil)
	assert.ErrorIs(t, err, ErrUnencodable)
}

// rawBody builds a body from arbitrary msgpack values.
func rawBody(t *testing.T, values ...interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for _, v := range values {
		require.NoError(t, enc.Encode(v))
	}
	return buf.Bytes()
}

func TestDecodeFromAgentErrors(t *testing.T) {
	valid, err := EncodeFromAgent(InitializationError{Name: "x", Code: 1})
	require.NoError(t, err)

	tests := []struct {
		name string
		body []byte
		want error
	}{
		{"empty body", nil, ErrMalformed},
		{"not an array", rawBody(t, "hello"), ErrMalformed},
		{"empty envelope", rawBody(t, []interface{}{}), ErrMalformed},
		{"unknown tag", rawBody(t, []interface{}{uint8(9)}), ErrUnknownVariant},
		{"string tag", rawBody(t, []interface{}{"InitializationCompleted"}), ErrMalformed},
		{"truncated", valid[:len(valid)-1], ErrMalformed},
		{"trailing bytes", append(append([]byte{}, valid...), 0xc0), ErrMalformed},
		{"completed with fields", rawBody(t, []interface{}{uint8(0), "extra"}), ErrMalformed},
		{"error missing code", rawBody(t, []interface{}{uint8(1), "name"}), ErrMalformed},
		{"error code overflow", rawBody(t, []interface{}{uint8(1), "name", uint64(1) << 40}), ErrMalformed},
		{"error code wrong type", rawBody(t, []interface{}{uint8(1), "name", "108"}), ErrMalformed},
		{"application wrong arity", rawBody(t, []interface{}{uint8(2), []interface{}{"key"}}), ErrMalformed},
		{"error nil name", rawBody(t, []interface{}{uint8(1), nil, uint8(5)}), ErrMalformed},
		{"error binary name", rawBody(t, []interface{}{uint8(1), []byte("name"), uint8(5)}), ErrMalformed},
		{"error nil code", rawBody(t, []interface{}{uint8(1), "name", nil}), ErrMalformed},
		{"error negative code", rawBody(t, []interface{}{uint8(1), "name", int8(-1)}), ErrMalformed},
		{"nil tag", rawBody(t, []interface{}{nil}), ErrMalformed},
		{"application nil key", rawBody(t, []interface{}{uint8(2), []interface{}{nil, "Name"}}), ErrMalformed},
		{"application invalid utf8", rawBody(t, []interface{}{uint8(2), []interface{}{"key", string([]byte{0xff, 0xfe})}}), ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeFromAgent(tt.body)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, msg)
		})
	}
}

func TestToAgentHasNoVariants(t *testing.T) {
	_, err := EncodeToAgent(nil)
	assert.ErrorIs(t, err, ErrUnencodable)

	for _, tg := range []uint8{0, 1, 2, 200} {
		cmd, err := DecodeToAgent(rawBody(t, []interface{}{tg}))
		assert.ErrorIs(t, err, ErrUnknownVariant)
		assert.Nil(t, cmd)
	}

	_, err = DecodeToAgent([]byte{0x93})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestInitializationErrorMessage(t *testing.T) {
	err := InitializationError{Name: "VRInitError_Init_HmdNotFound", Code: 108}
	assert.Equal(t, "VRInitError_Init_HmdNotFound (108)", err.Error())
}

func TestIsViolation(t *testing.T) {
	_, err := DecodeFromAgent(rawBody(t, []interface{}{uint8(7)}))
	assert.True(t, IsViolation(err))
	assert.True(t, IsViolation(ErrFrameTooLarge))
	assert.False(t, IsViolation(ErrTruncatedFrame))
	assert.False(t, IsViolation(nil))
}
