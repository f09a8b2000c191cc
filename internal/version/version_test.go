package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "dev", Version())
	assert.Contains(t, String("vros"), "vros dev")

	commit = "abc123"
	defer func() { commit = "" }()
	assert.Contains(t, String("vros"), "(abc123)")
}
