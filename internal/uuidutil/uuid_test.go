package uuidutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducesV7(t *testing.T) {
	u, err := New()
	require.NoError(t, err)
	assert.Equal(t, byte(0x70), u[6]&0xf0, "version nibble must be 7")
}

func TestParseHyphenatedAndHex(t *testing.T) {
	u, err := New()
	require.NoError(t, err)

	hyphenated := u.String()
	got, err := Parse(hyphenated)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	hex := hyphenated[0:8] + hyphenated[9:13] + hyphenated[14:18] + hyphenated[19:23] + hyphenated[24:]
	require.Len(t, hex, 32)
	got2, err := Parse(hex)
	require.NoError(t, err)
	assert.Equal(t, u, got2)
}

func TestParseRejectsBadLength(t *testing.T) {
	_, err := Parse("not-a-uuid")
	assert.Error(t, err)
}

func TestBytesRoundTrip(t *testing.T) {
	u, err := New()
	require.NoError(t, err)

	b := Bytes(u)
	require.Len(t, b, 16)

	got, err := FromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}
