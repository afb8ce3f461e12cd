package magic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSniffImageKnownSignatures(t *testing.T) {
	cases := []struct {
		name string
		head []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\nrest"), "image/png"},
		{"jpeg", []byte("\xff\xd8\xffrest"), "image/jpeg"},
		{"gif", []byte("GIF89arest"), "image/gif"},
		{"bmp", []byte("BMrest"), "image/bmp"},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00WEBP"), "rest"...), "image/webp"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, SniffImage(c.head))
		})
	}
}

func TestSniffImageUnknown(t *testing.T) {
	assert.Equal(t, "", SniffImage([]byte("%PDF-1.4 not an image")))
	assert.Equal(t, "", SniffImage(nil))
}

func TestSniffImageWebPRequiresFullHeader(t *testing.T) {
	assert.Equal(t, "", SniffImage([]byte("RIFF\x00\x00")))
}

func TestAllowedMimeTypesMatchesSniffTable(t *testing.T) {
	for _, mt := range []string{"image/png", "image/jpeg", "image/gif", "image/webp", "image/bmp"} {
		assert.True(t, AllowedMimeTypes[mt], "%s should be allowed", mt)
	}
	assert.False(t, AllowedMimeTypes["application/pdf"])
}
