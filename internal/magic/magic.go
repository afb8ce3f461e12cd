// Package magic sniffs the image MIME type of a byte prefix by matching
// well-known magic-number signatures. It is a restricted, image-only
// derivative of perkeep's internal/magic matcher table: the ingest and
// content endpoints only ever need to distinguish the five allowed
// image formats from everything else.
package magic

import "bytes"

type matchEntry struct {
	prefix []byte
	fn     func(head []byte) bool
	mtype  string
}

// matchTable is tried in order; the first match wins.
var matchTable = []matchEntry{
	{prefix: []byte("\x89PNG\r\n\x1a\n"), mtype: "image/png"},
	{prefix: []byte("\xff\xd8\xff"), mtype: "image/jpeg"},
	{prefix: []byte("GIF8"), mtype: "image/gif"},
	{prefix: []byte("BM"), mtype: "image/bmp"},
	{fn: isWebP, mtype: "image/webp"},
}

func isWebP(head []byte) bool {
	return len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP"))
}

// AllowedMimeTypes is the set of content types the ingest endpoint
// accepts, both as the declared multipart Content-Type and as the
// sniffed result.
var AllowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// SniffImage returns the MIME type matched by the given prefix (ideally
// the first 1024 bytes of the stream), or "" if nothing in the
// restricted image table matches.
func SniffImage(head []byte) string {
	for _, m := range matchTable {
		if m.fn != nil {
			if m.fn(head) {
				return m.mtype
			}
			continue
		}
		if bytes.HasPrefix(head, m.prefix) {
			return m.mtype
		}
	}
	return ""
}
