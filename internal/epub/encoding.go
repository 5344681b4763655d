package epub

import (
	"bytes"
	"errors"
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrUndecodable is returned when member bytes cannot be decoded to text.
var ErrUndecodable = errors.New("undecodable text member")

// BOM markers.
var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Matches an encoding declaration in an XML or HTML prolog.
var encodingDeclRe = regexp.MustCompile(`(?i)<\?xml[^>]*encoding=["']([A-Za-z0-9._-]+)["']`)

// How far into a member the declaration scan looks.
const declScanLimit = 1024

// DecodeText decodes member bytes to a string. Detection order: UTF-8
// BOM, UTF-16 BOM (either endianness, decoded via x/text), an
// encoding="..." declaration in the early bytes (resolved through the
// HTML encoding index), then UTF-8 as the format default. Bytes that
// fail the selected decoding yield ErrUndecodable.
func DecodeText(data []byte) (string, error) {
	if bytes.HasPrefix(data, bomUTF8) {
		stripped := data[len(bomUTF8):]
		if !utf8.Valid(stripped) {
			return "", ErrUndecodable
		}
		return string(stripped), nil
	}

	if bytes.HasPrefix(data, bomUTF16LE) || bytes.HasPrefix(data, bomUTF16BE) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		decoded, err := dec.Bytes(data)
		if err != nil {
			return "", ErrUndecodable
		}
		return string(decoded), nil
	}

	if name := declaredEncoding(data); name != "" {
		enc, err := htmlindex.Get(name)
		if err == nil {
			decoded, err := enc.NewDecoder().Bytes(data)
			if err != nil {
				return "", ErrUndecodable
			}
			if !utf8.Valid(decoded) {
				return "", ErrUndecodable
			}
			return string(decoded), nil
		}
		// Unknown declared name falls through to the UTF-8 default.
	}

	if !utf8.Valid(data) {
		return "", ErrUndecodable
	}
	return string(data), nil
}

// declaredEncoding scans the early bytes for an encoding declaration.
func declaredEncoding(data []byte) string {
	head := data
	if len(head) > declScanLimit {
		head = head[:declScanLimit]
	}
	m := encodingDeclRe.FindSubmatch(head)
	if m == nil {
		return ""
	}
	return string(m[1])
}
