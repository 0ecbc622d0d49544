// Package headers implements the HTTP response header classifier from
// spec section 4.3: it decides seekability, size, content type, and the
// ICY metadata interval from a response's header lines.
package headers

import (
	"strconv"
	"strings"
)

// maxFieldLen bounds the name and numeric-value lengths the handler
// will look at; anything longer is silently skipped, matching the
// original's fixed 64-byte stack buffers.
const maxFieldLen = 64

// Target is the subset of stream.InputStream state the header handler
// mutates. Splitting it out as an interface keeps this package free of
// any dependency on buffer/icy/stream internals while staying a pure
// function of "what a response header line does to a stream".
type Target interface {
	SetSeekable(bool)
	SetSize(contentLength uint64)
	SetMIME(mime string)
	SetStreamName(name string)
	StartICY(interval int)
	ICYEnabled() bool
}

// Handle parses one "Name: Value" response header line and applies its
// effect to target, per the table in spec section 4.3. Malformed lines
// (no colon, overlong name, or overlong value for the numeric
// content-length/icy-metaint fields) are silently skipped. Unknown
// header names are ignored.
func Handle(line string, target Target) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 || colon > maxFieldLen {
		return
	}

	name := line[:colon]
	value := strings.TrimSpace(line[colon+1:])

	switch strings.ToLower(name) {
	case "accept-ranges":
		if !target.ICYEnabled() {
			target.SetSeekable(true)
		}

	case "content-length":
		if len(value) > maxFieldLen {
			return
		}
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return
		}
		target.SetSize(n)

	case "content-type":
		target.SetMIME(value)

	case "icy-name", "ice-name", "x-audiocast-name":
		target.SetStreamName(value)

	case "icy-metaint":
		if len(value) > maxFieldLen || target.ICYEnabled() {
			return
		}
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return
		}
		if n > 0 {
			target.StartICY(int(n))
		}
	}
}

// IsICYStatusLine reports whether a raw HTTP status line should be
// treated as equivalent to "HTTP/1.x 200 OK", matching the original's
// CURLOPT_HTTP200ALIASES registration of the literal "ICY 200 OK".
func IsICYStatusLine(statusLine string) bool {
	return strings.HasPrefix(statusLine, "ICY ")
}
