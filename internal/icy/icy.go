// Package icy implements the ICY (Shoutcast/Icecast) in-band metadata
// de-interleaver: it separates audio bytes from periodic metadata blocks
// inserted every icy-metaint bytes of an otherwise raw audio stream.
package icy

import "strings"

// state names the parser's position within one metadata cycle.
type state int

const (
	disabled state = iota
	expectAudio
	expectLengthByte
	expectMeta
)

// Tag holds the tag kinds this stream cares about. It is intentionally a
// small fixed struct rather than a generic multimap: spec-level ICY
// streams only ever populate Name (from the icy-name family of response
// headers) and Title (from a StreamTitle metadata block).
type Tag struct {
	Name  string
	Title string
}

// Empty reports whether the tag carries no information at all.
func (t Tag) Empty() bool {
	return t.Name == "" && t.Title == ""
}

// Parser is the stateful de-interleaver described in spec section 4.2.
// It is only ever touched by the consumer during Read; the transfer
// engine's write callback stores raw bytes without interpreting them.
type Parser struct {
	st state

	interval  int
	remaining int // remaining_audio_bytes or remaining_meta_bytes, depending on st

	accum []byte

	pending    *Tag
	streamName string
}

// Enabled reports whether ICY parsing has been started for this stream.
func (p *Parser) Enabled() bool {
	return p.st != disabled
}

// Start begins ICY parsing with the given metadata interval. Per spec
// section 4.2/4.3, a stream with ICY enabled is never seekable; the
// caller is responsible for clearing its own seekable flag.
func (p *Parser) Start(interval int) {
	p.st = expectAudio
	p.interval = interval
	p.remaining = interval
	p.accum = nil
}

// SetStreamName records the icy-name (or ice-name/x-audiocast-name)
// header value, folded into the next produced Tag as Name.
func (p *Parser) SetStreamName(name string) {
	p.streamName = name
}

// Data reports how many of the next L source bytes are audio, i.e.
// min(L, remaining_audio_bytes). The caller copies that many bytes out
// unchanged and advances the source by that many bytes; Data then
// decrements its internal counter and transitions to ExpectLengthByte
// once it reaches zero.
func (p *Parser) Data(l int) int {
	if p.st != expectAudio || l <= 0 {
		return 0
	}
	n := l
	if n > p.remaining {
		n = p.remaining
	}
	p.remaining -= n
	if p.remaining == 0 {
		p.st = expectLengthByte
	}
	return n
}

// Meta consumes metadata bytes from src (of length up to l), never
// emitting them as audio, and returns how many bytes it consumed. The
// first metadata byte is a length byte B; the metadata block is B*16
// bytes long. When the block completes, it is parsed into a Tag,
// available afterward via ReadTag, and the parser returns to
// ExpectAudio(interval).
func (p *Parser) Meta(src []byte, l int) int {
	if l > len(src) {
		l = len(src)
	}
	switch p.st {
	case expectLengthByte:
		if l == 0 {
			return 0
		}
		size := int(src[0]) * 16
		if size == 0 {
			p.finishMetaBlock()
			return 1
		}
		p.st = expectMeta
		p.remaining = size
		p.accum = p.accum[:0]
		return 1

	case expectMeta:
		if l == 0 {
			return 0
		}
		n := l
		if n > p.remaining {
			n = p.remaining
		}
		p.accum = append(p.accum, src[:n]...)
		p.remaining -= n
		if p.remaining == 0 {
			p.finishMetaBlock()
		}
		return n

	default:
		return 0
	}
}

// finishMetaBlock parses the accumulated metadata block and transitions
// back to ExpectAudio(interval); a zero-length block still transitions
// but never produces a tag.
func (p *Parser) finishMetaBlock() {
	block := p.accum
	p.accum = nil
	p.st = expectAudio
	p.remaining = p.interval

	title := extractStreamTitle(block)
	if title == "" {
		return
	}
	p.pending = &Tag{Name: p.streamName, Title: title}
}

// ReadTag hands off and clears the most recently completed tag. It
// returns nil when no tag is pending.
func (p *Parser) ReadTag() *Tag {
	t := p.pending
	p.pending = nil
	return t
}

// extractStreamTitle parses a metadata block of the form
// key='value';key='value'; and returns the StreamTitle value, or "" if
// absent. Every other key is ignored per spec section 4.2/6.
func extractStreamTitle(block []byte) string {
	raw := strings.TrimRight(string(block), "\x00")
	if raw == "" {
		return ""
	}

	lower := strings.ToLower(raw)
	const marker = "streamtitle='"
	start := strings.Index(lower, marker)
	if start < 0 {
		return ""
	}
	start += len(marker)

	end := strings.Index(raw[start:], "'")
	if end < 0 {
		return ""
	}

	return raw[start : start+end]
}
